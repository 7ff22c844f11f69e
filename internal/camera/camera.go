// Package camera captures single frames for recognition, either from a
// local webcam or from an HTTP snapshot endpoint.
package camera

import (
	"context"
	"fmt"
	"time"

	"gocv.io/x/gocv"

	"github.com/michrafnabil/facegate/internal/config"
)

// Source produces a single JPEG-encoded frame.
type Source interface {
	Capture(ctx context.Context) ([]byte, error)
}

// NewSource picks the capture source: the HTTP snapshot endpoint when a
// URL is configured, the local webcam otherwise.
func NewSource(cfg *config.CameraConfig) Source {
	if cfg.SnapshotURL != "" {
		return NewSnapshotSource(cfg.SnapshotURL)
	}
	return NewWebcamSource(cfg.Device, cfg.WarmupDelay, cfg.CaptureDelay)
}

// WebcamSource captures frames from a local video device via OpenCV.
type WebcamSource struct {
	device       int
	warmupDelay  time.Duration
	captureDelay time.Duration
}

// NewWebcamSource creates a webcam source for the given device ID.
func NewWebcamSource(device int, warmupDelay, captureDelay time.Duration) *WebcamSource {
	return &WebcamSource{
		device:       device,
		warmupDelay:  warmupDelay,
		captureDelay: captureDelay,
	}
}

// Capture opens the device, waits for the sensor to settle, grabs one
// frame and releases the device again. Holding the device open between
// captures is deliberately avoided so other processes can use it.
func (s *WebcamSource) Capture(ctx context.Context) ([]byte, error) {
	webcam, err := gocv.OpenVideoCapture(s.device)
	if err != nil {
		return nil, fmt.Errorf("opening video device %d: %w", s.device, err)
	}
	defer webcam.Close()

	if err := sleepCtx(ctx, s.warmupDelay); err != nil {
		return nil, err
	}

	frame := gocv.NewMat()
	defer frame.Close()

	// Discard the first frame; many webcams deliver a dark or stale
	// buffer right after opening.
	if ok := webcam.Read(&frame); !ok {
		return nil, fmt.Errorf("reading warmup frame from device %d", s.device)
	}

	if err := sleepCtx(ctx, s.captureDelay); err != nil {
		return nil, err
	}

	if ok := webcam.Read(&frame); !ok || frame.Empty() {
		return nil, fmt.Errorf("reading frame from device %d", s.device)
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, frame)
	if err != nil {
		return nil, fmt.Errorf("encoding frame: %w", err)
	}
	defer buf.Close()

	data := make([]byte, buf.Len())
	copy(data, buf.GetBytes())
	return data, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
