package camera

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// SnapshotSource fetches frames from an HTTP snapshot endpoint, as exposed
// by IP cameras and camera gateway services.
type SnapshotSource struct {
	url    string
	client *http.Client
}

// NewSnapshotSource creates a source that GETs the given URL per capture.
func NewSnapshotSource(url string) *SnapshotSource {
	return &SnapshotSource{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Capture fetches one frame from the snapshot URL.
func (s *SnapshotSource) Capture(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating snapshot request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching snapshot: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("snapshot endpoint returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot body: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("snapshot endpoint returned an empty body")
	}
	return data, nil
}
