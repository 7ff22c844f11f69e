package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Paths       PathsConfig       `yaml:"paths"`
	Detector    DetectorConfig    `yaml:"detector"`
	Embedder    EmbedderConfig    `yaml:"embedder"`
	Recognition RecognitionConfig `yaml:"recognition"`
	Preprocess  PreprocessConfig  `yaml:"preprocess"`
	Camera      CameraConfig      `yaml:"camera"`
	Database    DatabaseConfig    `yaml:"database"`
	Server      ServerConfig      `yaml:"server"`
}

type PathsConfig struct {
	DataDir        string `yaml:"data_dir"`        // base directory for generated artifacts
	DatasetDir     string `yaml:"dataset_dir"`     // raw per-person source images
	WhitelistDir   string `yaml:"whitelist_dir"`   // preprocessed 160x160 face crops
	ResultsDir     string `yaml:"results_dir"`     // annotated detection results
	PrototypesPath string `yaml:"prototypes_path"` // NPZ archive of per-person prototypes
	ReferencesPath string `yaml:"references_path"` // NPZ archive of per-person reference embeddings
}

type DetectorConfig struct {
	URL           string  `yaml:"url"`            // face detection model server
	ConfThreshold float64 `yaml:"conf_threshold"` // minimum detection confidence
	IoUThreshold  float64 `yaml:"iou_threshold"`  // NMS IoU threshold
}

type EmbedderConfig struct {
	URL       string `yaml:"url"`        // face embedding model server
	InputSize int    `yaml:"input_size"` // expected face crop side in pixels
	Dim       int    `yaml:"dim"`        // embedding dimensionality
}

type RecognitionConfig struct {
	Threshold  float64 `yaml:"threshold"`   // max cosine distance for a match
	CropMargin float64 `yaml:"crop_margin"` // margin around detected box before embedding
}

type PreprocessConfig struct {
	Margin       float64 `yaml:"margin"`         // margin around detected box for dataset crops
	MinFaceSize  int     `yaml:"min_face_size"`  // reject crops with a smaller min side
	MaxPerPerson int     `yaml:"max_per_person"` // cap on images per person
	JPEGQuality  int     `yaml:"jpeg_quality"`
}

type CameraConfig struct {
	Device       int           `yaml:"device"`        // webcam device ID
	SnapshotURL  string        `yaml:"snapshot_url"`  // HTTP snapshot source, used instead of the webcam when set
	WarmupDelay  time.Duration `yaml:"warmup_delay"`  // wait after opening the device
	CaptureDelay time.Duration `yaml:"capture_delay"` // wait before grabbing the frame
}

type DatabaseConfig struct {
	URL          string `yaml:"url"` // PostgreSQL connection URL; archive store is used when empty
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// envStr reads an environment variable, falling back to a default when unset.
func envStr(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable and parses it as a positive float.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return f
	}
	return defaultVal
}

// envNonNegInt reads an environment variable and parses it as a non-negative integer.
func envNonNegInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 0 {
		return n
	}
	return defaultVal
}

// envDuration reads an environment variable and parses it as a duration.
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d >= 0 {
		return d
	}
	return defaultVal
}

// Load builds the configuration from environment variables with defaults
// matching the reference pipeline. When FACEGATE_CONFIG points to a YAML
// file, values from that file override the result.
func Load() *Config {
	dataDir := envStr("FACEGATE_DATA_DIR", "data")

	cfg := &Config{
		Paths: PathsConfig{
			DataDir:        dataDir,
			DatasetDir:     envStr("FACEGATE_DATASET_DIR", filepath.Join(dataDir, "dataset_faces")),
			WhitelistDir:   envStr("FACEGATE_WHITELIST_DIR", filepath.Join(dataDir, "whitelist_preprocessed")),
			ResultsDir:     envStr("FACEGATE_RESULTS_DIR", filepath.Join(dataDir, "results")),
			PrototypesPath: envStr("FACEGATE_PROTOTYPES_PATH", filepath.Join(dataDir, "prototypes", "whitelist_proto.npz")),
			ReferencesPath: envStr("FACEGATE_REFERENCES_PATH", filepath.Join(dataDir, "prototypes", "whitelist_refs.npz")),
		},
		Detector: DetectorConfig{
			URL:           envStr("FACEGATE_DETECTOR_URL", "http://localhost:8001"),
			ConfThreshold: envFloat("FACEGATE_DETECTOR_CONF", 0.5),
			IoUThreshold:  envFloat("FACEGATE_DETECTOR_IOU", 0.45),
		},
		Embedder: EmbedderConfig{
			URL:       envStr("FACEGATE_EMBEDDER_URL", "http://localhost:8002"),
			InputSize: envInt("FACEGATE_EMBEDDER_SIZE", 160),
			Dim:       envInt("FACEGATE_EMBEDDING_DIM", 512),
		},
		Recognition: RecognitionConfig{
			Threshold:  envFloat("FACEGATE_THRESHOLD", 0.25),
			CropMargin: envFloat("FACEGATE_CROP_MARGIN", 0.25),
		},
		Preprocess: PreprocessConfig{
			Margin:       envFloat("FACEGATE_PREPROCESS_MARGIN", 0.15),
			MinFaceSize:  envInt("FACEGATE_MIN_FACE_SIZE", 80),
			MaxPerPerson: envInt("FACEGATE_MAX_PER_PERSON", 100),
			JPEGQuality:  envInt("FACEGATE_JPEG_QUALITY", 95),
		},
		Camera: CameraConfig{
			Device:       envNonNegInt("FACEGATE_CAMERA_DEVICE", 0),
			SnapshotURL:  envStr("FACEGATE_SNAPSHOT_URL", ""),
			WarmupDelay:  envDuration("FACEGATE_WARMUP_DELAY", 500*time.Millisecond),
			CaptureDelay: envDuration("FACEGATE_CAPTURE_DELAY", 500*time.Millisecond),
		},
		Database: DatabaseConfig{
			URL:          envStr("DATABASE_URL", ""),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Server: ServerConfig{
			Host: envStr("FACEGATE_HOST", "127.0.0.1"),
			Port: envInt("FACEGATE_PORT", 8080),
		},
	}

	if path := os.Getenv("FACEGATE_CONFIG"); path != "" {
		// A broken config file should not silently fall back to defaults.
		if err := cfg.mergeFile(path); err != nil {
			panic(fmt.Sprintf("failed to load config file %s: %v", path, err))
		}
	}

	return cfg
}

// mergeFile overlays values from a YAML config file onto the config.
// Zero values in the file leave the corresponding defaults untouched.
func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the user's own environment
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	var overlay Config
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	mergePaths(&c.Paths, &overlay.Paths)
	mergeDetector(&c.Detector, &overlay.Detector)
	mergeEmbedder(&c.Embedder, &overlay.Embedder)
	mergeRecognition(&c.Recognition, &overlay.Recognition)
	mergePreprocess(&c.Preprocess, &overlay.Preprocess)
	mergeCamera(&c.Camera, &overlay.Camera)
	mergeDatabase(&c.Database, &overlay.Database)
	mergeServer(&c.Server, &overlay.Server)
	return nil
}

func mergePaths(dst, src *PathsConfig) {
	if src.DataDir != "" {
		dst.DataDir = src.DataDir
	}
	if src.DatasetDir != "" {
		dst.DatasetDir = src.DatasetDir
	}
	if src.WhitelistDir != "" {
		dst.WhitelistDir = src.WhitelistDir
	}
	if src.ResultsDir != "" {
		dst.ResultsDir = src.ResultsDir
	}
	if src.PrototypesPath != "" {
		dst.PrototypesPath = src.PrototypesPath
	}
	if src.ReferencesPath != "" {
		dst.ReferencesPath = src.ReferencesPath
	}
}

func mergeDetector(dst, src *DetectorConfig) {
	if src.URL != "" {
		dst.URL = src.URL
	}
	if src.ConfThreshold > 0 {
		dst.ConfThreshold = src.ConfThreshold
	}
	if src.IoUThreshold > 0 {
		dst.IoUThreshold = src.IoUThreshold
	}
}

func mergeEmbedder(dst, src *EmbedderConfig) {
	if src.URL != "" {
		dst.URL = src.URL
	}
	if src.InputSize > 0 {
		dst.InputSize = src.InputSize
	}
	if src.Dim > 0 {
		dst.Dim = src.Dim
	}
}

func mergeRecognition(dst, src *RecognitionConfig) {
	if src.Threshold > 0 {
		dst.Threshold = src.Threshold
	}
	if src.CropMargin > 0 {
		dst.CropMargin = src.CropMargin
	}
}

func mergePreprocess(dst, src *PreprocessConfig) {
	if src.Margin > 0 {
		dst.Margin = src.Margin
	}
	if src.MinFaceSize > 0 {
		dst.MinFaceSize = src.MinFaceSize
	}
	if src.MaxPerPerson > 0 {
		dst.MaxPerPerson = src.MaxPerPerson
	}
	if src.JPEGQuality > 0 {
		dst.JPEGQuality = src.JPEGQuality
	}
}

func mergeCamera(dst, src *CameraConfig) {
	if src.Device > 0 {
		dst.Device = src.Device
	}
	if src.SnapshotURL != "" {
		dst.SnapshotURL = src.SnapshotURL
	}
	if src.WarmupDelay > 0 {
		dst.WarmupDelay = src.WarmupDelay
	}
	if src.CaptureDelay > 0 {
		dst.CaptureDelay = src.CaptureDelay
	}
}

func mergeDatabase(dst, src *DatabaseConfig) {
	if src.URL != "" {
		dst.URL = src.URL
	}
	if src.MaxOpenConns > 0 {
		dst.MaxOpenConns = src.MaxOpenConns
	}
	if src.MaxIdleConns > 0 {
		dst.MaxIdleConns = src.MaxIdleConns
	}
}

func mergeServer(dst, src *ServerConfig) {
	if src.Host != "" {
		dst.Host = src.Host
	}
	if src.Port > 0 {
		dst.Port = src.Port
	}
}
