// Package config loads orchestrator settings from an optional YAML file overlaid with
// environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/withObsrvr/braket-orchestrator/internal/taskerrors"
)

// EnvConfigPath names the environment variable holding the YAML config path.
const EnvConfigPath = "BRAKET_CONFIG"

type Config struct {
	Backend    BackendConfig    `yaml:"backend"`
	Storage    StorageConfig    `yaml:"storage"`
	Pricing    PricingConfig    `yaml:"pricing"`
	Ledger     LedgerConfig     `yaml:"ledger"`
	Checkpoint CheckpointConfig `yaml:"checkpoint"`
	Export     ExportConfig     `yaml:"export"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type BackendConfig struct {
	Region           string `yaml:"region"`
	DefaultShots     int    `yaml:"default_shots"`
	MaxParallelShots int    `yaml:"max_parallel_shots"`
	// DeviceType is the device kind used when no device id is configured: "qpu" | "simulator".
	DeviceType string `yaml:"device_type"`
	DeviceID   string `yaml:"device_id"`
}

type StorageConfig struct {
	Backend  string `yaml:"backend"`
	Bucket   string `yaml:"bucket"`
	Prefix   string `yaml:"prefix"`
	Endpoint string `yaml:"endpoint"`
	LocalDir string `yaml:"local_dir"`
}

type PricingConfig struct {
	Region      string        `yaml:"region"`
	ServiceCode string        `yaml:"service_code"`
	CacheTTL    time.Duration `yaml:"cache_ttl"`
}

type LedgerConfig struct {
	PostgresDSN string `yaml:"postgres_dsn"`
}

type CheckpointConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

type ExportConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Prefix      string `yaml:"prefix"`
	Compression string `yaml:"compression"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

type LoggingConfig struct {
	Format string `yaml:"format"`
	Level  string `yaml:"level"`
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		Backend: BackendConfig{
			Region:           "us-east-1",
			DefaultShots:     1000,
			MaxParallelShots: 10,
			DeviceType:       "simulator",
		},
		Storage: StorageConfig{
			Backend:  "s3",
			Prefix:   "braket/",
			LocalDir: "./data",
		},
		Pricing: PricingConfig{
			// The price list API is only served from a few regions.
			Region:      "us-east-1",
			ServiceCode: "AmazonBraket",
			CacheTTL:    24 * time.Hour,
		},
		Checkpoint: CheckpointConfig{
			Dir: "./.braket-orchestrator",
		},
		Export: ExportConfig{
			Compression: "snappy",
		},
		Metrics: MetricsConfig{
			Address: ":9090",
		},
		Logging: LoggingConfig{
			Format: "text",
			Level:  "info",
		},
	}
}

// Load reads defaults, then the YAML file at path (or $BRAKET_CONFIG), then environment
// overrides. It does not validate.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.Backend.Region, "BRAKET_REGION")
	setInt(&cfg.Backend.DefaultShots, "BRAKET_DEFAULT_SHOTS")
	setInt(&cfg.Backend.MaxParallelShots, "BRAKET_MAX_PARALLEL_SHOTS")
	setString(&cfg.Backend.DeviceType, "BRAKET_DEVICE_TYPE")
	setString(&cfg.Backend.DeviceID, "BRAKET_DEVICE_ARN")

	setString(&cfg.Storage.Backend, "STORAGE_BACKEND")
	setString(&cfg.Storage.Bucket, "STORAGE_BUCKET")
	setString(&cfg.Storage.Prefix, "STORAGE_PREFIX")
	setString(&cfg.Storage.Endpoint, "STORAGE_ENDPOINT")
	setString(&cfg.Storage.LocalDir, "LOCAL_DIR")

	setString(&cfg.Pricing.Region, "PRICING_REGION")
	setString(&cfg.Pricing.ServiceCode, "PRICING_SERVICE_CODE")
	if v := os.Getenv("PRICING_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Pricing.CacheTTL = d
		}
	}

	setString(&cfg.Ledger.PostgresDSN, "LEDGER_DSN")

	setBool(&cfg.Checkpoint.Enabled, "CHECKPOINT_ENABLED")
	setString(&cfg.Checkpoint.Dir, "CHECKPOINT_DIR")

	setBool(&cfg.Export.Enabled, "EXPORT_ENABLED")
	setString(&cfg.Export.Prefix, "EXPORT_PREFIX")
	setString(&cfg.Export.Compression, "EXPORT_COMPRESSION")

	setBool(&cfg.Metrics.Enabled, "METRICS_ENABLED")
	setString(&cfg.Metrics.Address, "METRICS_ADDRESS")

	setString(&cfg.Logging.Format, "LOG_FORMAT")
	setString(&cfg.Logging.Level, "LOG_LEVEL")
}

// Validate reports the first invalid setting as *taskerrors.ErrValidation.
func (c Config) Validate() error {
	if c.Storage.Bucket == "" {
		return &taskerrors.ErrValidation{Field: "storage.bucket", Message: "required"}
	}
	switch c.Storage.Backend {
	case "s3", "gcs", "file", "mem":
	default:
		return &taskerrors.ErrValidation{Field: "storage.backend", Message: fmt.Sprintf("unknown backend %q", c.Storage.Backend)}
	}
	if c.Backend.DefaultShots <= 0 {
		return &taskerrors.ErrValidation{Field: "backend.default_shots", Message: "must be positive"}
	}
	if c.Backend.MaxParallelShots <= 0 {
		return &taskerrors.ErrValidation{Field: "backend.max_parallel_shots", Message: "must be positive"}
	}
	switch c.Backend.DeviceType {
	case "qpu", "simulator":
	default:
		return &taskerrors.ErrValidation{Field: "backend.device_type", Message: fmt.Sprintf("unknown device type %q", c.Backend.DeviceType)}
	}
	if c.Pricing.CacheTTL <= 0 {
		return &taskerrors.ErrValidation{Field: "pricing.cache_ttl", Message: "must be positive"}
	}
	if c.Checkpoint.Enabled && c.Checkpoint.Dir == "" {
		return &taskerrors.ErrValidation{Field: "checkpoint.dir", Message: "required when checkpointing is enabled"}
	}
	return nil
}

func setString(dst *string, key string) {
	if val := os.Getenv(key); val != "" {
		*dst = val
	}
}

func setInt(dst *int, key string) {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			*dst = parsed
		}
	}
}

func setBool(dst *bool, key string) {
	if val := os.Getenv(key); val != "" {
		*dst = val == "true"
	}
}
