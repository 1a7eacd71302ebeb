package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the pipeline configuration
type Config struct {
	// IncomingDir is watched for new capture archives
	// Required for watching. Missing directory is fatal to ingestion only
	IncomingDir string `mapstructure:"incoming_dir" yaml:"incoming_dir"`

	// ProcessedDir is the root under which output directories are created
	ProcessedDir string `mapstructure:"processed_dir" yaml:"processed_dir"`

	// ArchiveSuffix selects which files in IncomingDir are archives
	ArchiveSuffix string `mapstructure:"archive_suffix" yaml:"archive_suffix"`

	// PollInterval is the size polling interval of the stability check
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`

	// ScanExisting submits archives already present when the watcher starts
	ScanExisting bool `mapstructure:"scan_existing" yaml:"scan_existing"`

	// ImageTool is the ImageMagick binary used for channel split and raw conversion
	ImageTool string `mapstructure:"image_tool" yaml:"image_tool"`

	// ChannelSplitter is "imagemagick" (external tool) or "builtin" (in-process)
	ChannelSplitter string `mapstructure:"channel_splitter" yaml:"channel_splitter"`

	// ND3Binary and CalibrationFile drive point-cloud reconstruction.
	// Reconstruction is skipped when either is empty
	ND3Binary       string `mapstructure:"nd3_binary" yaml:"nd3_binary"`
	CalibrationFile string `mapstructure:"calibration" yaml:"calibration"`

	// ToolTimeout bounds every external tool invocation
	ToolTimeout time.Duration `mapstructure:"tool_timeout" yaml:"tool_timeout"`

	// ReconWorkers is the number of reconstruction invocations run at once
	ReconWorkers int `mapstructure:"recon_workers" yaml:"recon_workers"`

	// ThumbnailSize is the bounding box of the preview thumbnail; 0 disables it.
	// Load defaults it to 300
	ThumbnailSize int `mapstructure:"thumbnail_size" yaml:"thumbnail_size"`

	// StoreDriver is "sqlite", "postgres" or "none"
	StoreDriver string `mapstructure:"store_driver" yaml:"store_driver"`
	StoreDSN    string `mapstructure:"store_dsn" yaml:"store_dsn"`

	// MQTT notification sink. Disabled when MQTTBroker is empty
	MQTTBroker   string `mapstructure:"mqtt_broker" yaml:"mqtt_broker"`
	MQTTTopic    string `mapstructure:"mqtt_topic" yaml:"mqtt_topic"`
	MQTTClientID string `mapstructure:"mqtt_client_id" yaml:"mqtt_client_id"`

	// MetricsAddr serves /health, /metrics and /v1/queue. Disabled when empty
	MetricsAddr string `mapstructure:"metrics_addr" yaml:"metrics_addr"`

	// QueueBackend is "memory" or "dbos"
	QueueBackend    string `mapstructure:"queue_backend" yaml:"queue_backend"`
	DBOSDatabaseURL string `mapstructure:"dbos_database_url" yaml:"dbos_database_url"`
	DBOSQueueName   string `mapstructure:"dbos_queue_name" yaml:"dbos_queue_name"`
}

// Backend and driver names
const (
	SplitterImageMagick = "imagemagick"
	SplitterBuiltin     = "builtin"

	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreNone     = "none"

	QueueMemory = "memory"
	QueueDBOS   = "dbos"
)

// envBindings maps config keys to the environment variables that set them
var envBindings = map[string]string{
	"incoming_dir":      "INCOMING_DIR",
	"processed_dir":     "PROCESSED_DIR",
	"archive_suffix":    "ARCHIVE_SUFFIX",
	"poll_interval":     "POLL_INTERVAL",
	"scan_existing":     "SCAN_EXISTING",
	"image_tool":        "IMAGE_TOOL",
	"channel_splitter":  "CHANNEL_SPLITTER",
	"nd3_binary":        "ND3_BINARY",
	"calibration":       "CALIBRATION",
	"tool_timeout":      "TOOL_TIMEOUT",
	"recon_workers":     "RECON_WORKERS",
	"thumbnail_size":    "THUMBNAIL_SIZE",
	"store_driver":      "STORE_DRIVER",
	"store_dsn":         "STORE_DSN",
	"mqtt_broker":       "MQTT_BROKER",
	"mqtt_topic":        "MQTT_TOPIC",
	"mqtt_client_id":    "MQTT_CLIENT_ID",
	"metrics_addr":      "METRICS_ADDR",
	"queue_backend":     "QUEUE_BACKEND",
	"dbos_database_url": "DBOS_SYSTEM_DATABASE_URL",
	"dbos_queue_name":   "DBOS_QUEUE_NAME",
}

// Load reads .env (if present), the optional YAML file at path and the
// environment, in increasing order of precedence.
func Load(path string) (*Config, error) {
	// Load .env file if it exists (silently ignore if not found)
	_ = godotenv.Load()

	v := viper.New()
	v.SetDefault("thumbnail_size", 300)
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.WithDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// WithDefaults fills in default values for optional fields
func (c *Config) WithDefaults() {
	if c.IncomingDir == "" {
		c.IncomingDir = "./watch/incoming"
	}
	if c.ProcessedDir == "" {
		c.ProcessedDir = "./watch/processed"
	}
	if c.ArchiveSuffix == "" {
		c.ArchiveSuffix = ".tar.gz"
	}
	if c.PollInterval == 0 {
		c.PollInterval = time.Second
	}
	if c.ImageTool == "" {
		c.ImageTool = "convert"
	}
	if c.ChannelSplitter == "" {
		c.ChannelSplitter = SplitterImageMagick
	}
	if c.ToolTimeout == 0 {
		c.ToolTimeout = 10 * time.Minute
	}
	if c.ReconWorkers == 0 {
		c.ReconWorkers = 1
	}
	if c.StoreDriver == "" {
		c.StoreDriver = StoreSQLite
	}
	if c.StoreDSN == "" && c.StoreDriver == StoreSQLite {
		c.StoreDSN = filepath.Join(c.ProcessedDir, "nd3.db")
	}
	if c.MQTTTopic == "" {
		c.MQTTTopic = "nd3/events"
	}
	if c.MQTTClientID == "" {
		c.MQTTClientID = "nd3d"
	}
	if c.QueueBackend == "" {
		c.QueueBackend = QueueMemory
	}
	if c.DBOSQueueName == "" {
		c.DBOSQueueName = "nd3-captures"
	}
}

// Validate rejects settings the pipeline cannot run with
func (c *Config) Validate() error {
	if c.PollInterval < 0 {
		return fmt.Errorf("poll_interval must be positive, got %s", c.PollInterval)
	}
	if c.ToolTimeout < 0 {
		return fmt.Errorf("tool_timeout must be positive, got %s", c.ToolTimeout)
	}
	if c.ReconWorkers < 1 {
		return fmt.Errorf("recon_workers must be at least 1, got %d", c.ReconWorkers)
	}
	if c.ThumbnailSize < 0 {
		return fmt.Errorf("thumbnail_size must not be negative, got %d", c.ThumbnailSize)
	}

	switch c.ChannelSplitter {
	case SplitterImageMagick, SplitterBuiltin:
	default:
		return fmt.Errorf("unknown channel_splitter %q", c.ChannelSplitter)
	}

	switch c.StoreDriver {
	case StoreSQLite, StoreNone:
	case StorePostgres:
		if c.StoreDSN == "" {
			return fmt.Errorf("store_dsn is required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown store_driver %q", c.StoreDriver)
	}

	switch c.QueueBackend {
	case QueueMemory:
	case QueueDBOS:
		if c.DBOSDatabaseURL == "" {
			return fmt.Errorf("DBOS_SYSTEM_DATABASE_URL is required for the dbos queue backend")
		}
	default:
		return fmt.Errorf("unknown queue_backend %q", c.QueueBackend)
	}

	return nil
}

// ReconstructionEnabled reports whether both reconstruction inputs are configured
func (c *Config) ReconstructionEnabled() bool {
	return c.ND3Binary != "" && c.CalibrationFile != ""
}
