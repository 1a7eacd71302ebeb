package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ".tar.gz", cfg.ArchiveSuffix)
	assert.Equal(t, time.Second, cfg.PollInterval)
	assert.Equal(t, "convert", cfg.ImageTool)
	assert.Equal(t, SplitterImageMagick, cfg.ChannelSplitter)
	assert.Equal(t, 10*time.Minute, cfg.ToolTimeout)
	assert.Equal(t, 1, cfg.ReconWorkers)
	assert.Equal(t, 300, cfg.ThumbnailSize)
	assert.Equal(t, StoreSQLite, cfg.StoreDriver)
	assert.Equal(t, filepath.Join(cfg.ProcessedDir, "nd3.db"), cfg.StoreDSN)
	assert.Equal(t, QueueMemory, cfg.QueueBackend)
	assert.False(t, cfg.ReconstructionEnabled())
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("INCOMING_DIR", "/data/incoming")
	t.Setenv("PROCESSED_DIR", "/data/processed")
	t.Setenv("ND3_BINARY", "/opt/nd3/reconstruct")
	t.Setenv("CALIBRATION", "/opt/nd3/calib.json")
	t.Setenv("POLL_INTERVAL", "250ms")
	t.Setenv("RECON_WORKERS", "3")
	t.Setenv("SCAN_EXISTING", "true")
	t.Setenv("THUMBNAIL_SIZE", "0")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "/data/incoming", cfg.IncomingDir)
	assert.Equal(t, "/data/processed", cfg.ProcessedDir)
	assert.Equal(t, 250*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 3, cfg.ReconWorkers)
	assert.True(t, cfg.ScanExisting)
	assert.Equal(t, 0, cfg.ThumbnailSize)
	assert.Equal(t, "/data/processed/nd3.db", cfg.StoreDSN)
	assert.True(t, cfg.ReconstructionEnabled())
}

func TestLoad_YAMLFileOverriddenByEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nd3.yaml")
	content := `incoming_dir: /yaml/incoming
processed_dir: /yaml/processed
channel_splitter: builtin
tool_timeout: 30s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	t.Setenv("PROCESSED_DIR", "/env/processed")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/yaml/incoming", cfg.IncomingDir)
	assert.Equal(t, "/env/processed", cfg.ProcessedDir)
	assert.Equal(t, SplitterBuiltin, cfg.ChannelSplitter)
	assert.Equal(t, 30*time.Second, cfg.ToolTimeout)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(c *Config) {}},
		{name: "unknown splitter", mutate: func(c *Config) { c.ChannelSplitter = "gimp" }, wantErr: true},
		{name: "unknown store", mutate: func(c *Config) { c.StoreDriver = "mongo" }, wantErr: true},
		{name: "postgres without dsn", mutate: func(c *Config) { c.StoreDriver = StorePostgres; c.StoreDSN = "" }, wantErr: true},
		{name: "postgres with dsn", mutate: func(c *Config) { c.StoreDriver = StorePostgres; c.StoreDSN = "postgres://x" }},
		{name: "dbos without url", mutate: func(c *Config) { c.QueueBackend = QueueDBOS }, wantErr: true},
		{name: "dbos with url", mutate: func(c *Config) { c.QueueBackend = QueueDBOS; c.DBOSDatabaseURL = "postgres://x" }},
		{name: "zero recon workers", mutate: func(c *Config) { c.ReconWorkers = 0 }, wantErr: true},
		{name: "negative thumbnail", mutate: func(c *Config) { c.ThumbnailSize = -1 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			cfg.WithDefaults()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
