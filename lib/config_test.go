package snapring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigApplyDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.ApplyDefaults()

	assert.Equal(t, ".backup_disk_id", cfg.DiskIDFilename)
	assert.Equal(t, 3, cfg.Retention.KeepCycles)
	assert.Equal(t, 6, cfg.MaxDifferentialBackups)
	assert.Equal(t, int64(50*1024*1024*1024), cfg.InitialEstimateBytes)
	assert.Equal(t, "logs", cfg.LogDir)

	// Explicit zero reserve must survive, it is a valid setting.
	cfg2 := &Config{Retention: RetentionConfig{SpaceReservePercent: 0}}
	cfg2.ApplyDefaults()
	assert.Equal(t, 0, cfg2.Retention.SpaceReservePercent)
}

func TestConfigValidate(t *testing.T) {
	valid := testConfig()
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing source volume", func(c *Config) { c.SourceVolume = "" }},
		{"no target disks", func(c *Config) { c.TargetDisks = nil }},
		{"empty disk id", func(c *Config) { c.TargetDisks[0].ID = "" }},
		{"duplicate disk id", func(c *Config) { c.TargetDisks[1].ID = c.TargetDisks[0].ID }},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := testConfig()
			test.mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestAPIConfigTimeout(t *testing.T) {
	assert.Equal(t, 30*time.Second, APIConfig{}.Timeout())
	assert.Equal(t, 5*time.Second, APIConfig{TimeoutSeconds: 5}.Timeout())
}

func TestHostnameOrDefault(t *testing.T) {
	cfg := &Config{Hostname: "explicit"}
	assert.Equal(t, "explicit", cfg.HostnameOrDefault())
	assert.NotEmpty(t, (&Config{}).HostnameOrDefault())
}
