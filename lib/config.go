package snapring

import (
	"fmt"
	"os"
	"time"
)

// DiskConfig is one configured backup target disk.
type DiskConfig struct {
	ID       string `mapstructure:"id" json:"id"`
	Name     string `mapstructure:"name" json:"name"`
	BasePath string `mapstructure:"base_path" json:"base_path"`
}

type RetentionConfig struct {
	KeepCycles          int `mapstructure:"keep_cycles" json:"keep_cycles"`
	SpaceReservePercent int `mapstructure:"space_reserve_percent" json:"space_reserve_percent"`
}

type APIConfig struct {
	Enabled        bool   `mapstructure:"enabled" json:"enabled"`
	Endpoint       string `mapstructure:"endpoint" json:"endpoint"`
	Token          string `mapstructure:"token" json:"-"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" json:"timeout_seconds"`
}

func (a APIConfig) Timeout() time.Duration {
	if a.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(a.TimeoutSeconds) * time.Second
}

type Config struct {
	SourceVolume           string          `mapstructure:"source_volume"`
	ImagerPath             string          `mapstructure:"imager_path"`
	Hostname               string          `mapstructure:"hostname"`
	MaxDifferentialBackups int             `mapstructure:"max_differential_backups"`
	VerifyAfterBackup      bool            `mapstructure:"verify_after_backup"`
	DiskIDFilename         string          `mapstructure:"disk_id_filename"`
	TargetDisks            []DiskConfig    `mapstructure:"target_disks"`
	Retention              RetentionConfig `mapstructure:"retention"`
	InitialEstimateBytes   int64           `mapstructure:"initial_estimate_bytes"`
	LogDir                 string          `mapstructure:"log_dir"`
	API                    APIConfig       `mapstructure:"api"`
}

const (
	defaultDiskIDFilename = ".backup_disk_id"
	defaultKeepCycles     = 3
	defaultReservePercent = 50
	defaultMaxDiffs       = 6

	// First-ever backup on a disk has no completed cycle to size the
	// reservation from.
	defaultInitialEstimate = int64(50 * 1024 * 1024 * 1024)
)

func (c *Config) ApplyDefaults() {
	if c.DiskIDFilename == "" {
		c.DiskIDFilename = defaultDiskIDFilename
	}
	if c.Retention.KeepCycles <= 0 {
		c.Retention.KeepCycles = defaultKeepCycles
	}
	if c.Retention.SpaceReservePercent < 0 {
		c.Retention.SpaceReservePercent = defaultReservePercent
	}
	if c.MaxDifferentialBackups <= 0 {
		c.MaxDifferentialBackups = defaultMaxDiffs
	}
	if c.InitialEstimateBytes <= 0 {
		c.InitialEstimateBytes = defaultInitialEstimate
	}
	if c.LogDir == "" {
		c.LogDir = "logs"
	}
}

func (c *Config) Validate() error {
	if c.SourceVolume == "" {
		return fmt.Errorf("source_volume is required")
	}
	if len(c.TargetDisks) == 0 {
		return fmt.Errorf("at least one entry in target_disks is required")
	}
	seen := map[string]bool{}
	for _, d := range c.TargetDisks {
		if d.ID == "" {
			return fmt.Errorf("target_disks entries need a non-empty id")
		}
		if seen[d.ID] {
			return fmt.Errorf("duplicate target disk id %q", d.ID)
		}
		seen[d.ID] = true
	}
	return nil
}

// DiskByID returns the configured disk entry for id, or nil.
func (c *Config) DiskByID(id string) *DiskConfig {
	for i := range c.TargetDisks {
		if c.TargetDisks[i].ID == id {
			return &c.TargetDisks[i]
		}
	}
	return nil
}

// HostnameOrDefault resolves the configured hostname, falling back to the
// OS hostname like the reporting contract expects.
func (c *Config) HostnameOrDefault() string {
	if c.Hostname != "" {
		return c.Hostname
	}
	host, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return host
}
