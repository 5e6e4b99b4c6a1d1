package config

import (
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config is the resolved installer configuration. It is read once at startup
// and treated as immutable afterwards.
type Config struct {
	BackportURL   string `mapstructure:"backport_url"`
	TargetVersion string `mapstructure:"target_version"`
	ArchiveName   string `mapstructure:"archive_name"`
	WorkDir       string `mapstructure:"work_dir"`
	Platform      string `mapstructure:"platform"`
	Description   string `mapstructure:"description"`

	ServiceName  string `mapstructure:"service_name"`
	AgentService string `mapstructure:"agent_service"`

	AutoInstall           bool   `mapstructure:"auto_install"`
	CheckIntervalSeconds  int    `mapstructure:"check_interval"`
	ForceReinstall        bool   `mapstructure:"force_reinstall"`
	CleanupAfterInstall   bool   `mapstructure:"cleanup_after_install"`
	RestartDependentAgent bool   `mapstructure:"restart_dependent_agent"`
	VerifyChecksum        bool   `mapstructure:"verify_checksum"`
	ExpectedChecksum      string `mapstructure:"expected_checksum"`

	ServiceTimeoutSeconds  int `mapstructure:"service_timeout_seconds"`
	DownloadTimeoutSeconds int `mapstructure:"download_timeout_seconds"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

func Default() *Config {
	return &Config{
		ServiceName:            "NetworkManager",
		CheckIntervalSeconds:   3600,
		CleanupAfterInstall:    true,
		RestartDependentAgent:  true,
		ServiceTimeoutSeconds:  30,
		DownloadTimeoutSeconds: 300,
		LogLevel:               "info",
		LogFormat:              "text",
	}
}

// Load reads the config file (or the default locations) plus environment
// overrides, and validates the result. Validation failure is fatal: an
// invalid config must fail before any component starts.
func Load(cfgFile string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("nm-backport")
		v.SetConfigType("yaml")
		v.AddConfigPath(configDir())
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("NM_BACKPORT")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// CheckInterval returns the health-check period.
func (c *Config) CheckInterval() time.Duration {
	return time.Duration(c.CheckIntervalSeconds) * time.Second
}

// ServiceTimeout returns how long to wait for a restarted service to
// report active.
func (c *Config) ServiceTimeout() time.Duration {
	return time.Duration(c.ServiceTimeoutSeconds) * time.Second
}

// DownloadTimeout returns the archive download timeout.
func (c *Config) DownloadTimeout() time.Duration {
	return time.Duration(c.DownloadTimeoutSeconds) * time.Second
}

// WorkPath resolves the working directory. A relative work_dir is placed
// under the invoking user's home directory.
func (c *Config) WorkPath() string {
	if filepath.IsAbs(c.WorkDir) {
		return c.WorkDir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), c.WorkDir)
	}
	return filepath.Join(home, c.WorkDir)
}

// ArchiveFileName returns the configured archive name, falling back to the
// last path element of the backport URL.
func (c *Config) ArchiveFileName() string {
	if c.ArchiveName != "" {
		return c.ArchiveName
	}
	if u, err := url.Parse(c.BackportURL); err == nil {
		if base := path.Base(u.Path); base != "." && base != "/" && base != "" {
			return base
		}
	}
	return "nm-backport.tar"
}

// ArchivePath returns the download destination inside the work dir.
func (c *Config) ArchivePath() string {
	return filepath.Join(c.WorkPath(), c.ArchiveFileName())
}

func configDir() string {
	return "/etc/nm-backport"
}
