package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var validLogLevels = map[string]bool{
	"debug":   true,
	"info":    true,
	"warn":    true,
	"warning": true,
	"error":   true,
}

// Validate checks the config for missing or invalid values. Any error here
// prevents the module from activating.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.BackportURL) == "" {
		errs = append(errs, fmt.Errorf("backport_url is required"))
	} else {
		u, err := url.Parse(c.BackportURL)
		if err != nil {
			errs = append(errs, fmt.Errorf("backport_url %q is not a valid URL: %w", c.BackportURL, err))
		} else if u.Scheme != "http" && u.Scheme != "https" {
			errs = append(errs, fmt.Errorf("backport_url scheme must be http or https, got %q", u.Scheme))
		}
	}

	if strings.TrimSpace(c.TargetVersion) == "" {
		errs = append(errs, fmt.Errorf("target_version is required"))
	}
	if strings.TrimSpace(c.WorkDir) == "" {
		errs = append(errs, fmt.Errorf("work_dir is required"))
	}
	if strings.TrimSpace(c.Platform) == "" {
		errs = append(errs, fmt.Errorf("platform is required"))
	}

	if c.CheckIntervalSeconds <= 0 {
		errs = append(errs, fmt.Errorf("check_interval must be a positive number of seconds, got %d", c.CheckIntervalSeconds))
	}
	if c.ServiceTimeoutSeconds <= 0 {
		errs = append(errs, fmt.Errorf("service_timeout_seconds must be positive, got %d", c.ServiceTimeoutSeconds))
	}
	if c.DownloadTimeoutSeconds <= 0 {
		errs = append(errs, fmt.Errorf("download_timeout_seconds must be positive, got %d", c.DownloadTimeoutSeconds))
	}

	if c.VerifyChecksum && strings.TrimSpace(c.ExpectedChecksum) == "" {
		errs = append(errs, fmt.Errorf("expected_checksum must be provided when verify_checksum is true"))
	}

	if c.LogLevel != "" && !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Errorf("log_level %q is not one of debug, info, warn, error", c.LogLevel))
	}
	if c.LogFormat != "" && c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("log_format %q is not one of text, json", c.LogFormat))
	}

	return errors.Join(errs...)
}
