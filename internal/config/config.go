package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/imishinist/ddppo-cli/internal/logging"
)

// Databricks domain suffixes for URL detection
var databricksDomains = []string{
	".cloud.databricks.com",
	".azuredatabricks.net",
	".gcp.databricks.com",
}

// Valid configuration values
var validOutputFormats = map[string]bool{
	"yaml": true, "yml": true, "json": true, "toml": true,
}

// Config holds the CLI settings. The training run configuration itself is
// loaded by the parser package from ConfigPaths and Overrides.
type Config struct {
	TrackingURI     string
	ExperimentID    string
	DatabricksHost  string
	DatabricksToken string

	ConfigPaths  []string
	Overrides    []string
	LoadTask     bool
	OutputFormat string

	LogLevel       string
	LogDevelopment bool
}

func New() *Config {
	return &Config{
		TrackingURI:     viper.GetString("tracking_uri"),
		ExperimentID:    viper.GetString("experiment_id"),
		DatabricksHost:  viper.GetString("databricks_host"),
		DatabricksToken: viper.GetString("databricks_token"),
		ConfigPaths:     viper.GetStringSlice("config"),
		Overrides:       viper.GetStringSlice("opt"),
		LoadTask:        !viper.GetBool("no_task"),
		OutputFormat:    viper.GetString("format"),
		LogLevel:        viper.GetString("log_level"),
		LogDevelopment:  viper.GetBool("log_dev"),
	}
}

func (c *Config) Validate() error {
	if !logging.ValidLevel(c.LogLevel) {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.LogLevel)
	}

	if !validOutputFormats[strings.ToLower(c.OutputFormat)] {
		return fmt.Errorf("invalid output format: %s (valid: yaml, json, toml)", c.OutputFormat)
	}

	return nil
}

// ValidateTracking checks the settings needed to talk to MLflow.
func (c *Config) ValidateTracking() error {
	if err := c.Validate(); err != nil {
		return err
	}

	if c.TrackingURI == "" {
		return fmt.Errorf("tracking URI is required")
	}

	return nil
}

// Logging returns the logger settings.
func (c *Config) Logging() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = c.LogLevel
	cfg.Development = c.LogDevelopment
	return cfg
}

// IsDatabricks checks if the tracking URI points to Databricks
func (c *Config) IsDatabricks() bool {
	if c.TrackingURI == "databricks" {
		return true
	}

	// Check for databricks:// protocol
	if strings.HasPrefix(c.TrackingURI, "databricks://") {
		return true
	}

	// Check for Databricks URLs
	if strings.HasPrefix(c.TrackingURI, "https://") {
		host := c.extractHostFromURL(c.TrackingURI)
		return c.isDatabricksHost(host)
	}

	return false
}

// extractHostFromURL extracts the hostname from a URL
func (c *Config) extractHostFromURL(url string) string {
	host := strings.TrimPrefix(url, "https://")
	// Remove any path components
	if idx := strings.Index(host, "/"); idx != -1 {
		host = host[:idx]
	}
	return host
}

// isDatabricksHost checks if a hostname belongs to Databricks
func (c *Config) isDatabricksHost(host string) bool {
	for _, domain := range databricksDomains {
		if strings.HasSuffix(host, domain) {
			return true
		}
	}
	return false
}

// GetDatabricksProfile extracts the profile name from databricks://{profile} URI
func (c *Config) GetDatabricksProfile() string {
	if !strings.HasPrefix(c.TrackingURI, "databricks://") {
		return ""
	}

	profile := strings.TrimPrefix(c.TrackingURI, "databricks://")
	// Remove any trailing slashes or paths
	if idx := strings.Index(profile, "/"); idx != -1 {
		profile = profile[:idx]
	}
	return profile
}
