package tracking

import (
	"fmt"
	"strings"
)

// Databricks domain suffixes for URL detection
var databricksDomains = []string{
	".cloud.databricks.com",
	".azuredatabricks.net",
	".gcp.databricks.com",
}

// Config holds the connection settings for a tracking client.
type Config struct {
	// TrackingURI is the MLflow tracking server URI. Accepts a plain
	// http(s) URL, "databricks", or "databricks://{profile}".
	TrackingURI string

	// ModelsPath is the root under which run artifacts are resolved
	// locally (<models path>/<run id>/artifacts/...).
	ModelsPath string

	DatabricksHost  string
	DatabricksToken string

	// S3 options for s3:// artifact stores. Empty values fall back to
	// the AWS SDK default chain.
	S3Region       string
	S3Endpoint     string
	S3UsePathStyle bool
}

func (c *Config) Validate() error {
	if c.TrackingURI == "" {
		return fmt.Errorf("tracking URI is required")
	}
	return nil
}

// IsDatabricks checks if the tracking URI points to Databricks
func (c *Config) IsDatabricks() bool {
	if c.TrackingURI == "databricks" {
		return true
	}

	if strings.HasPrefix(c.TrackingURI, "databricks://") {
		return true
	}

	if strings.HasPrefix(c.TrackingURI, "https://") {
		host := extractHostFromURL(c.TrackingURI)
		return isDatabricksHost(host)
	}

	return false
}

// DatabricksProfile extracts the profile name from databricks://{profile} URI
func (c *Config) DatabricksProfile() string {
	if !strings.HasPrefix(c.TrackingURI, "databricks://") {
		return ""
	}

	profile := strings.TrimPrefix(c.TrackingURI, "databricks://")
	if idx := strings.Index(profile, "/"); idx != -1 {
		profile = profile[:idx]
	}
	return profile
}

func extractHostFromURL(url string) string {
	host := strings.TrimPrefix(url, "https://")
	if idx := strings.Index(host, "/"); idx != -1 {
		host = host[:idx]
	}
	return host
}

func isDatabricksHost(host string) bool {
	for _, domain := range databricksDomains {
		if strings.HasSuffix(host, domain) {
			return true
		}
	}
	return false
}
