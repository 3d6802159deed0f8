package config

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/mlflowstone/mlflowstone/tracking"
)

// Valid configuration values
var (
	validTimeResolutions = map[string]bool{
		"1m": true, "5m": true, "1h": true,
	}
	validTimeAlignments = map[string]bool{
		"floor": true, "ceil": true, "round": true,
	}
	validStepModes = map[string]bool{
		"auto": true, "timestamp": true, "sequence": true,
	}
)

type Config struct {
	TrackingURI    string
	ExperimentID   string
	ExperimentName string
	ModelsPath     string

	TimeResolution string
	TimeAlignment  string
	StepMode       string

	DatabricksHost  string
	DatabricksToken string

	S3Region       string
	S3Endpoint     string
	S3UsePathStyle bool

	Verbose bool
}

func New() *Config {
	return &Config{
		TrackingURI:     viper.GetString("tracking_uri"),
		ExperimentID:    viper.GetString("experiment_id"),
		ExperimentName:  viper.GetString("experiment_name"),
		ModelsPath:      viper.GetString("models_path"),
		TimeResolution:  viper.GetString("time_resolution"),
		TimeAlignment:   viper.GetString("time_alignment"),
		StepMode:        viper.GetString("step_mode"),
		DatabricksHost:  viper.GetString("databricks_host"),
		DatabricksToken: viper.GetString("databricks_token"),
		S3Region:        viper.GetString("s3_region"),
		S3Endpoint:      viper.GetString("s3_endpoint"),
		S3UsePathStyle:  viper.GetBool("s3_use_path_style"),
		Verbose:         viper.GetBool("verbose"),
	}
}

func (c *Config) Validate() error {
	if c.TrackingURI == "" {
		return fmt.Errorf("tracking URI is required")
	}

	if !validTimeResolutions[c.TimeResolution] {
		return fmt.Errorf("invalid time resolution: %s (valid: 1m, 5m, 1h)", c.TimeResolution)
	}

	if !validTimeAlignments[c.TimeAlignment] {
		return fmt.Errorf("invalid time alignment: %s (valid: floor, ceil, round)", c.TimeAlignment)
	}

	if !validStepModes[c.StepMode] {
		return fmt.Errorf("invalid step mode: %s (valid: auto, timestamp, sequence)", c.StepMode)
	}

	return nil
}

// Tracking converts the CLI configuration into the library's client
// connection config.
func (c *Config) Tracking() *tracking.Config {
	return &tracking.Config{
		TrackingURI:     c.TrackingURI,
		ModelsPath:      c.ModelsPath,
		DatabricksHost:  c.DatabricksHost,
		DatabricksToken: c.DatabricksToken,
		S3Region:        c.S3Region,
		S3Endpoint:      c.S3Endpoint,
		S3UsePathStyle:  c.S3UsePathStyle,
	}
}
