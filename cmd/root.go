package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mlflowstone/mlflowstone/internal/config"
	"github.com/mlflowstone/mlflowstone/internal/logging"
	"github.com/mlflowstone/mlflowstone/tracking"
)

var rootCmd = &cobra.Command{
	Use:   "mlflowstone",
	Short: "MLflow tracking run wrapper",
	Long: `A command line tool wrapping MLflow tracking runs.
Supports creating nested runs and logging parameters, metrics, artifacts,
serialized objects, models, and cross-validation sweeps.`,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().String("tracking-uri", "", "MLflow tracking URI (overrides MLFLOW_TRACKING_URI)")
	rootCmd.PersistentFlags().String("experiment-id", "", "Experiment ID (overrides MLFLOW_EXPERIMENT_ID)")
	rootCmd.PersistentFlags().String("experiment-name", "", "Experiment name, resolved or created on the server")
	rootCmd.PersistentFlags().String("models-path", "", "Local root under which run artifact paths are resolved")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")
	viper.BindPFlag("tracking_uri", rootCmd.PersistentFlags().Lookup("tracking-uri"))
	viper.BindPFlag("experiment_id", rootCmd.PersistentFlags().Lookup("experiment-id"))
	viper.BindPFlag("experiment_name", rootCmd.PersistentFlags().Lookup("experiment-name"))
	viper.BindPFlag("models_path", rootCmd.PersistentFlags().Lookup("models-path"))
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

func initConfig() {
	// Environment variables
	viper.SetEnvPrefix("MLFLOW")
	viper.AutomaticEnv()

	// Also bind Databricks and AWS environment variables
	viper.BindEnv("databricks_host", "DATABRICKS_HOST")
	viper.BindEnv("databricks_token", "DATABRICKS_TOKEN")
	viper.BindEnv("s3_region", "AWS_REGION")
	viper.BindEnv("s3_endpoint", "MLFLOW_S3_ENDPOINT_URL")

	// Set defaults
	viper.SetDefault("tracking_uri", "http://localhost:5000")
	viper.SetDefault("time_resolution", "1m")
	viper.SetDefault("time_alignment", "floor")
	viper.SetDefault("step_mode", "auto")
}

// newClient builds the tracking client from the resolved configuration.
func newClient(cfg *config.Config) (*tracking.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	client, err := tracking.NewClient(cfg.Tracking(),
		tracking.WithLogger(logging.New(cfg.Verbose)))
	if err != nil {
		return nil, fmt.Errorf("failed to create tracking client: %w", err)
	}
	return client, nil
}

// openExperiment resolves the experiment from config: an explicit ID
// wins, otherwise the name is resolved (and created if missing).
func openExperiment(ctx context.Context, client *tracking.Client, cfg *config.Config) (*tracking.Experiment, error) {
	if cfg.ExperimentID != "" {
		return tracking.NewExperiment(cfg.ExperimentID, cfg.ModelsPath, client), nil
	}
	if cfg.ExperimentName != "" {
		return client.OpenExperiment(ctx, cfg.ExperimentName, cfg.ModelsPath)
	}
	return nil, fmt.Errorf("experiment must be specified via --experiment-id, --experiment-name, or MLFLOW_EXPERIMENT_ID")
}
