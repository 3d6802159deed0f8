package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mlflowstone/mlflowstone/internal/config"
	"github.com/mlflowstone/mlflowstone/tracking"
)

var logArtifactCmd = &cobra.Command{
	Use:   "artifact",
	Short: "Log artifacts to MLflow run",
	Long: `Log local files as artifacts of an MLflow run.
Each file is uploaded under its base name.`,
	Example: `  # Upload a file with its original name
  mlflowstone log artifact --run-id <run-id> --file model.msgpack

  # Upload multiple files
  mlflowstone log artifact --run-id <run-id> --file model.msgpack --file config.yaml`,
	RunE: logArtifact,
}

var artifactsCmd = &cobra.Command{
	Use:   "artifacts",
	Short: "Inspect run artifacts",
}

var artifactsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List artifacts of an MLflow run",
	Long: `List the artifacts of a run. With --full-path, each artifact path is
resolved to <models path>/<run id>/artifacts/<path>.`,
	RunE: listArtifacts,
}

func init() {
	logCmd.AddCommand(logArtifactCmd)
	rootCmd.AddCommand(artifactsCmd)
	artifactsCmd.AddCommand(artifactsListCmd)

	// Artifact command flags
	logArtifactCmd.Flags().String("run-id", "", "Run ID to upload artifacts to (required)")
	logArtifactCmd.Flags().StringSlice("file", []string{}, "File path to upload (can be specified multiple times)")
	logArtifactCmd.MarkFlagRequired("run-id")
	logArtifactCmd.MarkFlagRequired("file")

	// List command flags
	artifactsListCmd.Flags().String("run-id", "", "Run ID to list artifacts of (required)")
	artifactsListCmd.Flags().Bool("full-path", true, "Resolve artifact paths under the models path")
	artifactsListCmd.MarkFlagRequired("run-id")
}

func logArtifact(cmd *cobra.Command, args []string) error {
	cfg := config.New()
	client, err := newClient(cfg)
	if err != nil {
		return err
	}

	// Parse flags
	runID, _ := cmd.Flags().GetString("run-id")
	files, _ := cmd.Flags().GetStringSlice("file")

	if len(files) == 0 {
		return fmt.Errorf("at least one file must be specified")
	}

	ctx := context.Background()
	successCount := 0

	for _, filePath := range files {
		if _, err := os.Stat(filePath); os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "File not found: %s\n", filePath)
			continue
		}

		if err := client.LogArtifact(ctx, runID, filePath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to upload %s: %v\n", filePath, err)
			continue
		}
		successCount++
	}

	if successCount == 0 {
		return fmt.Errorf("failed to upload any artifacts")
	}

	fmt.Printf("Successfully uploaded %d/%d artifacts\n", successCount, len(files))

	return nil
}

func listArtifacts(cmd *cobra.Command, args []string) error {
	cfg := config.New()
	client, err := newClient(cfg)
	if err != nil {
		return err
	}

	// Parse flags
	runID, _ := cmd.Flags().GetString("run-id")
	fullPath, _ := cmd.Flags().GetBool("full-path")

	ctx := context.Background()
	experiment, err := openExperiment(ctx, client, cfg)
	if err != nil {
		return err
	}

	run, err := tracking.AttachRun(ctx, experiment, runID)
	if err != nil {
		return fmt.Errorf("failed to attach run: %w", err)
	}

	files, err := run.ListArtifacts(ctx, fullPath)
	if err != nil {
		return fmt.Errorf("failed to list artifacts: %w", err)
	}

	for _, fi := range files {
		kind := "file"
		if fi.IsDir {
			kind = "dir"
		}
		fmt.Printf("%s\t%d\t%s\n", kind, fi.FileSize, fi.Path)
	}

	return nil
}
