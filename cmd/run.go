package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/databricks/databricks-sdk-go/service/ml"
	"github.com/spf13/cobra"

	"github.com/mlflowstone/mlflowstone/internal/config"
	"github.com/mlflowstone/mlflowstone/tracking"
)

// Valid run end statuses
var validRunStatuses = map[string]ml.UpdateRunStatus{
	"FINISHED": ml.UpdateRunStatusFinished,
	"FAILED":   ml.UpdateRunStatusFailed,
	"KILLED":   ml.UpdateRunStatusKilled,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Manage MLflow runs",
	Long:  "Create, nest, and end MLflow runs",
}

var runStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a new MLflow run",
	Long:  "Create and start a new MLflow run, optionally nested under a parent run",
	RunE:  runStart,
}

var runEndCmd = &cobra.Command{
	Use:   "end",
	Short: "End an MLflow run",
	Long:  "End an existing MLflow run",
	RunE:  runEnd,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.AddCommand(runStartCmd)
	runCmd.AddCommand(runEndCmd)

	// Start command flags
	runStartCmd.Flags().String("run-name", "", "Run name (empty: no run-name tag is set)")
	runStartCmd.Flags().String("parent-run-id", "", "Parent run ID to nest the new run under")
	runStartCmd.Flags().StringArray("tag", []string{}, "Tags in key=value format")
	runStartCmd.Flags().String("description", "", "Run description")

	// End command flags
	runEndCmd.Flags().String("run-id", "", "Run ID to end (required)")
	runEndCmd.Flags().String("status", "FINISHED", "End status (FINISHED/FAILED/KILLED)")
	runEndCmd.MarkFlagRequired("run-id")
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg := config.New()
	client, err := newClient(cfg)
	if err != nil {
		return err
	}

	// Parse flags
	runName, _ := cmd.Flags().GetString("run-name")
	parentRunID, _ := cmd.Flags().GetString("parent-run-id")
	tags, _ := cmd.Flags().GetStringArray("tag")
	description, _ := cmd.Flags().GetString("description")

	tagMap, err := parseTags(tags)
	if err != nil {
		return err
	}
	if description != "" {
		tagMap["mlflow.note.content"] = processEscapeSequences(description)
	}

	ctx := context.Background()
	experiment, err := openExperiment(ctx, client, cfg)
	if err != nil {
		return err
	}

	var run *tracking.Run
	if parentRunID != "" {
		parent, err := tracking.AttachRun(ctx, experiment, parentRunID)
		if err != nil {
			return fmt.Errorf("failed to attach parent run: %w", err)
		}
		run, err = parent.StartRun(ctx, runName, tagMap)
		if err != nil {
			return fmt.Errorf("failed to start child run: %w", err)
		}
	} else {
		run, err = tracking.CreateRun(ctx, runName, experiment, nil, tagMap)
		if err != nil {
			return fmt.Errorf("failed to create run: %w", err)
		}
	}

	// Output only run ID for shell scripting
	fmt.Printf("%s\n", run.ID)

	return nil
}

func runEnd(cmd *cobra.Command, args []string) error {
	cfg := config.New()
	client, err := newClient(cfg)
	if err != nil {
		return err
	}

	// Parse flags
	runID, _ := cmd.Flags().GetString("run-id")
	status, _ := cmd.Flags().GetString("status")

	runStatus, valid := validRunStatuses[status]
	if !valid {
		return fmt.Errorf("invalid status: %s (valid: FINISHED, FAILED, KILLED)", status)
	}

	ctx := context.Background()
	if err := client.EndRun(ctx, runID, runStatus); err != nil {
		return fmt.Errorf("failed to end run: %w", err)
	}

	fmt.Printf("Run ended successfully\n")
	fmt.Printf("Run ID: %s\n", runID)
	fmt.Printf("Status: %s\n", status)

	return nil
}

// parseTags parses tag strings in key=value format
func parseTags(tags []string) (map[string]string, error) {
	tagMap := make(map[string]string)
	for _, tag := range tags {
		parts := strings.SplitN(tag, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid tag format: %s (expected key=value)", tag)
		}
		tagMap[parts[0]] = parts[1]
	}
	return tagMap, nil
}

// processEscapeSequences processes common escape sequences in strings
func processEscapeSequences(s string) string {
	s = strings.ReplaceAll(s, "\\n", "\n")
	s = strings.ReplaceAll(s, "\\t", "\t")
	s = strings.ReplaceAll(s, "\\r", "\r")
	s = strings.ReplaceAll(s, "\\\\", "\\")
	return s
}
