package cmd

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mlflowstone/mlflowstone/internal/config"
	"github.com/mlflowstone/mlflowstone/tracking"
)

var logObjectCmd = &cobra.Command{
	Use:   "object",
	Short: "Log a serialized object to MLflow run",
	Long: `Read a JSON or YAML document, serialize it with msgpack, and upload it
as a timestamped run artifact.`,
	RunE: logObject,
}

var logTableCmd = &cobra.Command{
	Use:   "table",
	Short: "Log a CSV table to MLflow run",
	Long: `Read a CSV file and upload it as a timestamped run artifact without a
row-index column.`,
	RunE: logTable,
}

func init() {
	logCmd.AddCommand(logObjectCmd)
	logCmd.AddCommand(logTableCmd)

	logObjectCmd.Flags().String("run-id", "", "Run ID to log the object to (required)")
	logObjectCmd.Flags().String("from-file", "", "Object document (JSON/YAML, required)")
	logObjectCmd.Flags().String("name", "", "Artifact base name (default: file name without extension)")
	logObjectCmd.MarkFlagRequired("run-id")
	logObjectCmd.MarkFlagRequired("from-file")

	logTableCmd.Flags().String("run-id", "", "Run ID to log the table to (required)")
	logTableCmd.Flags().String("from-file", "", "CSV file (required)")
	logTableCmd.Flags().String("name", "", "Artifact base name (default: file name without extension)")
	logTableCmd.MarkFlagRequired("run-id")
	logTableCmd.MarkFlagRequired("from-file")
}

func logObject(cmd *cobra.Command, args []string) error {
	cfg := config.New()
	client, err := newClient(cfg)
	if err != nil {
		return err
	}

	// Parse flags
	runID, _ := cmd.Flags().GetString("run-id")
	fromFile, _ := cmd.Flags().GetString("from-file")
	name, _ := cmd.Flags().GetString("name")
	if name == "" {
		name = baseName(fromFile)
	}

	file, err := os.Open(fromFile)
	if err != nil {
		return fmt.Errorf("failed to open file %s: %w", fromFile, err)
	}
	defer file.Close()

	var data any
	ext := strings.ToLower(filepath.Ext(fromFile))

	switch ext {
	case ".json":
		err = json.NewDecoder(file).Decode(&data)
	case ".yaml", ".yml":
		err = yaml.NewDecoder(file).Decode(&data)
	default:
		return fmt.Errorf("unsupported file format: %s (supported: .json, .yaml, .yml)", ext)
	}
	if err != nil {
		return fmt.Errorf("failed to parse object file: %w", err)
	}

	ctx := context.Background()
	run, err := attachRun(ctx, client, cfg, runID)
	if err != nil {
		return err
	}

	if err := run.LogObject(ctx, data, name); err != nil {
		return fmt.Errorf("failed to log object: %w", err)
	}

	fmt.Printf("Successfully logged object %s from %s\n", name, fromFile)

	return nil
}

func logTable(cmd *cobra.Command, args []string) error {
	cfg := config.New()
	client, err := newClient(cfg)
	if err != nil {
		return err
	}

	// Parse flags
	runID, _ := cmd.Flags().GetString("run-id")
	fromFile, _ := cmd.Flags().GetString("from-file")
	name, _ := cmd.Flags().GetString("name")
	if name == "" {
		name = baseName(fromFile)
	}

	table, err := readCSVTable(fromFile)
	if err != nil {
		return err
	}

	ctx := context.Background()
	run, err := attachRun(ctx, client, cfg, runID)
	if err != nil {
		return err
	}

	if err := run.LogTable(ctx, table, name); err != nil {
		return fmt.Errorf("failed to log table: %w", err)
	}

	fmt.Printf("Successfully logged table %s (%d rows) from %s\n", name, len(table.Rows), fromFile)

	return nil
}

func readCSVTable(path string) (*tracking.Table, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", path, err)
	}
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("CSV %s has no header row", path)
	}

	table := tracking.NewTable(records[0])
	for _, row := range records[1:] {
		if err := table.AppendRow(row); err != nil {
			return nil, fmt.Errorf("invalid CSV %s: %w", path, err)
		}
	}
	return table, nil
}

// attachRun resolves the experiment and wraps an existing run ID.
func attachRun(ctx context.Context, client *tracking.Client, cfg *config.Config, runID string) (*tracking.Run, error) {
	experiment, err := openExperiment(ctx, client, cfg)
	if err != nil {
		return nil, err
	}
	run, err := tracking.AttachRun(ctx, experiment, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to attach run: %w", err)
	}
	return run, nil
}

func baseName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
