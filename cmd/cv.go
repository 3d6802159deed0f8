package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mlflowstone/mlflowstone/internal/config"
	"github.com/mlflowstone/mlflowstone/internal/parser"
	"github.com/mlflowstone/mlflowstone/tracking"
)

var logCVCmd = &cobra.Command{
	Use:   "cv",
	Short: "Log a cross-validation sweep to MLflow",
	Long: `Log a hyperparameter sweep: the results matrix as a cv_results artifact
on the parent run, one ended child run per candidate with its parameters
and mean/std test scores, and optionally a pre-serialized model.`,
	Example: `  # Log every candidate of a sweep under an existing run
  mlflowstone log cv --run-id <run-id> --from-file sweep.json

  # Create a parent run, log only the best candidate, attach a model
  mlflowstone log cv --from-file sweep.yaml --only-best \
    --model ./model.bin --model-name elasticnet`,
	RunE: logCV,
}

func init() {
	logCmd.AddCommand(logCVCmd)

	logCVCmd.Flags().String("run-id", "", "Parent run ID (default: a new parent run is created and ended)")
	logCVCmd.Flags().String("run-name", "", "Name for the created parent run")
	logCVCmd.Flags().String("from-file", "", "Sweep result file (JSON/YAML, required)")
	logCVCmd.Flags().String("model", "", "Pre-serialized model file or directory to log")
	logCVCmd.Flags().String("model-name", "model", "Model name")
	logCVCmd.Flags().Bool("only-best", false, "Log a child run only for the best candidate")
	logCVCmd.Flags().StringArray("tag", []string{}, "Extra tags in key=value format for the child runs")
	logCVCmd.MarkFlagRequired("from-file")
}

func logCV(cmd *cobra.Command, args []string) error {
	cfg := config.New()
	client, err := newClient(cfg)
	if err != nil {
		return err
	}

	// Parse flags
	runID, _ := cmd.Flags().GetString("run-id")
	runName, _ := cmd.Flags().GetString("run-name")
	fromFile, _ := cmd.Flags().GetString("from-file")
	modelPath, _ := cmd.Flags().GetString("model")
	modelName, _ := cmd.Flags().GetString("model-name")
	onlyBest, _ := cmd.Flags().GetBool("only-best")
	tags, _ := cmd.Flags().GetStringArray("tag")

	tagMap, err := parseTags(tags)
	if err != nil {
		return err
	}

	sweep, err := readSweepFile(fromFile)
	if err != nil {
		return err
	}

	var flavor tracking.Flavor
	if modelPath != "" {
		flavor = tracking.FileFlavor{Source: modelPath}
	}

	ctx := context.Background()
	experiment, err := openExperiment(ctx, client, cfg)
	if err != nil {
		return err
	}

	var run *tracking.Run
	createdParent := false
	if runID != "" {
		run, err = tracking.AttachRun(ctx, experiment, runID)
		if err != nil {
			return fmt.Errorf("failed to attach run: %w", err)
		}
	} else {
		run, err = tracking.CreateRun(ctx, runName, experiment, nil, nil)
		if err != nil {
			return fmt.Errorf("failed to create parent run: %w", err)
		}
		createdParent = true
	}

	if err := run.LogCrossValidation(ctx, sweep, modelName, flavor, tagMap, onlyBest); err != nil {
		return fmt.Errorf("failed to log cross-validation sweep: %w", err)
	}

	if createdParent {
		if err := run.End(ctx); err != nil {
			return fmt.Errorf("failed to end parent run: %w", err)
		}
	}

	logged := sweep.Candidates()
	if onlyBest {
		logged = 1
	}
	fmt.Printf("Logged sweep from %s: %d candidate run(s) under run %s\n", fromFile, logged, run.ID)

	return nil
}

func readSweepFile(path string) (*tracking.SweepResult, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", path, err)
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json":
		return parser.ParseJSONSweep(file)
	case ".yaml", ".yml":
		return parser.ParseYAMLSweep(file)
	default:
		return nil, fmt.Errorf("unsupported file format: %s (supported: .json, .yaml, .yml)", ext)
	}
}
