package tracking

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/databricks/databricks-sdk-go/apierr"
	"github.com/databricks/databricks-sdk-go/service/ml"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
)

// Run wraps one tracking-service run. It is append-only: parameters,
// metrics, tags, and artifacts accumulate until End marks the run
// finished on the server. The server owns all durable state; whether
// mutations after End are legal is its call, not ours.
type Run struct {
	Experiment *Experiment
	Parent     *Run

	// ID is the service-issued run identifier, immutable after creation.
	ID string

	// Info is the service-side run record as of creation or lookup.
	Info *ml.Run

	client TrackingClient
	logger *zap.Logger
}

// CreateRun creates a run under the experiment. When parent is non-nil
// the parent's ID is recorded in the child's parent tag; otherwise the
// tag is set to NoParent. A non-empty name becomes the run-name tag.
// The caller's tag map is never mutated.
func CreateRun(ctx context.Context, name string, experiment *Experiment, parent *Run, tags map[string]string) (*Run, error) {
	runTags := make(map[string]string, len(tags)+2)
	for k, v := range tags {
		runTags[k] = v
	}

	if parent != nil {
		runTags[TagParentRunID] = parent.ID
	} else {
		runTags[TagParentRunID] = NoParent
	}
	if name != "" {
		runTags[TagRunName] = name
	}

	run, err := experiment.Client.CreateRun(ctx, experiment.ID, runTags)
	if err != nil {
		return nil, err
	}

	return wrapRun(run, experiment, parent), nil
}

func wrapRun(run *ml.Run, experiment *Experiment, parent *Run) *Run {
	logger := experiment.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Run{
		Experiment: experiment,
		Parent:     parent,
		ID:         run.Info.RunId,
		Info:       run,
		client:     experiment.Client,
		logger:     logger,
	}
}

// AttachRun wraps an existing service-side run by ID. The parent link,
// if any, stays a tag on the service side; the wrapper's Parent is nil.
func AttachRun(ctx context.Context, experiment *Experiment, runID string) (*Run, error) {
	run, err := experiment.Client.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	return wrapRun(run, experiment, nil), nil
}

// StartRun creates a child run of this run.
func (r *Run) StartRun(ctx context.Context, name string, tags map[string]string) (*Run, error) {
	return CreateRun(ctx, name, r.Experiment, r, tags)
}

// End marks the run terminated on the tracking server.
func (r *Run) End(ctx context.Context) error {
	return r.client.SetTerminated(ctx, r.ID)
}

// LogCrossValidation logs a hyperparameter sweep under this run: the
// best model (when a flavor is given), the full results matrix as a
// cv_results CSV artifact, and one ended child run per candidate — or
// only the best candidate when onlyBest is set.
//
// The several service calls are not atomic; a failure partway leaves
// already-created child runs in place.
func (r *Run) LogCrossValidation(ctx context.Context, sweep *SweepResult, modelName string, flavor Flavor, tags map[string]string, onlyBest bool) error {
	if flavor != nil {
		r.logger.Info("logging model", zap.String("name", modelName))
		if err := r.LogModel(ctx, sweep.BestModel, modelName, flavor); err != nil {
			return err
		}
	}

	r.logger.Info("logging CV results matrix")
	if err := r.LogTable(ctx, sweep.Matrix(), "cv_results"); err != nil {
		return err
	}

	indices := sweep.candidateIndices(onlyBest)
	for _, i := range indices {
		// Each child run is named after its own candidate index. The
		// historical behavior of naming every child after the best
		// candidate's index was a defect.
		child, err := r.StartRun(ctx, strconv.Itoa(i), tags)
		if err != nil {
			return err
		}
		if err := child.LogCVRun(ctx, sweep, i, tags); err != nil {
			return err
		}
		if err := child.End(ctx); err != nil {
			return err
		}
	}

	return nil
}

// LogCVRun logs one sweep candidate into this run: the fold count and
// the candidate's swept parameters as parameters, each mean_test score
// with its std_test counterpart as metrics, and every entry of tags as
// a tag.
func (r *Run) LogCVRun(ctx context.Context, sweep *SweepResult, candidate int, tags map[string]string) error {
	if err := r.client.LogParam(ctx, r.ID, "folds", strconv.Itoa(sweep.Folds)); err != nil {
		return err
	}

	r.logger.Debug("logging parameters", zap.Int("candidate", candidate))
	for _, name := range sweep.ParamNames {
		value, err := sweep.ParamValue(name, candidate)
		if err != nil {
			return err
		}
		if err := r.client.LogParam(ctx, r.ID, name, value); err != nil {
			return err
		}
	}

	r.logger.Debug("logging metrics", zap.Int("candidate", candidate))
	for _, score := range sweep.ScoreNames() {
		if !strings.Contains(score, "mean_test") {
			continue
		}
		mean, err := sweep.ScoreValue(score, candidate)
		if err != nil {
			return err
		}
		if err := r.client.LogMetric(ctx, r.ID, score, mean); err != nil {
			return err
		}

		stdName := strings.Replace(score, "mean", "std", 1)
		std, err := sweep.ScoreValue(stdName, candidate)
		if err != nil {
			return err
		}
		if err := r.client.LogMetric(ctx, r.ID, stdName, std); err != nil {
			return err
		}
	}

	for _, key := range sortedKeys(tags) {
		if err := r.client.SetTag(ctx, r.ID, key, tags[key]); err != nil {
			return err
		}
	}

	return nil
}

// LogObject serializes data with msgpack into a uniquely named staging
// file and uploads it as a run artifact. The staging directory is
// removed whether or not the upload succeeds.
func (r *Run) LogObject(ctx context.Context, data any, filename string) error {
	stagingPath, cleanup, err := stagingFile(filename, "msgpack")
	if err != nil {
		return err
	}
	defer cleanup()

	payload, err := msgpack.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to serialize %s: %w", filename, err)
	}
	if err := os.WriteFile(stagingPath, payload, 0644); err != nil {
		return fmt.Errorf("failed to write staging file: %w", err)
	}

	return r.client.LogArtifact(ctx, r.ID, stagingPath)
}

// LogTable writes the table as CSV (no row-index column) into a
// uniquely named staging file and uploads it as a run artifact.
func (r *Run) LogTable(ctx context.Context, table *Table, filename string) error {
	stagingPath, cleanup, err := stagingFile(filename, "csv")
	if err != nil {
		return err
	}
	defer cleanup()

	if err := table.WriteCSVFile(stagingPath); err != nil {
		return fmt.Errorf("failed to write %s: %w", filename, err)
	}

	return r.client.LogArtifact(ctx, r.ID, stagingPath)
}

// LogModel saves the model through the flavor into a scoped staging
// directory, uploads the resulting tree as run artifacts, and records
// the model metadata with the tracking server. Tracking servers older
// than MLflow 1.7.0 reject the metadata call; that rejection alone is
// logged as a warning and swallowed, any other error propagates.
func (r *Run) LogModel(ctx context.Context, model any, name string, flavor Flavor) error {
	stagingDir, err := os.MkdirTemp("", "mlflowstone-model-")
	if err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(stagingDir)

	localPath := filepath.Join(stagingDir, "model")
	info := NewModelInfo(r.ID, r.Experiment.ModelsPath)

	if err := flavor.Save(model, localPath, info); err != nil {
		return fmt.Errorf("flavor %s failed to save model %s: %w", flavor.Name(), name, err)
	}

	if err := r.client.LogArtifacts(ctx, r.ID, localPath); err != nil {
		return err
	}

	if err := r.client.RecordLoggedModel(ctx, r.ID, info); err != nil {
		if !isUnsupportedLogModelError(err) {
			return err
		}
		r.logger.Warn("recording model metadata failed, possibly an older tracking server; "+
			"the model artifacts themselves were logged successfully",
			zap.String("run_id", r.ID),
			zap.String("model", name),
			zap.Error(err))
	}

	return nil
}

// isUnsupportedLogModelError reports whether the error is the rejection
// an older tracking server returns for the runs/log-model endpoint.
func isUnsupportedLogModelError(err error) bool {
	var apiErr *apierr.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.ErrorCode == "ENDPOINT_NOT_FOUND" || apiErr.StatusCode == http.StatusNotFound
}

// Children returns the runs whose parent tag equals this run's ID, in
// whatever order the service returns them.
func (r *Run) Children(ctx context.Context) ([]*Run, error) {
	filter := fmt.Sprintf("tags.%s = '%s'", TagParentRunID, r.ID)
	runs, err := r.client.SearchRuns(ctx, r.Experiment.ID, filter)
	if err != nil {
		return nil, err
	}

	children := make([]*Run, 0, len(runs))
	for i := range runs {
		children = append(children, wrapRun(&runs[i], r.Experiment, nil))
	}
	return children, nil
}

// ListArtifacts lists this run's artifacts. With fullPath set, each
// relative artifact path is rewritten to the absolute convention
// <models path>/<run id>/artifacts/<path>.
func (r *Run) ListArtifacts(ctx context.Context, fullPath bool) ([]ml.FileInfo, error) {
	files, err := r.client.ListArtifacts(ctx, r.ID)
	if err != nil {
		return nil, err
	}
	if !fullPath {
		return files, nil
	}

	resolved := make([]ml.FileInfo, 0, len(files))
	for _, fi := range files {
		resolved = append(resolved, ml.FileInfo{
			Path:     r.FullPath(fi.Path),
			IsDir:    fi.IsDir,
			FileSize: fi.FileSize,
		})
	}
	return resolved, nil
}

// FullPath resolves a bare artifact filename to
// <models path>/<run id>/artifacts/<filename>.
func (r *Run) FullPath(filename string) string {
	return filepath.Join(r.Experiment.ModelsPath, r.ID, "artifacts", filename)
}

// FullPathInfo resolves an artifact descriptor's path.
func (r *Run) FullPathInfo(fi ml.FileInfo) string {
	return r.FullPath(fi.Path)
}

// stagingFile returns a path <base>-<timestamp>.<ext> inside a fresh
// temporary directory, and a cleanup func removing the directory. The
// directory is unique per call so concurrent staging never collides.
func stagingFile(base, ext string) (string, func(), error) {
	dir, err := os.MkdirTemp("", "mlflowstone-")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	name := fmt.Sprintf("%s-%s.%s", base, artifactTimestamp(time.Now()), ext)
	return filepath.Join(dir, name), func() { os.RemoveAll(dir) }, nil
}

// artifactTimestamp renders t as ISO-8601 truncated to seconds with
// colons replaced by dots, so the result is safe in filenames.
func artifactTimestamp(t time.Time) string {
	return t.Format("2006-01-02T15.04.05")
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
