package tracking

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/databricks/databricks-sdk-go/service/ml"
)

// fakeClient records every call the Run wrapper makes. Artifact uploads
// are captured by artifact path only; the local staging file must still
// exist at upload time.
type fakeClient struct {
	nextRunID int

	createdTags map[string]map[string]string // run ID -> creation tags
	params      map[string]map[string]string // run ID -> params
	metrics     map[string]map[string]float64
	tags        map[string]map[string]string // tags set after creation
	artifacts   map[string][]string          // run ID -> uploaded artifact paths
	terminated  []string
	models      map[string][]*ModelInfo

	recordModelErr error
	listResult     []ml.FileInfo
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		createdTags: make(map[string]map[string]string),
		params:      make(map[string]map[string]string),
		metrics:     make(map[string]map[string]float64),
		tags:        make(map[string]map[string]string),
		artifacts:   make(map[string][]string),
		models:      make(map[string][]*ModelInfo),
	}
}

var _ TrackingClient = (*fakeClient)(nil)

func (f *fakeClient) CreateRun(_ context.Context, experimentID string, tags map[string]string) (*ml.Run, error) {
	f.nextRunID++
	id := fmt.Sprintf("run-%d", f.nextRunID)

	stored := make(map[string]string, len(tags))
	for k, v := range tags {
		stored[k] = v
	}
	f.createdTags[id] = stored

	return &ml.Run{
		Info: &ml.RunInfo{
			RunId:        id,
			ExperimentId: experimentID,
			Status:       ml.RunInfoStatusRunning,
		},
	}, nil
}

func (f *fakeClient) GetRun(_ context.Context, runID string) (*ml.Run, error) {
	if _, ok := f.createdTags[runID]; !ok {
		return nil, fmt.Errorf("run %s not found", runID)
	}
	return &ml.Run{
		Info: &ml.RunInfo{RunId: runID},
	}, nil
}

func (f *fakeClient) SetTerminated(_ context.Context, runID string) error {
	f.terminated = append(f.terminated, runID)
	return nil
}

func (f *fakeClient) LogParam(_ context.Context, runID, key, value string) error {
	if f.params[runID] == nil {
		f.params[runID] = make(map[string]string)
	}
	f.params[runID][key] = value
	return nil
}

func (f *fakeClient) LogMetric(_ context.Context, runID, key string, value float64) error {
	if f.metrics[runID] == nil {
		f.metrics[runID] = make(map[string]float64)
	}
	f.metrics[runID][key] = value
	return nil
}

func (f *fakeClient) SetTag(_ context.Context, runID, key, value string) error {
	if f.tags[runID] == nil {
		f.tags[runID] = make(map[string]string)
	}
	f.tags[runID][key] = value
	return nil
}

func (f *fakeClient) LogArtifact(_ context.Context, runID, localPath string) error {
	if _, err := os.Stat(localPath); err != nil {
		return fmt.Errorf("staging file gone before upload: %w", err)
	}
	f.artifacts[runID] = append(f.artifacts[runID], filepath.Base(localPath))
	return nil
}

func (f *fakeClient) LogArtifacts(_ context.Context, runID, localDir string) error {
	return filepath.WalkDir(localDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(localDir, p)
		if err != nil {
			return err
		}
		f.artifacts[runID] = append(f.artifacts[runID], filepath.ToSlash(rel))
		return nil
	})
}

func (f *fakeClient) ListArtifacts(_ context.Context, runID string) ([]ml.FileInfo, error) {
	return f.listResult, nil
}

func (f *fakeClient) SearchRuns(_ context.Context, experimentID, filter string) ([]ml.Run, error) {
	// Supports the one filter shape the wrapper emits:
	// tags.mlflow.parentRunId = '<id>'
	want := ""
	if start := strings.Index(filter, "'"); start != -1 {
		end := strings.LastIndex(filter, "'")
		if end > start {
			want = filter[start+1 : end]
		}
	}

	var runs []ml.Run
	for i := 1; i <= f.nextRunID; i++ {
		id := fmt.Sprintf("run-%d", i)
		if f.createdTags[id][TagParentRunID] == want {
			runs = append(runs, ml.Run{
				Info: &ml.RunInfo{RunId: id, ExperimentId: experimentID},
			})
		}
	}
	return runs, nil
}

func (f *fakeClient) RecordLoggedModel(_ context.Context, runID string, model *ModelInfo) error {
	if f.recordModelErr != nil {
		return f.recordModelErr
	}
	f.models[runID] = append(f.models[runID], model)
	return nil
}
