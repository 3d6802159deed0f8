package tracking

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"testing"
	"time"

	"github.com/databricks/databricks-sdk-go/apierr"
	"github.com/databricks/databricks-sdk-go/service/ml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSweep() *SweepResult {
	return &SweepResult{
		Folds:      5,
		ParamNames: []string{"alpha", "l1_ratio"},
		Params: []map[string]string{
			{"alpha": "0.1", "l1_ratio": "0.5"},
			{"alpha": "0.01", "l1_ratio": "0.7"},
			{"alpha": "1", "l1_ratio": "0.9"},
		},
		Scores: map[string][]float64{
			"mean_test_accuracy": {0.81, 0.93, 0.77},
			"std_test_accuracy":  {0.02, 0.01, 0.05},
			"mean_test_f1":       {0.79, 0.91, 0.75},
			"std_test_f1":        {0.03, 0.02, 0.04},
			"mean_fit_time":      {1.2, 1.5, 1.1},
		},
		BestIndex: 1,
		BestModel: map[string]any{"weights": []float64{0.4, 0.6}},
	}
}

func TestCreateRun_ParentTag(t *testing.T) {
	fake := newFakeClient()
	exp := NewExperiment("exp-1", "/exp", fake)
	ctx := context.Background()

	parent, err := CreateRun(ctx, "parent", exp, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, NoParent, fake.createdTags[parent.ID][TagParentRunID])

	child, err := CreateRun(ctx, "child", exp, parent, nil)
	require.NoError(t, err)
	assert.Equal(t, parent.ID, fake.createdTags[child.ID][TagParentRunID])
	assert.Equal(t, parent, child.Parent)
}

func TestCreateRun_RunNameTag(t *testing.T) {
	fake := newFakeClient()
	exp := NewExperiment("exp-1", "/exp", fake)
	ctx := context.Background()

	named, err := CreateRun(ctx, "training", exp, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "training", fake.createdTags[named.ID][TagRunName])

	unnamed, err := CreateRun(ctx, "", exp, nil, nil)
	require.NoError(t, err)
	_, ok := fake.createdTags[unnamed.ID][TagRunName]
	assert.False(t, ok, "empty name must not set a run-name tag")
}

func TestCreateRun_DoesNotMutateCallerTags(t *testing.T) {
	fake := newFakeClient()
	exp := NewExperiment("exp-1", "/exp", fake)

	tags := map[string]string{"team": "forecasting"}
	run, err := CreateRun(context.Background(), "r", exp, nil, tags)
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"team": "forecasting"}, tags)
	assert.Equal(t, "forecasting", fake.createdTags[run.ID]["team"])
}

func TestRun_End(t *testing.T) {
	fake := newFakeClient()
	exp := NewExperiment("exp-1", "/exp", fake)
	ctx := context.Background()

	run, err := CreateRun(ctx, "r", exp, nil, nil)
	require.NoError(t, err)
	require.NoError(t, run.End(ctx))
	assert.Equal(t, []string{run.ID}, fake.terminated)
}

func TestLogCVRun_ParamsAndMetrics(t *testing.T) {
	fake := newFakeClient()
	exp := NewExperiment("exp-1", "/exp", fake)
	ctx := context.Background()

	run, err := CreateRun(ctx, "cv", exp, nil, nil)
	require.NoError(t, err)

	err = run.LogCVRun(ctx, testSweep(), 1, map[string]string{"features": "all"})
	require.NoError(t, err)

	// One parameter per swept hyperparameter plus folds
	assert.Equal(t, map[string]string{
		"folds":    "5",
		"alpha":    "0.01",
		"l1_ratio": "0.7",
	}, fake.params[run.ID])

	// Exactly mean and std per mean_test column; timing columns ignored
	assert.Equal(t, map[string]float64{
		"mean_test_accuracy": 0.93,
		"std_test_accuracy":  0.01,
		"mean_test_f1":       0.91,
		"std_test_f1":        0.02,
	}, fake.metrics[run.ID])

	assert.Equal(t, "all", fake.tags[run.ID]["features"])
}

func TestLogCVRun_MissingStdColumn(t *testing.T) {
	fake := newFakeClient()
	exp := NewExperiment("exp-1", "/exp", fake)
	ctx := context.Background()

	sweep := testSweep()
	delete(sweep.Scores, "std_test_f1")

	run, err := CreateRun(ctx, "cv", exp, nil, nil)
	require.NoError(t, err)

	err = run.LogCVRun(ctx, sweep, 0, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "std_test_f1")
}

func TestLogCrossValidation_AllCandidates(t *testing.T) {
	fake := newFakeClient()
	exp := NewExperiment("exp-1", "/exp", fake)
	ctx := context.Background()

	parent, err := CreateRun(ctx, "sweep", exp, nil, nil)
	require.NoError(t, err)

	sweep := testSweep()
	err = parent.LogCrossValidation(ctx, sweep, "elasticnet", MsgpackFlavor{}, nil, false)
	require.NoError(t, err)

	children, err := parent.Children(ctx)
	require.NoError(t, err)
	require.Len(t, children, sweep.Candidates())

	// Each child is named after its own candidate index and ended
	for i, child := range children {
		assert.Equal(t, strconv.Itoa(i), fake.createdTags[child.ID][TagRunName])
		assert.Contains(t, fake.terminated, child.ID)
	}

	// Parent got the model tree and the results matrix
	assert.Contains(t, fake.artifacts[parent.ID], MLmodelFile)
	assert.Contains(t, fake.artifacts[parent.ID], "model.msgpack")
	assertTimestampedArtifact(t, fake.artifacts[parent.ID], "cv_results", "csv")

	require.Len(t, fake.models[parent.ID], 1)
	assert.Equal(t, parent.ID, fake.models[parent.ID][0].RunID)
}

func TestLogCrossValidation_OnlyBest(t *testing.T) {
	fake := newFakeClient()
	exp := NewExperiment("exp-1", "/exp", fake)
	ctx := context.Background()

	parent, err := CreateRun(ctx, "sweep", exp, nil, nil)
	require.NoError(t, err)

	sweep := testSweep()
	err = parent.LogCrossValidation(ctx, sweep, "elasticnet", MsgpackFlavor{}, nil, true)
	require.NoError(t, err)

	children, err := parent.Children(ctx)
	require.NoError(t, err)
	require.Len(t, children, 1)

	child := children[0]
	assert.Equal(t, strconv.Itoa(sweep.BestIndex), fake.createdTags[child.ID][TagRunName])
	assert.Equal(t, "0.01", fake.params[child.ID]["alpha"])
}

func TestLogCrossValidation_NoFlavorSkipsModel(t *testing.T) {
	fake := newFakeClient()
	exp := NewExperiment("exp-1", "/exp", fake)
	ctx := context.Background()

	parent, err := CreateRun(ctx, "sweep", exp, nil, nil)
	require.NoError(t, err)

	err = parent.LogCrossValidation(ctx, testSweep(), "elasticnet", nil, nil, true)
	require.NoError(t, err)

	assert.Empty(t, fake.models[parent.ID])
	assertTimestampedArtifact(t, fake.artifacts[parent.ID], "cv_results", "csv")
}

func TestLogObject(t *testing.T) {
	fake := newFakeClient()
	exp := NewExperiment("exp-1", "/exp", fake)
	ctx := context.Background()

	run, err := CreateRun(ctx, "r", exp, nil, nil)
	require.NoError(t, err)

	err = run.LogObject(ctx, map[string]int{"answer": 42}, "predictions")
	require.NoError(t, err)

	require.Len(t, fake.artifacts[run.ID], 1)
	assertTimestampedArtifact(t, fake.artifacts[run.ID], "predictions", "msgpack")
}

func TestLogTable(t *testing.T) {
	fake := newFakeClient()
	exp := NewExperiment("exp-1", "/exp", fake)
	ctx := context.Background()

	run, err := CreateRun(ctx, "r", exp, nil, nil)
	require.NoError(t, err)

	table := NewTable([]string{"epoch", "loss"})
	require.NoError(t, table.AppendRow([]string{"1", "0.8"}))
	require.NoError(t, table.AppendRow([]string{"2", "0.5"}))

	err = run.LogTable(ctx, table, "history")
	require.NoError(t, err)

	require.Len(t, fake.artifacts[run.ID], 1)
	assertTimestampedArtifact(t, fake.artifacts[run.ID], "history", "csv")
}

func TestLogModel_SwallowsLegacyRejection(t *testing.T) {
	fake := newFakeClient()
	fake.recordModelErr = &apierr.APIError{
		ErrorCode:  "ENDPOINT_NOT_FOUND",
		StatusCode: 404,
		Message:    "Endpoint not found for /api/2.0/mlflow/runs/log-model",
	}
	exp := NewExperiment("exp-1", "/exp", fake)
	ctx := context.Background()

	run, err := CreateRun(ctx, "r", exp, nil, nil)
	require.NoError(t, err)

	err = run.LogModel(ctx, map[string]string{"kind": "stub"}, "stub", MsgpackFlavor{})
	require.NoError(t, err, "legacy-server rejection must be swallowed")

	// The artifacts were still uploaded
	assert.Contains(t, fake.artifacts[run.ID], "model.msgpack")
}

func TestLogModel_PropagatesOtherErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{
			name: "api error",
			err:  &apierr.APIError{ErrorCode: "INTERNAL_ERROR", StatusCode: 500},
		},
		{
			name: "plain error",
			err:  errors.New("connection reset"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := newFakeClient()
			fake.recordModelErr = tt.err
			exp := NewExperiment("exp-1", "/exp", fake)
			ctx := context.Background()

			run, err := CreateRun(ctx, "r", exp, nil, nil)
			require.NoError(t, err)

			err = run.LogModel(ctx, "model", "stub", MsgpackFlavor{})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestChildren_FiltersByParentTag(t *testing.T) {
	fake := newFakeClient()
	exp := NewExperiment("exp-1", "/exp", fake)
	ctx := context.Background()

	parent, err := CreateRun(ctx, "parent", exp, nil, nil)
	require.NoError(t, err)

	a, err := parent.StartRun(ctx, "a", nil)
	require.NoError(t, err)
	b, err := parent.StartRun(ctx, "b", nil)
	require.NoError(t, err)

	// Unrelated top-level run
	_, err = CreateRun(ctx, "other", exp, nil, nil)
	require.NoError(t, err)

	children, err := parent.Children(ctx)
	require.NoError(t, err)

	ids := make([]string, 0, len(children))
	for _, child := range children {
		ids = append(ids, child.ID)
	}
	assert.ElementsMatch(t, []string{a.ID, b.ID}, ids)
}

func TestListArtifacts_FullPath(t *testing.T) {
	fake := newFakeClient()
	fake.listResult = []ml.FileInfo{
		{Path: "x.csv", FileSize: 12},
		{Path: "model", IsDir: true},
	}
	exp := NewExperiment("exp-1", "/exp", fake)
	ctx := context.Background()

	run, err := CreateRun(ctx, "r", exp, nil, nil)
	require.NoError(t, err)

	relative, err := run.ListArtifacts(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, "x.csv", relative[0].Path)

	resolved, err := run.ListArtifacts(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, "/exp/"+run.ID+"/artifacts/x.csv", resolved[0].Path)
	assert.Equal(t, int64(12), resolved[0].FileSize)
	assert.True(t, resolved[1].IsDir)
}

func TestFullPath(t *testing.T) {
	run := &Run{
		Experiment: NewExperiment("exp-1", "/exp", newFakeClient()),
		ID:         "r1",
	}
	assert.Equal(t, "/exp/r1/artifacts/x.csv", run.FullPath("x.csv"))
	assert.Equal(t, "/exp/r1/artifacts/sub/y.bin", run.FullPathInfo(ml.FileInfo{Path: "sub/y.bin"}))
}

func TestArtifactTimestamp(t *testing.T) {
	ts := artifactTimestamp(time.Date(2023, 4, 5, 6, 7, 8, 999, time.UTC))
	assert.Equal(t, "2023-04-05T06.07.08", ts)
}

var timestampedName = `-\d{4}-\d{2}-\d{2}T\d{2}\.\d{2}\.\d{2}\.`

// assertTimestampedArtifact checks that exactly one uploaded artifact
// matches <base>-<timestamp>.<ext>.
func assertTimestampedArtifact(t *testing.T, artifacts []string, base, ext string) {
	t.Helper()
	pattern := regexp.MustCompile("^" + regexp.QuoteMeta(base) + timestampedName + regexp.QuoteMeta(ext) + "$")
	matches := 0
	for _, a := range artifacts {
		if pattern.MatchString(a) {
			matches++
		}
	}
	assert.Equalf(t, 1, matches, "want one artifact %s-<timestamp>.%s in %v", base, ext, artifacts)
}
