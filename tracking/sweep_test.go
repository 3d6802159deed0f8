package tracking

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweepResult_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(s *SweepResult)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(s *SweepResult) {},
		},
		{
			name:    "no candidates",
			mutate:  func(s *SweepResult) { s.Params = nil },
			wantErr: "no candidates",
		},
		{
			name:    "zero folds",
			mutate:  func(s *SweepResult) { s.Folds = 0 },
			wantErr: "fold count",
		},
		{
			name:    "best index out of range",
			mutate:  func(s *SweepResult) { s.BestIndex = 3 },
			wantErr: "best index",
		},
		{
			name:    "negative best index",
			mutate:  func(s *SweepResult) { s.BestIndex = -1 },
			wantErr: "best index",
		},
		{
			name:    "candidate missing a parameter",
			mutate:  func(s *SweepResult) { delete(s.Params[1], "alpha") },
			wantErr: `missing parameter "alpha"`,
		},
		{
			name: "short score column",
			mutate: func(s *SweepResult) {
				s.Scores["mean_test_f1"] = s.Scores["mean_test_f1"][:2]
			},
			wantErr: `score column "mean_test_f1"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sweep := testSweep()
			tt.mutate(sweep)
			err := sweep.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSweepResult_ParamValue(t *testing.T) {
	sweep := testSweep()

	value, err := sweep.ParamValue("alpha", 2)
	require.NoError(t, err)
	assert.Equal(t, "1", value)

	_, err = sweep.ParamValue("alpha", 3)
	assert.Error(t, err)

	_, err = sweep.ParamValue("gamma", 0)
	assert.Error(t, err)
}

func TestSweepResult_ScoreNames(t *testing.T) {
	sweep := testSweep()
	assert.Equal(t, []string{
		"mean_fit_time",
		"mean_test_accuracy",
		"mean_test_f1",
		"std_test_accuracy",
		"std_test_f1",
	}, sweep.ScoreNames())
}

func TestSweepResult_CandidateIndices(t *testing.T) {
	sweep := testSweep()
	assert.Equal(t, []int{0, 1, 2}, sweep.candidateIndices(false))
	assert.Equal(t, []int{1}, sweep.candidateIndices(true))
}

func TestSweepResult_Matrix(t *testing.T) {
	sweep := testSweep()
	matrix := sweep.Matrix()

	assert.Equal(t, []string{
		"param_alpha",
		"param_l1_ratio",
		"mean_fit_time",
		"mean_test_accuracy",
		"mean_test_f1",
		"std_test_accuracy",
		"std_test_f1",
	}, matrix.Columns)

	require.Len(t, matrix.Rows, 3)
	assert.Equal(t, []string{"0.01", "0.7", "1.5", "0.93", "0.91", "0.01", "0.02"}, matrix.Rows[1])
}

func TestTable_AppendRow(t *testing.T) {
	table := NewTable([]string{"a", "b"})
	require.NoError(t, table.AppendRow([]string{"1", "2"}))

	err := table.AppendRow([]string{"1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 cells")
}

func TestTable_WriteCSV(t *testing.T) {
	table := NewTable([]string{"epoch", "loss"})
	require.NoError(t, table.AppendRow([]string{"1", "0.8"}))
	require.NoError(t, table.AppendRow([]string{"2", "0.5"}))

	var sb strings.Builder
	require.NoError(t, table.WriteCSV(&sb))
	assert.Equal(t, "epoch,loss\n1,0.8\n2,0.5\n", sb.String())
}
