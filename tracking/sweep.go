package tracking

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
)

// SweepResult is the read-only outcome of a hyperparameter search
// evaluated with cross-validation: per-candidate parameter assignments
// and per-candidate score columns. The Run wrapper never mutates it.
type SweepResult struct {
	// Folds is the number of cross-validation folds.
	Folds int `json:"folds" yaml:"folds"`

	// ParamNames lists the swept hyperparameters, in sweep order.
	ParamNames []string `json:"param_names" yaml:"param_names"`

	// Params holds one parameter assignment per candidate.
	Params []map[string]string `json:"params" yaml:"params"`

	// Scores maps a score column (mean_test_accuracy, std_test_accuracy,
	// mean_fit_time, ...) to its per-candidate values.
	Scores map[string][]float64 `json:"scores" yaml:"scores"`

	// BestIndex is the winning candidate.
	BestIndex int `json:"best_index" yaml:"best_index"`

	// BestModel is the trained winning model, when the caller has one
	// in hand to log. May be nil.
	BestModel any `json:"-" yaml:"-"`
}

// Candidates returns the number of evaluated parameter combinations.
func (s *SweepResult) Candidates() int {
	return len(s.Params)
}

// Validate checks internal consistency: every candidate has every swept
// parameter, every score column covers every candidate, and the best
// index is in range.
func (s *SweepResult) Validate() error {
	n := s.Candidates()
	if n == 0 {
		return fmt.Errorf("sweep has no candidates")
	}
	if s.Folds <= 0 {
		return fmt.Errorf("sweep fold count must be positive, got %d", s.Folds)
	}
	if s.BestIndex < 0 || s.BestIndex >= n {
		return fmt.Errorf("best index %d out of range for %d candidates", s.BestIndex, n)
	}
	for i, assignment := range s.Params {
		for _, name := range s.ParamNames {
			if _, ok := assignment[name]; !ok {
				return fmt.Errorf("candidate %d is missing parameter %q", i, name)
			}
		}
	}
	for name, values := range s.Scores {
		if len(values) != n {
			return fmt.Errorf("score column %q has %d values for %d candidates", name, len(values), n)
		}
	}
	return nil
}

// ParamValue returns the candidate's value for a swept parameter.
func (s *SweepResult) ParamValue(name string, candidate int) (string, error) {
	if candidate < 0 || candidate >= len(s.Params) {
		return "", fmt.Errorf("candidate %d out of range", candidate)
	}
	value, ok := s.Params[candidate][name]
	if !ok {
		return "", fmt.Errorf("candidate %d has no parameter %q", candidate, name)
	}
	return value, nil
}

// ScoreNames returns the score columns in lexical order.
func (s *SweepResult) ScoreNames() []string {
	names := make([]string, 0, len(s.Scores))
	for name := range s.Scores {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ScoreValue returns the candidate's value in a score column.
func (s *SweepResult) ScoreValue(name string, candidate int) (float64, error) {
	values, ok := s.Scores[name]
	if !ok {
		return 0, fmt.Errorf("sweep has no score column %q", name)
	}
	if candidate < 0 || candidate >= len(values) {
		return 0, fmt.Errorf("candidate %d out of range for score %q", candidate, name)
	}
	return values[candidate], nil
}

func (s *SweepResult) candidateIndices(onlyBest bool) []int {
	if onlyBest {
		return []int{s.BestIndex}
	}
	indices := make([]int, s.Candidates())
	for i := range indices {
		indices[i] = i
	}
	return indices
}

// Matrix renders the full results as a table: one param_<name> column
// per swept parameter followed by the score columns, one row per
// candidate.
func (s *SweepResult) Matrix() *Table {
	scoreNames := s.ScoreNames()

	columns := make([]string, 0, len(s.ParamNames)+len(scoreNames))
	for _, name := range s.ParamNames {
		columns = append(columns, "param_"+name)
	}
	columns = append(columns, scoreNames...)

	table := NewTable(columns)
	for i := 0; i < s.Candidates(); i++ {
		row := make([]string, 0, len(columns))
		for _, name := range s.ParamNames {
			row = append(row, s.Params[i][name])
		}
		for _, name := range scoreNames {
			row = append(row, strconv.FormatFloat(s.Scores[name][i], 'g', -1, 64))
		}
		table.mustAppendRow(row)
	}
	return table
}

// Table is an ordered set of string columns with rows, rendered to CSV
// without a row-index column.
type Table struct {
	Columns []string
	Rows    [][]string
}

func NewTable(columns []string) *Table {
	return &Table{Columns: columns}
}

// AppendRow adds a row; the cell count must match the column count.
func (t *Table) AppendRow(cells []string) error {
	if len(cells) != len(t.Columns) {
		return fmt.Errorf("row has %d cells, table has %d columns", len(cells), len(t.Columns))
	}
	t.Rows = append(t.Rows, cells)
	return nil
}

func (t *Table) mustAppendRow(cells []string) {
	if err := t.AppendRow(cells); err != nil {
		panic(err)
	}
}

// WriteCSV writes the header row followed by the data rows.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns); err != nil {
		return err
	}
	for _, row := range t.Rows {
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteCSVFile writes the table to a file at path.
func (t *Table) WriteCSVFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := t.WriteCSV(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
