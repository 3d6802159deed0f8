package models

import "time"

// MetricPoint is one observation row from a metrics file. Values maps
// metric names to values at this point; timestamp and step are optional
// and derived by the time processor when absent.
type MetricPoint struct {
	Timestamp *time.Time         `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`
	Step      *int64             `json:"step,omitempty" yaml:"step,omitempty"`
	Values    map[string]float64 `json:"values" yaml:"values"`
}

type MetricsFile struct {
	Metrics []MetricPoint `json:"metrics" yaml:"metrics"`
}

type TimeConfig struct {
	Resolution string // 1m, 5m, 1h
	Alignment  string // floor, ceil, round
	StepMode   string // auto, timestamp, sequence
}
