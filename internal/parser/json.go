package parser

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/mlflowstone/mlflowstone/internal/models"
	"github.com/mlflowstone/mlflowstone/tracking"
)

func ParseJSONParams(reader io.Reader) (map[string]string, error) {
	var data models.ParametersFile
	decoder := json.NewDecoder(reader)

	if err := decoder.Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to parse JSON parameters: %w", err)
	}

	return data.Parameters, nil
}

func ParseJSONMetrics(reader io.Reader) (*models.MetricsFile, error) {
	var data models.MetricsFile
	decoder := json.NewDecoder(reader)

	if err := decoder.Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to parse JSON metrics: %w", err)
	}

	return &data, nil
}

func ParseJSONSweep(reader io.Reader) (*tracking.SweepResult, error) {
	var sweep tracking.SweepResult
	decoder := json.NewDecoder(reader)

	if err := decoder.Decode(&sweep); err != nil {
		return nil, fmt.Errorf("failed to parse JSON sweep result: %w", err)
	}
	if err := sweep.Validate(); err != nil {
		return nil, fmt.Errorf("invalid sweep result: %w", err)
	}

	return &sweep, nil
}
