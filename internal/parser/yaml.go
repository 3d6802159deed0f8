package parser

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/mlflowstone/mlflowstone/internal/models"
	"github.com/mlflowstone/mlflowstone/tracking"
)

func ParseYAMLParams(reader io.Reader) (map[string]string, error) {
	var data models.ParametersFile
	decoder := yaml.NewDecoder(reader)

	if err := decoder.Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to parse YAML parameters: %w", err)
	}

	return data.Parameters, nil
}

func ParseYAMLMetrics(reader io.Reader) (*models.MetricsFile, error) {
	var data models.MetricsFile
	decoder := yaml.NewDecoder(reader)

	if err := decoder.Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to parse YAML metrics: %w", err)
	}

	return &data, nil
}

func ParseYAMLSweep(reader io.Reader) (*tracking.SweepResult, error) {
	var sweep tracking.SweepResult
	decoder := yaml.NewDecoder(reader)

	if err := decoder.Decode(&sweep); err != nil {
		return nil, fmt.Errorf("failed to parse YAML sweep result: %w", err)
	}
	if err := sweep.Validate(); err != nil {
		return nil, fmt.Errorf("invalid sweep result: %w", err)
	}

	return &sweep, nil
}
