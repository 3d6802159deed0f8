package tracking

import (
	"context"
	"errors"
	"fmt"

	"github.com/databricks/databricks-sdk-go/apierr"
	"github.com/databricks/databricks-sdk-go/service/ml"
	"go.uber.org/zap"
)

// Experiment is the collaborator runs are created against: a tracking
// client, the experiment identifier, and the local root under which run
// artifacts are resolved.
type Experiment struct {
	ID         string
	ModelsPath string
	Client     TrackingClient
	Logger     *zap.Logger
}

// NewExperiment wraps an already-known experiment ID.
func NewExperiment(id, modelsPath string, client TrackingClient) *Experiment {
	logger := zap.NewNop()
	if c, ok := client.(*Client); ok {
		logger = c.logger
	}
	return &Experiment{
		ID:         id,
		ModelsPath: modelsPath,
		Client:     client,
		Logger:     logger,
	}
}

// OpenExperiment resolves an experiment by name, creating it when the
// tracking server does not know it yet.
func (c *Client) OpenExperiment(ctx context.Context, name, modelsPath string) (*Experiment, error) {
	resp, err := c.ws.Experiments.GetByName(ctx, ml.GetByNameRequest{
		ExperimentName: name,
	})
	if err == nil && resp.Experiment != nil {
		return NewExperiment(resp.Experiment.ExperimentId, modelsPath, c), nil
	}

	var apiErr *apierr.APIError
	if !errors.As(err, &apiErr) || apiErr.ErrorCode != "RESOURCE_DOES_NOT_EXIST" {
		return nil, fmt.Errorf("failed to resolve experiment %q: %w", name, err)
	}

	created, err := c.ws.Experiments.CreateExperiment(ctx, ml.CreateExperiment{
		Name: name,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create experiment %q: %w", name, err)
	}

	return NewExperiment(created.ExperimentId, modelsPath, c), nil
}
