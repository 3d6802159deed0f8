package tracking

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/databricks/databricks-sdk-go"
	"github.com/databricks/databricks-sdk-go/service/ml"
	"go.uber.org/zap"
)

// TrackingClient is the capability set the Run wrapper delegates to.
// *Client is the production implementation; tests substitute a fake.
type TrackingClient interface {
	CreateRun(ctx context.Context, experimentID string, tags map[string]string) (*ml.Run, error)
	GetRun(ctx context.Context, runID string) (*ml.Run, error)
	SetTerminated(ctx context.Context, runID string) error
	LogParam(ctx context.Context, runID, key, value string) error
	LogMetric(ctx context.Context, runID, key string, value float64) error
	SetTag(ctx context.Context, runID, key, value string) error
	LogArtifact(ctx context.Context, runID, localPath string) error
	LogArtifacts(ctx context.Context, runID, localDir string) error
	ListArtifacts(ctx context.Context, runID string) ([]ml.FileInfo, error)
	SearchRuns(ctx context.Context, experimentID, filter string) ([]ml.Run, error)
	RecordLoggedModel(ctx context.Context, runID string, model *ModelInfo) error
}

// Client talks to an MLflow tracking server through the Databricks SDK
// experiments API. All calls are synchronous and surface service errors
// unwrapped beyond message context.
type Client struct {
	ws     *databricks.WorkspaceClient
	config *Config
	logger *zap.Logger

	// s3 is built lazily on the first s3:// artifact upload.
	s3 *s3.Client
}

var _ TrackingClient = (*Client)(nil)

// ClientOption configures optional Client collaborators.
type ClientOption func(*Client)

// WithLogger attaches a logger. The default is a nop logger.
func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func NewClient(cfg *Config, opts ...ClientOption) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	var databricksConfig *databricks.Config

	if cfg.IsDatabricks() {
		databricksConfig = &databricks.Config{}

		// Handle different Databricks URI formats
		if cfg.TrackingURI == "databricks" {
			if cfg.DatabricksHost != "" {
				databricksConfig.Host = cfg.DatabricksHost
			}
		} else if profile := cfg.DatabricksProfile(); profile != "" {
			databricksConfig.Profile = profile
		} else {
			databricksConfig.Host = cfg.TrackingURI
		}

		// Explicit token overrides profile credentials
		if cfg.DatabricksToken != "" {
			databricksConfig.Token = cfg.DatabricksToken
		}

		if databricksConfig.Host == "" && databricksConfig.Profile == "" {
			return nil, fmt.Errorf("Databricks host or profile is required when using Databricks MLflow. Set DATABRICKS_HOST, use a full Databricks URL as tracking URI, or specify a profile with databricks://{profile}")
		}
	} else {
		// Regular MLflow server configuration
		databricksConfig = &databricks.Config{
			Host: cfg.TrackingURI,
			// For regular MLflow server, use a dummy token to bypass authentication
			Token: "dummy-token-for-regular-mlflow",
		}
	}

	ws, err := databricks.NewWorkspaceClient(databricksConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create tracking client: %w", err)
	}

	c := &Client{
		ws:     ws,
		config: cfg,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// CreateRun creates a run under the given experiment with the given tags
// and returns the service-side run.
func (c *Client) CreateRun(ctx context.Context, experimentID string, tags map[string]string) (*ml.Run, error) {
	runTags := make([]ml.RunTag, 0, len(tags))
	for key, value := range tags {
		runTags = append(runTags, ml.RunTag{
			Key:   key,
			Value: value,
		})
	}

	resp, err := c.ws.Experiments.CreateRun(ctx, ml.CreateRun{
		ExperimentId: experimentID,
		StartTime:    time.Now().UnixMilli(),
		Tags:         runTags,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	return resp.Run, nil
}

// SetTerminated marks the run FINISHED on the tracking server.
func (c *Client) SetTerminated(ctx context.Context, runID string) error {
	_, err := c.ws.Experiments.UpdateRun(ctx, ml.UpdateRun{
		RunId:   runID,
		Status:  ml.UpdateRunStatusFinished,
		EndTime: time.Now().UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("failed to terminate run: %w", err)
	}
	return nil
}

// EndRun marks the run terminated with an explicit status
// (FINISHED, FAILED, or KILLED).
func (c *Client) EndRun(ctx context.Context, runID string, status ml.UpdateRunStatus) error {
	_, err := c.ws.Experiments.UpdateRun(ctx, ml.UpdateRun{
		RunId:   runID,
		Status:  status,
		EndTime: time.Now().UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("failed to end run: %w", err)
	}
	return nil
}

// GetRun fetches the service-side run.
func (c *Client) GetRun(ctx context.Context, runID string) (*ml.Run, error) {
	resp, err := c.ws.Experiments.GetRun(ctx, ml.GetRunRequest{
		RunId: runID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return resp.Run, nil
}

func (c *Client) LogParam(ctx context.Context, runID, key, value string) error {
	err := c.ws.Experiments.LogParam(ctx, ml.LogParam{
		RunId: runID,
		Key:   key,
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("failed to log parameter %s: %w", key, err)
	}
	return nil
}

// LogParams logs every entry of the map as a parameter.
func (c *Client) LogParams(ctx context.Context, runID string, params map[string]string) error {
	for key, value := range params {
		if err := c.LogParam(ctx, runID, key, value); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) LogMetric(ctx context.Context, runID, key string, value float64) error {
	return c.LogMetricAt(ctx, runID, key, value, nil, nil)
}

// LogMetricAt logs a metric with an explicit timestamp and step. A nil
// timestamp means "now"; a nil step means step 0.
func (c *Client) LogMetricAt(ctx context.Context, runID, key string, value float64, timestamp *time.Time, step *int64) error {
	logMetric := ml.LogMetric{
		RunId: runID,
		Key:   key,
		Value: value,
	}

	if timestamp != nil {
		logMetric.Timestamp = timestamp.UnixMilli()
	} else {
		logMetric.Timestamp = time.Now().UnixMilli()
	}

	if step != nil {
		logMetric.Step = *step
	}

	err := c.ws.Experiments.LogMetric(ctx, logMetric)
	if err != nil {
		return fmt.Errorf("failed to log metric %s: %w", key, err)
	}
	return nil
}

// LogBatchMetrics logs a series of metric points one by one.
func (c *Client) LogBatchMetrics(ctx context.Context, runID string, metrics []MetricPoint) error {
	for _, m := range metrics {
		ts := m.Timestamp
		step := m.Step
		if err := c.LogMetricAt(ctx, runID, m.Key, m.Value, &ts, &step); err != nil {
			return err
		}
	}
	return nil
}

// MetricPoint is one metric observation for batch logging.
type MetricPoint struct {
	Key       string    `json:"key"`
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
	Step      int64     `json:"step"`
}

func (c *Client) SetTag(ctx context.Context, runID, key, value string) error {
	err := c.ws.Experiments.SetTag(ctx, ml.SetTag{
		RunId: runID,
		Key:   key,
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("failed to set tag %s: %w", key, err)
	}
	return nil
}

// SearchRuns returns all runs of the experiment matching the MLflow
// filter expression, in service order.
func (c *Client) SearchRuns(ctx context.Context, experimentID, filter string) ([]ml.Run, error) {
	runs, err := c.ws.Experiments.SearchRunsAll(ctx, ml.SearchRuns{
		ExperimentIds: []string{experimentID},
		Filter:        filter,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search runs: %w", err)
	}
	return runs, nil
}

// ListArtifacts lists the run's artifacts at the artifact root.
func (c *Client) ListArtifacts(ctx context.Context, runID string) ([]ml.FileInfo, error) {
	files, err := c.ws.Experiments.ListArtifactsAll(ctx, ml.ListArtifactsRequest{
		RunId: runID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}
	return files, nil
}

// RecordLoggedModel records model metadata against the run via the
// MLflow runs/log-model endpoint. Servers older than MLflow 1.7.0 reject
// this call; callers decide whether that is fatal.
func (c *Client) RecordLoggedModel(ctx context.Context, runID string, model *ModelInfo) error {
	modelJSON, err := model.JSON()
	if err != nil {
		return fmt.Errorf("failed to serialize model metadata: %w", err)
	}

	err = c.ws.Experiments.LogModel(ctx, ml.LogModel{
		RunId:     runID,
		ModelJson: modelJSON,
	})
	if err != nil {
		return fmt.Errorf("failed to record logged model: %w", err)
	}
	return nil
}
