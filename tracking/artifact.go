package tracking

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

// LogArtifact uploads a single local file as a run artifact. The
// artifact keeps the file's base name.
func (c *Client) LogArtifact(ctx context.Context, runID, localPath string) error {
	artifactURI, err := c.artifactURI(ctx, runID)
	if err != nil {
		return fmt.Errorf("failed to get artifact URI: %w", err)
	}

	return c.uploadToStorage(ctx, artifactURI, localPath, filepath.Base(localPath))
}

// LogArtifacts uploads every file under localDir as run artifacts,
// preserving paths relative to localDir.
func (c *Client) LogArtifacts(ctx context.Context, runID, localDir string) error {
	artifactURI, err := c.artifactURI(ctx, runID)
	if err != nil {
		return fmt.Errorf("failed to get artifact URI: %w", err)
	}

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
		artifactPath := filepath.ToSlash(rel)
		if err := c.uploadToStorage(ctx, artifactURI, p, artifactPath); err != nil {
			return fmt.Errorf("failed to upload %s: %w", rel, err)
		}
		c.logger.Debug("uploaded artifact",
			zap.String("run_id", runID),
			zap.String("path", artifactPath))
		return nil
	})
}

// artifactURI retrieves the artifact root URI for a given run.
func (c *Client) artifactURI(ctx context.Context, runID string) (string, error) {
	run, err := c.GetRun(ctx, runID)
	if err != nil {
		return "", err
	}
	if run.Info.ArtifactUri == "" {
		return "", fmt.Errorf("artifact URI not found for run %s", runID)
	}
	return run.Info.ArtifactUri, nil
}

// uploadToStorage uploads file to the appropriate storage based on URI scheme
func (c *Client) uploadToStorage(ctx context.Context, artifactURI, localPath, artifactPath string) error {
	switch {
	case strings.HasPrefix(artifactURI, "mlflow-artifacts:/"):
		return c.uploadToMLflowArtifacts(ctx, artifactURI, localPath, artifactPath)
	case strings.HasPrefix(artifactURI, "s3://"):
		return c.uploadToS3(ctx, artifactURI, localPath, artifactPath)
	case strings.HasPrefix(artifactURI, "file://"), strings.HasPrefix(artifactURI, "/"):
		return c.uploadToLocalFS(artifactURI, localPath, artifactPath)
	default:
		return fmt.Errorf("unsupported artifact URI scheme: %s", artifactURI)
	}
}

// uploadToMLflowArtifacts uploads using the MLflow Artifacts Service
func (c *Client) uploadToMLflowArtifacts(ctx context.Context, artifactURI, localPath, artifactPath string) error {
	experimentID, runID, err := extractIDsFromArtifactURI(artifactURI)
	if err != nil {
		return fmt.Errorf("failed to extract IDs from artifact URI: %w", err)
	}

	file, fileInfo, err := openFileWithInfo(localPath)
	if err != nil {
		return err
	}
	defer file.Close()

	// /api/2.0/mlflow-artifacts/artifacts/{experiment_id}/{run_id}/artifacts/{artifact_path}
	baseURL := strings.TrimSuffix(c.config.TrackingURI, "/")
	url := fmt.Sprintf("%s/api/2.0/mlflow-artifacts/artifacts/%s/%s/artifacts/%s", baseURL, experimentID, runID, artifactPath)

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, file)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.ContentLength = fileInfo.Size()
	c.addAuthHeaders(req)

	httpClient := &http.Client{}
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to upload to MLflow Artifacts Service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("MLflow Artifacts Service upload failed with status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	return nil
}

// uploadToLocalFS uploads file to a local filesystem artifact store
func (c *Client) uploadToLocalFS(artifactURI, localPath, artifactPath string) error {
	root := strings.TrimPrefix(artifactURI, "file://")
	destPath := filepath.Join(root, filepath.FromSlash(artifactPath))

	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", filepath.Dir(destPath), err)
	}

	sourceFile, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open source file: %w", err)
	}
	defer sourceFile.Close()

	destFile, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create destination file: %w", err)
	}
	defer destFile.Close()

	if _, err := io.Copy(destFile, sourceFile); err != nil {
		return fmt.Errorf("failed to copy file content: %w", err)
	}

	return nil
}

// uploadToS3 uploads file to an s3:// artifact store. The client uses
// the AWS SDK default credential chain with optional endpoint overrides
// for S3-compatible providers (MinIO, R2).
func (c *Client) uploadToS3(ctx context.Context, artifactURI, localPath, artifactPath string) error {
	bucket, keyPrefix, err := parseS3URI(artifactURI)
	if err != nil {
		return err
	}

	s3Client, err := c.s3Client(ctx)
	if err != nil {
		return err
	}

	file, fileInfo, err := openFileWithInfo(localPath)
	if err != nil {
		return err
	}
	defer file.Close()

	key := path.Join(keyPrefix, artifactPath)
	contentLength := fileInfo.Size()
	_, err = s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        &bucket,
		Key:           &key,
		Body:          file,
		ContentLength: &contentLength,
	})
	if err != nil {
		return fmt.Errorf("failed to upload to s3://%s/%s: %w", bucket, key, err)
	}

	return nil
}

// s3Client builds the S3 client on first use. The wrapper is
// single-threaded by contract, so no locking here.
func (c *Client) s3Client(ctx context.Context) (*s3.Client, error) {
	if c.s3 != nil {
		return c.s3, nil
	}

	var opts []func(*awsconfig.LoadOptions) error
	if c.config.S3Region != "" {
		opts = append(opts, awsconfig.WithRegion(c.config.S3Region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if c.config.S3Endpoint != "" {
		endpoint := c.config.S3Endpoint
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = &endpoint
		})
	}
	if c.config.S3UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	c.s3 = s3.NewFromConfig(awsCfg, s3Opts...)
	return c.s3, nil
}

// parseS3URI splits s3://bucket/prefix into bucket and prefix.
func parseS3URI(uri string) (bucket, prefix string, err error) {
	rest := strings.TrimPrefix(uri, "s3://")
	if rest == uri || rest == "" {
		return "", "", fmt.Errorf("invalid s3 URI: %s", uri)
	}
	parts := strings.SplitN(rest, "/", 2)
	bucket = parts[0]
	if len(parts) > 1 {
		prefix = parts[1]
	}
	return bucket, prefix, nil
}

// extractIDsFromArtifactURI extracts experiment ID and run ID from an
// mlflow-artifacts URI like mlflow-artifacts:/0/<run_id>/artifacts.
func extractIDsFromArtifactURI(artifactURI string) (string, string, error) {
	parts := strings.Split(strings.TrimPrefix(artifactURI, "mlflow-artifacts:"), "/")
	if parts[0] == "" {
		parts = parts[1:]
	}
	if len(parts) < 3 {
		return "", "", fmt.Errorf("invalid mlflow-artifacts URI format: %s", artifactURI)
	}
	return parts[0], parts[1], nil
}

// addAuthHeaders adds authentication headers for direct REST uploads.
func (c *Client) addAuthHeaders(req *http.Request) {
	if !c.config.IsDatabricks() {
		return
	}
	if c.ws != nil && c.ws.Config != nil && c.ws.Config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.ws.Config.Token)
	} else if c.config.DatabricksToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.DatabricksToken)
	}
}

// openFileWithInfo opens a file and returns the handle with its stat info.
func openFileWithInfo(localPath string) (*os.File, os.FileInfo, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open file: %w", err)
	}

	fileInfo, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, nil, fmt.Errorf("failed to get file info: %w", err)
	}

	return file, fileInfo, nil
}
