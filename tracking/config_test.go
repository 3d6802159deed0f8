package tracking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfig_Validate(t *testing.T) {
	assert.Error(t, (&Config{}).Validate())
	assert.NoError(t, (&Config{TrackingURI: "http://localhost:5000"}).Validate())
}

func TestConfig_IsDatabricks(t *testing.T) {
	tests := []struct {
		uri  string
		want bool
	}{
		{"databricks", true},
		{"databricks://prod", true},
		{"https://dbc-abc123.cloud.databricks.com", true},
		{"https://adb-1234.11.azuredatabricks.net/?o=1234", true},
		{"https://workspace.gcp.databricks.com", true},
		{"http://localhost:5000", false},
		{"https://mlflow.internal.example.com", false},
		{"file:///tmp/mlruns", false},
	}

	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			c := &Config{TrackingURI: tt.uri}
			assert.Equal(t, tt.want, c.IsDatabricks())
		})
	}
}

func TestConfig_DatabricksProfile(t *testing.T) {
	tests := []struct {
		uri  string
		want string
	}{
		{"databricks://prod", "prod"},
		{"databricks://prod/extra", "prod"},
		{"databricks", ""},
		{"http://localhost:5000", ""},
	}

	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			c := &Config{TrackingURI: tt.uri}
			assert.Equal(t, tt.want, c.DatabricksProfile())
		})
	}
}
