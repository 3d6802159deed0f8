package tracking

// Well-known MLflow tag keys.
const (
	// TagParentRunID links a child run to its parent. Set on every run;
	// NoParent marks a top-level run.
	TagParentRunID = "mlflow.parentRunId"

	// TagRunName carries the display name of a run.
	TagRunName = "mlflow.runName"
)

// NoParent is the parent-tag value for runs created without a parent.
const NoParent = "-1"
