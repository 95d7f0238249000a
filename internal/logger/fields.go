package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// Tracing fields, carried on the context logger through the call chain.
const (
	// FieldRequestID is the HTTP request ID (UUID)
	FieldRequestID = "request_id"

	// FieldJobID is the queue job ID
	FieldJobID = "job_id"

	// FieldJobKind is the queue job kind (placement, content)
	FieldJobKind = "job_kind"

	// FieldProjectID is the owning project
	FieldProjectID = "project_id"

	// FieldCredentialID is the provider credential in use. Never the secret.
	FieldCredentialID = "credential_id"

	// FieldComponent is the component/module name
	FieldComponent = "component"
)

// Metric fields, set per entry and used for aggregation.
const (
	// FieldDurationMs is the execution duration in milliseconds
	FieldDurationMs = "duration_ms"

	// FieldCount is a generic count field
	FieldCount = "count"

	// FieldAttempt is the job attempt number
	FieldAttempt = "attempt"

	// FieldStatus is the operation status
	FieldStatus = "status"
)
