package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// Standard tracing fields propagated through the call chain.
const (
	// FieldRequestID is the HTTP request ID (UUID).
	FieldRequestID = "request_id"

	// FieldJobID is the ingest job ID.
	FieldJobID = "job_id"

	// FieldComponent is the component/module name.
	FieldComponent = "component"

	// FieldArchive is the archive filename being expanded.
	FieldArchive = "archive"

	// FieldDocument is the document path being extracted.
	FieldDocument = "document"
)
