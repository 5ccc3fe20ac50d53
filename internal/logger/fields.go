package logger

// Fields is a set of structured log fields.
type Fields map[string]interface{}

// Context fields, carried through a request or a job.
const (
	FieldRequestID = "request_id"
	FieldJobID     = "job_id"
	FieldComponent = "component"
	FieldStage     = "stage"
	FieldStrategy  = "strategy"
	FieldFormat    = "format"
)

// Metric fields, attached to one line through Entry.
const (
	FieldDurationMs = "duration_ms"
	FieldCount      = "count"
	FieldSize       = "size"
	FieldStatus     = "status"
	FieldAttempt    = "attempt"
)
