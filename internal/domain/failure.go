package domain

// FailureClass is the closed classification of conversion failures.
type FailureClass string

const (
	// FailureAccessDenied covers authentication walls and bot detection.
	FailureAccessDenied FailureClass = "access_denied"
	// FailureExtractionFailed covers transient parsing or protocol failures.
	FailureExtractionFailed FailureClass = "extraction_failed"
	// FailureInvalidInput covers malformed, unsupported or multi-item input.
	FailureInvalidInput FailureClass = "invalid_input"
	// FailureNotFound covers absent, removed or private resources.
	FailureNotFound FailureClass = "not_found"
	// FailureUnknown is the catch-all when no classifier matches.
	FailureUnknown FailureClass = "unknown"
	// FailureTranscode is raised by the transcoding stage.
	FailureTranscode FailureClass = "transcode_error"
)

// Hint returns a short actionable message for end users.
func (c FailureClass) Hint() string {
	switch c {
	case FailureAccessDenied:
		return "The source is blocking automated requests. Please try again later."
	case FailureExtractionFailed:
		return "The media could not be extracted. Please try again."
	case FailureInvalidInput:
		return "The URL is not supported. Use a link to a single video."
	case FailureNotFound:
		return "The requested media could not be found. Check that the link is correct and public."
	case FailureTranscode:
		return "The audio could not be converted to the requested format."
	default:
		return "Something went wrong during conversion."
	}
}
