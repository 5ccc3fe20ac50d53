package fallback

import (
	"errors"
	"fmt"
	"strings"

	"github.com/timmy/producer-tools/internal/domain"
)

// ErrNoStrategies is returned by Run when the strategy list is empty.
var ErrNoStrategies = errors.New("fallback: no extraction strategies configured")

// Classifier lets an error declare its failure class. Classify honours it
// before falling back to message matching.
type Classifier interface {
	FailureClass() domain.FailureClass
}

// Error is a classified fetch failure.
type Error struct {
	Class    domain.FailureClass
	Strategy string
	Attempts int
	Message  string
	Err      error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Class))
	if e.Strategy != "" {
		fmt.Fprintf(&b, " (strategy %s, attempt %d)", e.Strategy, e.Attempts)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// FailureClass implements Classifier.
func (e *Error) FailureClass() domain.FailureClass {
	return e.Class
}

// Hint returns the user-facing explanation for the failure class.
func (e *Error) Hint() string {
	return e.Class.Hint()
}

// JobError converts the failure into the job's error description.
func (e *Error) JobError() domain.JobError {
	return domain.JobError{Class: e.Class, Message: e.Message, Hint: e.Hint()}
}

// NewError wraps err with an explicit class.
func NewError(class domain.FailureClass, err error) *Error {
	e := &Error{Class: class, Err: err}
	if err != nil {
		e.Message = err.Error()
	}
	return e
}

// InvalidInput builds a non-retriable failure from a message.
func InvalidInput(format string, args ...interface{}) *Error {
	return NewError(domain.FailureInvalidInput, fmt.Errorf(format, args...))
}

type rule struct {
	class    domain.FailureClass
	patterns []string
}

// rules are checked in order; the first match wins. yt-dlp appends cookie
// advice to private-video errors, so the specific NotFound phrases go first.
var rules = []rule{
	{domain.FailureExtractionFailed, []string{"requested format is not available"}},
	{domain.FailureNotFound, []string{
		"private video", "video unavailable", "has been removed",
		"http error 404", "does not exist",
	}},
	{domain.FailureAccessDenied, []string{
		"sign in to confirm", "not a bot", "http error 403", "forbidden",
		"login required", "use --cookies", "http error 429", "too many requests",
	}},
	{domain.FailureNotFound, []string{"not available"}},
	{domain.FailureInvalidInput, []string{
		"playlist", "unsupported url", "invalid url", "is not a valid url",
		"no video formats",
	}},
	{domain.FailureExtractionFailed, []string{
		"unable to extract", "nsig", "signature", "sabr", "fragment",
		"timed out", "connection reset",
	}},
}

// Classify maps err to a failure class. Errors implementing Classifier keep
// their declared class; anything else is matched against known messages.
func Classify(err error) domain.FailureClass {
	if err == nil {
		return ""
	}
	var c Classifier
	if errors.As(err, &c) {
		if class := c.FailureClass(); class != "" {
			return class
		}
	}
	return ClassifyMessage(err.Error())
}

// ClassifyMessage matches raw tool output against the rule table.
func ClassifyMessage(msg string) domain.FailureClass {
	lower := strings.ToLower(msg)
	for _, r := range rules {
		for _, p := range r.patterns {
			if strings.Contains(lower, p) {
				return r.class
			}
		}
	}
	return domain.FailureUnknown
}
