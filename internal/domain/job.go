package domain

import (
	"errors"
	"fmt"
	"time"
)

// JobState represents the lifecycle state of a conversion job.
// States advance strictly in declaration order; StateFailed is reachable from
// any non-terminal state.
type JobState string

const (
	StatePending     JobState = "pending"
	StateFetching    JobState = "fetching"
	StateTranscoding JobState = "transcoding"
	StateAnalyzing   JobState = "analyzing"
	StateFinalizing  JobState = "finalizing"
	StateCompleted   JobState = "completed"
	StateFailed      JobState = "failed"
)

// stateOrder is the forward path a successful job walks through.
var stateOrder = map[JobState]int{
	StatePending:     0,
	StateFetching:    1,
	StateTranscoding: 2,
	StateAnalyzing:   3,
	StateFinalizing:  4,
	StateCompleted:   5,
}

// Progress checkpoints published at stage boundaries.
const (
	ProgressPending        = 0
	ProgressFetchStart     = 10
	ProgressFetchRunning   = 20
	ProgressFetchDone      = 40
	ProgressTranscodeStart = 50
	ProgressTranscodeDone  = 60
	ProgressAnalyzeStart   = 70
	ProgressAnalyzeDone    = 85
	ProgressFinalizeStart  = 90
	ProgressCompleted      = 100
)

var (
	ErrIllegalTransition  = errors.New("illegal job state transition")
	ErrProgressRegression = errors.New("job progress cannot decrease")
	ErrJobTerminal        = errors.New("job is in a terminal state")
	ErrMissingResult      = errors.New("completed job requires a result")
	ErrMissingError       = errors.New("failed job requires an error")
)

// IsTerminal reports whether no further transitions are permitted.
func (s JobState) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed
}

// IsValid reports whether s is a known state.
func (s JobState) IsValid() bool {
	if s == StateFailed {
		return true
	}
	_, ok := stateOrder[s]
	return ok
}

// CanTransition reports whether a job in state s may move to next.
func (s JobState) CanTransition(next JobState) bool {
	if s.IsTerminal() {
		return false
	}
	if next == StateFailed {
		return true
	}
	from, ok := stateOrder[s]
	if !ok {
		return false
	}
	to, ok := stateOrder[next]
	if !ok {
		return false
	}
	return to == from+1
}

// JobError is the structured failure description of a failed job.
type JobError struct {
	Class   FailureClass `json:"class"`
	Message string       `json:"message"`
	Hint    string       `json:"hint,omitempty"`
}

// Job is an immutable snapshot of a conversion job.
// Mutating methods return a new value and never touch the receiver, so a
// snapshot handed to a reader stays stable.
type Job struct {
	ID        string      `json:"id"`
	SourceURL string      `json:"source_url"`
	Format    AudioFormat `json:"format"`
	State     JobState    `json:"status"`
	Progress  int         `json:"progress"`
	Message   string      `json:"message"`
	Result    string      `json:"file,omitempty"`
	Error     *JobError   `json:"error,omitempty"`
	Title     string      `json:"title,omitempty"`
	Tempo     *int        `json:"bpm,omitempty"`
	Key       *string     `json:"key,omitempty"`
	PublicURL string      `json:"public_url,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// NewJob creates a pending job.
func NewJob(id, sourceURL string, format AudioFormat, now time.Time) Job {
	return Job{
		ID:        id,
		SourceURL: sourceURL,
		Format:    format,
		State:     StatePending,
		Progress:  ProgressPending,
		Message:   "Initializing conversion...",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Advance moves the job to the next state in the forward path.
func (j Job) Advance(next JobState, progress int, message string, now time.Time) (Job, error) {
	if next == StateCompleted {
		return j, fmt.Errorf("%w: use Complete to finish a job", ErrIllegalTransition)
	}
	if next == StateFailed {
		return j, fmt.Errorf("%w: use Fail to fail a job", ErrIllegalTransition)
	}
	if !j.State.CanTransition(next) {
		return j, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, j.State, next)
	}
	if err := j.checkProgress(progress); err != nil {
		return j, err
	}
	j.State = next
	j.Progress = progress
	j.Message = message
	j.UpdatedAt = now
	return j, nil
}

// Report updates progress and message without changing state.
func (j Job) Report(progress int, message string, now time.Time) (Job, error) {
	if j.State.IsTerminal() {
		return j, ErrJobTerminal
	}
	if err := j.checkProgress(progress); err != nil {
		return j, err
	}
	j.Progress = progress
	j.Message = message
	j.UpdatedAt = now
	return j, nil
}

// Annotate records descriptive metadata gathered while the job runs.
func (j Job) Annotate(title string, tempo *int, key *string, now time.Time) (Job, error) {
	if j.State.IsTerminal() {
		return j, ErrJobTerminal
	}
	if title != "" {
		j.Title = title
	}
	if tempo != nil {
		v := *tempo
		j.Tempo = &v
	}
	if key != nil {
		v := *key
		j.Key = &v
	}
	j.UpdatedAt = now
	return j, nil
}

// WithPublicURL records where the finished artifact was published.
func (j Job) WithPublicURL(url string, now time.Time) (Job, error) {
	if j.State.IsTerminal() {
		return j, ErrJobTerminal
	}
	j.PublicURL = url
	j.UpdatedAt = now
	return j, nil
}

// Complete finishes a finalizing job with the artifact location.
func (j Job) Complete(result, message string, now time.Time) (Job, error) {
	if !j.State.CanTransition(StateCompleted) {
		return j, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, j.State, StateCompleted)
	}
	if result == "" {
		return j, ErrMissingResult
	}
	j.State = StateCompleted
	j.Progress = ProgressCompleted
	j.Message = message
	j.Result = result
	j.Error = nil
	j.UpdatedAt = now
	return j, nil
}

// Fail moves a non-terminal job to StateFailed. Progress is kept as-is.
func (j Job) Fail(jobErr JobError, message string, now time.Time) (Job, error) {
	if j.State.IsTerminal() {
		return j, fmt.Errorf("%w: %s -> %s", ErrJobTerminal, j.State, StateFailed)
	}
	if jobErr.Class == "" {
		jobErr.Class = FailureUnknown
	}
	e := jobErr
	j.State = StateFailed
	j.Message = message
	j.Result = ""
	j.Error = &e
	j.PublicURL = ""
	j.UpdatedAt = now
	return j, nil
}

// Validate checks the result/error exclusivity invariant.
func (j Job) Validate() error {
	if !j.State.IsValid() {
		return fmt.Errorf("unknown job state %q", j.State)
	}
	if j.Progress < 0 || j.Progress > ProgressCompleted {
		return fmt.Errorf("job progress %d out of range", j.Progress)
	}
	switch j.State {
	case StateCompleted:
		if j.Result == "" {
			return ErrMissingResult
		}
		if j.Error != nil {
			return errors.New("completed job must not carry an error")
		}
	case StateFailed:
		if j.Error == nil {
			return ErrMissingError
		}
		if j.Result != "" {
			return errors.New("failed job must not carry a result")
		}
	default:
		if j.Result != "" || j.Error != nil {
			return errors.New("non-terminal job must not carry a result or error")
		}
	}
	return nil
}

func (j Job) checkProgress(progress int) error {
	if progress < j.Progress {
		return fmt.Errorf("%w: %d -> %d", ErrProgressRegression, j.Progress, progress)
	}
	if progress > ProgressCompleted {
		return fmt.Errorf("job progress %d out of range", progress)
	}
	return nil
}
