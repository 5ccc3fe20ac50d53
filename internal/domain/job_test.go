package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func TestJobState_CanTransition(t *testing.T) {
	tests := []struct {
		from JobState
		to   JobState
		want bool
	}{
		{StatePending, StateFetching, true},
		{StateFetching, StateTranscoding, true},
		{StateTranscoding, StateAnalyzing, true},
		{StateAnalyzing, StateFinalizing, true},
		{StateFinalizing, StateCompleted, true},
		{StatePending, StateTranscoding, false},
		{StateAnalyzing, StateFetching, false},
		{StateFetching, StateFetching, false},
		{StatePending, StateFailed, true},
		{StateFinalizing, StateFailed, true},
		{StateCompleted, StateFailed, false},
		{StateFailed, StateFetching, false},
		{StateCompleted, StateCompleted, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransition(tt.to))
		})
	}
}

func walkToFinalizing(t *testing.T) Job {
	t.Helper()
	j := NewJob("job-1", "https://youtu.be/dQw4w9WgXcQ", FormatMP3, testNow)
	var err error
	j, err = j.Advance(StateFetching, ProgressFetchStart, "fetching", testNow)
	require.NoError(t, err)
	j, err = j.Advance(StateTranscoding, ProgressTranscodeStart, "transcoding", testNow)
	require.NoError(t, err)
	j, err = j.Advance(StateAnalyzing, ProgressAnalyzeStart, "analyzing", testNow)
	require.NoError(t, err)
	j, err = j.Advance(StateFinalizing, ProgressFinalizeStart, "finalizing", testNow)
	require.NoError(t, err)
	return j
}

func TestJob_HappyPath(t *testing.T) {
	j := walkToFinalizing(t)

	done, err := j.Complete("/tmp/out.mp3", "Ready for download", testNow)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, done.State)
	assert.Equal(t, ProgressCompleted, done.Progress)
	assert.Equal(t, "/tmp/out.mp3", done.Result)
	assert.Nil(t, done.Error)
	assert.NoError(t, done.Validate())

	// receiver untouched
	assert.Equal(t, StateFinalizing, j.State)
	assert.Empty(t, j.Result)
}

func TestJob_AdvanceRejectsSkipsAndBackwards(t *testing.T) {
	j := NewJob("job-1", "u", FormatMP3, testNow)

	_, err := j.Advance(StateTranscoding, 50, "skip", testNow)
	assert.ErrorIs(t, err, ErrIllegalTransition)

	j, err = j.Advance(StateFetching, 10, "fetch", testNow)
	require.NoError(t, err)

	_, err = j.Advance(StatePending, 10, "back", testNow)
	assert.ErrorIs(t, err, ErrIllegalTransition)

	_, err = j.Advance(StateCompleted, 100, "done", testNow)
	assert.ErrorIs(t, err, ErrIllegalTransition)
}

func TestJob_ProgressNeverDecreases(t *testing.T) {
	j := NewJob("job-1", "u", FormatMP3, testNow)
	j, err := j.Advance(StateFetching, 20, "fetch", testNow)
	require.NoError(t, err)

	_, err = j.Report(10, "lower", testNow)
	assert.ErrorIs(t, err, ErrProgressRegression)

	_, err = j.Advance(StateTranscoding, 15, "lower", testNow)
	assert.ErrorIs(t, err, ErrProgressRegression)

	_, err = j.Report(101, "too high", testNow)
	assert.Error(t, err)

	j, err = j.Report(20, "same is fine", testNow)
	require.NoError(t, err)
	assert.Equal(t, "same is fine", j.Message)
}

func TestJob_FailKeepsProgressAndClearsResult(t *testing.T) {
	j := NewJob("job-1", "u", FormatMP3, testNow)
	j, err := j.Advance(StateFetching, 40, "fetch", testNow)
	require.NoError(t, err)

	failed, err := j.Fail(JobError{Class: FailureAccessDenied, Message: "blocked"}, "Error during conversion", testNow)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, failed.State)
	assert.Equal(t, 40, failed.Progress)
	require.NotNil(t, failed.Error)
	assert.Equal(t, FailureAccessDenied, failed.Error.Class)
	assert.Empty(t, failed.Result)
	assert.NoError(t, failed.Validate())
}

func TestJob_FailDefaultsClass(t *testing.T) {
	j := NewJob("job-1", "u", FormatMP3, testNow)
	failed, err := j.Fail(JobError{Message: "boom"}, "Error", testNow)
	require.NoError(t, err)
	assert.Equal(t, FailureUnknown, failed.Error.Class)
}

func TestJob_TerminalIsFrozen(t *testing.T) {
	done, err := walkToFinalizing(t).Complete("/tmp/out.mp3", "ok", testNow)
	require.NoError(t, err)

	_, err = done.Fail(JobError{Class: FailureUnknown, Message: "late"}, "late", testNow)
	assert.True(t, errors.Is(err, ErrJobTerminal))

	_, err = done.Report(100, "again", testNow)
	assert.ErrorIs(t, err, ErrJobTerminal)

	_, err = done.Annotate("x", nil, nil, testNow)
	assert.ErrorIs(t, err, ErrJobTerminal)

	_, err = done.Complete("/tmp/other.mp3", "again", testNow)
	assert.ErrorIs(t, err, ErrIllegalTransition)
}

func TestJob_CompleteRequiresResult(t *testing.T) {
	_, err := walkToFinalizing(t).Complete("", "ok", testNow)
	assert.ErrorIs(t, err, ErrMissingResult)
}

func TestJob_AnnotateCopiesValues(t *testing.T) {
	tempo := 128
	key := "C Minor"
	j := NewJob("job-1", "u", FormatMP3, testNow)

	j, err := j.Annotate("Song", &tempo, &key, testNow)
	require.NoError(t, err)
	tempo = 1
	key = "changed"

	assert.Equal(t, "Song", j.Title)
	require.NotNil(t, j.Tempo)
	assert.Equal(t, 128, *j.Tempo)
	require.NotNil(t, j.Key)
	assert.Equal(t, "C Minor", *j.Key)
}

func TestJob_Validate(t *testing.T) {
	pending := NewJob("job-1", "u", FormatMP3, testNow)
	assert.NoError(t, pending.Validate())

	bad := pending
	bad.Result = "/tmp/x"
	assert.Error(t, bad.Validate())

	completedNoResult := pending
	completedNoResult.State = StateCompleted
	assert.ErrorIs(t, completedNoResult.Validate(), ErrMissingResult)

	failedNoError := pending
	failedNoError.State = StateFailed
	assert.ErrorIs(t, failedNoError.Validate(), ErrMissingError)

	unknown := pending
	unknown.State = "bogus"
	assert.Error(t, unknown.Validate())
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat(" MP3 ")
	require.NoError(t, err)
	assert.Equal(t, FormatMP3, f)

	for _, name := range []string{"wav", "flac", "ogg", "m4a", "opus"} {
		_, err := ParseFormat(name)
		assert.NoError(t, err, name)
	}

	_, err = ParseFormat("aac")
	assert.Error(t, err)
}

func TestParseStrategies(t *testing.T) {
	got, err := ParseStrategies([]string{"android", "desktop=web", " "})
	require.NoError(t, err)
	assert.Equal(t, []ExtractionStrategy{
		{Name: "android", Client: "android"},
		{Name: "desktop", Client: "web"},
	}, got)

	_, err = ParseStrategies([]string{"web", "web"})
	assert.Error(t, err)

	_, err = ParseStrategies(nil)
	assert.Error(t, err)

	_, err = ParseStrategies([]string{"=web"})
	assert.Error(t, err)
}

func TestRecordFromJob(t *testing.T) {
	j := NewJob("job-1", "u", FormatFLAC, testNow)
	j, err := j.Fail(JobError{Class: FailureNotFound, Message: "gone"}, "Error", testNow.Add(time.Minute))
	require.NoError(t, err)

	rec := RecordFromJob(j)
	assert.Equal(t, "job-1", rec.ID)
	assert.Equal(t, StateFailed, rec.State)
	assert.Equal(t, FailureNotFound, rec.ErrorClass)
	assert.Equal(t, "gone", rec.ErrorMessage)
	assert.Equal(t, testNow.Add(time.Minute), rec.FinishedAt)
}
