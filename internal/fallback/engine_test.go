package fallback

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timmy/producer-tools/internal/domain"
)

// recordingSleeper records waits without blocking.
type recordingSleeper struct {
	waits []time.Duration
}

func (r *recordingSleeper) sleep(ctx context.Context, d time.Duration) error {
	r.waits = append(r.waits, d)
	return ctx.Err()
}

func strategies(names ...string) []domain.ExtractionStrategy {
	out := make([]domain.ExtractionStrategy, len(names))
	for i, n := range names {
		out[i] = domain.ExtractionStrategy{Name: n, Client: n}
	}
	return out
}

func TestRun_SucceedsOnKthStrategy(t *testing.T) {
	rec := &recordingSleeper{}
	engine := NewEngine(time.Second, WithSleeper(rec.sleep))

	var tried []string
	res, err := Run(context.Background(), engine, strategies("android", "ios", "web", "tv"),
		func(_ context.Context, s domain.ExtractionStrategy) (string, error) {
			tried = append(tried, s.Name)
			if s.Name != "web" {
				return "", errors.New("ERROR: Sign in to confirm you're not a bot")
			}
			return "/tmp/media.webm", nil
		})

	require.NoError(t, err)
	assert.Equal(t, "/tmp/media.webm", res.Value)
	assert.Equal(t, "web", res.Strategy.Name)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, []string{"android", "ios", "web"}, tried)
	assert.Equal(t, []time.Duration{time.Second, time.Second}, rec.waits)
}

func TestRun_NoDelayBeforeFirstAttempt(t *testing.T) {
	rec := &recordingSleeper{}
	engine := NewEngine(time.Second, WithSleeper(rec.sleep))

	res, err := Run(context.Background(), engine, strategies("android"),
		func(context.Context, domain.ExtractionStrategy) (int, error) { return 7, nil })

	require.NoError(t, err)
	assert.Equal(t, 7, res.Value)
	assert.Equal(t, 1, res.Attempts)
	assert.Empty(t, rec.waits)
}

func TestRun_AbortsOnInvalidInput(t *testing.T) {
	engine := NewEngine(0)
	calls := 0

	_, err := Run(context.Background(), engine, strategies("android", "ios", "web"),
		func(context.Context, domain.ExtractionStrategy) (string, error) {
			calls++
			return "", InvalidInput("url points to a playlist with 12 entries")
		})

	require.Error(t, err)
	assert.Equal(t, 1, calls)

	var fe *Error
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, domain.FailureInvalidInput, fe.Class)
	assert.Equal(t, "android", fe.Strategy)
	assert.Equal(t, 1, fe.Attempts)
	assert.Equal(t, "url points to a playlist with 12 entries", fe.Message)
}

func TestRun_AbortsOnNotFound(t *testing.T) {
	calls := 0
	_, err := Run(context.Background(), NewEngine(0), strategies("a", "b"),
		func(context.Context, domain.ExtractionStrategy) (string, error) {
			calls++
			return "", errors.New("ERROR: [youtube] abc: Video unavailable")
		})

	assert.Equal(t, 1, calls)
	assert.Equal(t, domain.FailureNotFound, Classify(err))
}

func TestRun_ExhaustedSurfacesLastFailure(t *testing.T) {
	msgs := map[string]string{
		"android": "HTTP Error 403: Forbidden",
		"ios":     "Unable to extract nsig function",
	}

	_, err := Run(context.Background(), NewEngine(0), strategies("android", "ios"),
		func(_ context.Context, s domain.ExtractionStrategy) (string, error) {
			return "", errors.New(msgs[s.Name])
		})

	var fe *Error
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, domain.FailureExtractionFailed, fe.Class)
	assert.Equal(t, "ios", fe.Strategy)
	assert.Equal(t, 2, fe.Attempts)
	assert.Equal(t, "Unable to extract nsig function", fe.Message)
	assert.NotEmpty(t, fe.Hint())
}

func TestRun_EmptyStrategies(t *testing.T) {
	_, err := Run(context.Background(), NewEngine(0), nil,
		func(context.Context, domain.ExtractionStrategy) (string, error) { return "", nil })
	assert.ErrorIs(t, err, ErrNoStrategies)
}

func TestRun_CancelledBetweenAttempts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	_, err := Run(ctx, NewEngine(time.Hour), strategies("a", "b"),
		func(context.Context, domain.ExtractionStrategy) (string, error) {
			calls++
			cancel()
			return "", errors.New("connection reset by peer")
		})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		msg  string
		want domain.FailureClass
	}{
		{"Sign in to confirm you’re not a bot", domain.FailureAccessDenied},
		{"HTTP Error 429: Too Many Requests", domain.FailureAccessDenied},
		{"Private video. Sign in if you've been granted access", domain.FailureNotFound},
		{"This video has been removed by the uploader", domain.FailureNotFound},
		{"Unsupported URL: https://example.com", domain.FailureInvalidInput},
		{"Requested format is not available", domain.FailureExtractionFailed},
		{"Read timed out", domain.FailureExtractionFailed},
		{"something odd happened", domain.FailureUnknown},
		{"ERROR: [youtube] dQw4w9WgXcQ: Private video. Sign in if you've been granted access to this video. " +
			"Use --cookies-from-browser or --cookies for the authentication.", domain.FailureNotFound},
		{"ERROR: [youtube] dQw4w9WgXcQ: Sign in to confirm you’re not a bot. " +
			"Use --cookies-from-browser or --cookies for the authentication.", domain.FailureAccessDenied},
		{"ERROR: [youtube] dQw4w9WgXcQ: Video unavailable. This video is no longer available " +
			"because the YouTube account associated with this video has been terminated.", domain.FailureNotFound},
		{"ERROR: unable to download video data: HTTP Error 429: Too Many Requests", domain.FailureAccessDenied},
		{"ERROR: [youtube] dQw4w9WgXcQ: This video is not available", domain.FailureNotFound},
		{"ERROR: [youtube] dQw4w9WgXcQ: Requested format is not available. " +
			"Use --list-formats for a list of available formats", domain.FailureExtractionFailed},
		{"ERROR: unable to write data: [Errno 28] No space left on device: " +
			"'/data/work/8c1e4291-aa/media-dQw4w9WgXcQ.webm.part'", domain.FailureUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(errors.New(tt.msg)))
		})
	}
}

type declared struct{}

func (declared) Error() string                     { return "forbidden but declared" }
func (declared) FailureClass() domain.FailureClass { return domain.FailureNotFound }

func TestClassify_DeclaredClassWins(t *testing.T) {
	assert.Equal(t, domain.FailureNotFound, Classify(declared{}))
	assert.Equal(t, domain.FailureInvalidInput, Classify(NewError(domain.FailureInvalidInput, errors.New("403"))))
	assert.Equal(t, domain.FailureClass(""), Classify(nil))
}

func TestDecide(t *testing.T) {
	assert.Equal(t, Continue, Decide(domain.FailureAccessDenied))
	assert.Equal(t, Continue, Decide(domain.FailureExtractionFailed))
	assert.Equal(t, Continue, Decide(domain.FailureUnknown))
	assert.Equal(t, Abort, Decide(domain.FailureInvalidInput))
	assert.Equal(t, Abort, Decide(domain.FailureNotFound))
}
