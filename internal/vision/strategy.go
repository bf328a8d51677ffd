package vision

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/defibabylon/collectorsage/internal/identity"
	"github.com/defibabylon/collectorsage/internal/logging"
)

// FallbackError reports that both extraction strategies were exhausted.
// Both underlying causes travel with it.
type FallbackError struct {
	Primary   error
	Secondary error
}

func (e *FallbackError) Error() string {
	return fmt.Sprintf("extraction failed: primary: %v; secondary: %v", e.Primary, e.Secondary)
}

func (e *FallbackError) Unwrap() []error {
	return []error{e.Primary, e.Secondary}
}

// errUnknownIdentity marks a syntactically valid extraction with no
// usable title. It triggers fallback like a hard failure.
var errUnknownIdentity = errors.New("extractor returned an unknown title")

// BackoffFunc returns the pause before the given retry attempt
// (1-based).
type BackoffFunc func(attempt int) time.Duration

// ConstantBackoff waits the same duration between every attempt.
func ConstantBackoff(d time.Duration) BackoffFunc {
	return func(int) time.Duration { return d }
}

// Strategy runs a fast extractor with bounded retries, then falls back
// to a thorough one. Backoff is injected so tests never sleep.
type Strategy struct {
	fast     Extractor
	thorough Extractor
	attempts int
	backoff  BackoffFunc
	sleep    func(ctx context.Context, d time.Duration) error
}

// StrategyOption customizes a Strategy.
type StrategyOption func(*Strategy)

// WithAttempts sets how many times each extractor is tried.
func WithAttempts(n int) StrategyOption {
	return func(s *Strategy) {
		if n > 0 {
			s.attempts = n
		}
	}
}

// WithBackoff sets the pause policy between retry attempts.
func WithBackoff(b BackoffFunc) StrategyOption {
	return func(s *Strategy) {
		if b != nil {
			s.backoff = b
		}
	}
}

// NewStrategy builds the fast-then-thorough extraction strategy.
func NewStrategy(fast, thorough Extractor, opts ...StrategyOption) *Strategy {
	s := &Strategy{
		fast:     fast,
		thorough: thorough,
		attempts: 2,
		backoff:  ConstantBackoff(time.Second),
		sleep:    sleepCtx,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Extract tries the fast extractor first. A failure or an unknown-title
// result falls through to the thorough extractor. When both are
// exhausted the returned error carries both causes.
func (s *Strategy) Extract(ctx context.Context, imageJPEG []byte) (identity.ComicIdentity, error) {
	id, primaryErr := s.attempt(ctx, s.fast, imageJPEG)
	if primaryErr == nil {
		return id, nil
	}
	logging.Vision("falling back to %s: %v", s.thorough.Name(), primaryErr)

	id, secondaryErr := s.attempt(ctx, s.thorough, imageJPEG)
	if secondaryErr == nil {
		return id, nil
	}
	return identity.ComicIdentity{}, &FallbackError{Primary: primaryErr, Secondary: secondaryErr}
}

func (s *Strategy) attempt(ctx context.Context, e Extractor, imageJPEG []byte) (identity.ComicIdentity, error) {
	var lastErr error
	for attempt := 1; attempt <= s.attempts; attempt++ {
		if attempt > 1 {
			if err := s.sleep(ctx, s.backoff(attempt)); err != nil {
				return identity.ComicIdentity{}, err
			}
		}

		id, err := e.Extract(ctx, imageJPEG)
		if err == nil && !id.IsUnknown() {
			return id, nil
		}
		if err == nil {
			err = errUnknownIdentity
		}
		lastErr = err
		logging.VisionDebug("%s attempt %d/%d failed: %v", e.Name(), attempt, s.attempts, err)
	}
	return identity.ComicIdentity{}, lastErr
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
