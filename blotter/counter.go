// Package blotter mints sequential case ("blotter") numbers from a per-month
// counter document.
package blotter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/linesmerrill/police-blotter-api/models"
)

// DefaultMaxAttempts caps the optimistic transaction loop
const DefaultMaxAttempts = 5

// Store is the persistence port for counter documents. Swap must be an atomic
// compare-and-set: it writes next only when the stored document still equals
// prev (prev == nil meaning "absent") and reports false when it lost the race.
type Store interface {
	Load(ctx context.Context, periodKey string) (*models.SequenceCounter, error)
	Swap(ctx context.Context, prev *models.SequenceCounter, next models.SequenceCounter) (bool, error)
}

// Counter issues numbers strictly increasing by one per period
type Counter struct {
	Store       Store
	MaxAttempts int
	// InitialBackoff is the first retry delay. Later delays grow exponentially
	// with randomized jitter.
	InitialBackoff time.Duration
	Location       *time.Location
	Now            func() time.Time
	Logger         *zap.SugaredLogger
}

// NewCounter returns a Counter with default retry settings
func NewCounter(store Store) *Counter {
	return &Counter{
		Store:          store,
		MaxAttempts:    DefaultMaxAttempts,
		InitialBackoff: 20 * time.Millisecond,
		Location:       time.UTC,
		Now:            time.Now,
	}
}

var errLostRace = errors.New("counter changed during transaction")

// CurrentPeriod returns the period key for the counter's clock
func (c *Counter) CurrentPeriod() string {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	loc := c.Location
	if loc == nil {
		loc = time.UTC
	}
	return PeriodKey(now().In(loc))
}

// Next issues the next number for the current period
func (c *Counter) Next(ctx context.Context) (string, error) {
	return c.NextNumber(ctx, c.CurrentPeriod())
}

// NextNumber atomically increments the counter for periodKey and returns the
// formatted blotter number. Lost races are retried with jittered backoff up to
// MaxAttempts, after which models.ErrCounterContention is returned.
func (c *Counter) NextNumber(ctx context.Context, periodKey string) (string, error) {
	year, month, err := ParsePeriodKey(periodKey)
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrInvalidField, err)
	}

	var issued int64
	attempt := 0
	op := func() error {
		attempt++
		prev, err := c.Store.Load(ctx, periodKey)
		if err != nil {
			return backoff.Permanent(err)
		}

		var last int64
		// a record left over from another period restarts the sequence
		if prev != nil && prev.Year == year && prev.Month == month {
			last = prev.LastNumber
		}
		if last >= MaxNumber {
			return backoff.Permanent(fmt.Errorf("%w: %s", models.ErrSequenceExhausted, periodKey))
		}

		next := models.SequenceCounter{
			PeriodKey:  periodKey,
			Year:       year,
			Month:      month,
			LastNumber: last + 1,
			UpdatedAt:  c.now(),
		}
		ok, err := c.Store.Swap(ctx, prev, next)
		if err != nil {
			return backoff.Permanent(err)
		}
		if !ok {
			return errLostRace
		}
		issued = next.LastNumber
		return nil
	}

	err = backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(c.backoff(), uint64(c.maxAttempts()-1)), ctx))
	if err != nil {
		switch {
		case errors.Is(err, errLostRace):
			c.logger().Warnw("blotter counter exhausted retries",
				"period", periodKey,
				"attempts", attempt)
			return "", fmt.Errorf("%w: period %s after %d attempts", models.ErrCounterContention, periodKey, attempt)
		case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
			return "", fmt.Errorf("%w: issuing number for %s: %v", models.ErrTimeout, periodKey, err)
		}
		return "", err
	}
	return Format(year, month, issued), nil
}

// Release hands number back to its period when it is still the last one
// issued, so a report write that definitely failed leaves no gap. Once a later
// number exists it returns models.ErrConflict and the counter is left alone.
func (c *Counter) Release(ctx context.Context, number string) error {
	year, month, n, ok := Parse(number)
	if !ok {
		return fmt.Errorf("%w: blotter number %q", models.ErrInvalidField, number)
	}
	periodKey := PeriodKey(time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC))

	prev, err := c.Store.Load(ctx, periodKey)
	if err != nil {
		return err
	}
	if prev == nil || prev.Year != year || prev.Month != month || prev.LastNumber != n {
		return fmt.Errorf("%w: %s is no longer the latest number", models.ErrConflict, number)
	}

	next := *prev
	next.LastNumber = n - 1
	next.UpdatedAt = c.now()
	swapped, err := c.Store.Swap(ctx, prev, next)
	if err != nil {
		return err
	}
	if !swapped {
		return fmt.Errorf("%w: %s was superseded", models.ErrConflict, number)
	}
	c.logger().Infow("blotter number released", "number", number)
	return nil
}

func (c *Counter) backoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	if c.InitialBackoff > 0 {
		b.InitialInterval = c.InitialBackoff
	}
	b.MaxInterval = 32 * b.InitialInterval
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

func (c *Counter) maxAttempts() int {
	if c.MaxAttempts < 1 {
		return DefaultMaxAttempts
	}
	return c.MaxAttempts
}

func (c *Counter) now() time.Time {
	if c.Now != nil {
		return c.Now().UTC()
	}
	return time.Now().UTC()
}

func (c *Counter) logger() *zap.SugaredLogger {
	if c.Logger != nil {
		return c.Logger
	}
	return zap.S()
}
