package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSweeper struct {
	calls     int
	retention time.Duration
	err       error
}

func (f *fakeSweeper) Sweep(ctx context.Context, retention time.Duration) (int64, error) {
	f.calls++
	f.retention = retention
	if _, ok := ctx.Deadline(); !ok {
		return 0, errors.New("sweep called without deadline")
	}
	return 3, f.err
}

func TestSweepInboxUsesRetention(t *testing.T) {
	f := &fakeSweeper{}
	s := NewScheduler(f, 30*24*time.Hour)

	s.sweepInbox()

	assert.Equal(t, 1, f.calls)
	assert.Equal(t, 30*24*time.Hour, f.retention)
}

func TestSweepInboxErrorIsLogged(t *testing.T) {
	f := &fakeSweeper{err: errors.New("mongo down")}
	s := NewScheduler(f, time.Hour)

	assert.NotPanics(t, s.sweepInbox)
	assert.Equal(t, 1, f.calls)
}

func TestStartRejectsBadSpec(t *testing.T) {
	s := NewScheduler(&fakeSweeper{}, time.Hour)
	s.Spec = "every tuesday"

	assert.Error(t, s.Start())
}

func TestStartStop(t *testing.T) {
	s := NewScheduler(&fakeSweeper{}, time.Hour)

	require.NoError(t, s.Start())
	s.Stop()
}
