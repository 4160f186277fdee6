package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingCleaner struct {
	calls atomic.Int32
	err   error
}

func (c *countingCleaner) CleanupExpired(context.Context) (int64, error) {
	c.calls.Add(1)
	return 2, c.err
}

func TestCleanupWorkerTicks(t *testing.T) {
	cleaner := &countingCleaner{err: errors.New("postgres down")}
	w := NewCleanupWorker(cleaner, 10*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool { return cleaner.calls.Load() >= 2 }, time.Second, 5*time.Millisecond,
		"worker should keep running after a failed pass")
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestCleanupWorkerDisabled(t *testing.T) {
	cleaner := &countingCleaner{}
	w := NewCleanupWorker(cleaner, 0, nil)

	assert.NoError(t, w.Run(context.Background()))
	assert.Zero(t, cleaner.calls.Load())
}
