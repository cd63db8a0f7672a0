package sweep

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eternisai/group-notifier/internal/logger"
)

type countingRunner struct {
	runs    atomic.Int32
	release chan struct{}
	started chan struct{}
}

func newCountingRunner(block bool) *countingRunner {
	r := &countingRunner{started: make(chan struct{}, 16)}
	if block {
		r.release = make(chan struct{})
	}
	return r
}

func (r *countingRunner) Run(ctx context.Context) (int, error) {
	r.runs.Add(1)
	r.started <- struct{}{}
	if r.release != nil {
		select {
		case <-r.release:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	return 0, nil
}

func TestNewSchedulerRejectsInvalidSpec(t *testing.T) {
	_, err := NewScheduler("every day", newCountingRunner(false), 0, logger.Discard())
	assert.Error(t, err)
}

func TestSchedulerRunsOnStart(t *testing.T) {
	runner := newCountingRunner(false)
	s, err := NewScheduler("0 0 * * *", runner, time.Minute, logger.Discard())
	require.NoError(t, err)

	s.Start()
	select {
	case <-runner.started:
	case <-time.After(2 * time.Second):
		t.Fatal("expected the sweep to run on start")
	}
	s.Stop()

	assert.Equal(t, int32(1), runner.runs.Load())
}

func TestSchedulerSkipsOverlappingRuns(t *testing.T) {
	runner := newCountingRunner(true)
	s, err := NewScheduler("0 0 * * *", runner, 0, logger.Discard())
	require.NoError(t, err)

	s.Start()
	<-runner.started

	// A tick while the startup run is still going is skipped.
	s.job.Run()
	assert.Equal(t, int32(1), runner.runs.Load())

	close(runner.release)
	s.Stop()
}

func TestSchedulerStopCancelsInFlightRun(t *testing.T) {
	runner := newCountingRunner(true)
	s, err := NewScheduler("0 0 * * *", runner, 0, logger.Discard())
	require.NoError(t, err)

	s.Start()
	<-runner.started

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after cancelling the in-flight run")
	}
}
