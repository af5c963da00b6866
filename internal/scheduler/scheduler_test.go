package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/electricity-map/internal/electricity"
)

type refresherFunc func(ctx context.Context) (electricity.Snapshot, error)

func (f refresherFunc) Refresh(ctx context.Context) (electricity.Snapshot, error) { return f(ctx) }

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func TestTrigger_SuccessReturnsToIdle(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	s := New(refresherFunc(func(context.Context) (electricity.Snapshot, error) {
		return electricity.Snapshot{}, nil
	}), time.Hour, WithClock(clock.Now))

	require.True(t, s.Trigger(context.Background()))

	st := s.Status()
	assert.Equal(t, StateIdle, st.State)
	assert.Equal(t, 1, st.Runs)
	assert.Empty(t, st.LastError)
	require.NotNil(t, st.LastStarted)
	require.NotNil(t, st.LastFinished)
	require.NotNil(t, st.LastSuccess)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 1, 0, time.UTC), *st.LastStarted)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 2, 0, time.UTC), *st.LastFinished)
	assert.Equal(t, *st.LastFinished, *st.LastSuccess)
	assert.NotEmpty(t, st.LastCycleID)
}

func TestTrigger_ErrorIsSwallowedAndRecorded(t *testing.T) {
	s := New(refresherFunc(func(context.Context) (electricity.Snapshot, error) {
		return electricity.Snapshot{}, errors.New("upstream 503")
	}), time.Hour)

	require.True(t, s.Trigger(context.Background()))
	st := s.Status()
	assert.Equal(t, StateIdle, st.State)
	assert.Equal(t, "upstream 503", st.LastError)
	assert.Nil(t, st.LastSuccess)

	// The scheduler keeps working after a failure.
	require.True(t, s.Trigger(context.Background()))
	assert.Equal(t, 2, s.Status().Runs)
}

func TestTrigger_PanicIsRecovered(t *testing.T) {
	s := New(refresherFunc(func(context.Context) (electricity.Snapshot, error) {
		panic("nil map")
	}), time.Hour)

	require.True(t, s.Trigger(context.Background()))
	assert.Equal(t, StateIdle, s.Status().State)
	assert.Contains(t, s.Status().LastError, "nil map")
}

func TestTrigger_OverlappingCycleIsSkipped(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	s := New(refresherFunc(func(context.Context) (electricity.Snapshot, error) {
		close(entered)
		<-release
		return electricity.Snapshot{}, nil
	}), time.Hour)

	done := make(chan bool)
	go func() { done <- s.Trigger(context.Background()) }()

	<-entered
	assert.Equal(t, StateRefreshing, s.Status().State)
	assert.False(t, s.Trigger(context.Background()))

	close(release)
	assert.True(t, <-done)

	st := s.Status()
	assert.Equal(t, 1, st.Runs)
	assert.Equal(t, 1, st.Skipped)
	assert.Equal(t, StateIdle, st.State)
}

func TestTrigger_TimeoutBoundsCycle(t *testing.T) {
	s := New(refresherFunc(func(ctx context.Context) (electricity.Snapshot, error) {
		<-ctx.Done()
		return electricity.Snapshot{}, ctx.Err()
	}), time.Hour, WithTimeout(10*time.Millisecond))

	require.True(t, s.Trigger(context.Background()))
	assert.Contains(t, s.Status().LastError, context.DeadlineExceeded.Error())
}

func TestStart_RunsImmediatelyThenStops(t *testing.T) {
	var runs int32
	s := New(refresherFunc(func(context.Context) (electricity.Snapshot, error) {
		atomic.AddInt32(&runs, 1)
		return electricity.Snapshot{}, nil
	}), time.Hour)

	require.NoError(t, s.Start())
	assert.Equal(t, int32(1), atomic.LoadInt32(&runs))

	// Starting twice does not run a second startup cycle.
	require.NoError(t, s.Start())
	assert.Equal(t, int32(1), atomic.LoadInt32(&runs))

	s.Stop()
	s.Stop()
}

func TestStart_FailingStartupCycleStillSchedules(t *testing.T) {
	s := New(refresherFunc(func(context.Context) (electricity.Snapshot, error) {
		return electricity.Snapshot{}, errors.New("no network")
	}), time.Hour)

	require.NoError(t, s.Start())
	defer s.Stop()
	assert.Equal(t, "no network", s.Status().LastError)
}

func TestStop_WithoutStart(t *testing.T) {
	s := New(refresherFunc(func(context.Context) (electricity.Snapshot, error) {
		return electricity.Snapshot{}, nil
	}), 0)
	s.Stop()
	assert.Equal(t, 5*time.Minute, s.interval)
}

func TestStatus_JSONOmitsUnsetTimes(t *testing.T) {
	s := New(refresherFunc(func(context.Context) (electricity.Snapshot, error) {
		return electricity.Snapshot{}, errors.New("no network")
	}), time.Hour, WithClock((&fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}).Now))

	body, err := json.Marshal(s.Status())
	require.NoError(t, err)
	assert.JSONEq(t, `{"state":"idle","runs":0,"skipped":0}`, string(body))

	require.True(t, s.Trigger(context.Background()))
	body, err = json.Marshal(s.Status())
	require.NoError(t, err)
	assert.Contains(t, string(body), `"lastStarted":"2024-01-01T00:00:01Z"`)
	assert.NotContains(t, string(body), "lastSuccess")
	assert.NotContains(t, string(body), "0001-01-01")
}
