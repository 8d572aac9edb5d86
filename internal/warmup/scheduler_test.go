package warmup

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/contractedit/internal/retry"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakePinger struct {
	calls int32
	fail  func(n int32) error
}

func (p *fakePinger) Ping(ctx context.Context) error {
	n := atomic.AddInt32(&p.calls, 1)
	if p.fail != nil {
		return p.fail(n)
	}
	return nil
}

func noWait(attempts int) retry.Policy {
	return retry.Policy{MaxAttempts: attempts, Sleep: func(ctx context.Context, _ time.Duration) error { return ctx.Err() }}
}

func TestTickSkipsAfterRecentActivity(t *testing.T) {
	clk := &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	p := &fakePinger{}
	s := New(Options{Interval: 10 * time.Minute, Pinger: p, Policy: noWait(1), Now: clk.Now})

	clk.Advance(5 * time.Minute)
	assert.False(t, s.Tick(context.Background()))
	assert.EqualValues(t, 0, p.calls)

	clk.Advance(4 * time.Minute)
	assert.True(t, s.Tick(context.Background()))
	assert.EqualValues(t, 1, p.calls)

	s.Touch()
	clk.Advance(time.Minute)
	assert.False(t, s.Tick(context.Background()))

	st := s.Stats()
	assert.Equal(t, 1, st.TotalWarmups)
	assert.Equal(t, 2, st.SkippedWarmups)
	assert.Equal(t, "12:17:00", st.NextWarmup)
	assert.InDelta(t, 1.0, st.MinutesSinceLastRequest, 1e-9)
}

func TestWarmFailuresAreCountedNotFatal(t *testing.T) {
	p := &fakePinger{fail: func(n int32) error {
		if n%2 == 1 {
			return errors.New("cold")
		}
		return nil
	}}
	s := New(Options{Interval: time.Minute, Pinger: p, Policy: noWait(1)})

	for i := 0; i < 4; i++ {
		s.Warm(context.Background())
	}
	st := s.Stats()
	assert.Equal(t, 4, st.TotalWarmups)
	assert.Equal(t, 2, st.SuccessfulWarmups)
	assert.Equal(t, 2, st.FailedWarmups)
	assert.InDelta(t, 50.0, st.SuccessRate, 1e-9)
	require.NotNil(t, st.LastWarmupSuccess)
	assert.True(t, *st.LastWarmupSuccess)
}

func TestWarmUsesRetryPolicy(t *testing.T) {
	p := &fakePinger{fail: func(n int32) error {
		if n < 3 {
			return errors.New("model not ready")
		}
		return nil
	}}
	s := New(Options{Pinger: p, Policy: noWait(3)})

	assert.True(t, s.Warm(context.Background()))
	assert.EqualValues(t, 3, p.calls)
	assert.Equal(t, 1, s.Stats().TotalWarmups)
}

func TestStatsInvariants(t *testing.T) {
	s := New(Options{Pinger: &fakePinger{}, Policy: noWait(1)})
	st := s.Stats()
	assert.Equal(t, 0.0, st.SuccessRate)
	assert.Nil(t, st.LastWarmup)

	p := &fakePinger{fail: func(n int32) error {
		if n%3 == 0 {
			return errors.New("boom")
		}
		return nil
	}}
	s = New(Options{Pinger: p, Policy: noWait(1)})
	for i := 0; i < 10; i++ {
		s.Warm(context.Background())
		st := s.Stats()
		assert.LessOrEqual(t, st.SuccessfulWarmups, st.TotalWarmups)
		assert.InDelta(t, float64(st.SuccessfulWarmups)/float64(st.TotalWarmups)*100, st.SuccessRate, 1e-9)
	}
}

func TestStartWarmsImmediatelyAndStops(t *testing.T) {
	p := &fakePinger{}
	s := New(Options{Interval: time.Hour, Pinger: p, Policy: noWait(1)})

	s.Start(context.Background())
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&p.calls) == 1 }, time.Second, 5*time.Millisecond)
	assert.True(t, s.Running())

	s.Stop()
	assert.False(t, s.Running())
	s.Stop()
}

func TestLoopTicksOnInterval(t *testing.T) {
	p := &fakePinger{}
	s := New(Options{Interval: 10 * time.Millisecond, Pinger: p, Policy: noWait(1)})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&p.calls) >= 3 }, 2*time.Second, 5*time.Millisecond)
	s.Stop()
}
