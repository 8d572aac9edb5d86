// Package warmup keeps the hosted model loaded by pinging it when no real traffic has reached it recently.
package warmup

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	mpkg "github.com/local/contractedit/internal/metrics"
	"github.com/local/contractedit/internal/retry"
)

// Pinger issues a minimal inference call.
type Pinger interface {
	Ping(ctx context.Context) error
}

// idleFraction of the interval must pass without real traffic before a tick warms the model.
const idleFraction = 0.8

type Options struct {
	Interval time.Duration
	// InitialDelay separates the startup warmup from the first periodic check.
	InitialDelay time.Duration
	Pinger       Pinger
	Policy       retry.Policy
	// Timeout bounds one warmup including retries.
	Timeout time.Duration
	Now     func() time.Time
}

// Stats is a point-in-time copy of the scheduler counters.
type Stats struct {
	Running                 bool       `json:"running"`
	TotalWarmups            int        `json:"total_warmups"`
	SuccessfulWarmups       int        `json:"successful_warmups"`
	FailedWarmups           int        `json:"failed_warmups"`
	SkippedWarmups          int        `json:"skipped_warmups"`
	LastWarmup              *time.Time `json:"last_warmup"`
	LastWarmupSuccess       *bool      `json:"last_warmup_success"`
	LastError               string     `json:"last_error,omitempty"`
	SuccessRate             float64    `json:"success_rate"`
	MinutesSinceLastRequest float64    `json:"minutes_since_last_request"`
	NextWarmup              string     `json:"next_warmup"`
}

type Scheduler struct {
	opts Options

	mu          sync.Mutex
	lastRequest time.Time
	total       int
	ok          int
	failed      int
	skipped     int
	lastWarmup  time.Time
	lastSuccess bool
	lastErr     string

	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func New(o Options) *Scheduler {
	if o.Interval <= 0 {
		o.Interval = 15 * time.Minute
	}
	if o.Timeout <= 0 {
		o.Timeout = 2 * time.Minute
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return &Scheduler{opts: o, lastRequest: o.Now()}
}

func (s *Scheduler) Interval() time.Duration { return s.opts.Interval }

// Touch records real model traffic. Safe for concurrent use.
func (s *Scheduler) Touch() {
	now := s.opts.Now()
	s.mu.Lock()
	s.lastRequest = now
	s.mu.Unlock()
}

// ShouldWarmup reports whether the model has been idle long enough to need a ping.
func (s *Scheduler) ShouldWarmup() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.idleLocked() > s.idleThreshold()
}

func (s *Scheduler) idleLocked() time.Duration { return s.opts.Now().Sub(s.lastRequest) }

func (s *Scheduler) idleThreshold() time.Duration {
	return time.Duration(float64(s.opts.Interval) * idleFraction)
}

// Start sends a startup warmup and then checks every interval until ctx ends or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		log.Warn().Msg("warmup scheduler already running")
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	s.running = true
	s.cancel = cancel
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	log.Info().Dur("interval", s.opts.Interval).Msg("warmup scheduler started")
	go s.loop(ctx, done)
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	if s.Warm(ctx) {
		log.Info().Msg("initial warmup successful, model is ready")
	} else {
		log.Warn().Msg("initial warmup failed, will retry on schedule")
	}

	if s.opts.InitialDelay > 0 {
		t := time.NewTimer(s.opts.InitialDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
		s.Tick(ctx)
	}

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Stop ends the loop and waits for it to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel, done := s.cancel, s.done
	s.running = false
	s.mu.Unlock()

	cancel()
	<-done
	log.Info().Msg("warmup scheduler stopped")
}

// Tick warms the model unless real traffic arrived recently. It returns whether a warmup ran.
func (s *Scheduler) Tick(ctx context.Context) bool {
	if !s.ShouldWarmup() {
		s.mu.Lock()
		s.skipped++
		s.mu.Unlock()
		mpkg.IncWarmup("skipped")
		log.Debug().Msg("skipping warmup, recent activity")
		return false
	}
	s.Warm(ctx)
	return true
}

// Warm pings the model through the retry policy and records the outcome.
// A failure is counted and logged, never returned.
func (s *Scheduler) Warm(ctx context.Context) bool {
	if s.opts.Pinger == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	start := time.Now()
	err := s.opts.Policy.Do(ctx, func(ctx context.Context, attempt int) error {
		return s.opts.Pinger.Ping(ctx)
	})

	now := s.opts.Now()
	s.mu.Lock()
	s.total++
	s.lastWarmup = now
	s.lastSuccess = err == nil
	if err == nil {
		s.ok++
		s.lastErr = ""
	} else {
		s.failed++
		s.lastErr = err.Error()
	}
	s.mu.Unlock()

	if err != nil {
		mpkg.IncWarmup("failure")
		log.Error().Err(err).Dur("duration", time.Since(start)).Msg("warmup failed")
		return false
	}
	mpkg.IncWarmup("success")
	log.Info().Dur("duration", time.Since(start)).Msg("warmup successful")
	return true
}

func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{
		Running:           s.running,
		TotalWarmups:      s.total,
		SuccessfulWarmups: s.ok,
		FailedWarmups:     s.failed,
		SkippedWarmups:    s.skipped,
		LastError:         s.lastErr,
	}
	if s.total > 0 {
		st.SuccessRate = float64(s.ok) / float64(s.total) * 100
		last, success := s.lastWarmup, s.lastSuccess
		st.LastWarmup = &last
		st.LastWarmupSuccess = &success
	}
	idle := s.idleLocked()
	st.MinutesSinceLastRequest = idle.Minutes()
	if idle > s.idleThreshold() {
		st.NextWarmup = "soon"
	} else {
		st.NextWarmup = s.lastRequest.Add(s.idleThreshold()).Format("15:04:05")
	}
	return st
}
