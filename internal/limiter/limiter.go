package limiter

import (
    "context"
    "sync"

    mpkg "github.com/local/contractedit/internal/metrics"
)

// Limiter is the process-wide cap on concurrent model calls. Every job shares one.
type Limiter struct {
    sem       chan struct{}
    mu        sync.Mutex
    inflight  int
    highWater int
}

func New(maxInflight int) *Limiter {
    if maxInflight <= 0 { maxInflight = 1 }
    return &Limiter{sem: make(chan struct{}, maxInflight)}
}

// Acquire blocks until a slot is free or ctx ends.
// The returned release func is idempotent.
func (l *Limiter) Acquire(ctx context.Context) (func(), error) {
    select {
    case l.sem <- struct{}{}:
    case <-ctx.Done():
        return func() {}, ctx.Err()
    }
    l.enter()
    return l.releaser(), nil
}

func (l *Limiter) enter() {
    l.mu.Lock()
    l.inflight++
    if l.inflight > l.highWater { l.highWater = l.inflight }
    n := l.inflight
    l.mu.Unlock()
    mpkg.SetInflight(n)
}

func (l *Limiter) releaser() func() {
    var once sync.Once
    return func() {
        once.Do(func() {
            l.mu.Lock()
            l.inflight--
            n := l.inflight
            l.mu.Unlock()
            <-l.sem
            mpkg.SetInflight(n)
        })
    }
}

func (l *Limiter) Capacity() int { return cap(l.sem) }

func (l *Limiter) InFlight() int {
    l.mu.Lock()
    defer l.mu.Unlock()
    return l.inflight
}

// HighWater is the largest number of concurrent holders observed.
func (l *Limiter) HighWater() int {
    l.mu.Lock()
    defer l.mu.Unlock()
    return l.highWater
}
