// Package engine runs contract-edit jobs through analysis, chunked model
// edits, merge and PDF reconstruction.
package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/local/contractedit/internal/ai"
	"github.com/local/contractedit/internal/analyzer"
	"github.com/local/contractedit/internal/chunker"
	"github.com/local/contractedit/internal/extract"
	"github.com/local/contractedit/internal/limiter"
	logpkg "github.com/local/contractedit/internal/logger"
	mpkg "github.com/local/contractedit/internal/metrics"
	"github.com/local/contractedit/internal/render"
)

// Extractor reads text and structure from the uploaded PDF.
type Extractor interface {
	Extract(ctx context.Context, jobID string, data []byte) (*extract.Document, error)
}

// ChunkEditor applies the instruction to one chunk. *ai.Invoker implements it.
type ChunkEditor interface {
	Invoke(ctx context.Context, t ai.Task, instruction string) (string, error)
}

// Reconstructor renders the merged text back to PDF.
type Reconstructor interface {
	Render(ctx context.Context, in render.Input) (render.Output, error)
}

// Observer receives job snapshots and evictions. Calls for one job never
// overlap and never go back to an older snapshot; nothing follows JobEvicted.
type Observer interface {
	JobUpdated(s Snapshot)
	JobEvicted(id string)
}

type Options struct {
	Extractor     Extractor
	Analyzer      *analyzer.Analyzer
	Editor        ChunkEditor
	Reconstructor Reconstructor
	// Limiter is only read for Stats; the editor enforces it.
	Limiter  *limiter.Limiter
	Observer Observer

	ChunkSize    int
	ChunkOverlap int
	// MaxWorkers is the number of chunk goroutines per job.
	MaxWorkers     int
	JobConcurrency int
	QueueSize      int
	// FailedChunkThreshold fails a job when failed/invoked chunks exceed it.
	// A job whose invoked chunks all failed fails regardless.
	FailedChunkThreshold float64

	Retention       time.Duration
	CleanupInterval time.Duration
	Now             func() time.Time
}

type job struct {
	id          string
	doc         []byte
	instruction string
	ctx         context.Context
	cancel      context.CancelFunc
	done        chan struct{}
	log         zerolog.Logger

	// snap and seq are guarded by Engine.mu.
	snap Snapshot
	seq  uint64

	// pubMu orders observer calls for this job.
	pubMu     sync.Mutex
	published uint64
	evicted   bool
}

// Engine owns the job table and the runners that drain the queue.
type Engine struct {
	opts Options

	mu    sync.RWMutex
	jobs  map[string]*job
	queue chan *job

	ctx     context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup
	started bool
	stopped bool
}

func New(o Options) (*Engine, error) {
	if o.Extractor == nil || o.Editor == nil || o.Reconstructor == nil {
		return nil, fmt.Errorf("%w: extractor, editor and reconstructor are required", ErrInvalidInput)
	}
	if o.ChunkSize == 0 && o.ChunkOverlap == 0 {
		o.ChunkSize, o.ChunkOverlap = chunker.DefaultSize, chunker.DefaultOverlap
	}
	if err := chunker.Validate(o.ChunkSize, o.ChunkOverlap); err != nil {
		return nil, err
	}
	if o.FailedChunkThreshold < 0 || o.FailedChunkThreshold > 1 {
		return nil, fmt.Errorf("%w: failed chunk threshold %g outside [0,1]", ErrInvalidInput, o.FailedChunkThreshold)
	}
	if o.Analyzer == nil {
		o.Analyzer = analyzer.New(analyzer.Options{})
	}
	if o.MaxWorkers <= 0 {
		o.MaxWorkers = 5
		if o.Limiter != nil {
			o.MaxWorkers = o.Limiter.Capacity()
		}
	}
	if o.JobConcurrency <= 0 {
		o.JobConcurrency = 2
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 100
	}
	if o.Retention <= 0 {
		o.Retention = time.Hour
	}
	if o.CleanupInterval <= 0 {
		o.CleanupInterval = 5 * time.Minute
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		opts:  o,
		jobs:  make(map[string]*job),
		queue: make(chan *job, o.QueueSize),
		ctx:   ctx,
		stop:  cancel,
	}, nil
}

// Start launches the runners and the janitor. It is a no-op when already started.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return
	}
	e.started = true
	for i := 0; i < e.opts.JobConcurrency; i++ {
		e.wg.Add(1)
		go e.runner(i)
	}
	e.wg.Add(1)
	go e.janitor()
	log.Info().Int("runners", e.opts.JobConcurrency).Int("max_workers", e.opts.MaxWorkers).
		Int("queue_size", e.opts.QueueSize).Msg("job engine started")
}

// Stop cancels every active job, waits for the runners to exit and fails
// whatever is still queued.
func (e *Engine) Stop() {
	e.mu.Lock()
	e.stopped = true
	e.mu.Unlock()
	e.stop()
	e.wg.Wait()
	for {
		select {
		case j := <-e.queue:
			e.fail(j, "service shutting down")
		default:
			mpkg.SetQueueDepth(0)
			log.Info().Msg("job engine stopped")
			return
		}
	}
}

// Submit registers a job and queues it. It never blocks.
func (e *Engine) Submit(ctx context.Context, doc []byte, instruction string) (string, error) {
	instruction = strings.TrimSpace(instruction)
	switch {
	case len(doc) == 0:
		return "", fmt.Errorf("%w: empty document", ErrInvalidInput)
	case instruction == "":
		return "", fmt.Errorf("%w: empty instruction", ErrInvalidInput)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	jctx, cancel := context.WithCancel(e.ctx)
	id := uuid.New().String()
	j := &job{
		id:          id,
		doc:         doc,
		instruction: instruction,
		ctx:         jctx,
		cancel:      cancel,
		done:        make(chan struct{}),
		log:         logpkg.ForJob(id),
		snap: Snapshot{
			ID:        id,
			State:     Queued,
			Message:   "Job queued",
			CreatedAt: e.opts.Now(),
		},
	}

	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		cancel()
		return "", ErrStopped
	}
	select {
	case e.queue <- j:
	default:
		e.mu.Unlock()
		cancel()
		log.Warn().Int("queue_size", e.opts.QueueSize).Msg("job queue full, rejecting upload")
		return "", ErrQueueFull
	}
	e.jobs[j.id] = j
	j.seq++
	seq, snap := j.seq, j.snap.clone()
	depth := len(e.queue)
	e.mu.Unlock()

	e.publish(j, seq, snap)
	mpkg.SetQueueDepth(depth)
	j.log.Info().Int("bytes", len(doc)).Msg("job queued")
	return j.id, nil
}

// Get returns a copy of the job's current snapshot.
func (e *Engine) Get(id string) (Snapshot, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	j, ok := e.jobs[id]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	return j.snap.clone(), nil
}

func (e *Engine) Status(id string) (StatusView, error) {
	s, err := e.Get(id)
	if err != nil {
		return StatusView{}, err
	}
	return StatusView{ID: s.ID, Status: s.State, Progress: s.Progress, Message: s.Message}, nil
}

// Result returns the outcome of a terminal job, or ErrNotReady.
func (e *Engine) Result(id string) (ResultView, error) {
	s, err := e.Get(id)
	if err != nil {
		return ResultView{}, err
	}
	switch s.State {
	case Completed:
		return ResultView{ID: s.ID, Status: s.State, Text: s.Text, PDF: s.PDF, Message: s.Message}, nil
	case Failed:
		return ResultView{ID: s.ID, Status: s.State, Message: s.Message}, nil
	}
	return ResultView{ID: s.ID, Status: s.State}, ErrNotReady
}

// Wait blocks until the job is terminal or ctx is done.
func (e *Engine) Wait(ctx context.Context, id string) (Snapshot, error) {
	e.mu.RLock()
	j, ok := e.jobs[id]
	e.mu.RUnlock()
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	select {
	case <-j.done:
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return j.snap.clone(), nil
}

// Cancel fails a non-terminal job and stops its outstanding work.
// Cancelling a finished job does nothing.
func (e *Engine) Cancel(id string) error {
	e.mu.RLock()
	j, ok := e.jobs[id]
	e.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}
	if e.fail(j, "cancelled") {
		j.log.Info().Msg("job cancelled")
	}
	return nil
}

// Delete cancels the job if it is still active and evicts it.
func (e *Engine) Delete(id string) error {
	if err := e.Cancel(id); err != nil {
		return err
	}
	e.mu.Lock()
	j, ok := e.jobs[id]
	delete(e.jobs, id)
	e.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	e.evict(j)
	j.log.Info().Msg("job deleted")
	return nil
}

type Stats struct {
	QueueDepth    int            `json:"queue_depth"`
	QueueCapacity int            `json:"queue_capacity"`
	Runners       int            `json:"runners"`
	MaxWorkers    int            `json:"max_workers_per_job"`
	Jobs          map[string]int `json:"jobs"`
	InFlight      int            `json:"inflight_model_calls"`
	InFlightLimit int            `json:"inflight_limit"`
	HighWater     int            `json:"inflight_high_water"`
}

func (e *Engine) Stats() Stats {
	st := Stats{
		QueueDepth:    len(e.queue),
		QueueCapacity: cap(e.queue),
		Runners:       e.opts.JobConcurrency,
		MaxWorkers:    e.opts.MaxWorkers,
		Jobs:          make(map[string]int),
	}
	e.mu.RLock()
	for _, j := range e.jobs {
		st.Jobs[j.snap.State.String()]++
	}
	e.mu.RUnlock()
	if l := e.opts.Limiter; l != nil {
		st.InFlight = l.InFlight()
		st.InFlightLimit = l.Capacity()
		st.HighWater = l.HighWater()
	}
	return st
}

// update mutates a non-terminal job under the lock and publishes the result.
// It reports false when the job is already terminal.
func (e *Engine) update(j *job, fn func(s *Snapshot)) bool {
	e.mu.Lock()
	if j.snap.State.Terminal() {
		e.mu.Unlock()
		return false
	}
	fn(&j.snap)
	j.seq++
	seq, snap := j.seq, j.snap.clone()
	if snap.State.Terminal() {
		close(j.done)
	}
	e.mu.Unlock()

	e.publish(j, seq, snap)
	if snap.State.Terminal() {
		mpkg.IncJob(snap.State.String())
	}
	return true
}

// advance moves j to state with the given progress. Progress never goes down.
func (e *Engine) advance(j *job, state State, progress int, msg string) bool {
	return e.update(j, func(s *Snapshot) {
		s.State = state
		s.Progress = max(s.Progress, progress)
		s.Message = msg
	})
}

func (e *Engine) fail(j *job, msg string) bool {
	now := e.opts.Now()
	ok := e.update(j, func(s *Snapshot) {
		s.State = Failed
		s.Message = msg
		s.Error = msg
		s.FinishedAt = &now
	})
	j.cancel()
	return ok
}

// publish hands snapshots to the observer in the order they were taken.
// A snapshot already overtaken by a newer one is dropped, as is anything
// after eviction.
func (e *Engine) publish(j *job, seq uint64, s Snapshot) {
	if e.opts.Observer == nil {
		return
	}
	j.pubMu.Lock()
	defer j.pubMu.Unlock()
	if j.evicted || seq <= j.published {
		return
	}
	j.published = seq
	e.opts.Observer.JobUpdated(s)
}

func (e *Engine) evict(j *job) {
	j.pubMu.Lock()
	defer j.pubMu.Unlock()
	j.evicted = true
	if e.opts.Observer != nil {
		e.opts.Observer.JobEvicted(j.id)
	}
}
