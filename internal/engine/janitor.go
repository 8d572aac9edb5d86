package engine

import (
	"time"

	"github.com/rs/zerolog/log"
)

func (e *Engine) janitor() {
	defer e.wg.Done()
	t := time.NewTicker(e.opts.CleanupInterval)
	defer t.Stop()
	for {
		select {
		case <-e.ctx.Done():
			return
		case <-t.C:
			if n := e.Sweep(); n > 0 {
				log.Info().Int("evicted", n).Msg("expired jobs removed")
			}
		}
	}
}

// Sweep evicts terminal jobs that finished more than Retention ago.
func (e *Engine) Sweep() int {
	cutoff := e.opts.Now().Add(-e.opts.Retention)
	var evicted []*job
	e.mu.Lock()
	for id, j := range e.jobs {
		s := j.snap
		if s.State.Terminal() && s.FinishedAt != nil && s.FinishedAt.Before(cutoff) {
			delete(e.jobs, id)
			evicted = append(evicted, j)
		}
	}
	e.mu.Unlock()
	for _, j := range evicted {
		e.evict(j)
	}
	return len(evicted)
}
