package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/local/contractedit/internal/ai"
	"github.com/local/contractedit/internal/analyzer"
	"github.com/local/contractedit/internal/chunker"
	"github.com/local/contractedit/internal/extract"
	mpkg "github.com/local/contractedit/internal/metrics"
	"github.com/local/contractedit/internal/render"
	"github.com/local/contractedit/internal/strategy"
)

// errAborted stops the pipeline once the job was cancelled or already failed.
var errAborted = errors.New("job aborted")

func (e *Engine) runner(n int) {
	defer e.wg.Done()
	for {
		select {
		case <-e.ctx.Done():
			return
		case j := <-e.queue:
			mpkg.SetQueueDepth(len(e.queue))
			e.run(j)
		}
	}
}

func (e *Engine) run(j *job) {
	defer j.cancel()
	if j.ctx.Err() != nil {
		return
	}
	start := e.opts.Now()
	if !e.update(j, func(s *Snapshot) { s.StartedAt = &start }) {
		return
	}
	j.log.Info().Msg("job started")

	err := e.pipeline(j)
	switch {
	case err == nil:
		j.log.Info().Dur("duration", e.opts.Now().Sub(start)).Msg("job finished")
	case errors.Is(err, errAborted) || j.ctx.Err() != nil:
		j.log.Info().Msg("job stopped before completion")
		e.fail(j, "cancelled")
	default:
		j.log.Error().Err(err).Msg("job failed")
		e.fail(j, err.Error())
	}
}

// stage advances the job and times fn under the stage label.
func (e *Engine) stage(j *job, state State, progress int, msg string, fn func() error) error {
	if j.ctx.Err() != nil || !e.advance(j, state, progress, msg) {
		return errAborted
	}
	start := time.Now()
	err := fn()
	mpkg.ObserveStage(state.String(), time.Since(start))
	return err
}

func (e *Engine) pipeline(j *job) error {
	var (
		doc     *extract.Document
		res     analyzer.Result
		tag     strategy.Tag
		chunks  []chunker.Chunk
		edited  []chunker.Chunk
		merged  string
		outcome processOutcome
	)

	err := e.stage(j, Analyzing, progressAnalyzing, "Analyzing document structure", func() error {
		var err error
		doc, err = e.opts.Extractor.Extract(j.ctx, j.id, j.doc)
		if err != nil {
			return fmt.Errorf("could not read document: %w", err)
		}
		res, err = e.opts.Analyzer.Analyze(doc.Structure)
		if err != nil {
			return fmt.Errorf("document analysis failed: %w", err)
		}
		analysis := res
		e.update(j, func(s *Snapshot) { s.Analysis = &analysis })
		j.log.Info().Str("layout", res.Layout.String()).Int("score", res.Score).
			Int("pages", doc.Pages).Str("backend", doc.Backend).Msg("document analyzed")
		return nil
	})
	if err != nil {
		return err
	}

	err = e.stage(j, Strategizing, progressStrategizing, "Selecting processing strategy", func() error {
		var ok bool
		tag, ok = strategy.Select(res.Layout)
		if !ok {
			j.log.Warn().Str("layout", res.Layout.String()).Msg("unknown layout, using hybrid processing")
		}
		e.update(j, func(s *Snapshot) { s.Strategy = tag })
		return nil
	})
	if err != nil {
		return err
	}

	err = e.stage(j, Chunking, progressChunking, "Splitting document into chunks", func() error {
		var err error
		chunks, err = chunker.Split(doc.Text, e.opts.ChunkSize, e.opts.ChunkOverlap)
		if err != nil {
			return err
		}
		if len(chunks) == 0 {
			return errors.New("document has no text to edit")
		}
		for i := range chunks {
			chunks[i].JobID = j.id
		}
		e.update(j, func(s *Snapshot) { s.TotalChunks = len(chunks) })
		return nil
	})
	if err != nil {
		return err
	}

	msg := fmt.Sprintf("Processing %d chunks", len(chunks))
	err = e.stage(j, Processing, progressProcessing, msg, func() error {
		var err error
		edited, outcome, err = e.processChunks(j, chunks)
		return err
	})
	if err != nil {
		return err
	}

	err = e.stage(j, Merging, progressMerging, "Merging edited chunks", func() error {
		merged = chunker.Merge(edited)
		return nil
	})
	if err != nil {
		return err
	}

	var out render.Output
	err = e.stage(j, Reconstructing, progressReconstructing, "Reconstructing PDF", func() error {
		var err error
		out, err = e.opts.Reconstructor.Render(j.ctx, render.Input{
			JobID:  j.id,
			Title:  "Edited contract",
			Text:   merged,
			Tag:    tag,
			Layout: doc.Layout,
		})
		return err
	})
	if err != nil {
		return err
	}

	finished := e.opts.Now()
	done := "Completed"
	if outcome.failed > 0 {
		done = fmt.Sprintf("Completed with %d of %d chunks left unedited after failures", outcome.failed, len(chunks))
	}
	if !e.update(j, func(s *Snapshot) {
		s.State = Completed
		s.Progress = progressCompleted
		s.Message = done
		s.Text = merged
		s.PDF = out.PDF
		s.Renderer = out.Renderer
		s.FinishedAt = &finished
	}) {
		return errAborted
	}
	j.log.Info().Int("chunks", len(chunks)).Int("failed", outcome.failed).
		Int("skipped", outcome.skipped).Str("renderer", out.Renderer).Msg("job completed")
	return nil
}

type chunkResult struct {
	index   int
	text    string
	skipped bool
	err     error
}

type processOutcome struct {
	completed, failed, skipped int
}

// processChunks fans chunks out to MaxWorkers goroutines and collects the
// results by index. Failed chunks keep their original text.
func (e *Engine) processChunks(j *job, chunks []chunker.Chunk) ([]chunker.Chunk, processOutcome, error) {
	ctx, cancel := context.WithCancel(j.ctx)
	defer cancel()

	entities := chunker.ExtractEntities(j.instruction)
	if len(entities) > 0 {
		j.log.Debug().Strs("entities", entities).Msg("instruction entities")
	}

	total := len(chunks)
	tasks := make(chan chunker.Chunk)
	results := make(chan chunkResult, total)

	var wg sync.WaitGroup
	for w := 0; w < min(e.opts.MaxWorkers, total); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for c := range tasks {
				results <- e.editChunk(ctx, j, c, total, entities)
			}
		}()
	}
	go func() {
		defer close(results)
		defer wg.Wait()
		defer close(tasks)
		for _, c := range chunks {
			select {
			case tasks <- c:
			case <-ctx.Done():
				return
			}
		}
	}()

	edited := make([]chunker.Chunk, total)
	copy(edited, chunks)
	var out processOutcome
	var fatal error
	var notes []string
	for r := range results {
		switch {
		case r.skipped:
			out.skipped++
			mpkg.IncChunk("skipped")
		case r.err != nil:
			out.failed++
			mpkg.IncChunk("failed")
			if fatal == nil && errors.Is(r.err, ai.ErrFatal) {
				fatal = r.err
				cancel()
			}
			notes = append(notes, fmt.Sprintf("chunk %d left unedited: %v", r.index+1, r.err))
			j.log.Warn().Err(r.err).Int("chunk", r.index).Msg("chunk failed, keeping original text")
		default:
			out.completed++
			if r.text == chunks[r.index].Text {
				mpkg.IncChunk("unchanged")
			} else {
				mpkg.IncChunk("modified")
			}
			edited[r.index].Text = r.text
		}

		n := out.completed + out.failed + out.skipped
		progress := progressProcessing + (progressProcessingEnd-progressProcessing)*n/total
		snapOut := out
		note := append([]string(nil), notes...)
		e.update(j, func(s *Snapshot) {
			s.Completed, s.Failed, s.Skipped = snapOut.completed, snapOut.failed, snapOut.skipped
			s.Progress = max(s.Progress, progress)
			s.Message = fmt.Sprintf("Processed %d of %d chunks", n, total)
			s.Notes = note
		})
	}

	if j.ctx.Err() != nil {
		return nil, out, errAborted
	}
	if fatal != nil {
		return nil, out, fmt.Errorf("model request rejected: %w", fatal)
	}
	if n := out.completed + out.failed + out.skipped; n != total {
		return nil, out, fmt.Errorf("only %d of %d chunks were processed", n, total)
	}
	invoked := total - out.skipped
	if out.failed > 0 && (out.failed == invoked || float64(out.failed)/float64(invoked) > e.opts.FailedChunkThreshold) {
		return nil, out, fmt.Errorf("%d of %d chunks failed: %s", out.failed, invoked, strings.Join(notes, "; "))
	}
	return edited, out, nil
}

func (e *Engine) editChunk(ctx context.Context, j *job, c chunker.Chunk, total int, entities []string) chunkResult {
	if !chunker.Relevant(c.Text, entities) {
		j.log.Debug().Int("chunk", c.Index).Msg("no instruction entities in chunk, skipping")
		return chunkResult{index: c.Index, skipped: true}
	}
	text, err := e.opts.Editor.Invoke(ctx, ai.Task{JobID: j.id, Index: c.Index, Total: total, Text: c.Text}, j.instruction)
	if err != nil {
		return chunkResult{index: c.Index, err: err}
	}
	return chunkResult{index: c.Index, text: text}
}
