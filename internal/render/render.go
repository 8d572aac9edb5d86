// Package render rebuilds a PDF from edited contract text.
package render

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/contractedit/internal/extract"
	mpkg "github.com/local/contractedit/internal/metrics"
	"github.com/local/contractedit/internal/strategy"
)

// Input is everything a renderer needs to lay out the edited document.
type Input struct {
	JobID  string
	Title  string
	Text   string
	Tag    strategy.Tag
	Layout extract.Layout
}

// Renderer turns Input into PDF bytes.
type Renderer interface {
	Name() string
	Render(ctx context.Context, in Input) ([]byte, error)
}

// Output is a validated PDF together with the renderer that produced it.
type Output struct {
	PDF      []byte
	Pages    int
	Renderer string
}

// ReconstructionError carries the causes from both renderers.
type ReconstructionError struct {
	Primary  error
	Fallback error
}

func (e *ReconstructionError) Error() string {
	return fmt.Sprintf("pdf reconstruction failed: primary: %v; fallback: %v", e.Primary, e.Fallback)
}

func (e *ReconstructionError) Unwrap() []error {
	var out []error
	if e.Primary != nil {
		out = append(out, e.Primary)
	}
	if e.Fallback != nil {
		out = append(out, e.Fallback)
	}
	return out
}

// Reconstructor tries Primary, then Fallback. Output must pass Validate.
type Reconstructor struct {
	Primary  Renderer
	Fallback Renderer
	// Validate returns the page count of a rendered PDF. Nil uses pdfcpu.
	Validate func([]byte) (int, error)
}

func (r *Reconstructor) Render(ctx context.Context, in Input) (Output, error) {
	validate := r.Validate
	if validate == nil {
		validate = extract.Validate
	}

	var rerr ReconstructionError
	out, err := r.try(ctx, r.Primary, in, validate)
	if err == nil {
		return out, nil
	}
	rerr.Primary = err
	if ctx.Err() != nil {
		return Output{}, ctx.Err()
	}
	log.Warn().Err(err).Str("job_id", in.JobID).Msg("primary renderer failed, falling back")

	out, err = r.try(ctx, r.Fallback, in, validate)
	if err == nil {
		return out, nil
	}
	rerr.Fallback = err
	return Output{}, &rerr
}

func (r *Reconstructor) try(ctx context.Context, rd Renderer, in Input, validate func([]byte) (int, error)) (Output, error) {
	if rd == nil {
		return Output{}, errors.New("renderer not configured")
	}
	start := time.Now()
	pdf, err := rd.Render(ctx, in)
	if err != nil {
		return Output{}, fmt.Errorf("%s: %w", rd.Name(), err)
	}
	pages, err := validate(pdf)
	if err != nil {
		return Output{}, fmt.Errorf("%s produced an invalid pdf: %w", rd.Name(), err)
	}
	mpkg.ObserveStage("render_"+rd.Name(), time.Since(start))
	log.Info().Str("job_id", in.JobID).Str("renderer", rd.Name()).Int("pages", pages).
		Int("bytes", len(pdf)).Dur("duration", time.Since(start)).Msg("pdf reconstructed")
	return Output{PDF: pdf, Pages: pages, Renderer: rd.Name()}, nil
}
