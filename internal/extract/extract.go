// Package extract reads text and layout geometry out of an uploaded PDF.
package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/local/contractedit/internal/analyzer"
)

// ErrNoText means the document opened but carries no extractable text, e.g. a scan.
var ErrNoText = errors.New("document has no extractable text")

// LayoutDetector finds tables and form fields with an external service.
type LayoutDetector interface {
	Analyze(ctx context.Context, jobID string, data []byte, pages int) (Findings, error)
}

// Layout is the dominant page geometry and typography of the source.
type Layout struct {
	PageWidth  float64 `json:"page_width_pt"`
	PageHeight float64 `json:"page_height_pt"`
	FontFamily string  `json:"font_family"`
	FontSize   float64 `json:"font_size_pt"`
}

type Document struct {
	Pages     int
	Text      string
	PageInfo  []PageInfo
	Structure analyzer.Structure
	Layout    Layout
	// Backend names the reader that produced the text.
	Backend string
}

type Options struct {
	Opener   Opener
	Fallback Opener
	Detector LayoutDetector
	Workers  int
	// Counter cross-checks the page count. Nil uses pdfcpu.
	Counter func([]byte) (int, error)
}

type Extractor struct {
	opener   Opener
	fallback Opener
	detector LayoutDetector
	workers  int
	counter  func([]byte) (int, error)
}

func New(o Options) *Extractor {
	e := &Extractor{opener: o.Opener, fallback: o.Fallback, detector: o.Detector, workers: o.Workers, counter: o.Counter}
	if e.counter == nil {
		e.counter = PageCount
	}
	if e.opener == nil {
		e.opener = FitzOpener{}
	}
	if e.fallback == nil {
		e.fallback = PlainOpener{}
	}
	if e.workers <= 0 {
		e.workers = 4
	}
	return e
}

// Extract reads every page in parallel and summarises the structure for the analyzer.
func (e *Extractor) Extract(ctx context.Context, jobID string, data []byte) (*Document, error) {
	if n, err := e.counter(data); err != nil {
		log.Warn().Err(err).Str("job_id", jobID).Msg("pdfcpu could not read document, trying text backends")
	} else {
		log.Debug().Str("job_id", jobID).Int("pages", n).Msg("pdfcpu page count")
	}

	doc, backend, err := e.open(data)
	if err != nil {
		return nil, err
	}
	defer doc.Close()

	n := doc.NumPage()
	if n <= 0 {
		return nil, fmt.Errorf("%w: no pages", ErrUnreadable)
	}

	infos := make([]PageInfo, n)
	texts := make([]string, n)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			p, err := doc.Page(i)
			if err != nil {
				log.Warn().Err(err).Str("job_id", jobID).Int("page", i+1).Msg("failed to read page")
				infos[i] = PageInfo{Index: i}
				return nil
			}
			defer p.Close()
			text, err := p.Text()
			if err != nil {
				log.Warn().Err(err).Str("job_id", jobID).Int("page", i+1).Msg("failed to extract text from page")
			}
			markup, _ := p.HTML()
			texts[i] = strings.TrimSpace(text)
			infos[i] = AnalyzePage(i, texts[i], markup)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &Document{Pages: n, PageInfo: infos, Backend: backend}
	out.Text = joinPages(texts)
	out.Structure, out.Layout = summarise(infos)
	if out.Structure.Chars == 0 {
		return nil, ErrNoText
	}

	if e.detector != nil {
		f, err := e.detector.Analyze(ctx, jobID, data, n)
		if err != nil {
			log.Warn().Err(err).Str("job_id", jobID).Msg("layout detection failed, keeping local heuristics")
		} else {
			out.Structure.Tables = max(out.Structure.Tables, f.Tables)
			out.Structure.FormFields = max(out.Structure.FormFields, f.FormFields)
		}
	}

	log.Info().Str("job_id", jobID).Str("backend", backend).Int("pages", n).
		Int("chars", out.Structure.Chars).Int("columns", out.Structure.Columns).
		Int("tables", out.Structure.Tables).Int("form_fields", out.Structure.FormFields).
		Msg("document extracted")
	return out, nil
}

func (e *Extractor) open(data []byte) (Doc, string, error) {
	doc, err := e.opener.Open(data)
	if err == nil {
		return doc, "mupdf", nil
	}
	doc, ferr := e.fallback.Open(data)
	if ferr == nil {
		log.Warn().Err(err).Msg("mupdf failed to open document, using plain text reader")
		return doc, "plain", nil
	}
	return nil, "", fmt.Errorf("%w: %w", ErrUnreadable, errors.Join(err, ferr))
}

func joinPages(texts []string) string {
	parts := make([]string, 0, len(texts))
	for _, t := range texts {
		if t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n\n")
}

func summarise(infos []PageInfo) (analyzer.Structure, Layout) {
	s := analyzer.Structure{Pages: len(infos)}
	var lay Layout
	var fonts []string
	var sizes []float64
	for _, p := range infos {
		s.Columns = max(s.Columns, p.Columns)
		s.Tables += p.Tables
		s.FormFields += p.FormFields
		s.Chars += p.Chars
		if lay.PageWidth == 0 && p.Width > 0 && p.Height > 0 {
			lay.PageWidth, lay.PageHeight = p.Width, p.Height
		}
		for _, l := range p.Lines {
			fonts = append(fonts, l.Font)
			sizes = append(sizes, l.FontSize)
		}
	}
	lay.FontFamily = dominant(fonts)
	lay.FontSize = dominant(sizes)
	return s, lay
}
