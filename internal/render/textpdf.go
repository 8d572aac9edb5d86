package render

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// Letter portrait, in points.
const (
	pageWidth  = 612.0
	pageHeight = 792.0
	margin     = 54.0
)

// TextPDF lays plain text out on Letter pages with the pdfcpu create API.
// It keeps the words but none of the source styling.
type TextPDF struct {
	FontName string
	FontSize int
	// Columns is the wrap width in characters.
	Columns int
}

func NewTextPDF() *TextPDF {
	return &TextPDF{FontName: "Helvetica", FontSize: 10, Columns: 95}
}

func (t *TextPDF) Name() string { return "textpdf" }

type createDoc struct {
	Paper string                `json:"paper"`
	Pages map[string]createPage `json:"pages"`
}

type createPage struct {
	Content createContent `json:"content"`
}

type createContent struct {
	Text []createText `json:"text"`
}

type createText struct {
	Value string     `json:"value"`
	Pos   [2]float64 `json:"pos"`
	Font  createFont `json:"font"`
}

type createFont struct {
	Name string `json:"name"`
	Size int    `json:"size"`
}

func (t *TextPDF) Render(ctx context.Context, in Input) ([]byte, error) {
	if strings.TrimSpace(in.Text) == "" {
		return nil, errors.New("nothing to render")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	js, err := json.Marshal(t.layout(in))
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := api.Create(nil, bytes.NewReader(js), &out, nil); err != nil {
		return nil, fmt.Errorf("pdfcpu create: %w", err)
	}
	return out.Bytes(), nil
}

func (t *TextPDF) layout(in Input) createDoc {
	leading := float64(t.FontSize) * 1.3
	perPage := int((pageHeight - 2*margin) / leading)

	var lines []createText
	if in.Title != "" {
		lines = append(lines, createText{Value: asciiFold(in.Title), Font: createFont{Name: t.FontName + "-Bold", Size: t.FontSize + 2}}, createText{})
	}
	for _, l := range Wrap(in.Text, t.Columns) {
		lines = append(lines, createText{Value: asciiFold(l), Font: createFont{Name: t.FontName, Size: t.FontSize}})
	}

	doc := createDoc{Paper: "Letter", Pages: map[string]createPage{}}
	for i := 0; i < len(lines); i += perPage {
		end := min(i+perPage, len(lines))
		var content createContent
		for j, l := range lines[i:end] {
			if l.Value == "" {
				continue
			}
			l.Pos = [2]float64{margin, pageHeight - margin - float64(j+1)*leading}
			content.Text = append(content.Text, l)
		}
		doc.Pages[strconv.Itoa(i/perPage+1)] = createPage{Content: content}
	}
	return doc
}

// Wrap breaks text into lines of at most width runes, keeping blank lines.
// Words longer than width are split.
func Wrap(text string, width int) []string {
	var out []string
	for _, para := range strings.Split(text, "\n") {
		words := strings.Fields(para)
		if len(words) == 0 {
			out = append(out, "")
			continue
		}
		var cur []rune
		for _, w := range words {
			wr := []rune(w)
			for len(wr) > width {
				if len(cur) > 0 {
					out = append(out, string(cur))
					cur = nil
				}
				out = append(out, string(wr[:width]))
				wr = wr[width:]
			}
			switch {
			case len(cur) == 0:
				cur = append(cur, wr...)
			case len(cur)+1+len(wr) <= width:
				cur = append(append(cur, ' '), wr...)
			default:
				out = append(out, string(cur))
				cur = append([]rune(nil), wr...)
			}
		}
		if len(cur) > 0 {
			out = append(out, string(cur))
		}
	}
	return out
}

var fold = strings.NewReplacer("“", `"`, "”", `"`, "‘", "'", "’", "'", "–", "-", "—", "-", "…", "...", " ", " ")

// asciiFold replaces typographic punctuation the core fonts cannot encode.
func asciiFold(s string) string { return fold.Replace(s) }
