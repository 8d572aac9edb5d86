package render

import (
	"bytes"
	"fmt"
	"html/template"
	"regexp"
	"strings"
	"unicode"

	"github.com/local/contractedit/internal/extract"
	"github.com/local/contractedit/internal/strategy"
)

// Block kinds, also used as CSS classes.
const (
	kindHeading   = "heading"
	kindClause    = "clause"
	kindSignature = "signature"
	kindIndent    = "indent"
	kindPara      = "para"
	kindTable     = "table"
)

type block struct {
	Kind string
	Text string
	Rows [][]string
}

var (
	headingRe   = regexp.MustCompile(`^(ARTICLE|SECTION|SCHEDULE|EXHIBIT|ANNEX|APPENDIX)\b`)
	clauseRe    = regexp.MustCompile(`^(\d+(\.\d+)*[.)]?|\([a-zA-Z0-9]{1,4}\)|[a-z][.)])\s+\S`)
	signatureRe = regexp.MustCompile(`(?i)^(signature|signed|by|name|title|date)\s*:|_{4,}`)
	cellSepRe   = regexp.MustCompile(`\t+| {2,}`)
	fontNameRe  = regexp.MustCompile(`^[A-Za-z0-9 \-]+$`)
)

var page = template.Must(template.New("doc").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>{{.CSS}}</style>
</head>
<body class="{{.Tag}}">
{{range .Blocks}}{{if eq .Kind "table"}}<table>
{{range .Rows}}<tr>{{range .}}<td>{{.}}</td>{{end}}</tr>
{{end}}</table>
{{else if eq .Kind "heading"}}<h2 class="heading">{{.Text}}</h2>
{{else}}<p class="{{.Kind}}">{{.Text}}</p>
{{end}}{{end}}</body>
</html>
`))

// BuildHTML lays out the edited text as HTML styled for the strategy tag.
func BuildHTML(in Input) (string, error) {
	title := in.Title
	if title == "" {
		title = "Contract"
	}
	var buf bytes.Buffer
	err := page.Execute(&buf, struct {
		Title  string
		CSS    template.CSS
		Tag    string
		Blocks []block
	}{
		Title:  title,
		CSS:    template.CSS(stylesheet(in.Tag, in.Layout)),
		Tag:    string(in.Tag),
		Blocks: blocks(in.Text, wantsTables(in.Tag)),
	})
	if err != nil {
		return "", fmt.Errorf("build html: %w", err)
	}
	return buf.String(), nil
}

func wantsTables(tag strategy.Tag) bool {
	return tag == strategy.TableFocusedProcessing || tag == strategy.HybridProcessing
}

func stylesheet(tag strategy.Tag, l extract.Layout) string {
	w, h := l.PageWidth, l.PageHeight
	if w <= 0 || h <= 0 {
		w, h = 612, 792
	}
	font := l.FontFamily
	if font == "" || !fontNameRe.MatchString(font) {
		font = "Times New Roman"
	}
	size := l.FontSize
	if size < 6 || size > 24 {
		size = 11
	}

	var b strings.Builder
	fmt.Fprintf(&b, "@page { size: %.0fpt %.0fpt; margin: 54pt; }\n", w, h)
	fmt.Fprintf(&b, "body { font-family: %q, serif; font-size: %.1fpt; line-height: 1.35; }\n", font, size)
	b.WriteString("p { margin: 0 0 6pt 0; text-align: justify; }\n")
	b.WriteString(".heading { font-size: 1.15em; font-weight: bold; text-align: center; margin: 12pt 0 6pt 0; }\n")
	b.WriteString(".clause { margin-left: 0; }\n")
	b.WriteString(".indent { margin-left: 24pt; }\n")

	switch tag {
	case strategy.TableFocusedProcessing:
		b.WriteString(tableCSS)
	case strategy.ColumnAwareProcessing:
		b.WriteString("body { column-count: 2; column-gap: 18pt; }\n.heading { column-span: all; }\n")
	case strategy.FormPreservingProcessing:
		b.WriteString(formCSS)
	case strategy.HybridProcessing:
		b.WriteString(tableCSS)
		b.WriteString(formCSS)
	case strategy.StandardExtraction:
	}
	return b.String()
}

const tableCSS = "table { border-collapse: collapse; width: 100%; margin: 6pt 0; }\ntd { border: 0.5pt solid #444; padding: 2pt 4pt; vertical-align: top; }\n"

const formCSS = ".signature { border-bottom: 0.75pt solid #000; min-height: 18pt; margin-top: 14pt; }\n"

// blocks groups lines into headings, clauses, signature lines, indented
// lines, tables and running paragraphs.
func blocks(text string, tables bool) []block {
	var out []block
	var para []string
	flush := func() {
		if len(para) > 0 {
			out = append(out, block{Kind: kindPara, Text: strings.Join(para, " ")})
			para = nil
		}
	}

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			flush()
			continue
		}
		if tables {
			if cells := tableCells(line); cells != nil {
				flush()
				if n := len(out); n > 0 && out[n-1].Kind == kindTable {
					out[n-1].Rows = append(out[n-1].Rows, cells)
				} else {
					out = append(out, block{Kind: kindTable, Rows: [][]string{cells}})
				}
				continue
			}
		}
		kind := classifyLine(raw, line)
		if kind == kindPara {
			para = append(para, line)
			continue
		}
		flush()
		out = append(out, block{Kind: kind, Text: line})
	}
	flush()
	return out
}

func classifyLine(raw, line string) string {
	switch {
	case signatureRe.MatchString(line):
		return kindSignature
	case headingRe.MatchString(line) || isCapsHeading(line):
		return kindHeading
	case clauseRe.MatchString(line):
		return kindClause
	case strings.HasPrefix(raw, "\t") || strings.HasPrefix(raw, "  "):
		return kindIndent
	}
	return kindPara
}

func isCapsHeading(line string) bool {
	if len([]rune(line)) > 80 {
		return false
	}
	letters := 0
	for _, r := range line {
		if unicode.IsLetter(r) {
			if !unicode.IsUpper(r) {
				return false
			}
			letters++
		}
	}
	return letters >= 3
}

func tableCells(line string) []string {
	parts := cellSepRe.Split(line, -1)
	if len(parts) < 3 {
		return nil
	}
	return parts
}
