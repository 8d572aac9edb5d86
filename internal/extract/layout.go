package extract

import (
	"html"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Line is one positioned run of text on a page, in points from the top-left corner.
type Line struct {
	Top      float64
	Left     float64
	Text     string
	FontSize float64
	Font     string
	Bold     bool
}

// PageInfo is what the heuristics learned about one page.
type PageInfo struct {
	Index      int
	Width      float64
	Height     float64
	Chars      int
	Columns    int
	Tables     int
	FormFields int
	Lines      []Line
}

var (
	paraRe     = regexp.MustCompile(`(?s)<p\b([^>]*)>(.*?)</p>`)
	topRe      = regexp.MustCompile(`top:\s*(-?[\d.]+)pt`)
	leftRe     = regexp.MustCompile(`left:\s*(-?[\d.]+)pt`)
	sizeRe     = regexp.MustCompile(`font-size:\s*([\d.]+)pt`)
	familyRe   = regexp.MustCompile(`font-family:\s*([^;"]+)`)
	pageDimRe  = regexp.MustCompile(`width:\s*([\d.]+)pt;\s*height:\s*([\d.]+)pt`)
	boldRe     = regexp.MustCompile(`<b>|font-weight:\s*bold`)
	tagRe      = regexp.MustCompile(`<[^>]+>`)
	formMarkRe = regexp.MustCompile(`_{4,}|\[\s?\]|☐|☑|☒|\.{8,}`)
)

const (
	// rowTolerance groups lines whose tops differ by less than this into one visual row.
	rowTolerance = 2.0
	minColumnRun = 15
	minSplitRows = 5
)

// ParseHTML reads positioned lines and page size from MuPDF page HTML.
func ParseHTML(markup string) (lines []Line, width, height float64) {
	if m := pageDimRe.FindStringSubmatch(markup); m != nil {
		width, _ = strconv.ParseFloat(m[1], 64)
		height, _ = strconv.ParseFloat(m[2], 64)
	}
	for _, m := range paraRe.FindAllStringSubmatch(markup, -1) {
		attrs, inner := m[1], m[2]
		text := strings.TrimSpace(html.UnescapeString(tagRe.ReplaceAllString(inner, "")))
		if text == "" {
			continue
		}
		l := Line{Text: text, Bold: boldRe.MatchString(inner)}
		if t := topRe.FindStringSubmatch(attrs); t != nil {
			l.Top, _ = strconv.ParseFloat(t[1], 64)
		}
		if t := leftRe.FindStringSubmatch(attrs); t != nil {
			l.Left, _ = strconv.ParseFloat(t[1], 64)
		}
		if t := sizeRe.FindStringSubmatch(inner); t != nil {
			l.FontSize, _ = strconv.ParseFloat(t[1], 64)
		}
		if t := familyRe.FindStringSubmatch(inner); t != nil {
			l.Font = strings.Trim(strings.TrimSpace(strings.Split(t[1], ",")[0]), `'`)
		}
		lines = append(lines, l)
	}
	return lines, width, height
}

// AnalyzePage runs the column, table and form heuristics over one page.
func AnalyzePage(index int, text, markup string) PageInfo {
	lines, w, h := ParseHTML(markup)
	info := PageInfo{
		Index:      index,
		Width:      w,
		Height:     h,
		Chars:      utf8.RuneCountInString(strings.TrimSpace(text)),
		Lines:      lines,
		FormFields: countFormFields(text),
	}
	if info.Chars > 0 {
		info.Columns = 1
	}
	if len(lines) == 0 {
		return info
	}
	if info.Width <= 0 {
		for _, l := range lines {
			info.Width = math.Max(info.Width, l.Left+float64(utf8.RuneCountInString(l.Text))*5)
		}
	}

	rows := groupRows(lines)
	if isTwoColumn(rows, info.Width) {
		info.Columns = 2
	}
	info.Tables = countTables(rows)
	return info
}

func groupRows(lines []Line) [][]Line {
	sorted := make([]Line, len(lines))
	copy(sorted, lines)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Top < sorted[j].Top })

	var rows [][]Line
	for _, l := range sorted {
		n := len(rows)
		if n > 0 && l.Top-rows[n-1][0].Top < rowTolerance {
			rows[n-1] = append(rows[n-1], l)
			continue
		}
		rows = append(rows, []Line{l})
	}
	for _, row := range rows {
		sort.SliceStable(row, func(i, j int) bool { return row[i].Left < row[j].Left })
	}
	return rows
}

// isTwoColumn looks for many rows with substantial text on both halves of the page.
func isTwoColumn(rows [][]Line, width float64) bool {
	if width <= 0 || len(rows) < minSplitRows {
		return false
	}
	split := 0
	for _, row := range rows {
		if len(row) != 2 {
			continue
		}
		left, right := row[0], row[1]
		if left.Left < width*0.35 && right.Left >= width*0.5 &&
			utf8.RuneCountInString(left.Text) >= minColumnRun && utf8.RuneCountInString(right.Text) >= minColumnRun {
			split++
		}
	}
	return split >= minSplitRows && float64(split) >= 0.4*float64(len(rows))
}

// countTables counts runs of at least two consecutive rows with three or more cells.
func countTables(rows [][]Line) int {
	tables, run := 0, 0
	for _, row := range rows {
		if len(row) >= 3 {
			run++
			if run == 2 {
				tables++
			}
			continue
		}
		run = 0
	}
	return tables
}

func countFormFields(text string) int {
	n := 0
	for _, line := range strings.Split(text, "\n") {
		if formMarkRe.MatchString(line) {
			n++
		}
	}
	return n
}

// dominant returns the most common non-zero value. Ties go to whichever reached the count first.
func dominant[T comparable](vals []T) T {
	var zero, best T
	counts := make(map[T]int)
	bestN := 0
	for _, v := range vals {
		if v == zero {
			continue
		}
		counts[v]++
		if counts[v] > bestN {
			best, bestN = v, counts[v]
		}
	}
	return best
}
