package render

import (
	"context"
	"strings"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/contractedit/internal/extract"
)

func TestMain(m *testing.M) {
	api.DisableConfigDir()
	m.Run()
}

func TestWrap(t *testing.T) {
	assert.Equal(t, []string{"aaa bbb", "ccc", "", "dd"}, Wrap("aaa bbb ccc\n\ndd", 7))
	assert.Equal(t, []string{"x", "abcde", "fghij", "k y"}, Wrap("x abcdefghijk y", 5))
	for _, l := range Wrap(strings.Repeat("word ", 200), 40) {
		assert.LessOrEqual(t, len([]rune(l)), 40)
	}
}

func TestTextPDFLayoutPaginates(t *testing.T) {
	tp := NewTextPDF()
	text := strings.Repeat("A line of contract text.\n", 120)
	doc := tp.layout(Input{Title: "Agreement", Text: text})
	assert.Equal(t, "Letter", doc.Paper)
	require.Len(t, doc.Pages, 3)
	first := doc.Pages["1"].Content.Text
	assert.Equal(t, "Agreement", first[0].Value)
	assert.Equal(t, "Helvetica-Bold", first[0].Font.Name)
	assert.Greater(t, first[0].Pos[1], first[1].Pos[1])
	for _, tx := range first {
		assert.GreaterOrEqual(t, tx.Pos[1], margin)
	}
}

func TestTextPDFRendersValidPDF(t *testing.T) {
	pdf, err := NewTextPDF().Render(context.Background(), Input{Title: "Agreement", Text: "1. The term is “twelve” months.\n\n2. Payment within 30 days."})
	require.NoError(t, err)
	n, err := extract.Validate(pdf)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestTextPDFRejectsEmptyText(t *testing.T) {
	_, err := NewTextPDF().Render(context.Background(), Input{Text: "  \n "})
	assert.Error(t, err)
}
