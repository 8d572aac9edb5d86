package extract

import (
	"bytes"
	"fmt"

	"github.com/ledongthuc/pdf"
)

// PlainOpener reads text with github.com/ledongthuc/pdf. It has no geometry,
// so pages come back without HTML. Used when MuPDF rejects a document.
type PlainOpener struct{}

func (PlainOpener) Open(data []byte) (Doc, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	return plainDoc{r}, nil
}

type plainDoc struct{ r *pdf.Reader }

func (d plainDoc) NumPage() int { return d.r.NumPage() }

func (d plainDoc) Page(i int) (Page, error) {
	p := d.r.Page(i + 1)
	if p.V.IsNull() {
		return nil, fmt.Errorf("page %d missing", i+1)
	}
	text, err := p.GetPlainText(nil)
	if err != nil {
		return nil, fmt.Errorf("text page %d: %w", i+1, err)
	}
	return &staticPage{text: text}, nil
}

func (d plainDoc) Close() error { return nil }
