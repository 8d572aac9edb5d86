package extract

import (
	fitz "github.com/gen2brain/go-fitz"
)

// Doc abstracts a PDF document for text extraction.
type Doc interface {
	NumPage() int
	Page(i int) (Page, error)
	Close() error
}

// Page abstracts a single PDF page.
type Page interface {
	Text() (string, error)
	// HTML returns positioned markup for the page, or "" when the backend has none.
	HTML() (string, error)
	Close()
}

// Opener abstracts opening PDF bytes into a Doc.
type Opener interface {
	Open(data []byte) (Doc, error)
}

// FitzOpener implements Opener using github.com/gen2brain/go-fitz.
type FitzOpener struct{}

func (FitzOpener) Open(data []byte) (Doc, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, err
	}
	return fitzDoc{doc}, nil
}

// --- Adapters ---

type fitzDoc struct{ *fitz.Document }

func (d fitzDoc) Page(i int) (Page, error) {
	text, err := d.Document.Text(i)
	if err != nil {
		return nil, err
	}
	html, err := d.Document.HTML(i, false)
	if err != nil {
		html = ""
	}
	return &staticPage{text: text, html: html}, nil
}

type staticPage struct {
	text string
	html string
}

func (p *staticPage) Text() (string, error) { return p.text, nil }
func (p *staticPage) HTML() (string, error) { return p.html, nil }
func (p *staticPage) Close()                {}
