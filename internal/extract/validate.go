package extract

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// ErrUnreadable is returned when no backend can read the document.
var ErrUnreadable = errors.New("unreadable pdf")

// PageCount returns the number of pages pdfcpu sees in data.
func PageCount(data []byte) (int, error) {
	if len(data) == 0 {
		return 0, fmt.Errorf("%w: empty document", ErrUnreadable)
	}
	n, err := api.PageCount(bytes.NewReader(data), nil)
	if err != nil {
		return 0, fmt.Errorf("pdf page count failed: %w", err)
	}
	return n, nil
}

// Validate checks that data is a PDF with at least one page.
func Validate(data []byte) (int, error) {
	n, err := PageCount(data)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("%w: no pages", ErrUnreadable)
	}
	return n, nil
}
