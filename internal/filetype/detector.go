package filetype

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"
)

const PDF = "application/pdf"

// FileTypeInfo contains detected file type information
type FileTypeInfo struct {
	MIMEType    string
	Extension   string
	Supported   bool
	Description string
}

// Detector handles file type detection using magic bytes
type Detector struct{}

// New creates a new file type detector
func New() *Detector {
	return &Detector{}
}

// Detect sniffs the upload's real type from its magic bytes, not its filename.
// Only PDF is supported.
func (d *Detector) Detect(data []byte, filename string) *FileTypeInfo {
	mtype := mimetype.Detect(data)
	info := &FileTypeInfo{
		MIMEType:  mtype.String(),
		Extension: mtype.Extension(),
	}

	// mimetype reports parameters for some types, e.g. "text/plain; charset=utf-8"
	base := info.MIMEType
	if i := strings.IndexByte(base, ';'); i >= 0 {
		base = strings.TrimSpace(base[:i])
	}

	switch {
	case mtype.Is(PDF):
		info.Supported = true
		info.Description = "PDF document"
		if ext := strings.ToLower(filepath.Ext(filename)); ext != "" && ext != ".pdf" {
			log.Warn().Str("file", filename).Msg("PDF uploaded with a non-pdf extension")
		}
	case base == "application/x-ole-storage" || base == "application/zip":
		info.Description = fmt.Sprintf("Office or archive file (%s); convert to PDF first", base)
	default:
		info.Description = fmt.Sprintf("Unsupported file type: %s", base)
	}

	log.Debug().Str("mime", info.MIMEType).Str("ext", info.Extension).Str("file", filename).
		Bool("supported", info.Supported).Msg("detected file type")
	return info
}
