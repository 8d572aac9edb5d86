package render

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// LibreOffice converts the generated HTML to PDF with a headless soffice.
type LibreOffice struct {
	bin       string
	timeout   time.Duration
	semaphore chan struct{}
	// run executes soffice; tests replace it.
	run func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewLibreOffice creates a renderer that allows maxWorkers concurrent conversions.
func NewLibreOffice(bin string, maxWorkers int, timeout time.Duration) *LibreOffice {
	if bin == "" {
		bin = "soffice"
	}
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	if timeout <= 0 {
		timeout = 180 * time.Second // Default 3 minutes
	}
	return &LibreOffice{
		bin:       bin,
		timeout:   timeout,
		semaphore: make(chan struct{}, maxWorkers),
		run:       runCommand,
	}
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

func (l *LibreOffice) Name() string { return "libreoffice" }

// CheckInstallation verifies soffice is available and returns its version.
func (l *LibreOffice) CheckInstallation(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()
	out, err := l.run(ctx, l.bin, "--headless", "--version")
	if err != nil {
		return "", fmt.Errorf("LibreOffice not found: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

func (l *LibreOffice) Render(ctx context.Context, in Input) ([]byte, error) {
	markup, err := BuildHTML(in)
	if err != nil {
		return nil, err
	}

	// Acquire semaphore to limit concurrent conversions
	select {
	case l.semaphore <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-l.semaphore }()

	workDir, err := os.MkdirTemp("", "contractedit-render-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create work directory: %w", err)
	}
	defer os.RemoveAll(workDir)

	input := filepath.Join(workDir, "document.html")
	if err := os.WriteFile(input, []byte(markup), 0o600); err != nil {
		return nil, fmt.Errorf("failed to write html: %w", err)
	}

	// Unique profile directory so parallel conversions don't fight over the lock
	profileDir := filepath.Join(workDir, "profile")
	args := []string{
		"-env:UserInstallation=file://" + profileDir,
		"--headless",
		"--norestore",
		"--nologo",
		"--nolockcheck",
		"--convert-to", "pdf:writer_web_pdf_Export",
		"--outdir", workDir,
		input,
	}

	runCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	start := time.Now()
	log.Debug().Str("job_id", in.JobID).Str("cmd", l.bin+" "+strings.Join(args, " ")).Msg("LibreOffice command")

	out, err := l.run(runCtx, l.bin, args...)
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return nil, fmt.Errorf("conversion timeout after %v", l.timeout)
	}
	if err != nil {
		return nil, fmt.Errorf("conversion failed: %w: %s", err, strings.TrimSpace(string(out)))
	}

	pdf, err := os.ReadFile(filepath.Join(workDir, "document.pdf"))
	if err != nil {
		return nil, fmt.Errorf("output file not created: %w", err)
	}
	log.Debug().Str("job_id", in.JobID).Dur("duration", time.Since(start)).Int("bytes", len(pdf)).Msg("conversion successful")
	return pdf, nil
}
