package engine

import (
	"errors"
	"time"

	"github.com/local/contractedit/internal/analyzer"
	"github.com/local/contractedit/internal/strategy"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrQueueFull    = errors.New("job queue is full")
	ErrNotFound     = errors.New("job not found")
	ErrNotReady     = errors.New("job not finished")
	ErrStopped      = errors.New("job engine stopped")
)

// State is a job's position in the pipeline.
type State int

const (
	Queued State = iota
	Analyzing
	Strategizing
	Chunking
	Processing
	Merging
	Reconstructing
	Completed
	Failed
)

var stateNames = [...]string{
	Queued:         "queued",
	Analyzing:      "analyzing",
	Strategizing:   "strategizing",
	Chunking:       "chunking",
	Processing:     "processing",
	Merging:        "merging",
	Reconstructing: "reconstructing",
	Completed:      "completed",
	Failed:         "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Terminal reports whether no further transitions are allowed.
func (s State) Terminal() bool { return s == Completed || s == Failed }

// Progress percentages at each stage entry.
const (
	progressAnalyzing      = 10
	progressStrategizing   = 25
	progressChunking       = 35
	progressProcessing     = 40
	progressProcessingEnd  = 85
	progressMerging        = 88
	progressReconstructing = 92
	progressCompleted      = 100
)

// Snapshot is an immutable copy of a job's state.
type Snapshot struct {
	ID          string           `json:"job_id"`
	State       State            `json:"status"`
	Progress    int              `json:"progress"`
	Message     string           `json:"message"`
	TotalChunks int              `json:"total_chunks"`
	Completed   int              `json:"completed_chunks"`
	Failed      int              `json:"failed_chunks"`
	Skipped     int              `json:"skipped_chunks"`
	Notes       []string         `json:"notes,omitempty"`
	Analysis    *analyzer.Result `json:"analysis,omitempty"`
	Strategy    strategy.Tag     `json:"strategy,omitempty"`
	Renderer    string           `json:"renderer,omitempty"`
	Error       string           `json:"error,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	StartedAt   *time.Time       `json:"started_at,omitempty"`
	FinishedAt  *time.Time       `json:"finished_at,omitempty"`

	Text string `json:"-"`
	PDF  []byte `json:"-"`
}

func (s Snapshot) clone() Snapshot {
	if s.Notes != nil {
		s.Notes = append([]string(nil), s.Notes...)
	}
	return s
}

// StatusView is what a status poll returns.
type StatusView struct {
	ID       string `json:"job_id"`
	Status   State  `json:"status"`
	Progress int    `json:"progress"`
	Message  string `json:"message"`
}

// ResultView is the outcome of a terminal job. Failed jobs carry only Message.
type ResultView struct {
	ID      string
	Status  State
	Text    string
	PDF     []byte
	Message string
}
