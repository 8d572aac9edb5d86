// Package orchestrator exposes the contract editing engine over HTTP.
package orchestrator

import (
    "context"
    "encoding/base64"
    "encoding/json"
    "errors"
    "io"
    "net/http"
    "strings"

    "github.com/rs/zerolog/log"

    "github.com/local/contractedit/internal/engine"
    "github.com/local/contractedit/internal/filetype"
    mpkg "github.com/local/contractedit/internal/metrics"
    "github.com/local/contractedit/internal/statuscheck"
    "github.com/local/contractedit/internal/warmup"
)

// Engine is the job lifecycle the handlers drive.
type Engine interface {
    Submit(ctx context.Context, doc []byte, instruction string) (string, error)
    Get(id string) (engine.Snapshot, error)
    Result(id string) (engine.ResultView, error)
    Delete(id string) error
    Stats() engine.Stats
}

// Warmup reports on the keep-warm scheduler.
type Warmup interface {
    Stats() warmup.Stats
    Running() bool
}

type Health interface {
    Summary(ctx context.Context) statuscheck.Summary
}

type Dependencies struct {
    Engine Engine
    Warmup Warmup
    Health Health
    Region string
    // WarmupIntervalMinutes is reported by /warmup/stats.
    WarmupIntervalMinutes int
    MaxUploadBytes        int64
}

type Orchestrator struct {
    deps     Dependencies
    detector *filetype.Detector
}

func New(deps Dependencies) *Orchestrator {
    if deps.MaxUploadBytes <= 0 {
        deps.MaxUploadBytes = 100 << 20
    }
    return &Orchestrator{deps: deps, detector: filetype.New()}
}

func (o *Orchestrator) RegisterRoutes(mux *http.ServeMux) {
    mux.HandleFunc("/upload", o.handleUpload)
    mux.HandleFunc("/job_status/", o.handleStatus)
    mux.HandleFunc("/job_result/", o.handleResult)
    mux.HandleFunc("/job/", o.handleDelete)
    mux.HandleFunc("/health", o.handleHealth)
    mux.HandleFunc("/warmup/stats", o.handleWarmupStats)
    mux.HandleFunc("/debug/queue", o.handleQueue)
    mux.Handle("/metrics", mpkg.Handler())
}

type errorResp struct {
    Error string `json:"error"`
}

type uploadResp struct {
    JobID   string `json:"job_id"`
    Status  string `json:"status"`
    Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
    w.Header().Set("Content-Type", "application/json")
    w.WriteHeader(code)
    _ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
    writeJSON(w, code, errorResp{Error: msg})
}

func (o *Orchestrator) handleUpload(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost { writeError(w, http.StatusMethodNotAllowed, "method not allowed"); return }
    r.Body = http.MaxBytesReader(w, r.Body, o.deps.MaxUploadBytes)
    if err := r.ParseMultipartForm(32 << 20); err != nil {
        var tooLarge *http.MaxBytesError
        if errors.As(err, &tooLarge) {
            writeError(w, http.StatusRequestEntityTooLarge, "file too large"); return
        }
        writeError(w, http.StatusBadRequest, "invalid multipart form"); return
    }
    file, hdr, err := r.FormFile("file")
    if err != nil { writeError(w, http.StatusBadRequest, "no file provided"); return }
    defer file.Close()
    data, err := io.ReadAll(file)
    if err != nil { writeError(w, http.StatusBadRequest, "could not read upload"); return }
    if len(data) == 0 { writeError(w, http.StatusBadRequest, "empty file"); return }

    info := o.detector.Detect(data, hdr.Filename)
    if !info.Supported {
        log.Warn().Str("filename", hdr.Filename).Str("mime", info.MIMEType).Msg("rejected unsupported upload")
        writeError(w, http.StatusUnsupportedMediaType, "only PDF files are supported, got "+info.Description)
        return
    }
    instruction := strings.TrimSpace(r.FormValue("instruction"))
    if instruction == "" { writeError(w, http.StatusBadRequest, "no editing instruction provided"); return }

    id, err := o.deps.Engine.Submit(r.Context(), data, instruction)
    switch {
    case errors.Is(err, engine.ErrQueueFull), errors.Is(err, engine.ErrStopped):
        writeError(w, http.StatusServiceUnavailable, "server busy, try again later"); return
    case errors.Is(err, engine.ErrInvalidInput):
        writeError(w, http.StatusBadRequest, err.Error()); return
    case err != nil:
        log.Error().Err(err).Msg("submit failed")
        writeError(w, http.StatusInternalServerError, "could not queue job"); return
    }
    log.Info().Str("job_id", id).Str("filename", hdr.Filename).Int("bytes", len(data)).Msg("upload accepted")
    writeJSON(w, http.StatusAccepted, uploadResp{JobID: id, Status: engine.Queued.String(), Message: "Document queued for editing"})
}

func (o *Orchestrator) handleStatus(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet { writeError(w, http.StatusMethodNotAllowed, "method not allowed"); return }
    id := strings.TrimPrefix(r.URL.Path, "/job_status/")
    s, err := o.deps.Engine.Get(id)
    if err != nil { writeError(w, http.StatusNotFound, "job not found"); return }
    writeJSON(w, http.StatusOK, s)
}

func (o *Orchestrator) handleResult(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet { writeError(w, http.StatusMethodNotAllowed, "method not allowed"); return }
    id := strings.TrimPrefix(r.URL.Path, "/job_result/")
    res, err := o.deps.Engine.Result(id)
    switch {
    case errors.Is(err, engine.ErrNotFound):
        writeError(w, http.StatusNotFound, "job not found")
    case errors.Is(err, engine.ErrNotReady):
        s, gerr := o.deps.Engine.Get(id)
        if gerr != nil { writeError(w, http.StatusNotFound, "job not found"); return }
        writeJSON(w, http.StatusAccepted, map[string]any{
            "job_id":   id,
            "status":   s.State,
            "progress": s.Progress,
            "message":  "Job not completed yet",
        })
    case err != nil:
        writeError(w, http.StatusInternalServerError, err.Error())
    case res.Status == engine.Failed:
        writeJSON(w, http.StatusOK, map[string]any{"job_id": id, "status": res.Status, "message": res.Message})
    default:
        writeJSON(w, http.StatusOK, map[string]any{
            "job_id":     id,
            "status":     res.Status,
            "response":   res.Text,
            "pdf_base64": base64.StdEncoding.EncodeToString(res.PDF),
        })
    }
}

func (o *Orchestrator) handleDelete(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodDelete { writeError(w, http.StatusMethodNotAllowed, "method not allowed"); return }
    id := strings.TrimPrefix(r.URL.Path, "/job/")
    if err := o.deps.Engine.Delete(id); err != nil { writeError(w, http.StatusNotFound, "job not found"); return }
    writeJSON(w, http.StatusOK, map[string]any{"job_id": id, "status": "deleted"})
}

func (o *Orchestrator) handleHealth(w http.ResponseWriter, r *http.Request) {
    resp := map[string]any{"status": "healthy", "aws_region": o.deps.Region}
    switch {
    case o.deps.Warmup == nil:
        resp["warmup_scheduler"] = "disabled"
    case o.deps.Warmup.Running():
        resp["warmup_scheduler"] = "running"
    default:
        resp["warmup_scheduler"] = "stopped"
    }
    if o.deps.Health != nil {
        sum := o.deps.Health.Summary(r.Context())
        resp["checks"] = sum
        if !sum.Healthy() {
            resp["status"] = "degraded"
        }
    }
    writeJSON(w, http.StatusOK, resp)
}

func (o *Orchestrator) handleWarmupStats(w http.ResponseWriter, r *http.Request) {
    if o.deps.Warmup == nil {
        writeJSON(w, http.StatusOK, map[string]any{"status": "disabled"}); return
    }
    writeJSON(w, http.StatusOK, map[string]any{
        "status":           "success",
        "interval_minutes": o.deps.WarmupIntervalMinutes,
        "stats":            o.deps.Warmup.Stats(),
    })
}

func (o *Orchestrator) handleQueue(w http.ResponseWriter, r *http.Request) {
    writeJSON(w, http.StatusOK, o.deps.Engine.Stats())
}
