package orchestrator

import (
    "bytes"
    "context"
    "encoding/base64"
    "encoding/json"
    "mime/multipart"
    "net/http"
    "net/http/httptest"
    "testing"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/local/contractedit/internal/engine"
    "github.com/local/contractedit/internal/statuscheck"
    "github.com/local/contractedit/internal/warmup"
)

type fakeEngine struct {
    submitErr   error
    submitted   []byte
    instruction string
    snaps       map[string]engine.Snapshot
    results     map[string]engine.ResultView
    deleted     []string
}

func (f *fakeEngine) Submit(ctx context.Context, doc []byte, instruction string) (string, error) {
    if f.submitErr != nil {
        return "", f.submitErr
    }
    f.submitted, f.instruction = doc, instruction
    return "job-1", nil
}

func (f *fakeEngine) Get(id string) (engine.Snapshot, error) {
    s, ok := f.snaps[id]
    if !ok {
        return engine.Snapshot{}, engine.ErrNotFound
    }
    return s, nil
}

func (f *fakeEngine) Result(id string) (engine.ResultView, error) {
    s, ok := f.snaps[id]
    if !ok {
        return engine.ResultView{}, engine.ErrNotFound
    }
    if r, ok := f.results[id]; ok {
        return r, nil
    }
    return engine.ResultView{ID: id, Status: s.State}, engine.ErrNotReady
}

func (f *fakeEngine) Delete(id string) error {
    if _, ok := f.snaps[id]; !ok {
        return engine.ErrNotFound
    }
    f.deleted = append(f.deleted, id)
    return nil
}

func (f *fakeEngine) Stats() engine.Stats { return engine.Stats{QueueCapacity: 100, Runners: 2} }

type fakeWarmup struct{}

func (fakeWarmup) Stats() warmup.Stats { return warmup.Stats{Running: true, TotalWarmups: 3} }
func (fakeWarmup) Running() bool       { return true }

type fakeHealth struct{ s statuscheck.Summary }

func (f fakeHealth) Summary(context.Context) statuscheck.Summary { return f.s }

func newServer(t *testing.T, e *fakeEngine, maxBytes int64) *httptest.Server {
    t.Helper()
    mux := http.NewServeMux()
    New(Dependencies{Engine: e, Warmup: fakeWarmup{}, Region: "us-east-1", WarmupIntervalMinutes: 5, MaxUploadBytes: maxBytes}).RegisterRoutes(mux)
    srv := httptest.NewServer(mux)
    t.Cleanup(srv.Close)
    return srv
}

func multipartBody(t *testing.T, file []byte, instruction string) (*bytes.Buffer, string) {
    t.Helper()
    var buf bytes.Buffer
    mw := multipart.NewWriter(&buf)
    fw, err := mw.CreateFormFile("file", "contract.pdf")
    require.NoError(t, err)
    _, err = fw.Write(file)
    require.NoError(t, err)
    if instruction != "" {
        require.NoError(t, mw.WriteField("instruction", instruction))
    }
    require.NoError(t, mw.Close())
    return &buf, mw.FormDataContentType()
}

var samplePDF = []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\n%%EOF\n")

func decode(t *testing.T, resp *http.Response) map[string]any {
    t.Helper()
    defer resp.Body.Close()
    var m map[string]any
    require.NoError(t, json.NewDecoder(resp.Body).Decode(&m))
    return m
}

func TestUploadQueuesJob(t *testing.T) {
    e := &fakeEngine{}
    srv := newServer(t, e, 0)
    body, ct := multipartBody(t, samplePDF, "rename the buyer")

    resp, err := http.Post(srv.URL+"/upload", ct, body)
    require.NoError(t, err)
    assert.Equal(t, http.StatusAccepted, resp.StatusCode)
    m := decode(t, resp)
    assert.Equal(t, "job-1", m["job_id"])
    assert.Equal(t, "queued", m["status"])
    assert.Equal(t, samplePDF, e.submitted)
    assert.Equal(t, "rename the buyer", e.instruction)
}

func TestUploadRejections(t *testing.T) {
    cases := []struct {
        name        string
        file        []byte
        instruction string
        max         int64
        submitErr   error
        want        int
    }{
        {"not a pdf", []byte("just some plain text"), "edit", 0, nil, http.StatusUnsupportedMediaType},
        {"missing instruction", samplePDF, "", 0, nil, http.StatusBadRequest},
        {"too large", bytes.Repeat([]byte("x"), 4096), "edit", 1024, nil, http.StatusRequestEntityTooLarge},
        {"queue full", samplePDF, "edit", 0, engine.ErrQueueFull, http.StatusServiceUnavailable},
        {"engine stopped", samplePDF, "edit", 0, engine.ErrStopped, http.StatusServiceUnavailable},
    }
    for _, tc := range cases {
        t.Run(tc.name, func(t *testing.T) {
            mux := http.NewServeMux()
            New(Dependencies{Engine: &fakeEngine{submitErr: tc.submitErr}, MaxUploadBytes: tc.max}).RegisterRoutes(mux)
            body, ct := multipartBody(t, tc.file, tc.instruction)
            req := httptest.NewRequest(http.MethodPost, "/upload", body)
            req.Header.Set("Content-Type", ct)
            rec := httptest.NewRecorder()
            mux.ServeHTTP(rec, req)
            assert.Equal(t, tc.want, rec.Code)
        })
    }
}

func TestUploadRequiresPost(t *testing.T) {
    srv := newServer(t, &fakeEngine{}, 0)
    resp, err := http.Get(srv.URL + "/upload")
    require.NoError(t, err)
    resp.Body.Close()
    assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestStatusAndResult(t *testing.T) {
    e := &fakeEngine{
        snaps: map[string]engine.Snapshot{
            "run":  {ID: "run", State: engine.Processing, Progress: 40, Message: "Processing"},
            "done": {ID: "done", State: engine.Completed, Progress: 100},
            "bad":  {ID: "bad", State: engine.Failed, Progress: 40},
        },
        results: map[string]engine.ResultView{
            "done": {ID: "done", Status: engine.Completed, Text: "edited", PDF: []byte("%PDF")},
            "bad":  {ID: "bad", Status: engine.Failed, Message: "3 of 3 chunks failed"},
        },
    }
    srv := newServer(t, e, 0)

    resp, err := http.Get(srv.URL + "/job_status/run")
    require.NoError(t, err)
    assert.Equal(t, http.StatusOK, resp.StatusCode)
    m := decode(t, resp)
    assert.Equal(t, "processing", m["status"])
    assert.EqualValues(t, 40, m["progress"])

    resp, err = http.Get(srv.URL + "/job_status/nope")
    require.NoError(t, err)
    resp.Body.Close()
    assert.Equal(t, http.StatusNotFound, resp.StatusCode)

    resp, err = http.Get(srv.URL + "/job_result/run")
    require.NoError(t, err)
    assert.Equal(t, http.StatusAccepted, resp.StatusCode)
    m = decode(t, resp)
    assert.EqualValues(t, 40, m["progress"])

    resp, err = http.Get(srv.URL + "/job_result/done")
    require.NoError(t, err)
    assert.Equal(t, http.StatusOK, resp.StatusCode)
    m = decode(t, resp)
    assert.Equal(t, "completed", m["status"])
    assert.Equal(t, "edited", m["response"])
    assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("%PDF")), m["pdf_base64"])

    resp, err = http.Get(srv.URL + "/job_result/bad")
    require.NoError(t, err)
    assert.Equal(t, http.StatusOK, resp.StatusCode)
    m = decode(t, resp)
    assert.Equal(t, "failed", m["status"])
    assert.Equal(t, "3 of 3 chunks failed", m["message"])
    assert.NotContains(t, m, "pdf_base64")

    resp, err = http.Get(srv.URL + "/job_result/nope")
    require.NoError(t, err)
    resp.Body.Close()
    assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDeleteJob(t *testing.T) {
    e := &fakeEngine{snaps: map[string]engine.Snapshot{"a": {ID: "a", State: engine.Completed}}}
    srv := newServer(t, e, 0)

    req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/job/a", nil)
    resp, err := http.DefaultClient.Do(req)
    require.NoError(t, err)
    resp.Body.Close()
    assert.Equal(t, http.StatusOK, resp.StatusCode)
    assert.Equal(t, []string{"a"}, e.deleted)

    req, _ = http.NewRequest(http.MethodDelete, srv.URL+"/job/b", nil)
    resp, err = http.DefaultClient.Do(req)
    require.NoError(t, err)
    resp.Body.Close()
    assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealthReportsDegradedChecks(t *testing.T) {
    mux := http.NewServeMux()
    sum := statuscheck.Summary{
        Redis:       statuscheck.Status{OK: false, Message: "timeout"},
        S3:          statuscheck.Status{OK: true},
        LibreOffice: statuscheck.Status{OK: true},
        Model:       statuscheck.Status{OK: true},
    }
    New(Dependencies{Engine: &fakeEngine{}, Health: fakeHealth{sum}, Region: "eu-west-1"}).RegisterRoutes(mux)
    rec := httptest.NewRecorder()
    mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

    require.Equal(t, http.StatusOK, rec.Code)
    var m map[string]any
    require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
    assert.Equal(t, "degraded", m["status"])
    assert.Equal(t, "eu-west-1", m["aws_region"])
    assert.Equal(t, "disabled", m["warmup_scheduler"])
    assert.Contains(t, m, "checks")
}

func TestWarmupStatsAndQueue(t *testing.T) {
    srv := newServer(t, &fakeEngine{}, 0)

    resp, err := http.Get(srv.URL + "/warmup/stats")
    require.NoError(t, err)
    m := decode(t, resp)
    assert.Equal(t, "success", m["status"])
    assert.EqualValues(t, 5, m["interval_minutes"])
    assert.EqualValues(t, 3, m["stats"].(map[string]any)["total_warmups"])

    resp, err = http.Get(srv.URL + "/debug/queue")
    require.NoError(t, err)
    m = decode(t, resp)
    assert.EqualValues(t, 100, m["queue_capacity"])
}
