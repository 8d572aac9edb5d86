package logger

import (
    "context"
    "encoding/json"
    "fmt"
    "io"
    "os"
    "path/filepath"
    "sync"
    "time"

    "github.com/axiomhq/axiom-go/axiom"
    "github.com/axiomhq/axiom-go/axiom/ingest"
    "github.com/rs/zerolog"
    "github.com/rs/zerolog/log"
    lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Options defines logger initialization parameters.
type Options struct {
    Service      string
    Level        string
    Pretty       bool
    File         string
    MaxSizeMB    int
    MaxBackups   int
    MaxAgeDays   int
    Compress     bool

    // Axiom
    SendToAxiom  bool
    AxiomAPIKey  string
    AxiomOrgID   string
    AxiomDataset string
    AxiomFlush   time.Duration

    // Stdout replaces os.Stdout; tests point it at a buffer.
    Stdout       io.Writer
}

var (
    mu     sync.Mutex
    global zerolog.Logger = zerolog.Nop()
    ax     *axiomClient
    rot    *lumberjack.Logger
)

// Init sets up global logger: file rotation, console or JSON stdout, optional Axiom forwarding.
func Init(opts Options) error {
    mu.Lock()
    defer mu.Unlock()

    if opts.Service == "" { opts.Service = "contractedit" }
    stdout := opts.Stdout
    if stdout == nil { stdout = os.Stdout }

    var writers []io.Writer

    if opts.File != "" {
        if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
            return fmt.Errorf("create logs dir: %w", err)
        }
        rot = &lumberjack.Logger{
            Filename:   opts.File,
            MaxSize:    opts.MaxSizeMB,
            MaxBackups: opts.MaxBackups,
            MaxAge:     opts.MaxAgeDays,
            Compress:   opts.Compress,
        }
        writers = append(writers, rot)
    }

    if opts.Pretty {
        writers = append(writers, zerolog.ConsoleWriter{Out: stdout, TimeFormat: time.RFC3339})
    } else {
        writers = append(writers, stdout)
    }

    // Optional Axiom writer (info+)
    if opts.SendToAxiom && opts.AxiomAPIKey != "" {
        client, err := newAxiomClient(opts.AxiomAPIKey, opts.AxiomOrgID, opts.AxiomDataset, opts.AxiomFlush)
        if err != nil {
            fmt.Fprintf(os.Stderr, "Axiom disabled: %v\n", err)
        } else {
            ax = client
            writers = append(writers, &axiomWriter{client: client, service: opts.Service})
        }
    }

    zerolog.TimeFieldFormat = time.RFC3339
    lvl, err := zerolog.ParseLevel(opts.Level)
    if err != nil || opts.Level == "" {
        lvl = zerolog.InfoLevel
    }

    global = zerolog.New(io.MultiWriter(writers...)).
        Level(lvl).
        With().Timestamp().Str("service", opts.Service).
        Logger()
    log.Logger = global
    return nil
}

// Close flushes Axiom and closes the rotating file.
func Close() {
    mu.Lock()
    defer mu.Unlock()
    if ax != nil {
        _ = ax.Close()
        ax = nil
    }
    if rot != nil {
        _ = rot.Close()
        rot = nil
    }
}

// Get returns the global logger.
func Get() *zerolog.Logger { return &global }

// ForJob returns a child logger tagged with the job id.
func ForJob(jobID string) zerolog.Logger {
    return log.With().Str("job_id", jobID).Logger()
}

// axiomWriter forwards zerolog JSON lines to Axiom (dropping debug level).
type axiomWriter struct {
    client  *axiomClient
    service string
}

func (w *axiomWriter) Write(p []byte) (int, error) {
    var ev map[string]interface{}
    if err := json.Unmarshal(p, &ev); err != nil {
        ev = map[string]interface{}{"message": string(p), "level": "info"}
    }
    if lvl, ok := ev["level"].(string); ok && (lvl == "debug" || lvl == "trace") {
        return len(p), nil
    }
    ev["service"] = w.service
    if _, ok := ev[ingest.TimestampField]; !ok {
        ev[ingest.TimestampField] = time.Now()
    }
    w.client.Send(axiom.Event(ev))
    return len(p), nil
}

// Minimal Axiom batching client
type axiomClient struct {
    client  *axiom.Client
    dataset string
    ch      chan axiom.Event
    wg      sync.WaitGroup
    ctx     context.Context
    cancel  context.CancelFunc
}

func newAxiomClient(token, orgID, dataset string, flushEvery time.Duration) (*axiomClient, error) {
    if dataset == "" { dataset = "dev_contractedit" }
    opts := []axiom.Option{axiom.SetToken(token)}
    if orgID != "" { opts = append(opts, axiom.SetOrganizationID(orgID)) }
    c, err := axiom.NewClient(opts...)
    if err != nil { return nil, err }
    ctx, cancel := context.WithCancel(context.Background())
    ac := &axiomClient{
        client:  c,
        dataset: dataset,
        ch:      make(chan axiom.Event, 1000),
        ctx:     ctx,
        cancel:  cancel,
    }
    if flushEvery <= 0 { flushEvery = 10 * time.Second }
    ac.wg.Add(1)
    go ac.loop(flushEvery)
    return ac, nil
}

func (a *axiomClient) Send(ev axiom.Event) {
    select {
    case a.ch <- ev:
    default:
        // drop if buffer full
    }
}

func (a *axiomClient) loop(flushEvery time.Duration) {
    defer a.wg.Done()
    ticker := time.NewTicker(flushEvery)
    defer ticker.Stop()
    batch := make([]axiom.Event, 0, 200)
    flush := func() {
        if len(batch) == 0 { return }
        ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
        _, _ = a.client.IngestEvents(ctx, a.dataset, batch)
        cancel()
        batch = batch[:0]
    }
    for {
        select {
        case <-a.ctx.Done():
            for {
                select {
                case ev := <-a.ch:
                    batch = append(batch, ev)
                default:
                    flush()
                    return
                }
            }
        case <-ticker.C:
            flush()
        case ev := <-a.ch:
            batch = append(batch, ev)
            if len(batch) >= 200 { flush() }
        }
    }
}

func (a *axiomClient) Close() error {
    a.cancel()
    a.wg.Wait()
    return nil
}
