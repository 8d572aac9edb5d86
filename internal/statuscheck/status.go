package statuscheck

import (
    "context"
    "errors"
    "fmt"
    "time"

    "github.com/aws/aws-sdk-go-v2/aws"
)

// Pinger models the minimal capability we need from Redis and the staging bucket.
type Pinger interface {
    Ping(ctx context.Context) error
}

// Checker aggregates health checks for the external dependencies of the pipeline.
type Checker struct {
    redis       Pinger
    s3          Pinger
    libreOffice func(ctx context.Context) (string, error)
    credentials aws.CredentialsProvider
    provider    string
}

// Options configures the Checker. Nil dependencies are reported as disabled.
type Options struct {
    Redis       Pinger
    S3          Pinger
    LibreOffice func(ctx context.Context) (string, error)
    // Credentials are checked when Provider is "bedrock".
    Credentials aws.CredentialsProvider
    Provider    string
}

// Status represents the readiness of a subsystem.
type Status struct {
    OK      bool   `json:"ok"`
    Message string `json:"message"`
}

// Summary bundles all subsystem statuses.
type Summary struct {
    Redis       Status `json:"redis"`
    S3          Status `json:"s3"`
    LibreOffice Status `json:"libreoffice"`
    Model       Status `json:"model"`
}

// Healthy reports whether every subsystem is OK.
func (s Summary) Healthy() bool {
    return s.Redis.OK && s.S3.OK && s.LibreOffice.OK && s.Model.OK
}

// New creates a new Checker with the provided options.
func New(opts Options) *Checker {
    return &Checker{
        redis:       opts.Redis,
        s3:          opts.S3,
        libreOffice: opts.LibreOffice,
        credentials: opts.Credentials,
        provider:    opts.Provider,
    }
}

var disabled = Status{OK: true, Message: "Disabled"}

// Summary returns the current status snapshot.
func (c *Checker) Summary(ctx context.Context) Summary {
    return Summary{
        Redis:       c.ping(ctx, c.redis),
        S3:          c.ping(ctx, c.s3),
        LibreOffice: c.checkLibreOffice(ctx),
        Model:       c.checkModel(ctx),
    }
}

func (c *Checker) ping(ctx context.Context, p Pinger) Status {
    if p == nil {
        return disabled
    }
    ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
    defer cancel()
    if err := p.Ping(ctx); err != nil {
        return Status{OK: false, Message: trimError(err)}
    }
    return Status{OK: true, Message: "Connected"}
}

func (c *Checker) checkLibreOffice(ctx context.Context) Status {
    if c.libreOffice == nil {
        return disabled
    }
    v, err := c.libreOffice(ctx)
    if err != nil {
        return Status{OK: false, Message: trimError(err)}
    }
    return Status{OK: true, Message: v}
}

func (c *Checker) checkModel(ctx context.Context) Status {
    if c.provider != "bedrock" {
        return Status{OK: true, Message: fmt.Sprintf("Provider %s", c.provider)}
    }
    if c.credentials == nil {
        return Status{OK: false, Message: "AWS credentials not configured"}
    }
    ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
    defer cancel()
    creds, err := c.credentials.Retrieve(ctx)
    if err != nil {
        return Status{OK: false, Message: trimError(err)}
    }
    if !creds.HasKeys() {
        return Status{OK: false, Message: "AWS credentials empty"}
    }
    return Status{OK: true, Message: "Credentials loaded from " + creds.Source}
}

func trimError(err error) string {
    if err == nil {
        return ""
    }
    var netErr interface{ Timeout() bool }
    if errors.As(err, &netErr) && netErr.Timeout() {
        return "timeout"
    }
    msg := err.Error()
    if len(msg) > 120 {
        return msg[:120]
    }
    return msg
}
