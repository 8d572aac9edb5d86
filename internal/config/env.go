package config

import (
    "errors"
    "fmt"
    "os"
    "strconv"
    "strings"
    "time"

    "github.com/joho/godotenv"
)

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
    Level        string
    Pretty       bool
    File         string
    MaxSizeMB    int
    MaxBackups   int
    MaxAgeDays   int
    Compress     bool
}

// AxiomConfig holds Axiom logging configuration.
type AxiomConfig struct {
    Send          bool
    APIKey        string
    OrgID         string
    Dataset       string
    FlushInterval time.Duration
}

// ModelConfig identifies the inference endpoint and the fixed generation parameters.
type ModelConfig struct {
    Provider     string // "bedrock"|"openai"
    Region       string
    ModelID      string
    Endpoint     string // openai-compatible base URL
    APIKey       string
    AccessKey    string
    SecretKey    string
    MaxTokens    int
    Temperature  float64
    TopP         float64
    TopK         int
}

// ChunkingConfig controls how document text is windowed.
type ChunkingConfig struct {
    Size    int
    Overlap int
}

// WorkerConfig defines worker behavior and limits.
type WorkerConfig struct {
    MaxWorkers           int
    JobConcurrency       int
    QueueSize            int
    RequestTimeout       time.Duration
    RetryMaxAttempts     int
    RetryBaseDelay       time.Duration
    RetryMaxDelay        time.Duration
    RetryJitter          time.Duration
    RetryBackoffFactor   float64
    FailedChunkThreshold float64
}

// WarmupConfig controls the background warmup loop.
type WarmupConfig struct {
    Enabled         bool
    IntervalMinutes int
    InitialDelay    time.Duration
}

// JobsConfig controls in-memory job retention.
type JobsConfig struct {
    Retention       time.Duration
    CleanupInterval time.Duration
}

// RedisConfig configures the optional status mirror.
type RedisConfig struct {
    Enabled bool
    URL     string
}

// TextractConfig configures optional structural analysis.
type TextractConfig struct {
    Enabled     bool
    Bucket      string
    PollEvery   time.Duration
    MaxWait     time.Duration
}

// RenderConfig configures PDF reconstruction.
type RenderConfig struct {
    SofficeBin string
    Timeout    time.Duration
    Workers    int
}

// HTTPConfig configures the HTTP listener.
type HTTPConfig struct {
    Port        string
    MaxUploadMB int
}

// Config is the top-level configuration.
type Config struct {
    Logging  LoggingConfig
    Axiom    AxiomConfig
    Model    ModelConfig
    Chunking ChunkingConfig
    Worker   WorkerConfig
    Warmup   WarmupConfig
    Jobs     JobsConfig
    Redis    RedisConfig
    Textract TextractConfig
    Render   RenderConfig
    HTTP     HTTPConfig
}

// Load reads an optional .env file and then the environment.
func Load() Config {
    if f := getEnv("ENV_FILE", ".env"); fileExists(f) {
        _ = godotenv.Load(f)
    }
    return FromEnv()
}

// FromEnv loads configuration from environment with sensible defaults.
func FromEnv() Config {
    cfg := Config{}

    // Logging defaults
    cfg.Logging = LoggingConfig{
        Level:      getEnv("LOG_LEVEL", "info"),
        Pretty:     parseBool(getEnv("LOG_PRETTY", devDefaultPretty())),
        File:       getEnv("LOG_FILE", "logs/contractedit.log"),
        MaxSizeMB:  parseInt(getEnv("LOG_MAX_SIZE_MB", "100"), 100),
        MaxBackups: parseInt(getEnv("LOG_MAX_BACKUPS", "10"), 10),
        MaxAgeDays: parseInt(getEnv("LOG_MAX_AGE_DAYS", "30"), 30),
        Compress:   parseBool(getEnv("LOG_COMPRESS", "true")),
    }

    // Axiom defaults
    baseDataset := getEnv("AXIOM_DATASET", "dev")
    cfg.Axiom = AxiomConfig{
        Send:          parseBool(getEnv("SEND_LOGS_TO_AXIOM", "0")),
        APIKey:        getEnv("AXIOM_API_KEY", ""),
        OrgID:         getEnv("AXIOM_ORG_ID", ""),
        Dataset:       baseDataset + "_contractedit",
        FlushInterval: parseDuration(getEnv("AXIOM_FLUSH_INTERVAL", "10s"), 10*time.Second),
    }

    // Model defaults
    cfg.Model = ModelConfig{
        Provider:    strings.ToLower(getEnv("MODEL_PROVIDER", "bedrock")),
        Region:      getEnv("AWS_REGION", "us-east-1"),
        ModelID:     getEnv("BEDROCK_MODEL_ID", "mistral.mistral-8b-instruct-v1:0"),
        Endpoint:    getEnv("MODEL_ENDPOINT", "http://localhost:8000/v1"),
        APIKey:      getEnv("MODEL_API_KEY", ""),
        AccessKey:   getEnv("AWS_ACCESS_KEY_ID", ""),
        SecretKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
        MaxTokens:   parseInt(getEnv("MODEL_MAX_TOKENS", "4000"), 4000),
        Temperature: parseFloat(getEnv("MODEL_TEMPERATURE", "0.4"), 0.4),
        TopP:        parseFloat(getEnv("MODEL_TOP_P", "0.7"), 0.7),
        TopK:        parseInt(getEnv("MODEL_TOP_K", "50"), 50),
    }

    cfg.Chunking = ChunkingConfig{
        Size:    parseInt(getEnv("CHUNK_SIZE", "25000"), 25000),
        Overlap: parseInt(getEnv("CHUNK_OVERLAP", "5000"), 5000),
    }

    // Worker defaults
    cfg.Worker = WorkerConfig{
        MaxWorkers:           parseInt(getEnv("MAX_WORKERS", "5"), 5),
        JobConcurrency:       parseInt(getEnv("JOB_CONCURRENCY", "2"), 2),
        QueueSize:            parseInt(getEnv("JOB_QUEUE_SIZE", "100"), 100),
        RequestTimeout:       parseDuration(getEnv("REQUEST_TIMEOUT", "60s"), 60*time.Second),
        RetryMaxAttempts:     parseInt(getEnv("RETRY_MAX_ATTEMPTS", "4"), 4),
        RetryBaseDelay:       parseDuration(getEnv("RETRY_BASE_DELAY", "1s"), time.Second),
        RetryMaxDelay:        parseDuration(getEnv("RETRY_MAX_DELAY", "30s"), 30*time.Second),
        RetryJitter:          parseDuration(getEnv("RETRY_JITTER", "200ms"), 200*time.Millisecond),
        RetryBackoffFactor:   parseFloat(getEnv("RETRY_BACKOFF_FACTOR", "2.0"), 2.0),
        FailedChunkThreshold: parseFloat(getEnv("FAILED_CHUNK_THRESHOLD", "0.5"), 0.5),
    }

    cfg.Warmup = WarmupConfig{
        Enabled:         parseBool(getEnv("WARMUP_ENABLED", "true")),
        IntervalMinutes: parseInt(getEnv("WARMUP_INTERVAL_MINUTES", "15"), 15),
        InitialDelay:    parseDuration(getEnv("WARMUP_INITIAL_DELAY", "30s"), 30*time.Second),
    }

    cfg.Jobs = JobsConfig{
        Retention:       parseDuration(getEnv("JOB_RETENTION", "1h"), time.Hour),
        CleanupInterval: parseDuration(getEnv("JOB_CLEANUP_INTERVAL", "5m"), 5*time.Minute),
    }

    cfg.Redis = RedisConfig{
        Enabled: parseBool(getEnv("REDIS_STATUS_MIRROR", "0")),
        URL:     getEnv("REDIS_URL", "redis://localhost:6379"),
    }

    cfg.Textract = TextractConfig{
        Enabled:   parseBool(getEnv("TEXTRACT_ENABLED", "0")),
        Bucket:    getEnv("TEXTRACT_STAGING_BUCKET", ""),
        PollEvery: parseDuration(getEnv("TEXTRACT_POLL_INTERVAL", "2s"), 2*time.Second),
        MaxWait:   parseDuration(getEnv("TEXTRACT_MAX_WAIT", "3m"), 3*time.Minute),
    }

    cfg.Render = RenderConfig{
        SofficeBin: getEnv("SOFFICE_BIN", "soffice"),
        Timeout:    parseDuration(getEnv("RENDER_TIMEOUT", "180s"), 180*time.Second),
        Workers:    parseInt(getEnv("RENDER_WORKERS", "2"), 2),
    }

    cfg.HTTP = HTTPConfig{
        Port:        getEnv("PORT", "5001"),
        MaxUploadMB: parseInt(getEnv("MAX_UPLOAD_MB", "100"), 100),
    }

    return cfg
}

// Validate rejects settings the pipeline cannot run with.
func (c Config) Validate() error {
    var errs []error
    if c.Chunking.Size <= 0 {
        errs = append(errs, fmt.Errorf("CHUNK_SIZE must be positive, got %d", c.Chunking.Size))
    }
    if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.Size {
        errs = append(errs, fmt.Errorf("CHUNK_OVERLAP must be in [0, CHUNK_SIZE), got %d", c.Chunking.Overlap))
    }
    if c.Worker.MaxWorkers <= 0 {
        errs = append(errs, fmt.Errorf("MAX_WORKERS must be positive, got %d", c.Worker.MaxWorkers))
    }
    if c.Worker.FailedChunkThreshold < 0 || c.Worker.FailedChunkThreshold > 1 {
        errs = append(errs, fmt.Errorf("FAILED_CHUNK_THRESHOLD must be within [0,1], got %g", c.Worker.FailedChunkThreshold))
    }
    if c.Warmup.IntervalMinutes <= 0 {
        errs = append(errs, fmt.Errorf("WARMUP_INTERVAL_MINUTES must be positive, got %d", c.Warmup.IntervalMinutes))
    }
    switch c.Model.Provider {
    case "bedrock", "openai":
    default:
        errs = append(errs, fmt.Errorf("unknown MODEL_PROVIDER %q", c.Model.Provider))
    }
    if c.Textract.Enabled && c.Textract.Bucket == "" {
        errs = append(errs, errors.New("TEXTRACT_ENABLED requires TEXTRACT_STAGING_BUCKET"))
    }
    return errors.Join(errs...)
}

// WarmupInterval returns the warmup interval as a duration.
func (c Config) WarmupInterval() time.Duration {
    return time.Duration(c.Warmup.IntervalMinutes) * time.Minute
}

// Helpers
func getEnv(key, def string) string {
    if v := os.Getenv(key); v != "" {
        return v
    }
    return def
}

func parseInt(s string, def int) int {
    if s == "" { return def }
    if n, err := strconv.Atoi(s); err == nil { return n }
    return def
}

func parseFloat(s string, def float64) float64 {
    if s == "" { return def }
    if f, err := strconv.ParseFloat(s, 64); err == nil { return f }
    return def
}

func parseBool(s string) bool {
    v := strings.ToLower(strings.TrimSpace(s))
    return v == "1" || v == "true" || v == "yes" || v == "on"
}

func parseDuration(s string, def time.Duration) time.Duration {
    if s == "" { return def }
    if d, err := time.ParseDuration(s); err == nil { return d }
    return def
}

func devDefaultPretty() string {
    env := strings.ToLower(os.Getenv("ENVIRONMENT"))
    if env == "dev" || env == "development" || env == "local" { return "true" }
    return "false"
}

func fileExists(p string) bool {
    st, err := os.Stat(p)
    return err == nil && !st.IsDir()
}
