package main

import (
    "context"
    "errors"
    "net/http"
    "os/signal"
    "syscall"
    "time"

    awsconfig "github.com/aws/aws-sdk-go-v2/config"
    "github.com/aws/aws-sdk-go-v2/credentials"
    "github.com/aws/aws-sdk-go-v2/service/textract"
    "github.com/pdfcpu/pdfcpu/pkg/api"
    "github.com/rs/zerolog/log"

    "github.com/local/contractedit/internal/ai"
    "github.com/local/contractedit/internal/analyzer"
    cfgpkg "github.com/local/contractedit/internal/config"
    "github.com/local/contractedit/internal/engine"
    "github.com/local/contractedit/internal/extract"
    "github.com/local/contractedit/internal/limiter"
    logpkg "github.com/local/contractedit/internal/logger"
    mpkg "github.com/local/contractedit/internal/metrics"
    "github.com/local/contractedit/internal/orchestrator"
    "github.com/local/contractedit/internal/render"
    "github.com/local/contractedit/internal/retry"
    "github.com/local/contractedit/internal/statuscheck"
    "github.com/local/contractedit/internal/storage"
    "github.com/local/contractedit/internal/store"
    "github.com/local/contractedit/internal/warmup"
)

func main() {
    cfg := cfgpkg.Load()

    // Init logging
    _ = logpkg.Init(logpkg.Options{
        Level:        cfg.Logging.Level,
        Pretty:       cfg.Logging.Pretty,
        File:         cfg.Logging.File,
        MaxSizeMB:    cfg.Logging.MaxSizeMB,
        MaxBackups:   cfg.Logging.MaxBackups,
        MaxAgeDays:   cfg.Logging.MaxAgeDays,
        Compress:     cfg.Logging.Compress,
        SendToAxiom:  cfg.Axiom.Send && cfg.Axiom.APIKey != "",
        AxiomAPIKey:  cfg.Axiom.APIKey,
        AxiomOrgID:   cfg.Axiom.OrgID,
        AxiomDataset: cfg.Axiom.Dataset,
        AxiomFlush:   cfg.Axiom.FlushInterval,
    })
    defer logpkg.Close()

    if err := cfg.Validate(); err != nil {
        log.Fatal().Err(err).Msg("invalid configuration")
    }
    mpkg.Init()
    api.DisableConfigDir()

    ctx, stopSignals := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
    defer stopSignals()

    // AWS
    awsOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Model.Region)}
    if cfg.Model.AccessKey != "" && cfg.Model.SecretKey != "" {
        awsOpts = append(awsOpts, awsconfig.WithCredentialsProvider(
            credentials.NewStaticCredentialsProvider(cfg.Model.AccessKey, cfg.Model.SecretKey, "")))
    }
    awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsOpts...)
    if err != nil {
        log.Fatal().Err(err).Msg("failed to load aws config")
    }
    if cfg.Model.Provider == "bedrock" && cfg.Model.AccessKey == "" {
        log.Warn().Msg("AWS_ACCESS_KEY_ID not set, relying on the default credential chain")
    }

    // Model
    var client ai.Client
    switch cfg.Model.Provider {
    case "openai":
        client = ai.NewOpenAIClient(cfg.Model.Endpoint, cfg.Model.APIKey)
    default:
        client = ai.NewBedrockClient(awsCfg)
    }
    lim := limiter.New(cfg.Worker.MaxWorkers)
    policy := retry.Policy{
        MaxAttempts: cfg.Worker.RetryMaxAttempts,
        BaseDelay:   cfg.Worker.RetryBaseDelay,
        Factor:      cfg.Worker.RetryBackoffFactor,
        MaxDelay:    cfg.Worker.RetryMaxDelay,
        Jitter:      cfg.Worker.RetryJitter,
    }
    var sched *warmup.Scheduler
    invoker := ai.NewInvoker(ai.InvokerOptions{
        Client:  client,
        Limiter: lim,
        Policy:  policy,
        Model:   cfg.Model.ModelID,
        Params: ai.Params{
            MaxTokens:   cfg.Model.MaxTokens,
            Temperature: cfg.Model.Temperature,
            TopP:        cfg.Model.TopP,
            TopK:        cfg.Model.TopK,
        },
        Timeout: cfg.Worker.RequestTimeout,
        OnActivity: func() {
            if sched != nil {
                sched.Touch()
            }
        },
    })

    // Warmup
    if cfg.Warmup.Enabled {
        sched = warmup.New(warmup.Options{
            Interval:     cfg.WarmupInterval(),
            InitialDelay: cfg.Warmup.InitialDelay,
            Pinger:       invoker,
            Policy:       policy,
        })
        sched.Start(ctx)
        defer sched.Stop()
    }

    // Extraction, with optional Textract layout detection
    extOpts := extract.Options{}
    var stager *storage.S3Stager
    if cfg.Textract.Enabled {
        stager, err = storage.NewS3Stager(awsCfg, cfg.Textract.Bucket)
        if err != nil {
            log.Fatal().Err(err).Msg("failed to init textract staging bucket")
        }
        extOpts.Detector = extract.NewTextractAnalyzer(textract.NewFromConfig(awsCfg), stager, cfg.Textract.PollEvery, cfg.Textract.MaxWait)
    }

    // Reconstruction
    office := render.NewLibreOffice(cfg.Render.SofficeBin, cfg.Render.Workers, cfg.Render.Timeout)
    if v, err := office.CheckInstallation(ctx); err != nil {
        log.Warn().Err(err).Msg("libreoffice unavailable, PDFs will use the plain text renderer")
    } else {
        log.Info().Str("version", v).Msg("libreoffice found")
    }

    // Optional Redis status mirror
    var observer engine.Observer
    var redisStatus *store.RedisStatus
    if cfg.Redis.Enabled {
        redisStatus, err = store.NewRedisStatus(cfg.Redis.URL, cfg.Jobs.Retention)
        if err != nil {
            log.Fatal().Err(err).Msg("failed to init redis status store")
        }
        defer redisStatus.Close()
        observer = redisStatus
    }

    eng, err := engine.New(engine.Options{
        Extractor:            extract.New(extOpts),
        Analyzer:             analyzer.New(analyzer.Options{}),
        Editor:               invoker,
        Reconstructor:        &render.Reconstructor{Primary: office, Fallback: render.NewTextPDF()},
        Limiter:              lim,
        Observer:             observer,
        ChunkSize:            cfg.Chunking.Size,
        ChunkOverlap:         cfg.Chunking.Overlap,
        MaxWorkers:           cfg.Worker.MaxWorkers,
        JobConcurrency:       cfg.Worker.JobConcurrency,
        QueueSize:            cfg.Worker.QueueSize,
        FailedChunkThreshold: cfg.Worker.FailedChunkThreshold,
        Retention:            cfg.Jobs.Retention,
        CleanupInterval:      cfg.Jobs.CleanupInterval,
    })
    if err != nil {
        log.Fatal().Err(err).Msg("failed to init engine")
    }
    eng.Start()
    defer eng.Stop()

    // Health checks
    checkOpts := statuscheck.Options{
        LibreOffice: office.CheckInstallation,
        Credentials: awsCfg.Credentials,
        Provider:    cfg.Model.Provider,
    }
    if redisStatus != nil {
        checkOpts.Redis = redisStatus
    }
    if stager != nil {
        checkOpts.S3 = stager
    }

    deps := orchestrator.Dependencies{
        Engine:                eng,
        Health:                statuscheck.New(checkOpts),
        Region:                cfg.Model.Region,
        WarmupIntervalMinutes: cfg.Warmup.IntervalMinutes,
        MaxUploadBytes:        int64(cfg.HTTP.MaxUploadMB) << 20,
    }
    if sched != nil {
        deps.Warmup = sched
    }
    mux := http.NewServeMux()
    orchestrator.New(deps).RegisterRoutes(mux)

    srv := &http.Server{Addr: ":" + cfg.HTTP.Port, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
    go func() {
        log.Info().Str("provider", invoker.Provider()).Str("model", invoker.Model()).Msgf("HTTP server listening on :%s", cfg.HTTP.Port)
        if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
            log.Error().Err(err).Msg("http server error")
            stopSignals()
        }
    }()

    // Graceful shutdown
    <-ctx.Done()
    shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
    defer cancel()
    _ = srv.Shutdown(shutdownCtx)
    log.Info().Msg("shutdown complete")
}
