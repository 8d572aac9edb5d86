package metrics

import (
    "net/http"
    "sync"
    "time"

    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
    modelReqs = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "contractedit",
            Name:      "model_requests_total",
            Help:      "Total model invocations by provider, model and result",
        },
        []string{"provider", "model", "result"},
    )

    modelLatency = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{
            Namespace: "contractedit",
            Name:      "model_request_duration_seconds",
            Help:      "Duration of model invocations by provider and model",
            Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 40, 60, 120},
        },
        []string{"provider", "model"},
    )

    retriesTotal = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "contractedit",
            Name:      "retries_total",
            Help:      "Retries by error kind",
        },
        []string{"kind"},
    )

    chunksProcessed = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "contractedit",
            Name:      "chunks_processed_total",
            Help:      "Chunks processed by result (modified, unchanged, skipped, failed)",
        },
        []string{"result"},
    )

    jobsTotal = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "contractedit",
            Name:      "jobs_total",
            Help:      "Jobs reaching a terminal state",
        },
        []string{"state"},
    )

    stageLatency = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{
            Namespace: "contractedit",
            Name:      "job_stage_duration_seconds",
            Help:      "Time spent per pipeline stage",
            Buckets:   prometheus.DefBuckets,
        },
        []string{"stage"},
    )

    inflight = prometheus.NewGauge(
        prometheus.GaugeOpts{
            Namespace: "contractedit",
            Name:      "inflight_model_calls",
            Help:      "Model calls currently holding a worker slot",
        },
    )

    queueDepth = prometheus.NewGauge(
        prometheus.GaugeOpts{
            Namespace: "contractedit",
            Name:      "queue_depth",
            Help:      "Jobs waiting for a runner",
        },
    )

    warmups = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "contractedit",
            Name:      "warmups_total",
            Help:      "Warmup attempts by result (success, failure, skipped)",
        },
        []string{"result"},
    )

    once sync.Once
)

// Init registers collectors. Safe to call more than once.
func Init() { InitWith(prometheus.DefaultRegisterer) }

// InitWith registers collectors on reg.
func InitWith(reg prometheus.Registerer) {
    once.Do(func() {
        reg.MustRegister(modelReqs, modelLatency, retriesTotal, chunksProcessed, jobsTotal, stageLatency, inflight, queueDepth, warmups)
    })
}

// Handler returns the http.Handler for /metrics
func Handler() http.Handler { return promhttp.Handler() }

func ObserveModel(provider, model, result string, dur time.Duration) {
    modelReqs.WithLabelValues(provider, model, result).Inc()
    modelLatency.WithLabelValues(provider, model).Observe(dur.Seconds())
}

func IncRetry(kind string)          { retriesTotal.WithLabelValues(kind).Inc() }
func IncChunk(result string)        { chunksProcessed.WithLabelValues(result).Inc() }
func IncJob(state string)           { jobsTotal.WithLabelValues(state).Inc() }
func IncWarmup(result string)       { warmups.WithLabelValues(result).Inc() }
func SetInflight(n int)             { inflight.Set(float64(n)) }
func SetQueueDepth(n int)           { queueDepth.Set(float64(n)) }

func ObserveStage(stage string, dur time.Duration) {
    stageLatency.WithLabelValues(stage).Observe(dur.Seconds())
}
