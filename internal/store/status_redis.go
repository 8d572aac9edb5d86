package store

import (
    "context"
    "encoding/json"
    "fmt"
    "io"
    "strconv"
    "time"

    redis "github.com/redis/go-redis/v9"
    "github.com/rs/zerolog/log"

    "github.com/local/contractedit/internal/engine"
)

// Status is the mirrored view of a job, readable by other replicas and dashboards.
type Status struct {
    Status   string                 `json:"status"`
    Progress int                    `json:"progress"`
    Message  string                 `json:"message"`
    Created  *time.Time             `json:"created_at,omitempty"`
    Start    *time.Time             `json:"start_time,omitempty"`
    End      *time.Time             `json:"end_time,omitempty"`
    Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// RedisStatus mirrors engine snapshots into Redis hashes that expire after the retention window.
type RedisStatus struct {
    client  redis.Cmdable
    keyNS   string
    ttl     time.Duration
    timeout time.Duration
}

func NewRedisStatus(redisURL string, ttl time.Duration) (*RedisStatus, error) {
    opt, err := redis.ParseURL(redisURL)
    if err != nil { return nil, err }
    c := redis.NewClient(opt)
    ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
    defer cancel()
    if err := c.Ping(ctx).Err(); err != nil {
        _ = c.Close()
        return nil, err
    }
    return NewRedisStatusWith(c, ttl), nil
}

// NewRedisStatusWith wraps an existing client.
func NewRedisStatusWith(c redis.Cmdable, ttl time.Duration) *RedisStatus {
    if ttl <= 0 { ttl = time.Hour }
    return &RedisStatus{client: c, keyNS: "job", ttl: ttl, timeout: 2 * time.Second}
}

func (s *RedisStatus) key(jobID string) string { return fmt.Sprintf("%s:%s:status", s.keyNS, jobID) }

func (s *RedisStatus) Set(ctx context.Context, jobID string, st Status) error {
    m := map[string]interface{}{
        "status":   st.Status,
        "progress": st.Progress,
        "message":  st.Message,
    }
    if st.Created != nil { m["created"] = st.Created.Format(time.RFC3339Nano) }
    if st.Start != nil { m["start"] = st.Start.Format(time.RFC3339Nano) }
    if st.End != nil { m["end"] = st.End.Format(time.RFC3339Nano) }
    if st.Metadata != nil {
        b, _ := json.Marshal(st.Metadata)
        m["metadata"] = string(b)
    }
    k := s.key(jobID)
    if err := s.client.HSet(ctx, k, m).Err(); err != nil { return err }
    return s.client.Expire(ctx, k, s.ttl).Err()
}

func (s *RedisStatus) Get(ctx context.Context, jobID string) (Status, bool, error) {
    res, err := s.client.HGetAll(ctx, s.key(jobID)).Result()
    if err != nil { return Status{}, false, err }
    if len(res) == 0 { return Status{}, false, nil }
    st := Status{}
    st.Status = res["status"]
    st.Message = res["message"]
    if p, err := strconv.Atoi(res["progress"]); err == nil { st.Progress = p }
    st.Created = parseTime(res["created"])
    st.Start = parseTime(res["start"])
    st.End = parseTime(res["end"])
    if v := res["metadata"]; v != "" {
        _ = json.Unmarshal([]byte(v), &st.Metadata)
    }
    return st, true, nil
}

func parseTime(v string) *time.Time {
    if v == "" { return nil }
    t, err := time.Parse(time.RFC3339Nano, v)
    if err != nil { return nil }
    return &t
}

func (s *RedisStatus) Delete(ctx context.Context, jobID string) error {
    return s.client.Del(ctx, s.key(jobID)).Err()
}

// Ping is used by the health check.
func (s *RedisStatus) Ping(ctx context.Context) error { return s.client.Ping(ctx).Err() }

func (s *RedisStatus) Close() error {
    if c, ok := s.client.(io.Closer); ok { return c.Close() }
    return nil
}

// JobUpdated implements engine.Observer. Mirror failures are logged, never returned to the engine.
func (s *RedisStatus) JobUpdated(snap engine.Snapshot) {
    ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
    defer cancel()
    if err := s.Set(ctx, snap.ID, FromSnapshot(snap)); err != nil {
        log.Warn().Err(err).Str("job_id", snap.ID).Msg("failed to mirror job status to redis")
    }
}

// JobEvicted implements engine.Observer.
func (s *RedisStatus) JobEvicted(id string) {
    ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
    defer cancel()
    if err := s.Delete(ctx, id); err != nil {
        log.Warn().Err(err).Str("job_id", id).Msg("failed to remove mirrored job status")
    }
}

// FromSnapshot converts an engine snapshot to its mirrored form. Text and PDF are never mirrored.
func FromSnapshot(snap engine.Snapshot) Status {
    created := snap.CreatedAt
    st := Status{
        Status:   snap.State.String(),
        Progress: snap.Progress,
        Message:  snap.Message,
        Created:  &created,
        Start:    snap.StartedAt,
        End:      snap.FinishedAt,
        Metadata: map[string]interface{}{
            "total_chunks":     snap.TotalChunks,
            "completed_chunks": snap.Completed,
            "failed_chunks":    snap.Failed,
            "skipped_chunks":   snap.Skipped,
        },
    }
    if snap.Strategy != "" { st.Metadata["strategy"] = string(snap.Strategy) }
    if snap.Analysis != nil {
        st.Metadata["layout"] = snap.Analysis.Layout.String()
        st.Metadata["complexity_score"] = snap.Analysis.Score
    }
    if snap.Renderer != "" { st.Metadata["renderer"] = snap.Renderer }
    if len(snap.Notes) > 0 { st.Metadata["notes"] = snap.Notes }
    return st
}
