package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/local/contractedit/internal/limiter"
	mpkg "github.com/local/contractedit/internal/metrics"
	"github.com/local/contractedit/internal/retry"
)

// minResponseRunes is the shortest reply accepted for a chunk of at least that length.
const minResponseRunes = 10

// ErrShortResponse marks an empty or truncated model reply. It is retried as transient.
var ErrShortResponse = errors.New("empty or very short model response")

// Task is one chunk to edit.
type Task struct {
	JobID string
	Index int
	Total int
	Text  string
}

type InvokerOptions struct {
	Client  Client
	Limiter *limiter.Limiter
	Policy  retry.Policy
	Model   string
	Params  Params
	// Timeout bounds each attempt, not the whole retry sequence.
	Timeout time.Duration
	// OnActivity is called once per real invocation, e.g. warmup.Scheduler.Touch.
	OnActivity func()
}

// Invoker runs model calls under the shared limiter, a per-call deadline and the retry policy.
type Invoker struct {
	client     Client
	lim        *limiter.Limiter
	policy     retry.Policy
	model      string
	params     Params
	timeout    time.Duration
	onActivity func()
}

func NewInvoker(o InvokerOptions) *Invoker {
	if o.Limiter == nil {
		o.Limiter = limiter.New(1)
	}
	if o.Timeout <= 0 {
		o.Timeout = 60 * time.Second
	}
	return &Invoker{
		client:     o.Client,
		lim:        o.Limiter,
		policy:     o.Policy,
		model:      o.Model,
		params:     o.Params,
		timeout:    o.Timeout,
		onActivity: o.OnActivity,
	}
}

func (iv *Invoker) Provider() string { return iv.client.Name() }
func (iv *Invoker) Model() string    { return iv.model }

// Invoke applies instruction to one chunk and returns the edited text.
// Rate limits, model warmup and transient failures are retried; fatal errors return at once.
func (iv *Invoker) Invoke(ctx context.Context, t Task, instruction string) (string, error) {
	if iv.onActivity != nil {
		iv.onActivity()
	}
	req := Request{
		JobID:  t.JobID,
		Chunk:  t.Index,
		Model:  iv.model,
		Prompt: EditPrompt(t.Text, t.Index, t.Total, instruction),
		Params: iv.params,
	}
	minRunes := minResponseRunes
	if n := utf8.RuneCountInString(strings.TrimSpace(t.Text)); n < minRunes {
		minRunes = n
	}
	if minRunes < 1 {
		minRunes = 1
	}

	p := iv.policy
	p.Retryable = func(err error) bool { return Classify(err).Retryable() }
	p.OnRetry = func(attempt int, err error, delay time.Duration) {
		kind := Classify(err)
		mpkg.IncRetry(kind.String())
		log.Warn().Str("job_id", t.JobID).Int("chunk", t.Index).Int("attempt", attempt).
			Str("kind", kind.String()).Dur("delay", delay).Err(err).Msg("model call failed, retrying")
	}

	var out string
	err := p.Do(ctx, func(ctx context.Context, attempt int) error {
		resp, err := iv.call(ctx, req)
		if err != nil {
			return err
		}
		text := strings.TrimSpace(resp.Text)
		if utf8.RuneCountInString(text) < minRunes {
			return &Error{Kind: KindTransient, Provider: iv.client.Name(), Model: iv.model, Err: ErrShortResponse}
		}
		out = text
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("chunk %d: %w", t.Index, err)
	}
	return out, nil
}

// Ping sends a tiny prompt to keep the model loaded. It makes a single attempt.
func (iv *Invoker) Ping(ctx context.Context) error {
	_, err := iv.call(ctx, Request{
		Model:  iv.model,
		Prompt: "Hello",
		Params: Params{MaxTokens: 5, Temperature: 0.1, TopP: iv.params.TopP, TopK: iv.params.TopK},
	})
	return err
}

// call makes one attempt under a limiter slot and the per-call deadline.
func (iv *Invoker) call(ctx context.Context, req Request) (Response, error) {
	release, err := iv.lim.Acquire(ctx)
	if err != nil {
		return Response{}, err
	}
	defer release()

	callCtx, cancel := context.WithTimeout(ctx, iv.timeout)
	defer cancel()

	start := time.Now()
	resp, err := iv.client.Do(callCtx, req)
	dur := time.Since(start)
	if err != nil {
		if ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			err = &Error{Kind: KindTransient, Provider: iv.client.Name(), Model: iv.model, Err: fmt.Errorf("request timeout after %s: %w", iv.timeout, err)}
		} else {
			err = Wrap(iv.client.Name(), iv.model, err)
		}
		mpkg.ObserveModel(iv.client.Name(), iv.model, Classify(err).String(), dur)
		log.Debug().Str("job_id", req.JobID).Int("chunk", req.Chunk).Str("provider", iv.client.Name()).
			Str("model", iv.model).Dur("duration", dur).Err(err).Msg("model call error")
		return Response{}, err
	}
	mpkg.ObserveModel(iv.client.Name(), iv.model, "success", dur)
	log.Debug().Str("job_id", req.JobID).Int("chunk", req.Chunk).Str("provider", iv.client.Name()).
		Str("model", iv.model).Dur("duration", dur).Int("tokens_in", resp.TokensIn).Int("tokens_out", resp.TokensOut).
		Msg("model call ok")
	return resp, nil
}
