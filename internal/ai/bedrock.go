package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

// ModelInvoker is the subset of bedrockruntime.Client used here.
type ModelInvoker interface {
	InvokeModel(ctx context.Context, in *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// BedrockClient calls text models hosted on AWS Bedrock.
type BedrockClient struct {
	api ModelInvoker
}

func NewBedrockClient(cfg aws.Config) *BedrockClient {
	return &BedrockClient{api: bedrockruntime.NewFromConfig(cfg)}
}

// NewBedrockClientWith uses a caller supplied API, mostly for tests.
func NewBedrockClientWith(api ModelInvoker) *BedrockClient {
	return &BedrockClient{api: api}
}

func (c *BedrockClient) Name() string { return "bedrock" }

type modelFamily int

const (
	familyMistral modelFamily = iota
	familyAnthropic
	familyLlama
)

func familyOf(modelID string) modelFamily {
	id := strings.ToLower(modelID)
	switch {
	case strings.Contains(id, "anthropic"):
		return familyAnthropic
	case strings.Contains(id, "meta.llama") || strings.Contains(id, "llama"):
		return familyLlama
	default:
		return familyMistral
	}
}

func (c *BedrockClient) Do(ctx context.Context, req Request) (Response, error) {
	if req.Model == "" {
		return Response{}, &Error{Kind: KindFatal, Provider: c.Name(), Err: errors.New("missing model id")}
	}
	body, err := bedrockBody(req)
	if err != nil {
		return Response{}, &Error{Kind: KindFatal, Provider: c.Name(), Model: req.Model, Err: err}
	}
	out, err := c.api.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(req.Model),
		Body:        body,
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
	})
	if err != nil {
		return Response{}, Wrap(c.Name(), req.Model, err)
	}
	resp, err := parseBedrock(out.Body)
	if err != nil {
		return Response{}, &Error{Kind: KindTransient, Provider: c.Name(), Model: req.Model, Err: err}
	}
	return resp, nil
}

func bedrockBody(req Request) ([]byte, error) {
	p := req.Params
	switch familyOf(req.Model) {
	case familyAnthropic:
		body := map[string]any{
			"anthropic_version": "bedrock-2023-05-31",
			"max_tokens":        p.MaxTokens,
			"temperature":       p.Temperature,
			"top_p":             p.TopP,
			"messages":          []map[string]string{{"role": "user", "content": req.Prompt}},
		}
		if req.System != "" {
			body["system"] = req.System
		}
		if len(p.Stop) > 0 {
			body["stop_sequences"] = p.Stop
		}
		return json.Marshal(body)
	case familyLlama:
		return json.Marshal(map[string]any{
			"prompt":      joinSystem(req),
			"max_gen_len": p.MaxTokens,
			"temperature": p.Temperature,
			"top_p":       p.TopP,
		})
	default:
		stop := p.Stop
		if len(stop) == 0 {
			stop = []string{"</s>", "[/INST]"}
		}
		return json.Marshal(map[string]any{
			"prompt":      mistralWrap(joinSystem(req)),
			"max_tokens":  p.MaxTokens,
			"temperature": p.Temperature,
			"top_p":       p.TopP,
			"top_k":       p.TopK,
			"stop":        stop,
		})
	}
}

func joinSystem(req Request) string {
	if req.System == "" {
		return req.Prompt
	}
	return req.System + "\n\n" + req.Prompt
}

type bedrockResp struct {
	Outputs []struct {
		Text string `json:"text"`
	} `json:"outputs"`
	Generation string `json:"generation"`
	Content    []struct {
		Text string `json:"text"`
	} `json:"content"`
	Completion string `json:"completion"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	PromptTokenCount     int `json:"prompt_token_count"`
	GenerationTokenCount int `json:"generation_token_count"`
}

// parseBedrock reads the text from any of the known response shapes.
func parseBedrock(raw []byte) (Response, error) {
	var r bedrockResp
	if err := json.Unmarshal(raw, &r); err != nil {
		return Response{}, fmt.Errorf("decode bedrock response: %w", err)
	}
	resp := Response{
		TokensIn:  r.Usage.InputTokens + r.PromptTokenCount,
		TokensOut: r.Usage.OutputTokens + r.GenerationTokenCount,
	}
	switch {
	case len(r.Outputs) > 0:
		resp.Text = r.Outputs[0].Text
	case r.Generation != "":
		resp.Text = r.Generation
	case len(r.Content) > 0:
		resp.Text = r.Content[0].Text
	case r.Completion != "":
		resp.Text = r.Completion
	default:
		return Response{}, errors.New("unrecognised bedrock response shape")
	}
	return resp, nil
}
