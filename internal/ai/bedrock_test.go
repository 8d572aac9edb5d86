package ai

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRuntime struct {
	lastModel string
	lastBody  map[string]any
	reply     string
	err       error
}

func (f *fakeRuntime) InvokeModel(ctx context.Context, in *bedrockruntime.InvokeModelInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	f.lastModel = aws.ToString(in.ModelId)
	f.lastBody = map[string]any{}
	_ = json.Unmarshal(in.Body, &f.lastBody)
	if f.err != nil {
		return nil, f.err
	}
	return &bedrockruntime.InvokeModelOutput{Body: []byte(f.reply)}, nil
}

func TestBedrockMistralBody(t *testing.T) {
	rt := &fakeRuntime{reply: `{"outputs":[{"text":"edited text","stop_reason":"stop"}]}`}
	c := NewBedrockClientWith(rt)

	resp, err := c.Do(context.Background(), Request{
		Model:  "mistral.mistral-8b-instruct-v1:0",
		Prompt: "edit this",
		Params: Params{MaxTokens: 4000, Temperature: 0.4, TopP: 0.7, TopK: 50},
	})
	require.NoError(t, err)
	assert.Equal(t, "edited text", resp.Text)
	assert.Equal(t, "mistral.mistral-8b-instruct-v1:0", rt.lastModel)
	assert.Equal(t, "<s>[INST] edit this [/INST]", rt.lastBody["prompt"])
	assert.EqualValues(t, 4000, rt.lastBody["max_tokens"])
	assert.EqualValues(t, 50, rt.lastBody["top_k"])
	assert.NotNil(t, rt.lastBody["stop"])
}

func TestBedrockAnthropicBody(t *testing.T) {
	rt := &fakeRuntime{reply: `{"content":[{"type":"text","text":"done"}],"usage":{"input_tokens":12,"output_tokens":3}}`}
	c := NewBedrockClientWith(rt)

	resp, err := c.Do(context.Background(), Request{
		Model:  "anthropic.claude-3-haiku-20240307-v1:0",
		Prompt: "hi",
		Params: Params{MaxTokens: 100},
	})
	require.NoError(t, err)
	assert.Equal(t, "done", resp.Text)
	assert.Equal(t, 12, resp.TokensIn)
	assert.Equal(t, 3, resp.TokensOut)
	assert.Equal(t, "bedrock-2023-05-31", rt.lastBody["anthropic_version"])
	assert.Contains(t, rt.lastBody, "messages")
	assert.NotContains(t, rt.lastBody, "prompt")
}

func TestParseBedrockShapes(t *testing.T) {
	cases := map[string]string{
		`{"generation":"llama says"}`:     "llama says",
		`{"completion":"legacy says"}`:    "legacy says",
		`{"outputs":[{"text":"mistral"}]}`: "mistral",
	}
	for raw, want := range cases {
		resp, err := parseBedrock([]byte(raw))
		require.NoError(t, err, raw)
		assert.Equal(t, want, resp.Text)
	}

	_, err := parseBedrock([]byte(`{"unexpected":true}`))
	assert.Error(t, err)
}

func TestBedrockClassifiesAPIErrors(t *testing.T) {
	rt := &fakeRuntime{err: &smithy.GenericAPIError{Code: "ThrottlingException", Message: "slow down"}}
	c := NewBedrockClientWith(rt)

	_, err := c.Do(context.Background(), Request{Model: "mistral.x", Prompt: "p"})
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestBedrockRequiresModel(t *testing.T) {
	_, err := NewBedrockClientWith(&fakeRuntime{}).Do(context.Background(), Request{Prompt: "p"})
	assert.ErrorIs(t, err, ErrFatal)
}
