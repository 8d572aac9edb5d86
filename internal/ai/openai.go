package ai

import (
    "bytes"
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "io"
    "net/http"
    "strings"
)

// OpenAIClient talks to an OpenAI compatible /chat/completions endpoint,
// typically a self-hosted model server.
type OpenAIClient struct{
    http     *http.Client
    endpoint string
    apiKey   string
}

func NewOpenAIClient(endpoint, apiKey string) *OpenAIClient {
    return &OpenAIClient{http: &http.Client{}, endpoint: strings.TrimRight(endpoint, "/"), apiKey: apiKey}
}
func (c *OpenAIClient) Name() string { return "openai" }

type openAIMessage struct {
    Role    string `json:"role"`
    Content string `json:"content"`
}

type openAIChatReq struct {
    Model       string          `json:"model"`
    Messages    []openAIMessage `json:"messages"`
    Temperature float64         `json:"temperature"`
    TopP        float64         `json:"top_p,omitempty"`
    MaxTokens   int             `json:"max_tokens,omitempty"`
    Stop        []string        `json:"stop,omitempty"`
}

type openAIChatResp struct {
    Choices []struct {
        Message struct {
            Content string `json:"content"`
        } `json:"message"`
    } `json:"choices"`
    Usage struct {
        PromptTokens     int `json:"prompt_tokens"`
        CompletionTokens int `json:"completion_tokens"`
    } `json:"usage"`
}

func (c *OpenAIClient) Do(ctx context.Context, req Request) (Response, error) {
    if c.endpoint == "" {
        return Response{}, &Error{Kind: KindFatal, Provider: c.Name(), Model: req.Model, Err: errors.New("missing MODEL_ENDPOINT")}
    }

    var messages []openAIMessage
    if req.System != "" {
        messages = append(messages, openAIMessage{Role: "system", Content: req.System})
    }
    messages = append(messages, openAIMessage{Role: "user", Content: req.Prompt})

    payload := openAIChatReq{
        Model:       req.Model,
        Messages:    messages,
        Temperature: req.Params.Temperature,
        TopP:        req.Params.TopP,
        MaxTokens:   req.Params.MaxTokens,
        Stop:        req.Params.Stop,
    }

    body, err := json.Marshal(payload)
    if err != nil {
        return Response{}, &Error{Kind: KindFatal, Provider: c.Name(), Model: req.Model, Err: err}
    }
    httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/chat/completions", bytes.NewReader(body))
    if err != nil {
        return Response{}, &Error{Kind: KindFatal, Provider: c.Name(), Model: req.Model, Err: err}
    }
    if c.apiKey != "" {
        httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
    }
    httpReq.Header.Set("Content-Type", "application/json")

    resp, err := c.http.Do(httpReq)
    if err != nil {
        return Response{}, Wrap(c.Name(), req.Model, err)
    }
    defer resp.Body.Close()

    if resp.StatusCode < 200 || resp.StatusCode >= 300 {
        snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
        return Response{}, Wrap(c.Name(), req.Model, &HTTPError{StatusCode: resp.StatusCode, Body: string(snippet), Provider: c.Name()})
    }

    var r openAIChatResp
    if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
        return Response{}, Wrap(c.Name(), req.Model, fmt.Errorf("decode response: %w", err))
    }
    if len(r.Choices) == 0 {
        return Response{}, &Error{Kind: KindTransient, Provider: c.Name(), Model: req.Model, Err: errors.New("no choices")}
    }

    return Response{
        Text:      r.Choices[0].Message.Content,
        TokensIn:  r.Usage.PromptTokens,
        TokensOut: r.Usage.CompletionTokens,
    }, nil
}
