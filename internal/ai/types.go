package ai

import (
    "context"
)

// Params are the sampling knobs forwarded to the provider.
type Params struct {
    MaxTokens   int
    Temperature float64
    TopP        float64
    TopK        int
    Stop        []string
}

// Request is a single text generation call.
type Request struct {
    JobID  string
    Chunk  int
    Model  string
    Prompt string
    // System is optional; providers without a system role prepend it to Prompt.
    System string
    Params Params
}

type Response struct {
    Text      string
    TokensIn  int
    TokensOut int
}

// Client interface for providers like Bedrock or an OpenAI compatible server.
type Client interface {
    Name() string
    Do(ctx context.Context, req Request) (Response, error)
}
