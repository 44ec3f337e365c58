// Package llm talks to an OpenAI compatible chat-completions endpoint.
package llm

//go:generate mockgen -source=client.go -destination=mock/client.go -package=mock

import (
	"context"
)

// Request is a single system + user prompt exchange.
type Request struct {
	// Operation labels the call in logs and metrics ("plan", "draft", "review").
	Operation   string
	System      string
	User        string
	Temperature *float64
	MaxTokens   *int
	// JSON asks the model for a JSON object response.
	JSON bool
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type Response struct {
	Content string
	Model   string
	Usage   Usage
}

type Client interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}
