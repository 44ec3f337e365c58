package llm

import (
	"context"
	"errors"
	"strings"
	"time"

	"openpaws/pkg/config"
	"openpaws/pkg/errutil"
	"openpaws/pkg/logger"
	"openpaws/pkg/metrics"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const DefaultModel = "openai/gpt-4o-mini"

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatCompletionRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature,omitempty"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatCompletionResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   Usage        `json:"usage"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Code    any    `json:"code"`
	} `json:"error"`
}

// HTTPClient calls the chat-completions API with client-side rate limiting.
type HTTPClient struct {
	client      *resty.Client
	limiter     *rate.Limiter
	model       string
	temperature float64
	maxTokens   int
}

type Options struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	// RateLimit is requests per second; 0 disables limiting.
	RateLimit float64
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     cfg.LLM.Timeout,
		RateLimit:   cfg.LLM.RateLimit,
	}
}

func NewHTTPClient(o Options) *HTTPClient {
	if o.Model == "" {
		o.Model = DefaultModel
	}
	if o.Timeout <= 0 {
		o.Timeout = 60 * time.Second
	}

	limit := rate.Inf
	if o.RateLimit > 0 {
		limit = rate.Limit(o.RateLimit)
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(o.BaseURL, "/")).
		SetTimeout(o.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("X-Title", "openpaws")
	if o.APIKey != "" {
		client.SetAuthToken(o.APIKey)
	}

	return &HTTPClient{
		client:      client,
		limiter:     rate.NewLimiter(limit, 1),
		model:       o.Model,
		temperature: o.Temperature,
		maxTokens:   o.MaxTokens,
	}
}

func (c *HTTPClient) Complete(ctx context.Context, req Request) (*Response, error) {
	log := logger.FromContext(ctx, zap.String("operation", req.Operation), zap.String("model", c.model))

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body := chatCompletionRequest{
		Model:       c.model,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
		Messages:    make([]chatMessage, 0, 2),
	}
	if req.System != "" {
		body.Messages = append(body.Messages, chatMessage{Role: "system", Content: req.System})
	}
	body.Messages = append(body.Messages, chatMessage{Role: "user", Content: req.User})
	if req.Temperature != nil {
		body.Temperature = *req.Temperature
	}
	if req.MaxTokens != nil {
		body.MaxTokens = *req.MaxTokens
	}
	if req.JSON {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	var (
		out    chatCompletionResponse
		apiErr apiError
	)
	start := time.Now()
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		SetError(&apiErr).
		Post("/chat/completions")
	if err != nil {
		metrics.LLMCallsTotal.WithLabelValues(c.model, "error").Inc()
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		log.Error("llm request failed", zap.Error(err))
		return nil, errutil.BadGateway("llm request failed", err)
	}
	if resp.IsError() {
		metrics.LLMCallsTotal.WithLabelValues(c.model, "error").Inc()
		log.Warn("llm returned an error",
			zap.Int("status", resp.StatusCode()),
			zap.String("message", apiErr.Error.Message))
		if resp.StatusCode() == 429 {
			return nil, errutil.TooManyRequest("llm rate limited", nil)
		}
		return nil, errutil.BadGateway("llm returned "+resp.Status(), nil)
	}
	if len(out.Choices) == 0 {
		metrics.LLMCallsTotal.WithLabelValues(c.model, "empty").Inc()
		return nil, errutil.BadGateway("llm returned no choices", nil)
	}

	metrics.LLMCallsTotal.WithLabelValues(c.model, "ok").Inc()
	metrics.LLMTokensTotal.WithLabelValues(c.model, "prompt").Add(float64(out.Usage.PromptTokens))
	metrics.LLMTokensTotal.WithLabelValues(c.model, "completion").Add(float64(out.Usage.CompletionTokens))
	log.Debug("llm call finished",
		zap.Duration("latency", time.Since(start)),
		zap.Int("total_tokens", out.Usage.TotalTokens))

	model := out.Model
	if model == "" {
		model = c.model
	}
	return &Response{
		Content: strings.TrimSpace(out.Choices[0].Message.Content),
		Model:   model,
		Usage:   out.Usage,
	}, nil
}
