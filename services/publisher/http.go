package publisher

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"openpaws/pkg/errutil"
	"openpaws/pkg/logger"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

type apiError struct {
	Error string `json:"error"`
}

type HTTPClient struct {
	client *resty.Client
}

type Options struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	// Retries applies to transport errors and 5xx answers only.
	Retries int
}

func NewHTTPClient(o Options) *HTTPClient {
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(o.BaseURL, "/")).
		SetTimeout(o.Timeout).
		SetHeader("Content-Type", "application/json").
		SetRetryCount(o.Retries).
		SetRetryWaitTime(200 * time.Millisecond).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return !errors.Is(err, context.Canceled)
			}
			return r.StatusCode() >= http.StatusInternalServerError
		})
	if o.Token != "" {
		client.SetAuthToken(o.Token)
	}
	return &HTTPClient{client: client}
}

// platformTokenHeader carries the social account token on lookups.
const platformTokenHeader = "X-Platform-Token"

func (c *HTTPClient) do(ctx context.Context, method, path, token string, body, out any) error {
	var apiErr apiError
	req := c.client.R().SetContext(ctx).SetResult(out).SetError(&apiErr)
	if body != nil {
		req.SetBody(body)
	}
	if token != "" {
		req.SetHeader(platformTokenHeader, token)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return errutil.BadGateway("publishing gateway unreachable", err)
	}
	if resp.IsError() {
		logger.FromContext(ctx).Warn("publishing gateway returned an error",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode()),
			zap.String("message", apiErr.Error))
		msg := apiErr.Error
		if msg == "" {
			msg = "publishing gateway returned " + resp.Status()
		}
		if resp.StatusCode() == http.StatusTooManyRequests {
			return errutil.TooManyRequest(msg, nil)
		}
		return errutil.BadGateway(msg, nil)
	}
	return nil
}

func (c *HTTPClient) Publish(ctx context.Context, req Request) (*Result, error) {
	var out Result
	if err := c.do(ctx, http.MethodPost, "/v1/publish", "", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) Status(ctx context.Context, l Lookup) (*Result, error) {
	var out Result
	path := "/v1/posts/" + l.Platform + "/" + l.PlatformPostID
	if err := c.do(ctx, http.MethodGet, path, l.AccessToken, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) Metrics(ctx context.Context, l Lookup) (*Metrics, error) {
	var out Metrics
	path := "/v1/posts/" + l.Platform + "/" + l.PlatformPostID + "/metrics"
	if err := c.do(ctx, http.MethodGet, path, l.AccessToken, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
