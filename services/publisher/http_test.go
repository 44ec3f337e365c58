package publisher

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"openpaws/pkg/errutil"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func TestPublish(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/publish", r.URL.Path)
		require.Equal(t, "Bearer gw-token", r.Header.Get("Authorization"))

		var body Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "post-1", body.IdempotencyKey)
		require.Equal(t, "twitter", body.Platform)
		require.Equal(t, "at-1", body.AccessToken)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"tw-99","status":"published"}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(Options{BaseURL: srv.URL, Token: "gw-token", Timeout: time.Second})
	res, err := c.Publish(context.Background(), Request{
		IdempotencyKey: "post-1",
		Platform:       "twitter",
		AccessToken:    "at-1",
		Content:        "hello",
	})
	require.NoError(t, err)
	require.Equal(t, "tw-99", res.ID)
	require.Equal(t, StatePublished, res.Status)
}

func TestMetricsSendsPlatformToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/posts/linkedin/li-1/metrics", r.URL.Path)
		require.Equal(t, "at-1", r.Header.Get(platformTokenHeader))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"impressions":1000,"likes":40,"comments":5,"shares":3,"clicks":2}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(Options{BaseURL: srv.URL, Timeout: time.Second})
	m, err := c.Metrics(context.Background(), Lookup{Platform: "linkedin", PlatformPostID: "li-1", AccessToken: "at-1"})
	require.NoError(t, err)
	require.EqualValues(t, 1000, m.Impressions)
	require.EqualValues(t, 40, m.Likes)
}

func TestRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"id":"fb-1","status":"pending"}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(Options{BaseURL: srv.URL, Timeout: time.Second, Retries: 2})
	res, err := c.Status(context.Background(), Lookup{Platform: "facebook", PlatformPostID: "fb-1"})
	require.NoError(t, err)
	require.Equal(t, StatePending, res.Status)
	require.EqualValues(t, 3, calls.Load())
}

func TestMapsClientErrors(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusUnprocessableEntity)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(int(status.Load()))
		_, _ = w.Write([]byte(`{"error":"content too long"}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(Options{BaseURL: srv.URL, Timeout: time.Second})
	_, err := c.Publish(context.Background(), Request{Platform: "twitter"})
	require.True(t, errutil.IsCode(err, errutil.StatusBadGateway))
	require.Contains(t, err.Error(), "content too long")

	status.Store(http.StatusTooManyRequests)
	_, err = c.Publish(context.Background(), Request{Platform: "twitter"})
	require.True(t, errutil.IsCode(err, errutil.StatusTooManyRequests))
}
