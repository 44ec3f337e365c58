package identity

import (
	"context"
	"net/http"
	"strings"
	"time"

	"openpaws/pkg/errutil"

	"github.com/go-resty/resty/v2"
)

// ProfileStore updates the caller's profile metadata at the identity
// provider. The caller's own token authorizes the change.
type ProfileStore interface {
	UpdateMetadata(ctx context.Context, token string, data map[string]any) (*Identity, error)
}

type RemoteProfiles struct {
	client *resty.Client
}

func NewRemoteProfiles(baseURL, anonKey string, timeout time.Duration) *RemoteProfiles {
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	if anonKey != "" {
		client.SetHeader("apikey", anonKey)
	}
	return &RemoteProfiles{client: client}
}

func (p *RemoteProfiles) UpdateMetadata(ctx context.Context, token string, data map[string]any) (*Identity, error) {
	var user remoteUser
	resp, err := p.client.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetBody(map[string]any{"data": data}).
		SetResult(&user).
		Put("/auth/v1/user")
	if err != nil {
		return nil, errutil.BadGateway("identity provider unavailable", err)
	}

	switch {
	case resp.StatusCode() == http.StatusUnauthorized, resp.StatusCode() == http.StatusForbidden:
		return nil, errutil.Unauthorized("invalid token", nil)
	case resp.StatusCode() == http.StatusUnprocessableEntity, resp.StatusCode() == http.StatusBadRequest:
		return nil, errutil.BadRequest("profile update rejected by identity provider", errutil.New(errutil.StatusBadRequest, resp.String()))
	case resp.IsError():
		return nil, errutil.BadGateway("profile update failed", errutil.New(errutil.StatusBadGateway, resp.Status()))
	case user.ID == "":
		return nil, errutil.BadGateway("profile update failed", errutil.New(errutil.StatusBadGateway, "empty user in response"))
	}
	return user.identity(), nil
}

type unconfiguredProfiles struct{}

func (unconfiguredProfiles) UpdateMetadata(context.Context, string, map[string]any) (*Identity, error) {
	return nil, errutil.New(errutil.StatusServiceUnavailable, "profile updates need AUTH.URL")
}
