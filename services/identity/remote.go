package identity

import (
	"context"
	"net/http"
	"strings"
	"time"

	"openpaws/pkg/errutil"

	"github.com/go-resty/resty/v2"
)

// RemoteVerifier asks the identity provider's user endpoint to resolve the
// token. Used when the signing secret is not shared with this service.
type RemoteVerifier struct {
	client *resty.Client
}

func NewRemoteVerifier(baseURL, anonKey string, timeout time.Duration) *RemoteVerifier {
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	if anonKey != "" {
		client.SetHeader("apikey", anonKey)
	}
	return &RemoteVerifier{client: client}
}

type remoteUser struct {
	ID       string         `json:"id"`
	Email    string         `json:"email"`
	Role     string         `json:"role"`
	Metadata map[string]any `json:"user_metadata,omitempty"`
}

func (u remoteUser) identity() *Identity {
	return &Identity{ID: u.ID, Email: u.Email, Role: u.Role, Metadata: u.Metadata}
}

func (v *RemoteVerifier) Verify(ctx context.Context, token string) (*Identity, error) {
	var user remoteUser
	resp, err := v.client.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetResult(&user).
		Get("/auth/v1/user")
	if err != nil {
		return nil, errutil.BadGateway("identity provider unavailable", err)
	}

	switch {
	case resp.StatusCode() == http.StatusUnauthorized, resp.StatusCode() == http.StatusForbidden:
		return nil, errutil.Unauthorized("invalid token", nil)
	case resp.IsError():
		return nil, errutil.BadGateway("identity provider unavailable", errutil.New(errutil.StatusBadGateway, resp.Status()))
	case user.ID == "":
		return nil, errutil.Unauthorized("invalid token", nil)
	}

	return user.identity(), nil
}
