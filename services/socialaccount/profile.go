package socialaccount

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

type Profile struct {
	ID        string
	Name      string
	AvatarURL string
}

// ProfileFetcher resolves the account behind an access token.
type ProfileFetcher interface {
	Fetch(ctx context.Context, profileURL, accessToken string) (*Profile, error)
}

type restyProfileFetcher struct {
	client *resty.Client
}

func NewProfileFetcher(timeout time.Duration) ProfileFetcher {
	return &restyProfileFetcher{
		client: resty.New().SetTimeout(timeout).SetHeader("Accept", "application/json"),
	}
}

// rawProfile covers the field spellings used by the supported platforms.
// Some wrap the user in a "data" object.
type rawProfile struct {
	ID              string      `json:"id"`
	Sub             string      `json:"sub"`
	Name            string      `json:"name"`
	Username        string      `json:"username"`
	Picture         string      `json:"picture"`
	AvatarURL       string      `json:"avatar_url"`
	ProfileImageURL string      `json:"profile_image_url"`
	Data            *rawProfile `json:"data"`
}

func (p *rawProfile) profile() *Profile {
	if p.Data != nil {
		return p.Data.profile()
	}
	out := &Profile{ID: p.ID, Name: p.Name}
	if out.ID == "" {
		out.ID = p.Sub
	}
	if out.Name == "" {
		out.Name = p.Username
	}
	for _, u := range []string{p.Picture, p.AvatarURL, p.ProfileImageURL} {
		if u != "" {
			out.AvatarURL = u
			break
		}
	}
	return out
}

func (f *restyProfileFetcher) Fetch(ctx context.Context, profileURL, accessToken string) (*Profile, error) {
	var raw rawProfile
	resp, err := f.client.R().
		SetContext(ctx).
		SetAuthToken(accessToken).
		SetResult(&raw).
		Get(profileURL)
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("profile endpoint returned %s", resp.Status())
	}
	p := raw.profile()
	if p.ID == "" {
		return nil, fmt.Errorf("profile response has no account id")
	}
	return p, nil
}
