package socialaccount

import (
	"context"
	"errors"
	"strings"
	"time"

	"openpaws/pkg/config"
	"openpaws/pkg/db/pagination"
	"openpaws/pkg/errutil"
	"openpaws/pkg/logger"
	"openpaws/pkg/repository"
	"openpaws/pkg/security"
	"openpaws/pkg/tenancy"
	"openpaws/pkg/util"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

// platforms that require PKCE on the authorization code flow
var pkcePlatforms = map[string]bool{
	"twitter": true,
}

type Service struct {
	node     *snowflake.Node
	sealer   *security.Sealer
	states   StateStore
	profiles ProfileFetcher
	now      func() time.Time

	providers    map[string]config.OAuthProvider
	redirectBase string
	stateTTL     time.Duration

	accounts repository.Tenanted[SocialAccount]
	refreshes singleflight.Group
}

type ServiceParams struct {
	fx.In

	Config   *config.Config
	DB       *gorm.DB
	Node     *snowflake.Node
	Sealer   *security.Sealer
	States   StateStore
	Profiles ProfileFetcher
}

func NewService(p ServiceParams) *Service {
	ttl := p.Config.OAuth.StateTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	providers := make(map[string]config.OAuthProvider, len(p.Config.OAuth.Providers))
	for name, prov := range p.Config.OAuth.Providers {
		providers[strings.ToLower(name)] = prov
	}
	return &Service{
		node:         p.Node,
		sealer:       p.Sealer,
		states:       p.States,
		profiles:     p.Profiles,
		now:          func() time.Time { return time.Now().UTC() },
		providers:    providers,
		redirectBase: strings.TrimRight(p.Config.OAuth.RedirectBase, "/"),
		stateTTL:     ttl,
		accounts:     repository.ProvideTenanted[SocialAccount](p.DB, "social account"),
	}
}

func (s *Service) oauthConfig(platform string) (*oauth2.Config, config.OAuthProvider, error) {
	prov, ok := s.providers[platform]
	if !ok || prov.ClientID == "" {
		return nil, prov, errutil.BadRequest("platform is not configured for connection", nil,
			errutil.WithDetails(errutil.Detail{Field: "platform", Message: platform}))
	}
	return &oauth2.Config{
		ClientID:     prov.ClientID,
		ClientSecret: prov.ClientSecret,
		Endpoint:     oauth2.Endpoint{AuthURL: prov.AuthURL, TokenURL: prov.TokenURL},
		RedirectURL:  s.redirectBase + "/social-accounts/connect/" + platform + "/callback",
		Scopes:       prov.Scopes,
	}, prov, nil
}

// Connect starts the authorization code flow and returns the URL the user
// must visit.
func (s *Service) Connect(ctx context.Context, platform string) (*ConnectResponse, error) {
	scope, err := tenancy.Require(ctx)
	if err != nil {
		return nil, err
	}
	conf, _, err := s.oauthConfig(platform)
	if err != nil {
		return nil, err
	}

	state := util.RandomToken(32)
	pending := PendingConnect{OrganizationID: scope.TenantID, UserID: scope.CallerID, Platform: platform}
	opts := []oauth2.AuthCodeOption{oauth2.AccessTypeOffline}
	if pkcePlatforms[platform] {
		pending.Verifier = oauth2.GenerateVerifier()
		opts = append(opts, oauth2.S256ChallengeOption(pending.Verifier))
	}
	if err := s.states.Put(ctx, state, pending, s.stateTTL); err != nil {
		return nil, errutil.Internal("failed to store oauth state", err)
	}

	return &ConnectResponse{
		AuthURL:   conf.AuthCodeURL(state, opts...),
		State:     state,
		ExpiresAt: s.now().Add(s.stateTTL),
	}, nil
}

// Callback finishes the flow: it exchanges the code, resolves the profile
// and stores the sealed tokens. Reconnecting an account updates it.
func (s *Service) Callback(ctx context.Context, platform string, req CallbackRequest) (*SocialAccount, error) {
	scope, err := tenancy.Require(ctx)
	if err != nil {
		return nil, err
	}
	log := logger.FromContext(ctx, zap.String("platform", platform))

	pending, err := s.states.Take(ctx, req.State)
	if err != nil && !errors.Is(err, ErrStateNotFound) {
		return nil, errutil.Internal("failed to read oauth state", err)
	}
	if pending == nil || pending.Platform != platform || pending.OrganizationID != scope.TenantID {
		return nil, errutil.BadRequest("invalid or expired oauth state", nil)
	}

	conf, prov, err := s.oauthConfig(platform)
	if err != nil {
		return nil, err
	}
	var opts []oauth2.AuthCodeOption
	if pending.Verifier != "" {
		opts = append(opts, oauth2.VerifierOption(pending.Verifier))
	}
	tok, err := conf.Exchange(ctx, req.Code, opts...)
	if err != nil {
		log.Warn("oauth code exchange failed", zap.Error(err))
		return nil, errutil.BadGateway("failed to exchange authorization code", err)
	}

	profile, err := s.profiles.Fetch(ctx, prov.ProfileURL, tok.AccessToken)
	if err != nil {
		log.Warn("profile lookup failed", zap.Error(err))
		return nil, errutil.BadGateway("failed to load account profile", err)
	}

	access, err := s.sealer.Seal(tok.AccessToken)
	if err != nil {
		return nil, errutil.Internal("failed to seal token", err)
	}
	refresh, err := s.sealer.Seal(tok.RefreshToken)
	if err != nil {
		return nil, errutil.Internal("failed to seal token", err)
	}

	acct := &SocialAccount{
		ID:                s.node.Generate().String(),
		Platform:          platform,
		PlatformAccountID: profile.ID,
		AccountName:       profile.Name,
		AvatarURL:         profile.AvatarURL,
		AccessToken:       access,
		RefreshToken:      refresh,
		Scopes:            conf.Scopes,
		IsActive:          true,
		ConnectedBy:       scope.CallerID,
	}
	if acct.Scopes == nil {
		acct.Scopes = []string{}
	}
	if !tok.Expiry.IsZero() {
		exp := tok.Expiry.UTC()
		acct.TokenExpiresAt = &exp
	}

	err = s.accounts.Upsert(ctx, acct,
		[]string{"organization_id", "platform", "platform_account_id"},
		[]string{"account_name", "avatar_url", "access_token", "refresh_token", "token_expires_at", "scopes", "is_active", "connected_by", "updated_at"})
	if err != nil {
		return nil, err
	}

	out, _, err := s.accounts.List(ctx, &SocialAccount{Platform: platform, PlatformAccountID: profile.ID}, pagination.Pagination{Page: 1, Size: 1})
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, errutil.Internal("connected account vanished", nil)
	}
	log.Info("social account connected", zap.String("account_id", out[0].ID))
	return out[0], nil
}

func (s *Service) List(ctx context.Context, q ListQuery, page pagination.Pagination) (*pagination.Page[SocialAccount], error) {
	items, total, err := s.accounts.List(ctx, &SocialAccount{Platform: q.Platform}, page)
	if err != nil {
		return nil, err
	}
	return pagination.NewPage(items, total, page), nil
}

func (s *Service) Get(ctx context.Context, id string) (*SocialAccount, error) {
	return s.accounts.Get(ctx, id)
}

// Disconnect removes the account and its stored tokens.
func (s *Service) Disconnect(ctx context.Context, id string) error {
	if err := s.accounts.Delete(ctx, id); err != nil {
		return err
	}
	logger.FromContext(ctx, zap.String("account_id", id)).Info("social account disconnected")
	return nil
}

// Credentials unseals the account's access token, refreshing it first when
// it has expired and a refresh token is available.
func (s *Service) Credentials(ctx context.Context, id string) (*Credentials, error) {
	acct, err := s.accounts.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !acct.IsActive {
		return nil, errutil.Conflict("social account is inactive", nil)
	}

	access, err := s.sealer.Open(acct.AccessToken)
	if err != nil {
		return nil, errutil.Internal("failed to open token", err)
	}

	if acct.TokenExpiresAt != nil && !s.now().Before(*acct.TokenExpiresAt) {
		// the publish and analytics workers may refresh the same account at once
		v, err, _ := s.refreshes.Do(acct.ID, func() (any, error) {
			return s.refresh(ctx, acct)
		})
		if err != nil {
			return nil, err
		}
		access = v.(string)
	}

	return &Credentials{
		AccountID:         acct.ID,
		Platform:          acct.Platform,
		PlatformAccountID: acct.PlatformAccountID,
		AccessToken:       access,
	}, nil
}

func (s *Service) refresh(ctx context.Context, acct *SocialAccount) (string, error) {
	log := logger.FromContext(ctx, zap.String("account_id", acct.ID))
	refresh, err := s.sealer.Open(acct.RefreshToken)
	if err != nil {
		return "", errutil.Internal("failed to open token", err)
	}
	if refresh == "" {
		if _, err := s.accounts.Update(ctx, acct.ID, map[string]any{"is_active": false}); err != nil {
			log.Warn("failed to deactivate social account without refresh token", zap.Error(err))
		}
		return "", errutil.Conflict("social account token expired, reconnect required", nil)
	}

	conf, _, err := s.oauthConfig(acct.Platform)
	if err != nil {
		return "", err
	}
	tok, err := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refresh, Expiry: *acct.TokenExpiresAt}).Token()
	if err != nil {
		log.Warn("token refresh failed", zap.Error(err))
		return "", errutil.BadGateway("failed to refresh social token", err)
	}

	values := map[string]any{}
	if values["access_token"], err = s.sealer.Seal(tok.AccessToken); err != nil {
		return "", errutil.Internal("failed to seal token", err)
	}
	if tok.RefreshToken != "" && tok.RefreshToken != refresh {
		if values["refresh_token"], err = s.sealer.Seal(tok.RefreshToken); err != nil {
			return "", errutil.Internal("failed to seal token", err)
		}
	}
	if !tok.Expiry.IsZero() {
		values["token_expires_at"] = tok.Expiry.UTC()
	}
	if _, err := s.accounts.Update(ctx, acct.ID, values); err != nil {
		return "", err
	}
	log.Info("social token refreshed")
	return tok.AccessToken, nil
}
