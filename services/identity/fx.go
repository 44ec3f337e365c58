package identity

import (
	"fmt"

	"openpaws/pkg/config"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("identity.module",
	fx.Provide(
		ProvideVerifier,
		ProvideProfiles,
		NewGuard,
		NewHandler,
	),
)

// ProvideVerifier selects the token verifier from AUTH.MODE.
func ProvideVerifier(cfg *config.Config) (Verifier, error) {
	switch cfg.Auth.Mode {
	case "", "jwt":
		zap.L().Info("identity: verifying tokens locally", zap.String("audience", cfg.Auth.Audience))
		return NewJWTVerifier(cfg.Auth.JWTSecret, cfg.Auth.Audience)
	case "remote":
		if cfg.Auth.URL == "" {
			return nil, fmt.Errorf("identity: AUTH.URL is required in remote mode")
		}
		zap.L().Info("identity: verifying tokens remotely", zap.String("url", cfg.Auth.URL))
		return NewRemoteVerifier(cfg.Auth.URL, cfg.Auth.AnonKey, cfg.Auth.Timeout), nil
	default:
		return nil, fmt.Errorf("identity: unknown AUTH.MODE %q", cfg.Auth.Mode)
	}
}

// ProvideProfiles talks to the identity provider whenever AUTH.URL is set,
// whatever the verification mode.
func ProvideProfiles(cfg *config.Config) ProfileStore {
	if cfg.Auth.URL == "" {
		zap.L().Info("identity: AUTH.URL not set, profile updates disabled")
		return unconfiguredProfiles{}
	}
	return NewRemoteProfiles(cfg.Auth.URL, cfg.Auth.AnonKey, cfg.Auth.Timeout)
}
