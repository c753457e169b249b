package config

import (
	"time"

	"osf/pkg/api"
	"osf/pkg/oauth"
)

const (
	// DefaultRedirectURI is the loopback redirect the login command listens on.
	DefaultRedirectURI = "http://127.0.0.1:8085/callback"

	// DefaultScope grants read access to everything the user can see.
	DefaultScope = "osf.full_read"

	// DefaultCallbackTimeout is how long login waits for the browser.
	DefaultCallbackTimeout = 5 * time.Minute

	// DefaultLogLevel is used when neither config nor flags set one.
	DefaultLogLevel = "info"
)

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() Config {
	return Config{
		OAuth: OAuthConfig{
			RedirectURI:     DefaultRedirectURI,
			Scope:           DefaultScope,
			AuthURL:         oauth.DefaultAuthServerBaseURL,
			CallbackTimeout: DefaultCallbackTimeout,
		},
		API: APIConfig{
			BaseURL:      api.DefaultBaseURL,
			AllowedHosts: []string{"files.osf.io"},
			Burst:        1,
		},
		LogLevel: DefaultLogLevel,
	}
}
