package config

import "time"

// Config is the osf command configuration, read from config.yaml.
type Config struct {
	OAuth OAuthConfig `yaml:"oauth"`
	API   APIConfig   `yaml:"api"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"logLevel"`

	// TokenFile is where the OAuth TokenSet is persisted. Defaults to
	// token.json next to config.yaml.
	TokenFile string `yaml:"tokenFile,omitempty"`
}

// OAuthConfig configures the Authorization Code + PKCE login.
type OAuthConfig struct {
	// ClientID of the registered OSF developer application. Required for
	// `auth login`, not for token-based use.
	ClientID string `yaml:"clientId"`

	// RedirectURI must be a loopback http URL registered for ClientID; the
	// login command listens on its host and port.
	RedirectURI string `yaml:"redirectUri"`

	Scope   string `yaml:"scope,omitempty"`
	AuthURL string `yaml:"authUrl,omitempty"`

	// CallbackTimeout bounds how long login waits for the browser redirect.
	CallbackTimeout time.Duration `yaml:"callbackTimeout,omitempty"`
}

// APIConfig configures the JSON:API transport.
type APIConfig struct {
	BaseURL string `yaml:"baseUrl"`

	// Token is a personal access token. When set it is used instead of the
	// stored OAuth session.
	Token string `yaml:"token,omitempty"`

	// AllowedHosts lists extra origins that absolute URLs may point to. A bare
	// host means https on the default port.
	AllowedHosts []string `yaml:"allowedHosts,omitempty"`

	// RequestsPerSecond paces outgoing requests; 0 disables pacing.
	RequestsPerSecond float64 `yaml:"requestsPerSecond,omitempty"`
	Burst             int     `yaml:"burst,omitempty"`
}
