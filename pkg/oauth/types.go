package oauth

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// DefaultAuthServerBaseURL is the production OSF authorization server.
const DefaultAuthServerBaseURL = "https://accounts.osf.io"

// ExpiryBuffer is how long before ExpiresAt a token is already treated as
// expired. It absorbs clock skew and request latency.
const ExpiryBuffer = 60 * time.Second

const (
	authorizePath = "/oauth2/authorize"
	tokenPath     = "/oauth2/token"
	revokePath    = "/oauth2/revoke"
)

// Config describes a registered OAuth client.
type Config struct {
	// ClientID is the registered application id. Required.
	ClientID string `yaml:"clientId" json:"clientId"`

	// RedirectURI must match one of the URIs registered for ClientID. Required.
	RedirectURI string `yaml:"redirectUri" json:"redirectUri"`

	// Scope is an optional space-delimited scope list, e.g. "osf.full_read".
	Scope string `yaml:"scope,omitempty" json:"scope,omitempty"`

	// AuthServerBaseURL defaults to DefaultAuthServerBaseURL.
	AuthServerBaseURL string `yaml:"authServerBaseUrl,omitempty" json:"authServerBaseUrl,omitempty"`
}

// Validate reports the first missing required field.
func (c Config) Validate() error {
	if strings.TrimSpace(c.ClientID) == "" {
		return &ConfigurationError{Field: "clientId"}
	}
	if strings.TrimSpace(c.RedirectURI) == "" {
		return &ConfigurationError{Field: "redirectUri"}
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.AuthServerBaseURL == "" {
		c.AuthServerBaseURL = DefaultAuthServerBaseURL
	}
	c.AuthServerBaseURL = strings.TrimSuffix(c.AuthServerBaseURL, "/")
	return c
}

// PKCEChallenge represents a PKCE (Proof Key for Code Exchange) pair.
type PKCEChallenge struct {
	// CodeVerifier is the secret half. It is only ever sent in the final
	// code exchange request.
	CodeVerifier string

	// CodeChallenge is base64url(SHA256(CodeVerifier)) and is public.
	CodeChallenge string

	// CodeChallengeMethod is always "S256".
	CodeChallengeMethod string
}

// AccessType selects whether the authorization server issues a refresh token.
type AccessType string

const (
	AccessTypeOnline  AccessType = "online"
	AccessTypeOffline AccessType = "offline"
)

// ApprovalPrompt controls whether the consent screen is shown again.
type ApprovalPrompt string

const (
	ApprovalPromptAuto  ApprovalPrompt = "auto"
	ApprovalPromptForce ApprovalPrompt = "force"
)

// AuthorizationParams are the optional parameters of an authorization request.
type AuthorizationParams struct {
	State          string
	AccessType     AccessType
	ApprovalPrompt ApprovalPrompt
}

// AuthorizationRequest is the result of BuildAuthorizationURL. The caller
// must keep CodeVerifier until the code is exchanged; the client does not.
type AuthorizationRequest struct {
	URL           string
	CodeVerifier  string
	CodeChallenge string
}

// TokenSet is one authenticated session: the bearer token, an optional
// refresh token and the absolute expiry.
//
// TokenSet is a plain value; copying it never aliases client state.
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	Scope        string
}

// tokenSetJSON is the persisted shape. expiresAt is epoch milliseconds.
type tokenSetJSON struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
	ExpiresAt    int64  `json:"expiresAt"`
	Scope        string `json:"scope,omitempty"`
}

// MarshalJSON encodes the TokenSet in its persisted form.
func (t TokenSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(tokenSetJSON{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		ExpiresAt:    t.ExpiresAt.UnixMilli(),
		Scope:        t.Scope,
	})
}

// UnmarshalJSON decodes the persisted form.
func (t *TokenSet) UnmarshalJSON(data []byte) error {
	var raw tokenSetJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*t = TokenSet{
		AccessToken:  raw.AccessToken,
		RefreshToken: raw.RefreshToken,
		ExpiresAt:    time.UnixMilli(raw.ExpiresAt),
		Scope:        raw.Scope,
	}
	return nil
}

// IsZero reports whether the TokenSet carries no access token.
func (t TokenSet) IsZero() bool {
	return t.AccessToken == ""
}

// ExpiredAt reports whether the token must be refreshed at the given instant,
// i.e. now >= ExpiresAt - ExpiryBuffer.
func (t TokenSet) ExpiredAt(now time.Time) bool {
	if t.IsZero() {
		return true
	}
	return !now.Before(t.ExpiresAt.Add(-ExpiryBuffer))
}

// HasRefreshToken reports whether the session can be renewed without the user.
func (t TokenSet) HasRefreshToken() bool {
	return t.RefreshToken != ""
}

// Scopes returns the scope as a slice of individual scopes.
func (t TokenSet) Scopes() []string {
	if t.Scope == "" {
		return nil
	}
	return strings.Fields(t.Scope)
}

// ToOAuth2Token converts the TokenSet for use with golang.org/x/oauth2.
func (t TokenSet) ToOAuth2Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  t.AccessToken,
		TokenType:    "Bearer",
		RefreshToken: t.RefreshToken,
		Expiry:       t.ExpiresAt,
	}
}

// String implements fmt.Stringer without revealing either token.
func (t TokenSet) String() string {
	return fmt.Sprintf("TokenSet{access:%s refresh:%s expiresAt:%s scope:%q}",
		redact(t.AccessToken), redact(t.RefreshToken), t.ExpiresAt.Format(time.RFC3339), t.Scope)
}

// GoString covers %#v formatting.
func (t TokenSet) GoString() string {
	return "oauth." + t.String()
}

// LogValue implements slog.LogValuer so a TokenSet passed to a logger never
// prints its secrets.
func (t TokenSet) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Bool("has_access_token", t.AccessToken != ""),
		slog.Bool("has_refresh_token", t.RefreshToken != ""),
		slog.Time("expires_at", t.ExpiresAt),
		slog.String("scope", t.Scope),
	)
}

func redact(s string) string {
	if s == "" {
		return "<none>"
	}
	return "[REDACTED]"
}

// tokenResponse is the token endpoint's JSON body.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// toTokenSet derives a TokenSet with an absolute expiry.
func (r tokenResponse) toTokenSet(now time.Time) TokenSet {
	return TokenSet{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		ExpiresAt:    now.Add(time.Duration(r.ExpiresIn) * time.Second),
		Scope:        r.Scope,
	}
}

// AuthChallenge represents parsed information from a WWW-Authenticate header.
type AuthChallenge struct {
	// Scheme is the authentication scheme (typically "Bearer").
	Scheme string

	// Realm is the protection realm.
	Realm string

	// Scope is the space-separated list of required OAuth scopes.
	Scope string

	// Error is the error code from the header, e.g. "invalid_token".
	Error string

	// ErrorDescription is a human-readable error description (if any).
	ErrorDescription string
}

// IsInvalidToken reports whether the server rejected the presented token
// (as opposed to no token being sent at all).
func (c *AuthChallenge) IsInvalidToken() bool {
	return c != nil && c.Error == "invalid_token"
}
