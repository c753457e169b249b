package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// DefaultHTTPTimeout is the default timeout for token endpoint requests.
const DefaultHTTPTimeout = 30 * time.Second

// maxResponseBytes caps how much of an endpoint response is read.
const maxResponseBytes = 64 << 10

// refreshKey is the singleflight key for the client's one refresh slot.
const refreshKey = "refresh"

// Client runs the Authorization Code + PKCE flow against one authorization
// server and owns the resulting TokenSet.
//
// Client is safe for concurrent use. Concurrent AccessToken calls that find
// the token expired share a single refresh request.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time
	observer   func(TokenSet)

	mu     sync.RWMutex
	tokens *TokenSet // nil means no credential

	// refreshGroup holds the in-flight refresh. singleflight forgets the
	// call as soon as it returns, successful or not.
	refreshGroup singleflight.Group
}

// ClientOption configures the OAuth client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithClock replaces time.Now, for tests that need to move across expiry.
func WithClock(now func() time.Time) ClientOption {
	return func(c *Client) {
		c.now = now
	}
}

// WithTokenObserver registers fn to be called with a copy of every TokenSet
// obtained from the token endpoint. Hosts use it to persist sessions.
func WithTokenObserver(fn func(TokenSet)) ClientOption {
	return func(c *Client) {
		c.observer = fn
	}
}

// NewClient validates cfg and returns a client with no stored credential.
func NewClient(cfg Config, opts ...ClientOption) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		cfg:        cfg.withDefaults(),
		httpClient: &http.Client{Timeout: DefaultHTTPTimeout},
		logger:     slog.Default(),
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Config returns the client's configuration with defaults applied.
func (c *Client) Config() Config {
	return c.cfg
}

// BuildAuthorizationURL generates a fresh PKCE pair and returns the URL the
// user agent should be sent to. Stored token state is not touched; the
// caller keeps the returned CodeVerifier for ExchangeCode.
func (c *Client) BuildAuthorizationURL(params AuthorizationParams) (*AuthorizationRequest, error) {
	switch params.AccessType {
	case "", AccessTypeOnline, AccessTypeOffline:
	default:
		return nil, fmt.Errorf("invalid access_type %q", params.AccessType)
	}
	switch params.ApprovalPrompt {
	case "", ApprovalPromptAuto, ApprovalPromptForce:
	default:
		return nil, fmt.Errorf("invalid approval_prompt %q", params.ApprovalPrompt)
	}

	pkce, err := GeneratePKCEChallenge(DefaultVerifierLength)
	if err != nil {
		return nil, fmt.Errorf("failed to generate PKCE: %w", err)
	}

	authURL, err := url.Parse(c.cfg.AuthServerBaseURL + authorizePath)
	if err != nil {
		return nil, fmt.Errorf("invalid authorization endpoint: %w", err)
	}

	query := authURL.Query()
	query.Set("response_type", "code")
	query.Set("client_id", c.cfg.ClientID)
	query.Set("redirect_uri", c.cfg.RedirectURI)
	query.Set("code_challenge", pkce.CodeChallenge)
	query.Set("code_challenge_method", pkce.CodeChallengeMethod)

	if c.cfg.Scope != "" {
		query.Set("scope", c.cfg.Scope)
	}
	if params.State != "" {
		query.Set("state", params.State)
	}
	if params.AccessType != "" {
		query.Set("access_type", string(params.AccessType))
	}
	if params.ApprovalPrompt != "" {
		query.Set("approval_prompt", string(params.ApprovalPrompt))
	}

	authURL.RawQuery = query.Encode()

	return &AuthorizationRequest{
		URL:           authURL.String(),
		CodeVerifier:  pkce.CodeVerifier,
		CodeChallenge: pkce.CodeChallenge,
	}, nil
}

// ExchangeCode trades an authorization code and its PKCE verifier for a
// TokenSet, stores it and returns a copy.
func (c *Client) ExchangeCode(ctx context.Context, code, codeVerifier string) (TokenSet, error) {
	if code == "" {
		return TokenSet{}, fmt.Errorf("authorization code is required")
	}
	if codeVerifier == "" {
		return TokenSet{}, fmt.Errorf("code verifier is required")
	}

	data := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"client_id":     {c.cfg.ClientID},
		"redirect_uri":  {c.cfg.RedirectURI},
		"code_verifier": {codeVerifier},
	}

	c.logger.Debug("Exchanging authorization code", "auth_server", c.cfg.AuthServerBaseURL)

	resp, endpointErr := c.doTokenRequest(ctx, "token exchange", data)
	if endpointErr != nil {
		c.logger.Warn("Token exchange failed", "status", endpointErr.Status, "error_code", endpointErr.Code)
		return TokenSet{}, &TokenExchangeError{*endpointErr}
	}

	tokens := resp.toTokenSet(c.now())
	c.store(tokens)

	c.logger.Debug("Token exchange succeeded", "tokens", tokens)
	return tokens, nil
}

// RefreshAccessToken runs a refresh grant with refreshToken, or with the
// stored refresh token when refreshToken is empty. When the server does not
// rotate the refresh token, the one that was used is kept.
func (c *Client) RefreshAccessToken(ctx context.Context, refreshToken string) (TokenSet, error) {
	if refreshToken == "" {
		c.mu.RLock()
		if c.tokens != nil {
			refreshToken = c.tokens.RefreshToken
		}
		c.mu.RUnlock()
	}
	if refreshToken == "" {
		return TokenSet{}, ErrNoRefreshToken
	}

	data := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"client_id":     {c.cfg.ClientID},
	}

	c.logger.Debug("Refreshing access token", "auth_server", c.cfg.AuthServerBaseURL)

	resp, endpointErr := c.doTokenRequest(ctx, "token refresh", data)
	if endpointErr != nil {
		c.logger.Warn("Token refresh failed", "status", endpointErr.Status, "error_code", endpointErr.Code)
		return TokenSet{}, &TokenRefreshError{*endpointErr}
	}

	tokens := resp.toTokenSet(c.now())
	if tokens.RefreshToken == "" {
		tokens.RefreshToken = refreshToken
	}
	c.store(tokens)

	c.logger.Debug("Token refresh succeeded", "tokens", tokens)
	return tokens, nil
}

// RevokeToken revokes token, or the stored access token when token is empty.
// Stored state is cleared only when the revoked token is the stored access
// token, so revoking some other token never ends the current session.
func (c *Client) RevokeToken(ctx context.Context, token string) error {
	if token == "" {
		c.mu.RLock()
		if c.tokens != nil {
			token = c.tokens.AccessToken
		}
		c.mu.RUnlock()
	}
	if token == "" {
		return ErrNoTokenToRevoke
	}

	data := url.Values{"token": {token}}

	status, statusCode, body, err := c.postForm(ctx, revokePath, data)
	if err != nil {
		return &RevocationError{transportEndpointError("token revocation", err)}
	}
	if statusCode < 200 || statusCode > 299 {
		c.logger.Warn("Token revocation failed", "status", status)
		return &RevocationError{newEndpointError("token revocation", status, statusCode, body)}
	}

	c.mu.Lock()
	cleared := c.tokens != nil && c.tokens.AccessToken == token
	if cleared {
		c.tokens = nil
	}
	c.mu.Unlock()

	c.logger.Debug("Token revoked", "cleared_session", cleared)
	return nil
}

// AccessToken returns a usable bearer token, refreshing first when the
// stored one is within ExpiryBuffer of expiring.
//
// All callers that arrive while a refresh is in flight wait for that same
// refresh. The shared refresh is not cancelled when one waiting caller's
// context is; each caller stops waiting on its own context instead.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	tokens, err := c.validTokenSet(ctx)
	if err != nil {
		return "", err
	}
	return tokens.AccessToken, nil
}

func (c *Client) validTokenSet(ctx context.Context) (TokenSet, error) {
	current, ok := c.TokenSet()
	if !ok {
		return TokenSet{}, ErrNoCredential
	}
	if !current.ExpiredAt(c.now()) {
		return current, nil
	}

	refreshCtx := context.WithoutCancel(ctx)
	ch := c.refreshGroup.DoChan(refreshKey, func() (interface{}, error) {
		// A refresh may have completed between our check and this call.
		latest, ok := c.TokenSet()
		if !ok {
			return nil, ErrNoCredential
		}
		if !latest.ExpiredAt(c.now()) {
			return latest, nil
		}
		return c.RefreshAccessToken(refreshCtx, latest.RefreshToken)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return TokenSet{}, res.Err
		}
		return res.Val.(TokenSet), nil
	case <-ctx.Done():
		return TokenSet{}, ctx.Err()
	}
}

// IsTokenExpired reports whether there is no usable token: none is stored or
// the stored one is within ExpiryBuffer of expiring.
func (c *Client) IsTokenExpired() bool {
	current, ok := c.TokenSet()
	if !ok {
		return true
	}
	return current.ExpiredAt(c.now())
}

// TokenSet returns a copy of the stored credential.
func (c *Client) TokenSet() (TokenSet, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.tokens == nil {
		return TokenSet{}, false
	}
	return *c.tokens, true
}

// SetTokenSet replaces the stored credential with a copy of tokens, e.g. one
// restored from disk. A zero TokenSet clears the credential.
func (c *Client) SetTokenSet(tokens TokenSet) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if tokens.IsZero() {
		c.tokens = nil
		return
	}
	c.tokens = &tokens
}

// ClearTokenSet drops the stored credential without contacting the server.
func (c *Client) ClearTokenSet() {
	c.SetTokenSet(TokenSet{})
}

// TokenSource adapts the client to golang.org/x/oauth2. Tokens obtained
// through it go through AccessToken, so refreshes stay deduplicated.
func (c *Client) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &tokenSource{ctx: ctx, client: c}
}

type tokenSource struct {
	ctx    context.Context
	client *Client
}

func (s *tokenSource) Token() (*oauth2.Token, error) {
	tokens, err := s.client.validTokenSet(s.ctx)
	if err != nil {
		return nil, err
	}
	return tokens.ToOAuth2Token(), nil
}

// store saves a copy and notifies the observer outside the lock.
func (c *Client) store(tokens TokenSet) {
	c.SetTokenSet(tokens)
	if c.observer != nil {
		c.observer(tokens)
	}
}

// doTokenRequest posts a grant to the token endpoint and decodes the reply.
func (c *Client) doTokenRequest(ctx context.Context, op string, data url.Values) (*tokenResponse, *EndpointError) {
	status, statusCode, body, err := c.postForm(ctx, tokenPath, data)
	if err != nil {
		e := transportEndpointError(op, err)
		return nil, &e
	}

	if statusCode < 200 || statusCode > 299 {
		e := newEndpointError(op, status, statusCode, body)
		return nil, &e
	}

	var resp tokenResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		e := EndpointError{op: op, Status: status, StatusCode: statusCode,
			Err: fmt.Errorf("failed to parse token response: %w", err)}
		return nil, &e
	}
	if resp.AccessToken == "" {
		e := EndpointError{op: op, Status: status, StatusCode: statusCode,
			Err: fmt.Errorf("token response has no access_token")}
		return nil, &e
	}

	return &resp, nil
}

// postForm sends a form-encoded POST to the authorization server.
func (c *Client) postForm(ctx context.Context, path string, data url.Values) (status string, statusCode int, body []byte, err error) {
	endpoint := c.cfg.AuthServerBaseURL + path

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(data.Encode()))
	if err != nil {
		return "", 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", 0, nil, err
	}
	defer resp.Body.Close()

	body, err = io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.Status, resp.StatusCode, nil, fmt.Errorf("failed to read response: %w", err)
	}

	return resp.Status, resp.StatusCode, body, nil
}
