package oauth

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"osf/internal/testing/mock"
)

const (
	testClientID    = "test-client"
	testRedirectURI = "http://127.0.0.1:8085/callback"
)

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestClient(t *testing.T, server *mock.OAuthServer, clock *mock.MockClock, opts ...ClientOption) *Client {
	t.Helper()

	opts = append([]ClientOption{
		WithHTTPClient(server.Client()),
		WithClock(clock.Now),
	}, opts...)

	c, err := NewClient(Config{
		ClientID:          testClientID,
		RedirectURI:       testRedirectURI,
		Scope:             "osf.full_read",
		AuthServerBaseURL: server.URL(),
	}, opts...)
	require.NoError(t, err)
	return c
}

func TestNewClient(t *testing.T) {
	t.Run("applies defaults", func(t *testing.T) {
		c, err := NewClient(Config{ClientID: "id", RedirectURI: testRedirectURI})
		require.NoError(t, err)

		assert.Equal(t, DefaultAuthServerBaseURL, c.Config().AuthServerBaseURL)
		assert.NotNil(t, c.httpClient)
		assert.NotNil(t, c.logger)
		assert.True(t, c.IsTokenExpired())
	})

	t.Run("trims trailing slash from base URL", func(t *testing.T) {
		c, err := NewClient(Config{ClientID: "id", RedirectURI: testRedirectURI, AuthServerBaseURL: "https://accounts.test.osf.io/"})
		require.NoError(t, err)
		assert.Equal(t, "https://accounts.test.osf.io", c.Config().AuthServerBaseURL)
	})

	tests := []struct {
		name  string
		cfg   Config
		field string
	}{
		{"missing client id", Config{RedirectURI: testRedirectURI}, "clientId"},
		{"blank client id", Config{ClientID: "  ", RedirectURI: testRedirectURI}, "clientId"},
		{"missing redirect uri", Config{ClientID: "id"}, "redirectUri"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewClient(tt.cfg)
			assert.Nil(t, c)

			var cfgErr *ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestBuildAuthorizationURL(t *testing.T) {
	server := mock.NewOAuthServer(mock.OAuthServerConfig{})
	defer server.Close()
	c := newTestClient(t, server, mock.NewMockClock(testEpoch))

	existing := TokenSet{AccessToken: "keep", ExpiresAt: testEpoch.Add(time.Hour)}
	c.SetTokenSet(existing)

	req, err := c.BuildAuthorizationURL(AuthorizationParams{
		State:          "xyz",
		AccessType:     AccessTypeOffline,
		ApprovalPrompt: ApprovalPromptForce,
	})
	require.NoError(t, err)

	u, err := url.Parse(req.URL)
	require.NoError(t, err)
	assert.Equal(t, server.URL()+"/oauth2/authorize", u.Scheme+"://"+u.Host+u.Path)

	q := u.Query()
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, testClientID, q.Get("client_id"))
	assert.Equal(t, testRedirectURI, q.Get("redirect_uri"))
	assert.Equal(t, "osf.full_read", q.Get("scope"))
	assert.Equal(t, "xyz", q.Get("state"))
	assert.Equal(t, "offline", q.Get("access_type"))
	assert.Equal(t, "force", q.Get("approval_prompt"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.Equal(t, req.CodeChallenge, q.Get("code_challenge"))
	assert.Equal(t, ComputeCodeChallenge(req.CodeVerifier), req.CodeChallenge)
	assert.Len(t, req.CodeVerifier, DefaultVerifierLength)
	assert.NotContains(t, req.URL, req.CodeVerifier)

	stored, ok := c.TokenSet()
	require.True(t, ok)
	assert.Equal(t, existing, stored)
	assert.Zero(t, server.TokenRequests())
}

func TestBuildAuthorizationURL_OptionalParams(t *testing.T) {
	c, err := NewClient(Config{ClientID: "id", RedirectURI: testRedirectURI})
	require.NoError(t, err)

	req, err := c.BuildAuthorizationURL(AuthorizationParams{})
	require.NoError(t, err)

	q, err := url.ParseQuery(req.URL[strings.Index(req.URL, "?")+1:])
	require.NoError(t, err)
	for _, key := range []string{"scope", "state", "access_type", "approval_prompt"} {
		assert.NotContains(t, q, key)
	}

	other, err := c.BuildAuthorizationURL(AuthorizationParams{})
	require.NoError(t, err)
	assert.NotEqual(t, req.CodeVerifier, other.CodeVerifier, "every request gets a fresh PKCE pair")
}

func TestBuildAuthorizationURL_InvalidEnums(t *testing.T) {
	c, err := NewClient(Config{ClientID: "id", RedirectURI: testRedirectURI})
	require.NoError(t, err)

	_, err = c.BuildAuthorizationURL(AuthorizationParams{AccessType: "forever"})
	assert.Error(t, err)

	_, err = c.BuildAuthorizationURL(AuthorizationParams{ApprovalPrompt: "never"})
	assert.Error(t, err)
}

func TestExchangeCode(t *testing.T) {
	server := mock.NewOAuthServer(mock.OAuthServerConfig{ClientID: testClientID})
	defer server.Close()
	clock := mock.NewMockClock(testEpoch)

	var observed []TokenSet
	c := newTestClient(t, server, clock, WithTokenObserver(func(ts TokenSet) {
		observed = append(observed, ts)
	}))

	req, err := c.BuildAuthorizationURL(AuthorizationParams{})
	require.NoError(t, err)
	code := server.GenerateAuthCode(testClientID, testRedirectURI, req.CodeChallenge)

	tokens, err := c.ExchangeCode(context.Background(), code, req.CodeVerifier)
	require.NoError(t, err)

	assert.Equal(t, "access-1", tokens.AccessToken)
	assert.Equal(t, "refresh-1", tokens.RefreshToken)
	assert.Equal(t, "osf.full_read", tokens.Scope)
	assert.True(t, testEpoch.Add(time.Hour).Equal(tokens.ExpiresAt))

	form := server.LastForm()
	assert.Equal(t, "authorization_code", form.Get("grant_type"))
	assert.Equal(t, code, form.Get("code"))
	assert.Equal(t, testClientID, form.Get("client_id"))
	assert.Equal(t, testRedirectURI, form.Get("redirect_uri"))
	assert.Equal(t, req.CodeVerifier, form.Get("code_verifier"))

	stored, ok := c.TokenSet()
	require.True(t, ok)
	assert.Equal(t, tokens, stored)
	assert.False(t, c.IsTokenExpired())
	assert.Equal(t, []TokenSet{tokens}, observed)
}

func TestExchangeCode_RequiresArguments(t *testing.T) {
	c, err := NewClient(Config{ClientID: "id", RedirectURI: testRedirectURI})
	require.NoError(t, err)

	_, err = c.ExchangeCode(context.Background(), "", "verifier")
	assert.Error(t, err)
	_, err = c.ExchangeCode(context.Background(), "code", "")
	assert.Error(t, err)
}

func TestExchangeCode_WrongVerifier(t *testing.T) {
	server := mock.NewOAuthServer(mock.OAuthServerConfig{})
	defer server.Close()
	c := newTestClient(t, server, mock.NewMockClock(testEpoch))

	req, err := c.BuildAuthorizationURL(AuthorizationParams{})
	require.NoError(t, err)
	code := server.GenerateAuthCode(testClientID, testRedirectURI, req.CodeChallenge)

	_, err = c.ExchangeCode(context.Background(), code, strings.Repeat("a", 43))

	var exchangeErr *TokenExchangeError
	require.ErrorAs(t, err, &exchangeErr)
	assert.Equal(t, 400, exchangeErr.StatusCode)
	assert.Equal(t, "invalid_grant", exchangeErr.Code)
	assert.Equal(t, "PKCE verification failed", exchangeErr.Description)
	assert.Contains(t, err.Error(), "400 Bad Request")
	assert.Contains(t, err.Error(), "PKCE verification failed")

	_, ok := c.TokenSet()
	assert.False(t, ok)
}

func TestExchangeCode_DoesNotEchoNonJSONBody(t *testing.T) {
	server := mock.NewOAuthServer(mock.OAuthServerConfig{
		SimulateErrors: &mock.OAuthErrorSimulation{
			TokenStatus: 502,
			TokenBody:   "<html><body>upstream stack trace: secret-internal-host</body></html>",
		},
	})
	defer server.Close()
	c := newTestClient(t, server, mock.NewMockClock(testEpoch))

	_, err := c.ExchangeCode(context.Background(), "code", "verifier")

	var exchangeErr *TokenExchangeError
	require.ErrorAs(t, err, &exchangeErr)
	assert.Equal(t, 502, exchangeErr.StatusCode)
	assert.Contains(t, err.Error(), "502")
	assert.NotContains(t, err.Error(), "secret-internal-host")
	assert.NotContains(t, err.Error(), "<html>")
}

func TestExchangeCode_TransportError(t *testing.T) {
	server := mock.NewOAuthServer(mock.OAuthServerConfig{})
	c := newTestClient(t, server, mock.NewMockClock(testEpoch))
	server.Close()

	_, err := c.ExchangeCode(context.Background(), "code", "verifier")

	var exchangeErr *TokenExchangeError
	require.ErrorAs(t, err, &exchangeErr)
	assert.Zero(t, exchangeErr.StatusCode)
	assert.NotNil(t, errors.Unwrap(&exchangeErr.EndpointError))
}

func TestRefreshAccessToken(t *testing.T) {
	t.Run("keeps refresh token when not rotated", func(t *testing.T) {
		server := mock.NewOAuthServer(mock.OAuthServerConfig{})
		defer server.Close()
		clock := mock.NewMockClock(testEpoch)
		c := newTestClient(t, server, clock)

		c.SetTokenSet(TokenSet{AccessToken: "old", RefreshToken: "r-old", ExpiresAt: testEpoch})

		tokens, err := c.RefreshAccessToken(context.Background(), "")
		require.NoError(t, err)

		assert.Equal(t, "access-1", tokens.AccessToken)
		assert.Equal(t, "r-old", tokens.RefreshToken)
		assert.True(t, testEpoch.Add(time.Hour).Equal(tokens.ExpiresAt))

		form := server.LastForm()
		assert.Equal(t, "refresh_token", form.Get("grant_type"))
		assert.Equal(t, "r-old", form.Get("refresh_token"))
		assert.Equal(t, testClientID, form.Get("client_id"))

		stored, _ := c.TokenSet()
		assert.Equal(t, tokens, stored)
	})

	t.Run("adopts rotated refresh token", func(t *testing.T) {
		server := mock.NewOAuthServer(mock.OAuthServerConfig{RotateRefreshTokens: true})
		defer server.Close()
		c := newTestClient(t, server, mock.NewMockClock(testEpoch))

		tokens, err := c.RefreshAccessToken(context.Background(), "explicit")
		require.NoError(t, err)
		assert.Equal(t, "refresh-1", tokens.RefreshToken)
		assert.Equal(t, "explicit", server.LastForm().Get("refresh_token"))
	})

	t.Run("no refresh token anywhere", func(t *testing.T) {
		server := mock.NewOAuthServer(mock.OAuthServerConfig{})
		defer server.Close()
		c := newTestClient(t, server, mock.NewMockClock(testEpoch))
		c.SetTokenSet(TokenSet{AccessToken: "a", ExpiresAt: testEpoch})

		_, err := c.RefreshAccessToken(context.Background(), "")
		assert.ErrorIs(t, err, ErrNoRefreshToken)
		assert.Zero(t, server.TokenRequests())
	})

	t.Run("server rejects refresh", func(t *testing.T) {
		server := mock.NewOAuthServer(mock.OAuthServerConfig{
			SimulateErrors: &mock.OAuthErrorSimulation{
				TokenStatus: 400,
				TokenBody:   `{"error":"invalid_grant","error_description":"Refresh token revoked"}`,
			},
		})
		defer server.Close()
		c := newTestClient(t, server, mock.NewMockClock(testEpoch))
		original := TokenSet{AccessToken: "a", RefreshToken: "r", ExpiresAt: testEpoch}
		c.SetTokenSet(original)

		_, err := c.RefreshAccessToken(context.Background(), "")

		var refreshErr *TokenRefreshError
		require.ErrorAs(t, err, &refreshErr)
		assert.Equal(t, "invalid_grant", refreshErr.Code)
		assert.Contains(t, err.Error(), "Refresh token revoked")

		stored, _ := c.TokenSet()
		assert.Equal(t, original, stored, "failed refresh leaves state untouched")
	})
}

func TestRevokeToken(t *testing.T) {
	t.Run("revoking another token keeps the session", func(t *testing.T) {
		server := mock.NewOAuthServer(mock.OAuthServerConfig{})
		defer server.Close()
		c := newTestClient(t, server, mock.NewMockClock(testEpoch))
		c.SetTokenSet(TokenSet{AccessToken: "a1", RefreshToken: "r1", ExpiresAt: testEpoch.Add(time.Hour)})

		require.NoError(t, c.RevokeToken(context.Background(), "r1"))

		_, ok := c.TokenSet()
		assert.True(t, ok)
		assert.Equal(t, []string{"r1"}, server.Revoked())
		assert.Equal(t, url.Values{"token": {"r1"}}, server.LastForm())
	})

	t.Run("revoking the stored access token clears the session", func(t *testing.T) {
		server := mock.NewOAuthServer(mock.OAuthServerConfig{})
		defer server.Close()
		c := newTestClient(t, server, mock.NewMockClock(testEpoch))
		c.SetTokenSet(TokenSet{AccessToken: "a1", ExpiresAt: testEpoch.Add(time.Hour)})

		require.NoError(t, c.RevokeToken(context.Background(), ""))

		_, ok := c.TokenSet()
		assert.False(t, ok)
		assert.Equal(t, []string{"a1"}, server.Revoked())

		_, err := c.AccessToken(context.Background())
		assert.ErrorIs(t, err, ErrNoCredential)
	})

	t.Run("nothing to revoke", func(t *testing.T) {
		server := mock.NewOAuthServer(mock.OAuthServerConfig{})
		defer server.Close()
		c := newTestClient(t, server, mock.NewMockClock(testEpoch))

		assert.ErrorIs(t, c.RevokeToken(context.Background(), ""), ErrNoTokenToRevoke)
		assert.Zero(t, server.RevokeRequests())
	})

	t.Run("server failure keeps the session", func(t *testing.T) {
		server := mock.NewOAuthServer(mock.OAuthServerConfig{
			SimulateErrors: &mock.OAuthErrorSimulation{RevokeStatus: 503, RevokeBody: "maintenance"},
		})
		defer server.Close()
		c := newTestClient(t, server, mock.NewMockClock(testEpoch))
		c.SetTokenSet(TokenSet{AccessToken: "a1", ExpiresAt: testEpoch.Add(time.Hour)})

		err := c.RevokeToken(context.Background(), "")

		var revokeErr *RevocationError
		require.ErrorAs(t, err, &revokeErr)
		assert.Equal(t, 503, revokeErr.StatusCode)
		assert.NotContains(t, err.Error(), "maintenance")

		_, ok := c.TokenSet()
		assert.True(t, ok)
	})
}

func TestIsTokenExpired_Boundary(t *testing.T) {
	clock := mock.NewMockClock(testEpoch)
	c, err := NewClient(Config{ClientID: "id", RedirectURI: testRedirectURI}, WithClock(clock.Now))
	require.NoError(t, err)

	assert.True(t, c.IsTokenExpired(), "no token counts as expired")

	c.SetTokenSet(TokenSet{AccessToken: "a", ExpiresAt: testEpoch.Add(10 * time.Minute)})

	clock.Set(testEpoch.Add(10*time.Minute - ExpiryBuffer - time.Millisecond))
	assert.False(t, c.IsTokenExpired())

	clock.Set(testEpoch.Add(10*time.Minute - ExpiryBuffer))
	assert.True(t, c.IsTokenExpired(), "expired exactly at ExpiresAt - 60s")
}

func TestAccessToken(t *testing.T) {
	t.Run("no credential", func(t *testing.T) {
		c, err := NewClient(Config{ClientID: "id", RedirectURI: testRedirectURI})
		require.NoError(t, err)

		_, err = c.AccessToken(context.Background())
		assert.ErrorIs(t, err, ErrNoCredential)
	})

	t.Run("valid token needs no request", func(t *testing.T) {
		server := mock.NewOAuthServer(mock.OAuthServerConfig{})
		defer server.Close()
		c := newTestClient(t, server, mock.NewMockClock(testEpoch))
		c.SetTokenSet(TokenSet{AccessToken: "fresh", RefreshToken: "r", ExpiresAt: testEpoch.Add(time.Hour)})

		token, err := c.AccessToken(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "fresh", token)
		assert.Zero(t, server.TokenRequests())
	})

	t.Run("refreshes inside the buffer", func(t *testing.T) {
		server := mock.NewOAuthServer(mock.OAuthServerConfig{})
		defer server.Close()
		c := newTestClient(t, server, mock.NewMockClock(testEpoch))
		c.SetTokenSet(TokenSet{AccessToken: "stale", RefreshToken: "r", ExpiresAt: testEpoch.Add(30 * time.Second)})

		token, err := c.AccessToken(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "access-1", token)
		assert.Equal(t, 1, server.RefreshRequests())
	})

	t.Run("expired without refresh token", func(t *testing.T) {
		server := mock.NewOAuthServer(mock.OAuthServerConfig{})
		defer server.Close()
		c := newTestClient(t, server, mock.NewMockClock(testEpoch))
		c.SetTokenSet(TokenSet{AccessToken: "stale", ExpiresAt: testEpoch})

		_, err := c.AccessToken(context.Background())
		assert.ErrorIs(t, err, ErrNoRefreshToken)
		assert.Zero(t, server.TokenRequests())
	})
}

func TestAccessToken_ConcurrentCallersShareOneRefresh(t *testing.T) {
	server := mock.NewOAuthServer(mock.OAuthServerConfig{TokenDelay: 100 * time.Millisecond})
	defer server.Close()
	c := newTestClient(t, server, mock.NewMockClock(testEpoch))
	c.SetTokenSet(TokenSet{AccessToken: "stale", RefreshToken: "r", ExpiresAt: testEpoch})

	const callers = 25
	var wg sync.WaitGroup
	tokens := make([]string, callers)
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = c.AccessToken(context.Background())
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "access-1", tokens[i])
	}
	assert.Equal(t, 1, server.RefreshRequests())
}

func TestAccessToken_RetryAfterFailedRefresh(t *testing.T) {
	server := mock.NewOAuthServer(mock.OAuthServerConfig{
		SimulateErrors: &mock.OAuthErrorSimulation{TokenStatus: 500, TokenBody: "{}"},
	})
	defer server.Close()
	c := newTestClient(t, server, mock.NewMockClock(testEpoch))
	c.SetTokenSet(TokenSet{AccessToken: "stale", RefreshToken: "r", ExpiresAt: testEpoch})

	_, err := c.AccessToken(context.Background())
	var refreshErr *TokenRefreshError
	require.ErrorAs(t, err, &refreshErr)

	server.SetErrors(nil)

	token, err := c.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "access-1", token)
	assert.Equal(t, 2, server.RefreshRequests())
}

func TestAccessToken_CallerCancellationDoesNotAbortSharedRefresh(t *testing.T) {
	server := mock.NewOAuthServer(mock.OAuthServerConfig{TokenDelay: 150 * time.Millisecond})
	defer server.Close()
	c := newTestClient(t, server, mock.NewMockClock(testEpoch))
	c.SetTokenSet(TokenSet{AccessToken: "stale", RefreshToken: "r", ExpiresAt: testEpoch})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.AccessToken(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	assert.Eventually(t, func() bool {
		tokens, ok := c.TokenSet()
		return ok && tokens.AccessToken == "access-1"
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, server.RefreshRequests())
}

func TestTokenSet_ReturnsCopies(t *testing.T) {
	c, err := NewClient(Config{ClientID: "id", RedirectURI: testRedirectURI})
	require.NoError(t, err)

	in := TokenSet{AccessToken: "a", RefreshToken: "r", ExpiresAt: testEpoch}
	c.SetTokenSet(in)
	in.AccessToken = "mutated"

	out, ok := c.TokenSet()
	require.True(t, ok)
	assert.Equal(t, "a", out.AccessToken)

	out.RefreshToken = "mutated"
	again, _ := c.TokenSet()
	assert.Equal(t, "r", again.RefreshToken)

	c.ClearTokenSet()
	_, ok = c.TokenSet()
	assert.False(t, ok)
}

func TestTokenSource(t *testing.T) {
	server := mock.NewOAuthServer(mock.OAuthServerConfig{})
	defer server.Close()
	c := newTestClient(t, server, mock.NewMockClock(testEpoch))

	ts := c.TokenSource(context.Background())
	_, err := ts.Token()
	assert.ErrorIs(t, err, ErrNoCredential)

	c.SetTokenSet(TokenSet{AccessToken: "stale", RefreshToken: "r", ExpiresAt: testEpoch})

	tok, err := ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "access-1", tok.AccessToken)
	assert.Equal(t, "Bearer", tok.Type())
	assert.Equal(t, "r", tok.RefreshToken)
	assert.True(t, testEpoch.Add(time.Hour).Equal(tok.Expiry))
}
