package oauth

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenSet_JSONContract(t *testing.T) {
	ts := TokenSet{
		AccessToken:  "at",
		RefreshToken: "rt",
		ExpiresAt:    time.UnixMilli(1767225600123),
		Scope:        "osf.full_read osf.full_write",
	}

	data, err := json.Marshal(ts)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"accessToken": "at",
		"refreshToken": "rt",
		"expiresAt": 1767225600123,
		"scope": "osf.full_read osf.full_write"
	}`, string(data))

	var decoded TokenSet
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, ts.AccessToken, decoded.AccessToken)
	assert.Equal(t, ts.RefreshToken, decoded.RefreshToken)
	assert.Equal(t, ts.Scope, decoded.Scope)
	assert.True(t, ts.ExpiresAt.Equal(decoded.ExpiresAt))
}

func TestTokenSet_JSONOmitsOptionalFields(t *testing.T) {
	data, err := json.Marshal(TokenSet{AccessToken: "at", ExpiresAt: time.UnixMilli(1000)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"accessToken": "at", "expiresAt": 1000}`, string(data))
}

func TestTokenSet_ExpiredAt(t *testing.T) {
	expiry := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ts := TokenSet{AccessToken: "at", ExpiresAt: expiry}

	assert.False(t, ts.ExpiredAt(expiry.Add(-2*time.Minute)))
	assert.False(t, ts.ExpiredAt(expiry.Add(-61*time.Second)))
	assert.True(t, ts.ExpiredAt(expiry.Add(-60*time.Second)))
	assert.True(t, ts.ExpiredAt(expiry.Add(time.Hour)))

	assert.True(t, TokenSet{}.ExpiredAt(expiry.Add(-time.Hour)), "zero TokenSet is always expired")
}

func TestTokenSet_Helpers(t *testing.T) {
	ts := TokenSet{AccessToken: "at", Scope: "osf.full_read  osf.users.email_read"}
	assert.False(t, ts.IsZero())
	assert.False(t, ts.HasRefreshToken())
	assert.Equal(t, []string{"osf.full_read", "osf.users.email_read"}, ts.Scopes())
	assert.Nil(t, TokenSet{}.Scopes())
	assert.True(t, TokenSet{}.IsZero())
}

func TestTokenSet_ToOAuth2Token(t *testing.T) {
	expiry := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tok := TokenSet{AccessToken: "at", RefreshToken: "rt", ExpiresAt: expiry}.ToOAuth2Token()

	assert.Equal(t, "at", tok.AccessToken)
	assert.Equal(t, "rt", tok.RefreshToken)
	assert.Equal(t, "Bearer", tok.TokenType)
	assert.True(t, expiry.Equal(tok.Expiry))
}

func TestTokenSet_NeverPrintsSecrets(t *testing.T) {
	ts := TokenSet{
		AccessToken:  "secret-access-value",
		RefreshToken: "secret-refresh-value",
		ExpiresAt:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Scope:        "osf.full_read",
	}

	for _, format := range []string{"%v", "%+v", "%#v", "%s"} {
		out := fmt.Sprintf(format, ts)
		assert.NotContains(t, out, "secret-access-value", format)
		assert.NotContains(t, out, "secret-refresh-value", format)
	}
	assert.Contains(t, ts.String(), "[REDACTED]")
	assert.Contains(t, TokenSet{}.String(), "<none>")

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	logger.Info("stored", "tokens", ts)

	assert.NotContains(t, buf.String(), "secret-access-value")
	assert.NotContains(t, buf.String(), "secret-refresh-value")
	assert.Contains(t, buf.String(), `"has_refresh_token":true`)
}

func TestTokenResponse_ToTokenSet(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ts := tokenResponse{AccessToken: "at", ExpiresIn: 3600, Scope: "s"}.toTokenSet(now)

	assert.Equal(t, "at", ts.AccessToken)
	assert.Empty(t, ts.RefreshToken)
	assert.True(t, now.Add(time.Hour).Equal(ts.ExpiresAt))
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, Config{ClientID: "id", RedirectURI: "http://localhost/cb"}.Validate())

	var cfgErr *ConfigurationError
	require.ErrorAs(t, Config{ClientID: "id"}.Validate(), &cfgErr)
	assert.Equal(t, "redirectUri", cfgErr.Field)
	assert.Contains(t, cfgErr.Error(), "redirectUri is required")
}
