package mock

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"time"
)

// OAuthServerConfig configures the mock authorization server behavior.
type OAuthServerConfig struct {
	// ClientID is the expected OAuth client ID. Empty accepts any.
	ClientID string

	// TokenLifetime is reported as expires_in. Defaults to one hour.
	TokenLifetime time.Duration

	// RotateRefreshTokens makes refresh grants return a new refresh token.
	// When false the refresh_token field is omitted from refresh responses.
	RotateRefreshTokens bool

	// TokenDelay is slept inside the token handler, so that concurrent
	// clients overlap while a request is in flight.
	TokenDelay time.Duration

	// SimulateErrors can be set to simulate various error conditions.
	SimulateErrors *OAuthErrorSimulation
}

// OAuthErrorSimulation allows simulating error conditions.
type OAuthErrorSimulation struct {
	// TokenStatus, when non-zero, is returned by /oauth2/token together with
	// TokenBody as the raw response body.
	TokenStatus int
	TokenBody   string

	// RevokeStatus, when non-zero, is returned by /oauth2/revoke.
	RevokeStatus int
	RevokeBody   string
}

type authCodeEntry struct {
	ClientID      string
	RedirectURI   string
	CodeChallenge string
}

// OAuthServer is a mock of the OSF authorization server's token and
// revocation endpoints, served by httptest.
type OAuthServer struct {
	config OAuthServerConfig
	server *httptest.Server

	mu           sync.Mutex
	authCodes    map[string]*authCodeEntry
	lastForm     url.Values
	revoked      []string
	issuedTokens int

	tokenRequests   atomic.Int32
	refreshRequests atomic.Int32
	revokeRequests  atomic.Int32
}

// NewOAuthServer starts a mock authorization server. Call Close when done.
func NewOAuthServer(config OAuthServerConfig) *OAuthServer {
	if config.TokenLifetime == 0 {
		config.TokenLifetime = time.Hour
	}

	s := &OAuthServer{
		config:    config,
		authCodes: make(map[string]*authCodeEntry),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/oauth2/token", s.handleToken)
	mux.HandleFunc("/oauth2/revoke", s.handleRevoke)
	s.server = httptest.NewServer(mux)

	return s
}

// URL is the server base URL, suitable as AuthServerBaseURL.
func (s *OAuthServer) URL() string {
	return s.server.URL
}

// Client returns an HTTP client configured for the server.
func (s *OAuthServer) Client() *http.Client {
	return s.server.Client()
}

// Close shuts the server down.
func (s *OAuthServer) Close() {
	s.server.Close()
}

// SetErrors replaces the error simulation at runtime.
func (s *OAuthServer) SetErrors(sim *OAuthErrorSimulation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config.SimulateErrors = sim
}

// TokenRequests is the number of requests received by /oauth2/token.
func (s *OAuthServer) TokenRequests() int {
	return int(s.tokenRequests.Load())
}

// RefreshRequests is the number of refresh_token grants received.
func (s *OAuthServer) RefreshRequests() int {
	return int(s.refreshRequests.Load())
}

// RevokeRequests is the number of requests received by /oauth2/revoke.
func (s *OAuthServer) RevokeRequests() int {
	return int(s.revokeRequests.Load())
}

// LastForm returns the form of the most recent token or revoke request.
func (s *OAuthServer) LastForm() url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastForm
}

// Revoked lists every token posted to the revocation endpoint.
func (s *OAuthServer) Revoked() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.revoked...)
}

// GenerateAuthCode registers an authorization code bound to the given PKCE
// challenge, simulating a user completing the browser step.
func (s *OAuthServer) GenerateAuthCode(clientID, redirectURI, codeChallenge string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	code := generateOpaqueToken()
	s.authCodes[code] = &authCodeEntry{
		ClientID:      clientID,
		RedirectURI:   redirectURI,
		CodeChallenge: codeChallenge,
	}
	return code
}

func (s *OAuthServer) handleToken(w http.ResponseWriter, r *http.Request) {
	s.tokenRequests.Add(1)

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "malformed form body")
		return
	}

	s.mu.Lock()
	s.lastForm = r.PostForm
	sim := s.config.SimulateErrors
	s.mu.Unlock()

	if r.PostForm.Get("grant_type") == "refresh_token" {
		s.refreshRequests.Add(1)
	}

	if s.config.TokenDelay > 0 {
		time.Sleep(s.config.TokenDelay)
	}

	if sim != nil && sim.TokenStatus != 0 {
		w.WriteHeader(sim.TokenStatus)
		fmt.Fprint(w, sim.TokenBody)
		return
	}

	if s.config.ClientID != "" && r.PostForm.Get("client_id") != s.config.ClientID {
		writeOAuthError(w, http.StatusUnauthorized, "invalid_client", "unknown client")
		return
	}

	switch grantType := r.PostForm.Get("grant_type"); grantType {
	case "authorization_code":
		s.handleAuthCodeExchange(w, r)
	case "refresh_token":
		s.handleRefreshToken(w, r)
	default:
		writeOAuthError(w, http.StatusBadRequest, "unsupported_grant_type",
			fmt.Sprintf("grant_type %s not supported", grantType))
	}
}

func (s *OAuthServer) handleAuthCodeExchange(w http.ResponseWriter, r *http.Request) {
	code := r.PostForm.Get("code")
	verifier := r.PostForm.Get("code_verifier")

	s.mu.Lock()
	entry, ok := s.authCodes[code]
	delete(s.authCodes, code)
	s.mu.Unlock()

	if !ok {
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "authorization code is invalid")
		return
	}
	if entry.RedirectURI != "" && entry.RedirectURI != r.PostForm.Get("redirect_uri") {
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "redirect_uri mismatch")
		return
	}
	if entry.CodeChallenge != "" {
		hash := sha256.Sum256([]byte(verifier))
		if base64.RawURLEncoding.EncodeToString(hash[:]) != entry.CodeChallenge {
			writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "PKCE verification failed")
			return
		}
	}

	s.writeTokens(w, true)
}

func (s *OAuthServer) handleRefreshToken(w http.ResponseWriter, r *http.Request) {
	if r.PostForm.Get("refresh_token") == "" {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "refresh_token is required")
		return
	}
	s.writeTokens(w, s.config.RotateRefreshTokens)
}

func (s *OAuthServer) writeTokens(w http.ResponseWriter, withRefresh bool) {
	s.mu.Lock()
	s.issuedTokens++
	n := s.issuedTokens
	s.mu.Unlock()

	resp := map[string]interface{}{
		"access_token": fmt.Sprintf("access-%d", n),
		"token_type":   "Bearer",
		"expires_in":   int(s.config.TokenLifetime.Seconds()),
		"scope":        "osf.full_read",
	}
	if withRefresh {
		resp["refresh_token"] = fmt.Sprintf("refresh-%d", n)
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *OAuthServer) handleRevoke(w http.ResponseWriter, r *http.Request) {
	s.revokeRequests.Add(1)

	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "malformed form body")
		return
	}

	s.mu.Lock()
	s.lastForm = r.PostForm
	sim := s.config.SimulateErrors
	s.mu.Unlock()

	if sim != nil && sim.RevokeStatus != 0 {
		w.WriteHeader(sim.RevokeStatus)
		fmt.Fprint(w, sim.RevokeBody)
		return
	}

	s.mu.Lock()
	s.revoked = append(s.revoked, r.PostForm.Get("token"))
	s.mu.Unlock()

	w.WriteHeader(http.StatusNoContent)
}

func writeOAuthError(w http.ResponseWriter, status int, code, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":             code,
		"error_description": description,
	})
}

// generateOpaqueToken returns a random hex string.
func generateOpaqueToken() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
