package cmd

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"osf/internal/config"
	"osf/internal/tokenstore"
	"osf/pkg/oauth"
)

// testEnv isolates one command run: its own config directory and no OSF_*
// variables leaking in from the environment.
type testEnv struct {
	dir string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	for _, env := range []string{
		config.EnvClientID, config.EnvRedirectURI, config.EnvScope, config.EnvAuthURL,
		config.EnvAPIURL, config.EnvToken, config.EnvLogLevel, config.EnvRPS,
	} {
		t.Setenv(env, "")
	}

	origBrowser := openBrowser
	origHTTP := httpClient
	t.Cleanup(func() {
		openBrowser = origBrowser
		httpClient = origHTTP
	})

	return &testEnv{dir: t.TempDir()}
}

func (e *testEnv) tokenFile() string {
	return filepath.Join(e.dir, "token.json")
}

func (e *testEnv) store() *tokenstore.Store {
	return tokenstore.New(e.tokenFile(), nil)
}

func (e *testEnv) saveSession(t *testing.T, tokens oauth.TokenSet) {
	t.Helper()
	if err := e.store().Save(tokens); err != nil {
		t.Fatalf("failed to save session: %v", err)
	}
}

func (e *testEnv) loadSession(t *testing.T) (oauth.TokenSet, bool) {
	t.Helper()
	tokens, ok, err := e.store().Load()
	if err != nil {
		t.Fatalf("failed to load session: %v", err)
	}
	return tokens, ok
}

// run executes the root command with args and returns stdout and stderr.
func (e *testEnv) run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	resetFlags()

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(append([]string{"--config", e.dir, "--log-level", "error"}, args...))
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := rootCmd.ExecuteContext(ctx)
	return stdout.String(), stderr.String(), err
}

// resetFlags restores flag variables between runs of the shared rootCmd.
func resetFlags() {
	configDir = ""
	logLevel = ""
	authQuiet = false
	getOutput = outputJSON
	getQuery = nil
	listOutput = outputTable
	listQuery = nil
	listLimit = 0
	listColumns = []string{"title"}
}

func validSession(access string) oauth.TokenSet {
	return oauth.TokenSet{
		AccessToken:  access,
		RefreshToken: "refresh-" + access,
		ExpiresAt:    time.Now().Add(time.Hour),
		Scope:        "osf.full_read",
	}
}
