package cmd

import (
	"context"
	"fmt"
	"net/http"

	"osf/internal/config"
	"osf/internal/tokenstore"
	"osf/pkg/api"
	"osf/pkg/logging"
	"osf/pkg/oauth"

	"golang.org/x/time/rate"
)

// httpClient is shared by the OAuth and API clients. Tests swap it for the
// client of an httptest server.
var httpClient *http.Client

func loadConfig() (config.Config, error) {
	return config.Load(configDir)
}

func openTokenStore(cfg config.Config) *tokenstore.Store {
	return tokenstore.New(cfg.TokenFile, logging.Logger("tokenstore"))
}

func oauthOptions() []oauth.ClientOption {
	opts := []oauth.ClientOption{oauth.WithLogger(logging.Logger("oauth"))}
	if httpClient != nil {
		opts = append(opts, oauth.WithHTTPClient(httpClient))
	}
	return opts
}

// restoreOAuthClient returns an OAuth client for cfg holding the stored
// session, if any. With persist set, every TokenSet the client later obtains
// is written back to store.
func restoreOAuthClient(cfg config.Config, store *tokenstore.Store, persist bool) (*oauth.Client, error) {
	opts := oauthOptions()
	if persist {
		opts = append(opts, oauth.WithTokenObserver(func(tokens oauth.TokenSet) {
			if err := store.Save(tokens); err != nil {
				logging.Error("cli", err, "Failed to persist refreshed OAuth session")
			}
		}))
	}

	client, err := oauth.NewClient(cfg.OAuthClientConfig(), opts...)
	if err != nil {
		return nil, err
	}

	tokens, ok, err := store.Load()
	if err != nil {
		return nil, err
	}
	if ok {
		client.SetTokenSet(tokens)
	}
	return client, nil
}

// newAPIClient builds the JSON:API client. A configured personal access
// token wins over the stored OAuth session. Without either, requests are
// sent anonymously, which is enough for public resources.
func newAPIClient(cfg config.Config) (*api.Client, error) {
	provider, err := tokenProvider(cfg)
	if err != nil {
		return nil, err
	}

	opts := []api.Option{
		api.WithBaseURL(cfg.API.BaseURL),
		api.WithAllowedHosts(cfg.API.AllowedHosts...),
		api.WithLogger(logging.Logger("api")),
		api.WithUserAgent(userAgent()),
	}
	if cfg.API.RequestsPerSecond > 0 {
		burst := cfg.API.Burst
		if burst < 1 {
			burst = 1
		}
		opts = append(opts, api.WithRateLimiter(rate.NewLimiter(rate.Limit(cfg.API.RequestsPerSecond), burst)))
	}
	if provider != nil {
		opts = append(opts, api.WithTokenProvider(provider))
	}
	if httpClient != nil {
		opts = append(opts, api.WithHTTPClient(httpClient))
	}
	return api.NewClient(opts...)
}

// tokenProvider picks the credential for API requests. A stored session is
// refreshed and re-persisted when a client id is configured; otherwise it is
// used until it expires.
func tokenProvider(cfg config.Config) (api.TokenProvider, error) {
	if cfg.API.Token != "" {
		return api.StaticToken(cfg.API.Token), nil
	}

	store := openTokenStore(cfg)
	tokens, ok, err := store.Load()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	if cfg.OAuth.ClientID == "" {
		return api.TokenSetProvider(tokens), nil
	}

	client, err := restoreOAuthClient(cfg, store, true)
	if err != nil {
		return nil, fmt.Errorf("failed to restore OAuth session: %w", err)
	}
	return client, nil
}

func userAgent() string {
	v := GetVersion()
	if v == "" {
		v = "dev"
	}
	return "osf/" + v
}

// commandContext returns the command's context, or Background when the
// command is run outside Execute.
func commandContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
