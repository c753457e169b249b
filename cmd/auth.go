package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"osf/internal/callback"
	"osf/internal/config"
	"osf/pkg/logging"
	"osf/pkg/oauth"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

var authQuiet bool

// openBrowser is replaced in tests to play the user's part of the login.
var openBrowser = callback.OpenBrowser

// authCmd represents the auth command group
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage the OSF login session",
	Long: `Manage the OAuth session used by osf commands.

Examples:
  osf auth login     # Log in through the browser
  osf auth status    # Show the stored session
  osf auth refresh   # Force a token refresh
  osf auth logout    # Revoke and forget the session`,
}

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in to OSF through the browser",
	Long: `Log in with OAuth 2.0 Authorization Code + PKCE.

A temporary server listens on the configured loopback redirect URI, the
browser is opened on the OSF authorization page and the returned code is
exchanged for tokens, which are written to the token file.`,
	Args: cobra.NoArgs,
	RunE: runAuthLogin,
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the stored session",
	Long:  `Show whether a session is stored, when it expires and whether it can be refreshed. No request is sent.`,
	Args:  cobra.NoArgs,
	RunE:  runAuthStatus,
}

var authRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Force a token refresh",
	Long:  `Exchange the stored refresh token for a new access token, even if the current one is still valid.`,
	Args:  cobra.NoArgs,
	RunE:  runAuthRefresh,
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Revoke and forget the stored session",
	Long: `Revoke the stored access token at the authorization server and delete
the token file. The local session is removed even when revocation fails.`,
	Args: cobra.NoArgs,
	RunE: runAuthLogout,
}

// authPrint prints output only if the --quiet flag is not set.
func authPrint(w io.Writer, format string, args ...interface{}) {
	if !authQuiet {
		fmt.Fprintf(w, format, args...)
	}
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authStatusCmd)
	authCmd.AddCommand(authRefreshCmd)
	authCmd.AddCommand(authLogoutCmd)

	authCmd.PersistentFlags().BoolVarP(&authQuiet, "quiet", "q", false, "Suppress non-essential output")
}

func requireClientID(cfg config.Config) error {
	if cfg.OAuth.ClientID == "" {
		return fmt.Errorf("no OAuth client id configured: set oauth.clientId in config.yaml or %s", config.EnvClientID)
	}
	return nil
}

func runAuthLogin(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := requireClientID(cfg); err != nil {
		return err
	}

	timeout := cfg.OAuth.CallbackTimeout
	if timeout <= 0 {
		timeout = config.DefaultCallbackTimeout
	}
	ctx, cancel := context.WithTimeout(commandContext(cmd.Context()), timeout)
	defer cancel()

	server, err := callback.NewServer(cfg.OAuth.RedirectURI)
	if err != nil {
		return err
	}
	if err := server.Start(ctx); err != nil {
		return err
	}
	defer server.Stop()

	// Port 0 in the configured URI means the bound port is only known now.
	cfg.OAuth.RedirectURI = server.RedirectURI()

	client, err := oauth.NewClient(cfg.OAuthClientConfig(), oauthOptions()...)
	if err != nil {
		return err
	}

	state, err := oauth.GenerateState()
	if err != nil {
		return err
	}
	authReq, err := client.BuildAuthorizationURL(oauth.AuthorizationParams{
		State:      state,
		AccessType: oauth.AccessTypeOffline,
	})
	if err != nil {
		return err
	}

	authPrint(out, "Opening browser for authentication...\n")
	if err := openBrowser(authReq.URL); err != nil {
		logging.Warn("cli", "Could not open browser: %v", err)
		authPrint(out, "Could not open the browser. Open this URL to continue:\n\n  %s\n\n", authReq.URL)
	}
	authPrint(out, "Waiting for the authorization callback on %s ...\n", cfg.OAuth.RedirectURI)

	code, err := server.Wait(ctx, state)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("timed out after %s waiting for the browser login", timeout)
		}
		return err
	}

	tokens, err := client.ExchangeCode(ctx, code, authReq.CodeVerifier)
	if err != nil {
		return err
	}
	store := openTokenStore(cfg)
	if err := store.Save(tokens); err != nil {
		return err
	}

	authPrint(out, "%s Logged in. Session expires %s.\n", text.FgGreen.Sprint("✓"), formatExpiryWithDirection(tokens.ExpiresAt))
	return nil
}

func runAuthStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	tokens, ok, err := openTokenStore(cfg).Load()
	if err != nil {
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{text.FgHiCyan.Sprint("SESSION"), ""})
	t.AppendRow(table.Row{"Token file", cfg.TokenFile})
	t.AppendRow(table.Row{"API", cfg.API.BaseURL})

	switch {
	case cfg.API.Token != "":
		t.AppendRow(table.Row{"Status", text.FgGreen.Sprint("Personal access token")})
	case !ok:
		t.AppendRow(table.Row{"Status", text.FgYellow.Sprint("Not logged in")})
	case tokens.ExpiredAt(time.Now()):
		t.AppendRow(table.Row{"Status", text.FgYellow.Sprint("Expired")})
	default:
		t.AppendRow(table.Row{"Status", text.FgGreen.Sprint("Authenticated")})
	}

	if ok {
		t.AppendRow(table.Row{"Expires", formatExpiryWithDirection(tokens.ExpiresAt)})
		refresh := text.FgYellow.Sprint("Not available")
		if tokens.HasRefreshToken() {
			refresh = text.FgGreen.Sprint("Available")
		}
		t.AppendRow(table.Row{"Refresh", refresh})
		if scopes := tokens.Scopes(); len(scopes) > 0 {
			t.AppendRow(table.Row{"Scopes", strings.Join(scopes, ", ")})
		}
	}

	t.Render()
	return nil
}

func runAuthRefresh(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := requireClientID(cfg); err != nil {
		return err
	}

	store := openTokenStore(cfg)
	client, err := restoreOAuthClient(cfg, store, false)
	if err != nil {
		return err
	}
	if _, ok := client.TokenSet(); !ok {
		return oauth.ErrNoCredential
	}

	tokens, err := client.RefreshAccessToken(commandContext(cmd.Context()), "")
	if err != nil {
		return err
	}
	if err := store.Save(tokens); err != nil {
		return err
	}

	authPrint(cmd.OutOrStdout(), "%s Token refreshed. Session expires %s.\n", text.FgGreen.Sprint("✓"), formatExpiryWithDirection(tokens.ExpiresAt))
	return nil
}

func runAuthLogout(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store := openTokenStore(cfg)
	tokens, ok, err := store.Load()
	if err != nil {
		return err
	}
	if !ok {
		authPrint(out, "Not logged in.\n")
		return nil
	}

	if cfg.OAuth.ClientID == "" {
		logging.Warn("cli", "No OAuth client id configured; skipping token revocation")
	} else {
		client, err := oauth.NewClient(cfg.OAuthClientConfig(), oauthOptions()...)
		if err != nil {
			return err
		}
		client.SetTokenSet(tokens)
		if err := client.RevokeToken(commandContext(cmd.Context()), ""); err != nil {
			logging.Warn("cli", "Token revocation failed: %v", err)
			authPrint(out, "%s Could not revoke the token at the server; removing it locally.\n", text.FgYellow.Sprint("!"))
		}
	}

	if err := store.Delete(); err != nil {
		return err
	}
	authPrint(out, "%s Logged out.\n", text.FgGreen.Sprint("✓"))
	return nil
}
