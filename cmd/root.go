package cmd

import (
	"errors"
	"fmt"
	"os"

	"osf/internal/callback"
	"osf/pkg/api"
	"osf/pkg/logging"
	"osf/pkg/oauth"

	"github.com/spf13/cobra"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeAuthRequired indicates a login is needed: no session, an
	// expired session that cannot be refreshed, or a request the API refused.
	ExitCodeAuthRequired = 2
	// ExitCodeAuthFailed indicates the OAuth login flow failed.
	ExitCodeAuthFailed = 3
)

var (
	configDir string
	logLevel  string
)

// rootCmd represents the base command for the osf application.
var rootCmd = &cobra.Command{
	Use:   "osf",
	Short: "Command line client for the Open Science Framework API",
	Long: `osf talks to the OSF JSON:API (https://api.osf.io/v2/).

It logs in with OAuth 2.0 Authorization Code + PKCE, keeps the session in
a local token file and refreshes it when needed. Resources are printed as
flattened JSON or as tables.`,
	// SilenceUsage prevents Cobra from printing the usage message on errors that are handled by the application.
	SilenceUsage:      true,
	PersistentPreRunE: initLogging,
}

// SetVersion sets the version for the root command.
// This function is typically called from the main package to inject the application version at build time.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute is the main entry point for the CLI application.
// This function is called by main.main().
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "osf version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(getExitCode(err))
	}
}

// initLogging sets up the process-wide logger. The --log-level flag wins
// over the configured level.
func initLogging(cmd *cobra.Command, args []string) error {
	level := logLevel
	if level == "" {
		cfg, err := loadConfig()
		if err == nil {
			level = cfg.LogLevel
		}
	}
	if level == "" {
		level = logging.LevelInfo.String()
	}

	parsed, err := logging.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid --log-level: %w", err)
	}
	logging.InitForCLI(parsed, cmd.ErrOrStderr())
	return nil
}

// getExitCode determines the appropriate exit code based on the error type.
// This provides semantic exit codes for scripting and automation.
func getExitCode(err error) int {
	if errors.Is(err, oauth.ErrNoCredential) ||
		errors.Is(err, oauth.ErrNoRefreshToken) ||
		errors.Is(err, api.ErrTokenExpired) {
		return ExitCodeAuthRequired
	}

	var refreshErr *oauth.TokenRefreshError
	if errors.As(err, &refreshErr) {
		return ExitCodeAuthRequired
	}

	var permErr *api.PermissionError
	if errors.As(err, &permErr) {
		return ExitCodeAuthRequired
	}

	var exchangeErr *oauth.TokenExchangeError
	if errors.As(err, &exchangeErr) {
		return ExitCodeAuthFailed
	}

	var authErr *callback.AuthorizationError
	if errors.As(err, &authErr) || errors.Is(err, callback.ErrStateMismatch) {
		return ExitCodeAuthFailed
	}

	// Default to general error
	return ExitCodeError
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config", "", "config directory (default is $HOME/.config/osf)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn or error")

	rootCmd.AddCommand(newVersionCmd())
}
