// Package logging provides subsystem-tagged logging for the osf command on
// top of Go's standard slog package.
//
// # Usage
//
//	logging.InitForCLI(logging.LevelInfo, os.Stderr)
//
//	logging.Info("Auth", "Opened browser for authorization")
//	logging.Debug("Config", "Loaded configuration from %s", path)
//	logging.Error("API", err, "Request failed")
//
// Library packages such as pkg/oauth and pkg/api take a *slog.Logger option
// instead of calling this package; Logger hands them one tagged with a
// subsystem:
//
//	client, err := oauth.NewClient(cfg, oauth.WithLogger(logging.Logger("OAuth")))
//
// # Subsystems
//
//   - Auth: the login, refresh and logout commands
//   - Config: configuration loading and validation
//   - OAuth: token endpoint traffic (never token values)
//   - API: resource requests
//   - TokenStore: credential persistence
//
// InitForCLI also installs the logger as slog's default, so anything logging
// through slog.Default() shares the same handler and level.
package logging
