package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"osf/pkg/logging"
	"osf/pkg/oauth"
)

const (
	userConfigDir  = ".config/osf"
	configFileName = "config.yaml"
	tokenFileName  = "token.json"
)

// Environment variables that override file values.
const (
	EnvClientID    = "OSF_CLIENT_ID"
	EnvRedirectURI = "OSF_REDIRECT_URI"
	EnvScope       = "OSF_SCOPE"
	EnvAuthURL     = "OSF_AUTH_URL"
	EnvAPIURL      = "OSF_API_URL"
	EnvToken       = "OSF_TOKEN"
	EnvLogLevel    = "OSF_LOG_LEVEL"
	EnvRPS         = "OSF_REQUESTS_PER_SECOND"
)

// osUserHomeDir is replaced in tests.
var osUserHomeDir = os.UserHomeDir

// DefaultConfigDir returns ~/.config/osf.
func DefaultConfigDir() (string, error) {
	homeDir, err := osUserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine user config directory: %w", err)
	}
	return filepath.Join(homeDir, userConfigDir), nil
}

// Load reads the configuration in configDir (DefaultConfigDir when empty),
// applies environment overrides and validates the result. A missing
// config.yaml is not an error; defaults are used.
func Load(configDir string) (Config, error) {
	if configDir == "" {
		dir, err := DefaultConfigDir()
		if err != nil {
			return Config{}, err
		}
		configDir = dir
	}

	configFilePath := filepath.Join(configDir, configFileName)
	config := DefaultConfig()

	data, err := os.ReadFile(configFilePath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logging.Debug("Config", "No config.yaml found at %s, using defaults", configFilePath)
	case err != nil:
		return Config{}, fmt.Errorf("error reading config from %s: %w", configFilePath, err)
	default:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return Config{}, fmt.Errorf("error loading config from %s: %w", configFilePath, err)
		}
		logging.Debug("Config", "Loaded configuration from %s", configFilePath)
	}

	if err := applyEnv(&config); err != nil {
		return Config{}, err
	}

	if config.TokenFile == "" {
		config.TokenFile = filepath.Join(configDir, tokenFileName)
	}

	if err := config.Validate(); err != nil {
		var cfgErr *ConfigurationError
		if errors.As(err, &cfgErr) && cfgErr.FilePath == "" && data != nil {
			cfgErr.FilePath = configFilePath
		}
		return Config{}, err
	}
	return config, nil
}

func applyEnv(c *Config) error {
	overrides := []struct {
		env    string
		target *string
	}{
		{EnvClientID, &c.OAuth.ClientID},
		{EnvRedirectURI, &c.OAuth.RedirectURI},
		{EnvScope, &c.OAuth.Scope},
		{EnvAuthURL, &c.OAuth.AuthURL},
		{EnvAPIURL, &c.API.BaseURL},
		{EnvToken, &c.API.Token},
		{EnvLogLevel, &c.LogLevel},
	}
	for _, o := range overrides {
		if v, ok := os.LookupEnv(o.env); ok && v != "" {
			*o.target = v
		}
	}

	if v, ok := os.LookupEnv(EnvRPS); ok && v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return &ConfigurationError{Field: EnvRPS, Message: fmt.Sprintf("not a number: %q", v)}
		}
		c.API.RequestsPerSecond = rps
	}
	return nil
}

// Validate checks field formats. It does not require an OAuth client id,
// which only the login command needs.
func (c Config) Validate() error {
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return &ConfigurationError{Field: "logLevel", Message: err.Error()}
	}
	if err := validateHTTPURL(c.API.BaseURL); err != nil {
		return &ConfigurationError{Field: "api.baseUrl", Message: err.Error()}
	}
	if c.OAuth.AuthURL != "" {
		if err := validateHTTPURL(c.OAuth.AuthURL); err != nil {
			return &ConfigurationError{Field: "oauth.authUrl", Message: err.Error()}
		}
	}
	if c.OAuth.RedirectURI != "" {
		if err := validateHTTPURL(c.OAuth.RedirectURI); err != nil {
			return &ConfigurationError{Field: "oauth.redirectUri", Message: err.Error()}
		}
	}
	if c.OAuth.CallbackTimeout < 0 {
		return &ConfigurationError{Field: "oauth.callbackTimeout", Message: "must not be negative"}
	}
	if c.API.RequestsPerSecond < 0 {
		return &ConfigurationError{Field: "api.requestsPerSecond", Message: "must not be negative"}
	}
	if c.API.Burst < 0 {
		return &ConfigurationError{Field: "api.burst", Message: "must not be negative"}
	}
	return nil
}

// OAuthClientConfig converts the oauth section for oauth.NewClient.
func (c Config) OAuthClientConfig() oauth.Config {
	return oauth.Config{
		ClientID:          c.OAuth.ClientID,
		RedirectURI:       c.OAuth.RedirectURI,
		Scope:             c.OAuth.Scope,
		AuthServerBaseURL: c.OAuth.AuthURL,
	}
}

// Save writes c as config.yaml into configDir, creating the directory.
func Save(configDir string, c Config) error {
	if err := os.MkdirAll(configDir, 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(&c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	path := filepath.Join(configDir, configFileName)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%q is not an absolute http(s) URL", raw)
	}
	if strings.ContainsAny(u.Host, " \t") {
		return fmt.Errorf("%q has an invalid host", raw)
	}
	return nil
}
