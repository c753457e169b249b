// Package config loads the osf command configuration.
//
// Configuration lives in a single directory, ~/.config/osf by default or the
// directory given with --config. It holds config.yaml and, unless tokenFile
// says otherwise, the persisted OAuth session in token.json.
//
//	oauth:
//	  clientId: 4a1b2c3d...
//	  redirectUri: http://127.0.0.1:8085/callback
//	  scope: osf.full_read
//	api:
//	  baseUrl: https://api.osf.io/v2/
//	  requestsPerSecond: 5
//	logLevel: info
//
// Environment variables (OSF_CLIENT_ID, OSF_REDIRECT_URI, OSF_SCOPE,
// OSF_AUTH_URL, OSF_API_URL, OSF_TOKEN, OSF_LOG_LEVEL,
// OSF_REQUESTS_PER_SECOND) override file values.
package config
