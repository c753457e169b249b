package oauth

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoCredential is returned by AccessToken when no TokenSet is stored.
	ErrNoCredential = errors.New("no credential stored; run the authorization flow first")

	// ErrNoRefreshToken is returned when a refresh is needed but neither the
	// caller nor the stored TokenSet has a refresh token.
	ErrNoRefreshToken = errors.New("no refresh token available; re-run the authorization flow")

	// ErrNoTokenToRevoke is returned by RevokeToken when there is nothing to revoke.
	ErrNoTokenToRevoke = errors.New("no token to revoke")
)

// ConfigurationError reports a missing or invalid client configuration field.
type ConfigurationError struct {
	Field string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid OAuth configuration: %s is required", e.Field)
}

// InvalidLengthError is returned when a code verifier length falls outside
// [MinVerifierLength, MaxVerifierLength].
type InvalidLengthError struct {
	Length int
}

func (e *InvalidLengthError) Error() string {
	return fmt.Sprintf("invalid code verifier length %d: must be between %d and %d",
		e.Length, MinVerifierLength, MaxVerifierLength)
}

// EndpointError describes a failed call to the token or revocation endpoint.
//
// The response body is never stored verbatim. Only the OAuth error fields
// are extracted, and only when the body is JSON.
type EndpointError struct {
	// Status is the HTTP status line phrase, e.g. "400 Bad Request".
	// Empty when the request never got a response.
	Status     string
	StatusCode int

	// Code and Description come from the OAuth error body, if any.
	Code        string
	Description string

	// Err is the transport error when no response was received.
	Err error

	op string
}

func (e *EndpointError) Error() string {
	var b strings.Builder
	b.WriteString(e.op)
	b.WriteString(" failed")
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
		return b.String()
	}
	if e.Status != "" {
		b.WriteString(": ")
		b.WriteString(e.Status)
	}
	switch {
	case e.Description != "":
		b.WriteString(": ")
		b.WriteString(e.Description)
	case e.Code != "":
		b.WriteString(": ")
		b.WriteString(e.Code)
	}
	return b.String()
}

func (e *EndpointError) Unwrap() error {
	return e.Err
}

// TokenExchangeError is returned when an authorization code cannot be exchanged.
type TokenExchangeError struct{ EndpointError }

// TokenRefreshError is returned when a refresh grant fails.
type TokenRefreshError struct{ EndpointError }

// RevocationError is returned when the revocation endpoint rejects a request.
type RevocationError struct{ EndpointError }

// oauthErrorBody is the RFC 6749 section 5.2 error response.
type oauthErrorBody struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Detail           string `json:"detail"`
}

// newEndpointError builds the sanitized error for a non-2xx response.
func newEndpointError(op, status string, statusCode int, body []byte) EndpointError {
	e := EndpointError{op: op, Status: status, StatusCode: statusCode}

	var parsed oauthErrorBody
	if err := json.Unmarshal(body, &parsed); err == nil {
		e.Code = parsed.Error
		e.Description = parsed.ErrorDescription
		if e.Description == "" {
			e.Description = parsed.Detail
		}
	}
	return e
}

func transportEndpointError(op string, err error) EndpointError {
	return EndpointError{op: op, Err: err}
}
