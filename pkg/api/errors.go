package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"osf/pkg/jsonapi"
	"osf/pkg/oauth"
)

// APIError carries what the API said about a failed request. The response
// body itself is never kept; only JSON:API error objects are extracted.
type APIError struct {
	StatusCode int
	Status     string

	// Detail joins the detail members of Errors.
	Detail string
	Errors []jsonapi.ErrorObject
}

func (e *APIError) Error() string {
	msg := "OSF API request failed: " + e.Status
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// NotFoundError is returned for 404 and 410 responses.
type NotFoundError struct{ APIError }

// PermissionError is returned for 401 and 403 responses.
type PermissionError struct {
	APIError

	// Challenge is the parsed WWW-Authenticate header of a 401, if any.
	Challenge *oauth.AuthChallenge
}

// RateLimitError is returned for 429 responses.
type RateLimitError struct {
	APIError

	// RetryAfter is the server's Retry-After hint, zero when absent.
	RetryAfter time.Duration
}

// RequestError is returned for every other non-2xx response.
type RequestError struct{ APIError }

// ErrOutsideAPIRoot is returned when a relative target resolves above the
// base URL's path.
var ErrOutsideAPIRoot = errors.New("request target escapes the API root")

// UntrustedHostError is returned when an absolute URL does not match an
// allowed origin. Credentials are never sent to such a URL.
type UntrustedHostError struct {
	Host   string
	Scheme string
}

func (e *UntrustedHostError) Error() string {
	if e.Host == "" {
		return "refusing request to URL without http(s) scheme and host"
	}
	if e.Scheme == "" {
		return fmt.Sprintf("refusing request to untrusted host %q", e.Host)
	}
	return fmt.Sprintf("refusing request to untrusted origin %q", e.Scheme+"://"+e.Host)
}

// IsNotFound reports whether err is a *NotFoundError.
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// IsPermission reports whether err is a *PermissionError.
func IsPermission(err error) bool {
	var target *PermissionError
	return errors.As(err, &target)
}

// IsRateLimited reports whether err is a *RateLimitError.
func IsRateLimited(err error) bool {
	var target *RateLimitError
	return errors.As(err, &target)
}

// AsAPIError extracts the APIError shared by all response error types.
func AsAPIError(err error) (*APIError, bool) {
	var (
		notFound   *NotFoundError
		permission *PermissionError
		rateLimit  *RateLimitError
		request    *RequestError
	)
	switch {
	case errors.As(err, &notFound):
		return &notFound.APIError, true
	case errors.As(err, &permission):
		return &permission.APIError, true
	case errors.As(err, &rateLimit):
		return &rateLimit.APIError, true
	case errors.As(err, &request):
		return &request.APIError, true
	}
	return nil, false
}

// newResponseError classifies a non-2xx response. body is the (bounded)
// response body, already read.
func newResponseError(resp *http.Response, body []byte, now time.Time) error {
	base := APIError{StatusCode: resp.StatusCode, Status: resp.Status}

	var doc jsonapi.ErrorDocument
	if err := json.Unmarshal(body, &doc); err == nil && len(doc.Errors) > 0 {
		base.Errors = doc.Errors
		details := make([]string, 0, len(doc.Errors))
		for _, e := range doc.Errors {
			switch {
			case e.Detail != "":
				details = append(details, e.Detail)
			case e.Title != "":
				details = append(details, e.Title)
			}
		}
		base.Detail = strings.Join(details, "; ")
	}

	switch resp.StatusCode {
	case http.StatusNotFound, http.StatusGone:
		return &NotFoundError{base}
	case http.StatusUnauthorized:
		return &PermissionError{APIError: base, Challenge: oauth.ParseWWWAuthenticateFromResponse(resp)}
	case http.StatusForbidden:
		return &PermissionError{APIError: base}
	case http.StatusTooManyRequests:
		return &RateLimitError{APIError: base, RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), now)}
	default:
		return &RequestError{base}
	}
}

// parseRetryAfter accepts both delta-seconds and HTTP-date forms.
func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(value); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
