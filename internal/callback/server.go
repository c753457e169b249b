package callback

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// ErrStateMismatch is returned when the redirect carries a state other than
// the one sent in the authorization request.
var ErrStateMismatch = errors.New("OAuth state mismatch: the callback did not come from this login attempt")

// AuthorizationError is the error an authorization server reports through
// the redirect, e.g. access_denied when the user declines.
type AuthorizationError struct {
	Code        string
	Description string
}

func (e *AuthorizationError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("authorization failed: %s: %s", e.Code, e.Description)
	}
	return "authorization failed: " + e.Code
}

var successPage = template.Must(template.New("success").Parse(`<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>OSF login complete</title>
<style>body{font-family:sans-serif;margin:4em auto;max-width:32em;color:#333}</style></head>
<body><h1>Login complete</h1><p>You can close this window and return to the terminal.</p></body>
</html>
`))

var errorPage = template.Must(template.New("error").Parse(`<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>OSF login failed</title>
<style>body{font-family:sans-serif;margin:4em auto;max-width:32em;color:#333}code{color:#a00}</style></head>
<body><h1>Login failed</h1><p><code>{{.Error}}</code></p>{{if .Description}}<p>{{.Description}}</p>{{end}}
<p>Return to the terminal for details.</p></body>
</html>
`))

// Result is what the authorization server sent back through the redirect.
type Result struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
}

// IsError returns true if the callback result represents an error.
func (r *Result) IsError() bool {
	return r.Error != ""
}

// Server is a temporary loopback HTTP server that receives one OAuth
// redirect. It listens on the host and port of the configured redirect URI
// and answers only on its path.
type Server struct {
	redirect *url.URL
	server   *http.Server
	listener net.Listener
	resultCh chan *Result
	errorCh  chan error
	once     sync.Once
	stopOnce sync.Once
}

// NewServer prepares a server for redirectURI, which must be an http URL on
// a loopback address. A port of 0 picks a free port; RedirectURI then
// reports the actual one.
func NewServer(redirectURI string) (*Server, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return nil, fmt.Errorf("invalid redirect URI: %w", err)
	}
	if u.Scheme != "http" {
		return nil, fmt.Errorf("redirect URI %q must use http", redirectURI)
	}
	if !isLoopback(u.Hostname()) {
		return nil, fmt.Errorf("redirect URI %q must point to a loopback address", redirectURI)
	}
	if u.Path == "" {
		u.Path = "/"
	}

	return &Server{
		redirect: u,
		resultCh: make(chan *Result, 1),
		errorCh:  make(chan error, 1),
	}, nil
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// Start begins listening. The server stops when ctx is cancelled, after the
// first callback, or on Stop.
func (s *Server) Start(ctx context.Context) error {
	port := s.redirect.Port()
	if port == "" {
		port = "80"
	}
	addr := net.JoinHostPort(s.redirect.Hostname(), port)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to start callback server on %s: %w", addr, err)
	}
	s.listener = listener

	actualPort := listener.Addr().(*net.TCPAddr).Port
	s.redirect.Host = net.JoinHostPort(s.redirect.Hostname(), fmt.Sprint(actualPort))

	mux := http.NewServeMux()
	mux.HandleFunc(s.redirect.Path, s.handleCallback)

	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			select {
			case s.errorCh <- err:
			default:
			}
		}
	}()

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

// RedirectURI returns the redirect URI with the port actually bound.
func (s *Server) RedirectURI() string {
	return s.redirect.String()
}

// Wait blocks until the redirect arrives, ctx ends or the server fails.
// The returned error is an *AuthorizationError when the server reported
// one, or ErrStateMismatch when the state differs from expectedState.
func (s *Server) Wait(ctx context.Context, expectedState string) (string, error) {
	select {
	case result := <-s.resultCh:
		if result.IsError() {
			return "", &AuthorizationError{Code: result.Error, Description: result.ErrorDescription}
		}
		if subtle.ConstantTimeCompare([]byte(result.State), []byte(expectedState)) != 1 {
			return "", ErrStateMismatch
		}
		if result.Code == "" {
			return "", errors.New("callback carried no authorization code")
		}
		return result.Code, nil
	case err := <-s.errorCh:
		return "", err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != s.redirect.Path {
		http.NotFound(w, r)
		return
	}

	var handled bool
	s.once.Do(func() {
		handled = true
		s.processCallback(w, r)
	})

	if !handled {
		http.Error(w, "Callback already processed", http.StatusBadRequest)
	}
}

func (s *Server) processCallback(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Content-Security-Policy", "default-src 'none'; style-src 'unsafe-inline'")
	w.Header().Set("Referrer-Policy", "no-referrer")
	w.Header().Set("Cache-Control", "no-store")

	query := r.URL.Query()
	result := &Result{
		Code:             query.Get("code"),
		State:            query.Get("state"),
		Error:            query.Get("error"),
		ErrorDescription: query.Get("error_description"),
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	var err error
	if result.IsError() {
		w.WriteHeader(http.StatusBadRequest)
		err = errorPage.Execute(w, map[string]string{
			"Error":       result.Error,
			"Description": result.ErrorDescription,
		})
	} else {
		err = successPage.Execute(w, nil)
	}
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}

	select {
	case s.resultCh <- result:
	default:
	}

	// Give the response time to reach the browser before shutting down.
	go func() {
		time.Sleep(1 * time.Second)
		s.Stop()
	}()
}

// Stop gracefully shuts down the callback server.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		if s.server != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = s.server.Shutdown(ctx)
		}
		if s.listener != nil {
			_ = s.listener.Close()
		}
	})
}
