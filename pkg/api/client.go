package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"osf/pkg/jsonapi"
	"osf/pkg/pagination"
)

// DefaultBaseURL is the production OSF API root.
const DefaultBaseURL = "https://api.osf.io/v2/"

// DefaultUserAgent is sent when no WithUserAgent option is given.
const DefaultUserAgent = "osf-go"

// DefaultHTTPTimeout bounds a whole request, including reading the body of
// JSON responses. Download is not subject to it; its context bounds it.
const DefaultHTTPTimeout = 30 * time.Second

// RequestIDHeader carries a per-request correlation id.
const RequestIDHeader = "X-Request-Id"

// maxErrorBodyBytes caps how much of a failed response is read to extract
// JSON:API error objects.
const maxErrorBodyBytes = 64 << 10

// Client sends authenticated JSON:API requests to one OSF API root.
//
// Client is safe for concurrent use.
type Client struct {
	baseURL      *url.URL
	tokens       TokenProvider
	httpClient   *http.Client
	allowedHosts map[string]bool // origins, see originOf
	logger       *slog.Logger
	limiter      *rate.Limiter
	userAgent    string
	now          func() time.Time
}

// Option configures the API client.
type Option func(*Client) error

// WithBaseURL sets the API root. Relative request paths resolve against it.
func WithBaseURL(raw string) Option {
	return func(c *Client) error {
		if !strings.HasSuffix(raw, "/") {
			raw += "/"
		}
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("invalid base URL: %w", err)
		}
		if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("invalid base URL %q: want an absolute http(s) URL", raw)
		}
		c.baseURL = u
		return nil
	}
}

// WithTokenProvider sets where bearer tokens come from. Without one, requests
// are sent anonymously.
func WithTokenProvider(p TokenProvider) Option {
	return func(c *Client) error {
		c.tokens = p
		return nil
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) error {
		c.httpClient = httpClient
		return nil
	}
}

// WithAllowedHosts adds origins that absolute URLs (pagination cursors,
// relationship links, download URLs) may point to. The base URL's origin is
// always allowed.
//
// A bare host ("files.osf.io") allows https on the default port. A port
// may be given ("files.osf.io:8443"), still over https. Plain http must be
// spelled out as an origin ("http://localhost:8000").
func WithAllowedHosts(hosts ...string) Option {
	return func(c *Client) error {
		for _, h := range hosts {
			raw := h
			if !strings.Contains(raw, "://") {
				raw = "https://" + raw
			}
			u, err := url.Parse(raw)
			if err != nil || u.Hostname() == "" || (u.Path != "" && u.Path != "/") {
				return fmt.Errorf("invalid allowed host %q", h)
			}
			origin, ok := originOf(u)
			if !ok {
				return fmt.Errorf("invalid allowed host %q: want http or https", h)
			}
			c.allowedHosts[origin] = true
		}
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) error {
		c.logger = logger
		return nil
	}
}

// WithRateLimiter paces outgoing requests. Each request waits for a token
// from l before it is sent; nothing is retried.
func WithRateLimiter(l *rate.Limiter) Option {
	return func(c *Client) error {
		c.limiter = l
		return nil
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) error {
		c.userAgent = ua
		return nil
	}
}

// NewClient creates an API client.
func NewClient(opts ...Option) (*Client, error) {
	c := &Client{
		httpClient:   &http.Client{Timeout: DefaultHTTPTimeout},
		allowedHosts: make(map[string]bool),
		logger:       slog.Default(),
		userAgent:    DefaultUserAgent,
		now:          time.Now,
	}
	if err := WithBaseURL(DefaultBaseURL)(c); err != nil {
		return nil, err
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	origin, _ := originOf(c.baseURL)
	c.allowedHosts[origin] = true
	return c, nil
}

// originOf returns scheme://host:port with the default port filled in.
func originOf(u *url.URL) (string, bool) {
	scheme := strings.ToLower(u.Scheme)
	port := u.Port()
	switch scheme {
	case "https":
		if port == "" {
			port = "443"
		}
	case "http":
		if port == "" {
			port = "80"
		}
	default:
		return "", false
	}
	return scheme + "://" + net.JoinHostPort(strings.ToLower(u.Hostname()), port), true
}

// BaseURL returns the API root.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// ResolveURL turns a request target into an absolute URL. Relative targets
// resolve against the base URL, so "nodes/abc12/" and "/nodes/abc12/" both
// land under the API root; one that climbs out of it with ".." fails with
// ErrOutsideAPIRoot. Absolute targets must match an allowed origin exactly:
// scheme, host and port.
func (c *Client) ResolveURL(target string) (*url.URL, error) {
	ref, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("invalid request target: %w", err)
	}

	if !ref.IsAbs() && ref.Host == "" {
		ref.Path = strings.TrimPrefix(ref.Path, "/")
		ref.RawPath = ""
		u := c.baseURL.ResolveReference(ref)
		if !strings.HasPrefix(u.Path, c.baseURL.Path) {
			return nil, fmt.Errorf("%w: %q", ErrOutsideAPIRoot, target)
		}
		return u, nil
	}

	origin, ok := originOf(ref)
	if !ok || ref.Hostname() == "" || !c.allowedHosts[origin] {
		return nil, &UntrustedHostError{Host: ref.Host, Scheme: ref.Scheme}
	}
	return ref, nil
}

// Do sends a request and returns the response of a 2xx reply; the caller
// closes its body. Non-2xx replies are turned into *NotFoundError,
// *PermissionError, *RateLimitError or *RequestError.
func (c *Client) Do(ctx context.Context, method, target string, body io.Reader) (*http.Response, error) {
	contentType := ""
	if body != nil {
		contentType = jsonapi.MediaType
	}
	return c.send(ctx, method, target, body, contentType, jsonapi.MediaType)
}

func (c *Client) send(ctx context.Context, method, target string, body io.Reader, contentType, accept string) (*http.Response, error) {
	return c.sendWith(ctx, c.httpClient, method, target, body, contentType, accept)
}

func (c *Client) sendWith(ctx context.Context, httpClient *http.Client, method, target string, body io.Reader, contentType, accept string) (*http.Response, error) {
	u, err := c.ResolveURL(target)
	if err != nil {
		return nil, err
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	var bearer string
	if c.tokens != nil {
		bearer, err = c.tokens.AccessToken(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve access token: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	requestID := uuid.NewString()
	req.Header.Set("Accept", accept)
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set(RequestIDHeader, requestID)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	c.logger.Debug("Sending request", "method", method, "url", u.Redacted(), "request_id", requestID)

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, u.Path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		c.logger.Debug("Request failed", "method", method, "status", resp.Status, "request_id", requestID)
		return nil, newResponseError(resp, errBody, c.now())
	}

	return resp, nil
}

// doJSON sends an optional JSON body and decodes a JSON reply into out.
// A nil out discards the reply.
func (c *Client) doJSON(ctx context.Context, method, target string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	resp, err := c.Do(ctx, method, target, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", method, err)
	}
	return nil
}

// Get fetches a single resource and flattens it.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (*jsonapi.Item, error) {
	var doc jsonapi.Document
	if err := c.doJSON(ctx, http.MethodGet, withQuery(path, query), nil, &doc); err != nil {
		return nil, err
	}
	item := jsonapi.TransformSingle(doc.Data)
	return &item, nil
}

// GetList fetches one page of a collection and flattens it.
func (c *Client) GetList(ctx context.Context, path string, query url.Values) (*jsonapi.List, error) {
	var doc jsonapi.ListDocument
	if err := c.doJSON(ctx, http.MethodGet, withQuery(path, query), nil, &doc); err != nil {
		return nil, err
	}
	list := jsonapi.TransformList(doc)
	return &list, nil
}

// List walks a collection lazily, following links.next. Next-page URLs are
// used verbatim and go through the same host allow-list as any absolute URL.
func (c *Client) List(ctx context.Context, path string, query url.Values) *pagination.Result[jsonapi.Item] {
	return pagination.New(
		func(ctx context.Context) (pagination.Page[jsonapi.Item], error) {
			return c.listPage(ctx, withQuery(path, query))
		},
		func(ctx context.Context, cursor string) (pagination.Page[jsonapi.Item], error) {
			return c.listPage(ctx, cursor)
		},
	)
}

func (c *Client) listPage(ctx context.Context, target string) (pagination.Page[jsonapi.Item], error) {
	list, err := c.GetList(ctx, target, nil)
	if err != nil {
		return pagination.Page[jsonapi.Item]{}, err
	}
	return pagination.Page[jsonapi.Item]{Items: list.Data, Next: list.NextURL()}, nil
}

type resourceEnvelope struct {
	Data resourceObject `json:"data"`
}

type resourceObject struct {
	ID         string                 `json:"id,omitempty"`
	Type       string                 `json:"type"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
}

// Create POSTs a new resource of the given type and returns the created one.
func (c *Client) Create(ctx context.Context, path, resourceType string, attrs map[string]interface{}) (*jsonapi.Item, error) {
	in := resourceEnvelope{Data: resourceObject{Type: resourceType, Attributes: attrs}}

	var doc jsonapi.Document
	if err := c.doJSON(ctx, http.MethodPost, path, in, &doc); err != nil {
		return nil, err
	}
	item := jsonapi.TransformSingle(doc.Data)
	return &item, nil
}

// Update PATCHes the attributes of an existing resource. JSON:API requires
// the id in the request document.
func (c *Client) Update(ctx context.Context, path, resourceType, id string, attrs map[string]interface{}) (*jsonapi.Item, error) {
	in := resourceEnvelope{Data: resourceObject{ID: id, Type: resourceType, Attributes: attrs}}

	var doc jsonapi.Document
	if err := c.doJSON(ctx, http.MethodPatch, path, in, &doc); err != nil {
		return nil, err
	}
	item := jsonapi.TransformSingle(doc.Data)
	return &item, nil
}

// Delete removes a resource.
func (c *Client) Delete(ctx context.Context, path string) error {
	return c.doJSON(ctx, http.MethodDelete, path, nil, nil)
}

// Download opens the binary content behind a download URL, typically an
// item's links.download. The caller closes the returned reader.
//
// The HTTP client's whole-request Timeout does not apply, so large files
// can stream for as long as ctx allows.
func (c *Client) Download(ctx context.Context, target string) (io.ReadCloser, error) {
	streaming := *c.httpClient
	streaming.Timeout = 0

	resp, err := c.sendWith(ctx, &streaming, http.MethodGet, target, nil, "", "*/*")
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func withQuery(path string, query url.Values) string {
	if len(query) == 0 {
		return path
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + query.Encode()
}
