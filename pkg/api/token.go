package api

import (
	"context"
	"errors"
	"time"

	"golang.org/x/oauth2"

	"osf/pkg/oauth"
)

// ErrTokenExpired is returned by a TokenSetProvider whose fixed TokenSet is
// inside the expiry buffer. A fixed TokenSet cannot refresh itself; use an
// *oauth.Client as the provider for that.
var ErrTokenExpired = errors.New("access token expired")

// TokenProvider supplies the bearer token for one outgoing request. It is
// called exactly once per request.
//
// *oauth.Client satisfies TokenProvider and refreshes transparently.
type TokenProvider interface {
	AccessToken(ctx context.Context) (string, error)
}

var _ TokenProvider = (*oauth.Client)(nil)

// StaticToken is a fixed bearer token, typically a personal access token.
type StaticToken string

// AccessToken returns the token unchanged.
func (t StaticToken) AccessToken(context.Context) (string, error) {
	return string(t), nil
}

// TokenProviderFunc adapts a function to TokenProvider.
type TokenProviderFunc func(ctx context.Context) (string, error)

// AccessToken calls f.
func (f TokenProviderFunc) AccessToken(ctx context.Context) (string, error) {
	return f(ctx)
}

type tokenSetProvider struct {
	tokens oauth.TokenSet
	now    func() time.Time
}

// TokenSetProvider serves the access token of a fixed TokenSet until it
// enters the expiry buffer, then fails with ErrTokenExpired.
func TokenSetProvider(tokens oauth.TokenSet) TokenProvider {
	return &tokenSetProvider{tokens: tokens, now: time.Now}
}

func (p *tokenSetProvider) AccessToken(context.Context) (string, error) {
	if p.tokens.ExpiredAt(p.now()) {
		return "", ErrTokenExpired
	}
	return p.tokens.AccessToken, nil
}

type tokenSourceProvider struct {
	source oauth2.TokenSource
}

// FromTokenSource adapts a golang.org/x/oauth2 TokenSource. The source's own
// refresh logic applies; ctx is not passed through because TokenSource has
// no context parameter.
func FromTokenSource(source oauth2.TokenSource) TokenProvider {
	return &tokenSourceProvider{source: source}
}

func (p *tokenSourceProvider) AccessToken(context.Context) (string, error) {
	tok, err := p.source.Token()
	if err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}
