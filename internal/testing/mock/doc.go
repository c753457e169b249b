// Package mock provides test doubles for the OSF client: a controllable
// clock, an httptest-backed OAuth authorization server that verifies PKCE,
// and a paged JSON:API collection server.
//
// # OAuth server
//
//	server := mock.NewOAuthServer(mock.OAuthServerConfig{ClientID: "test-client"})
//	defer server.Close()
//
//	code := server.GenerateAuthCode("test-client", redirectURI, challenge)
//	// exchange code against server.URL()
//
// Request counters (TokenRequests, RefreshRequests, RevokeRequests) let tests
// assert how many network calls a code path made.
//
// # JSON:API server
//
//	server := mock.NewJSONAPIServer(mock.JSONAPIServerConfig{PageSizes: []int{10, 10, 5}})
//	defer server.Close()
//
// Every page carries an absolute links.next except the last.
package mock
