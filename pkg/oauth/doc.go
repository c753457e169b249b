// Package oauth implements the OAuth 2.0 Authorization Code flow with PKCE
// (RFC 7636) for the OSF API.
//
// # Core Components
//
//   - PKCE: GenerateCodeVerifier, ComputeCodeChallenge, GeneratePKCEChallenge
//   - TokenSet: one session's access/refresh tokens and absolute expiry
//   - Client: authorization URL building, code exchange, refresh, revocation
//     and expiry-aware AccessToken with deduplicated concurrent refresh
//   - AuthChallenge: parsed WWW-Authenticate header information
//
// # Usage
//
//	client, err := oauth.NewClient(oauth.Config{
//	    ClientID:    "my-app",
//	    RedirectURI: "http://localhost:8080/callback",
//	    Scope:       "osf.full_read",
//	})
//
//	req, err := client.BuildAuthorizationURL(oauth.AuthorizationParams{
//	    State:      state,
//	    AccessType: oauth.AccessTypeOffline,
//	})
//	// send the user to req.URL, keep req.CodeVerifier
//
//	tokens, err := client.ExchangeCode(ctx, code, req.CodeVerifier)
//
//	// later, on every request:
//	bearer, err := client.AccessToken(ctx)
//
// The TokenSet is the only state a host needs to persist. It marshals to
// {"accessToken", "refreshToken", "expiresAt" (epoch ms), "scope"} and can be
// restored with SetTokenSet. TokenSet values never print their secrets.
package oauth
