// Package api is the authenticated transport for the OSF JSON:API.
//
// A Client resolves a bearer token from its TokenProvider once per request,
// sends the request with JSON:API headers and flattens the reply with
// pkg/jsonapi. Collections can be walked lazily with List, which follows
// links.next through pkg/pagination.
//
//	oauthClient, _ := oauth.NewClient(cfg)
//	client, _ := api.NewClient(api.WithTokenProvider(oauthClient))
//
//	node, err := client.Get(ctx, "nodes/abc12/", nil)
//	if api.IsNotFound(err) {
//	    ...
//	}
//
//	for item, err := range client.List(ctx, "users/me/nodes/", nil).Items(ctx) {
//	    ...
//	}
//
// Absolute URLs (next-page cursors, relationship and download links) are only
// followed when their origin (scheme, host and port) is the base URL's or was
// added with WithAllowedHosts, so a token is never sent to a foreign host or
// downgraded to plain http.
package api
