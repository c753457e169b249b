// Package callback runs the local half of an interactive OAuth login: it
// opens the user's browser on the authorization URL and receives the
// redirect on a loopback HTTP server.
package callback
