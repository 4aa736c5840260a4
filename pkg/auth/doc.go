// Package auth supplies the credentials a realtime connection presents to
// the service.
//
// Three providers cover the usual setups:
//
//   - KeyProvider sends a fixed API key ("name:secret"). Suitable for
//     trusted servers.
//   - TokenProvider sends a token obtained out of band. It cannot renew,
//     so the connection fails once the token expires.
//   - CallbackProvider asks a TokenFunc for tokens, caches the result until
//     it expires, and fetches a new one when the connection reports a token
//     error.
//
// URLTokenFunc builds a TokenFunc that fetches tokens from an HTTP endpoint
// of the application's backend:
//
//	provider := auth.NewCallbackProvider(auth.URLTokenFunc("https://example.com/token", nil))
package auth
