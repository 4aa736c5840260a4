// Package sandbox implements a small in-process realtime service.
//
// The sandbox speaks the same wire protocol as the hosted service, which
// makes it useful for local development with the pulse CLI and for
// end-to-end tests of the client. All state is kept in memory.
//
//	s := sandbox.New(sandbox.Config{Key: "app.key:secret"})
//	http.ListenAndServe(":8080", s.Handler())
package sandbox
