// Package ws is the connection-path gate: websocket handshake
// authentication, per-subject session tracking, and the message loop for
// accepted connections.
//
// The handshake reads the bearer token from the `token` query parameter
// because the transport does not carry custom headers uniformly across
// clients. Rejections close with a terminal code before any message
// handling: 4401 for a missing credential, 4403 for an invalid one, 1011
// for an internal fault during authentication. A caller always receives a
// close code, never a silently hanging connection.
//
// Accepted connections are validated exactly once. Revoking a token does
// not interrupt connections it already opened; it is refused at the next
// handshake.
package ws
