// Package server implements the network side of the chat server: the TCP
// line listener, the WebSocket endpoint, the HTTP health and room listing
// handlers, and the per-connection dispatcher that turns incoming lines into
// chat operations.
//
// The implementation is organized into specialized files for transports,
// dispatching, rate limiting, origin checks, routing and HTTP handlers.
package server
