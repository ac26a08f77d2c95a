// Package server implements the chat relay's broadcast server.
//
// The implementation is split into files for configuration, the connection
// registry, the ChatServer lifecycle, rate limiting, and the optional
// WebSocket gateway.
package server
