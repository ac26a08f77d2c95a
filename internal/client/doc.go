// Package client renders chat connection events on a console. It is the
// headless counterpart of a chat window: notifications are queued and written
// by a separate goroutine so the connection is never blocked by output.
package client
