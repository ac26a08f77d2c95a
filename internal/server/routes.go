// Package server wires HTTP handlers into a ServeMux for the gateway.
package server

import "net/http"

// SetupRoutes configures and returns an HTTP ServeMux with the health check
// and WebSocket endpoints.
func (g *Gateway) SetupRoutes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", g.HealthHandler)
	mux.HandleFunc("/ws", g.WebSocketHandler)
	return mux
}
