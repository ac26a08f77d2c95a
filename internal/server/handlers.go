// Package server exposes the gateway's HTTP handlers, including WebSocket
// upgrades and the health check.
package server

import (
	"fmt"
	"log"
	"net/http"
)

const (
	statusRunning = "Сервер работает"
	statusStopped = "Сервер остановлен"
)

// WebSocketHandler upgrades GET requests to WebSocket and hands the
// connection to the chat server. It answers 503 while the chat server is
// stopped.
func (g *Gateway) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	if !g.chat.IsRunning() {
		http.Error(w, statusStopped, http.StatusServiceUnavailable)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}
	conn.SetReadLimit(g.maxLine)

	if err := g.chat.Adopt(newWSStream(conn)); err != nil {
		log.Printf("Rejected WebSocket client %s: %v", conn.RemoteAddr(), err)
		_ = conn.Close()
	}
}

// HealthHandler reports whether the chat server is running.
func (g *Gateway) HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if !g.chat.IsRunning() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = fmt.Fprint(w, statusStopped)
		return
	}
	_, _ = fmt.Fprint(w, statusRunning)
}
