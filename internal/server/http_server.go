// Package server runs the optional HTTP gateway that lets WebSocket clients
// join the chat alongside plain TCP clients.
package server

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/linechat/internal/network"
)

// Gateway serves the health endpoint and upgrades /ws requests to WebSocket
// chat connections adopted by the ChatServer.
type Gateway struct {
	chat     *ChatServer
	upgrader websocket.Upgrader
	maxLine  int64

	mu         sync.Mutex
	httpServer *http.Server
	listener   net.Listener
}

// NewGateway creates a gateway for chat using the origin and size settings
// of cfg. A nil cfg uses the defaults.
func NewGateway(chat *ChatServer, cfg *Config) *Gateway {
	c := defaultConfig()
	if cfg != nil {
		c = *cfg
	}
	c.Sanitize()

	origins := parseOriginAllowList(c.AllowedOrigins)
	return &Gateway{
		chat: chat,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.check,
		},
		maxLine: int64(c.MaxLineSize),
	}
}

// CreateServer creates and configures an HTTP server with the specified address and handler.
// It sets reasonable timeout values for production use.
func CreateServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// Start listens on addr and serves in the background. Hijacked WebSocket
// connections are owned by the ChatServer from then on.
func (g *Gateway) Start(addr string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.httpServer != nil {
		return errors.New("gateway is already running")
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return &network.ConnectionError{Op: "listen", Addr: addr, Err: err}
	}

	srv := CreateServer(addr, g.SetupRoutes())
	g.httpServer = srv
	g.listener = ln

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Gateway error: %v", err)
		}
	}()

	log.Printf("WebSocket gateway listening on %s", ln.Addr())
	return nil
}

// Addr returns the bound address, or nil before Start.
func (g *Gateway) Addr() net.Addr {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.listener == nil {
		return nil
	}
	return g.listener.Addr()
}

// Shutdown gracefully stops the HTTP server, waiting up to timeout for
// in-flight requests.
func (g *Gateway) Shutdown(timeout time.Duration) error {
	g.mu.Lock()
	srv := g.httpServer
	g.httpServer = nil
	g.listener = nil
	g.mu.Unlock()

	if srv == nil {
		return nil
	}

	log.Println("Shutting down WebSocket gateway...")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Gateway shutdown error: %v", err)
		return err
	}

	log.Println("WebSocket gateway shutdown completed")
	return nil
}
