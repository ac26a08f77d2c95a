// Package server implements the broadcast chat server: it accepts line
// connections, keeps them in a registry, and relays every received line to
// all of them.
package server

import (
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/Tyrowin/linechat/internal/network"
)

// Lifecycle misuse. Each is logged and returned; the server state is unchanged.
var (
	ErrAlreadyRunning = errors.New("server is already running")
	ErrNotRunning     = errors.New("server is not running")
	ErrPortLocked     = errors.New("port cannot change while the server is running")
	ErrInvalidPort    = errors.New("invalid port number")
)

const (
	joinNoticePrefix  = "Клиент подключился: "
	leaveNoticePrefix = "Клиент отключился: "
)

// JoinNotice is broadcast when a connection becomes ready.
func JoinNotice(addr string) string {
	return joinNoticePrefix + addr
}

// LeaveNotice is broadcast when a connection disconnects.
func LeaveNotice(addr string) string {
	return leaveNoticePrefix + addr
}

// Option configures a ChatServer.
type Option func(*ChatServer)

// WithExitFunc replaces os.Exit as the last step of FullStopApp.
func WithExitFunc(exit func(code int)) Option {
	return func(s *ChatServer) {
		s.exit = exit
	}
}

// ChatServer is the broadcast server. Its lifecycle is stopped -> running ->
// stopped; the port may only change while stopped. ChatServer implements
// network.Observer for every connection it accepts.
type ChatServer struct {
	cfg  Config
	exit func(code int)

	mu         sync.Mutex
	port       int
	running    bool
	listener   net.Listener
	acceptDone chan struct{}
	onFullStop []func()

	registry *registry
	conns    sync.WaitGroup
}

// NewChatServer creates a stopped server configured by cfg. A nil cfg uses
// the defaults.
func NewChatServer(cfg *Config, opts ...Option) *ChatServer {
	c := defaultConfig()
	if cfg != nil {
		c = *cfg
	}
	c.Sanitize()

	s := &ChatServer{
		cfg:      c,
		exit:     os.Exit,
		port:     c.Port,
		registry: newRegistry(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnFullStop registers fn to run during FullStopApp, after the chat server
// stops and before the process exits. The management channel registers its
// StopManager here.
func (s *ChatServer) OnFullStop(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onFullStop = append(s.onFullStop, fn)
}

// SetPort stores p for the next StartServer. It is rejected while running.
func (s *ChatServer) SetPort(p int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		log.Printf("Cannot change port to %d while the server is running; stop it first", p)
		return ErrPortLocked
	}
	if !validPort(p) {
		return fmt.Errorf("%w: %d", ErrInvalidPort, p)
	}
	s.port = p
	log.Printf("Server port set to %d", p)
	return nil
}

// Port returns the configured port.
func (s *ChatServer) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port
}

// IsRunning reports whether the server is accepting connections.
func (s *ChatServer) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Addr returns the bound listener address, or nil when stopped.
func (s *ChatServer) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// ClientCount returns the number of registered connections.
func (s *ChatServer) ClientCount() int {
	return s.registry.count()
}

// StartServer listens on the configured port and starts the accept loop.
// A listen failure is returned as a *network.ConnectionError and leaves the
// server stopped.
func (s *ChatServer) StartServer() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		log.Println("Server is already running")
		return ErrAlreadyRunning
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		log.Printf("Failed to start server on %s: %v", addr, err)
		return &network.ConnectionError{Op: "listen", Addr: addr, Err: err}
	}

	s.listener = ln
	s.running = true
	s.acceptDone = make(chan struct{})
	go s.acceptLoop(ln, s.acceptDone)

	log.Printf("Server started on %s", ln.Addr())
	return nil
}

// StopServer disconnects every registered connection and closes the
// listener. The accept loop observes the closed listener and exits on its own.
func (s *ChatServer) StopServer() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		log.Println("Server is not running")
		return ErrNotRunning
	}
	s.running = false

	clients := s.registry.snapshot()
	for _, c := range clients {
		c.Disconnect()
	}

	var err error
	if s.listener != nil {
		if closeErr := s.listener.Close(); closeErr != nil && !network.IsExpectedCloseError(closeErr) {
			log.Printf("Error closing listener: %v", closeErr)
			err = closeErr
		}
		s.listener = nil
	}

	log.Printf("Server stopped; disconnected %d clients", len(clients))
	return err
}

// FullStopApp stops the server, runs the OnFullStop hooks, waits for the
// accept loop and the connections to finish, then exits the process.
func (s *ChatServer) FullStopApp() {
	log.Println("Shutting down the application...")

	if err := s.StopServer(); err != nil && !errors.Is(err, ErrNotRunning) {
		log.Printf("Error stopping server: %v", err)
	}

	s.mu.Lock()
	hooks := append([]func(){}, s.onFullStop...)
	acceptDone := s.acceptDone
	s.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}

	if acceptDone != nil {
		<-acceptDone
	}

	if err := s.waitConnections(s.cfg.ShutdownTimeout); err != nil {
		log.Printf("Connections still closing after %s", s.cfg.ShutdownTimeout)
	}

	log.Println("Application stopped")
	s.exit(0)
}

func (s *ChatServer) waitConnections(timeout time.Duration) error {
	done := make(chan struct{})
	go func() {
		s.conns.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return errors.New("shutdown timeout reached")
	}
}

func (s *ChatServer) acceptLoop(ln net.Listener, done chan struct{}) {
	defer close(done)

	var backoff network.AcceptBackoff
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || !s.IsRunning() {
				return
			}

			delay := backoff.Next()
			log.Printf("Accept error: %v; retrying in %v", err, delay)
			time.Sleep(delay)
			continue
		}
		backoff.Reset()

		s.conns.Add(1)
		s.wrap(conn)
	}
}

// Adopt wraps an externally accepted stream, such as a WebSocket, as a chat
// connection. It fails with ErrNotRunning while the server is stopped.
func (s *ChatServer) Adopt(stream network.Stream) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrNotRunning
	}
	s.conns.Add(1)
	s.mu.Unlock()

	s.wrap(stream)
	return nil
}

func (s *ChatServer) wrap(stream network.Stream) {
	network.Adopt(s, stream,
		network.WithMaxLineSize(s.cfg.MaxLineSize),
		network.WithWriteTimeout(s.cfg.WriteTimeout))
}

// broadcast sends line to a snapshot of the registry. A failing connection
// disconnects itself without stopping delivery to the others.
func (s *ChatServer) broadcast(line string) {
	for _, c := range s.registry.snapshot() {
		c.Send(line)
	}
}

// OnReady registers c and announces it. A connection that becomes ready
// after StopServer is refused.
func (s *ChatServer) OnReady(c *network.Connection) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		c.Disconnect()
		return
	}
	total := s.registry.add(c, newLineBudget(s.cfg.RateLimit))
	s.mu.Unlock()

	log.Printf("Client connected from %s. Total clients: %d", c, total)
	s.broadcast(JoinNotice(c.RemoteAddr()))
}

// OnReceiveLine relays line verbatim to every registered connection.
func (s *ChatServer) OnReceiveLine(c *network.Connection, line string) {
	if ok, dropped := s.registry.budget(c).take(time.Now()); !ok {
		log.Printf("Rate limit exceeded for %s (%d lines per %s); %d lines discarded",
			c, s.cfg.RateLimit.Burst, s.cfg.RateLimit.RefillInterval, dropped)
		return
	}
	s.broadcast(line)
}

// OnDisconnect unregisters c and announces its departure. A connection that
// was refused in OnReady never joined, so nothing is announced.
func (s *ChatServer) OnDisconnect(c *network.Connection) {
	defer s.conns.Done()

	joined, total := s.registry.remove(c)
	if !joined {
		return
	}
	log.Printf("Client disconnected from %s. Total clients: %d", c, total)
	s.broadcast(LeaveNotice(c.RemoteAddr()))
}

// OnError logs the failure and stops broadcasting to c. The leave notice
// follows from OnDisconnect.
func (s *ChatServer) OnError(c *network.Connection, err error) {
	log.Printf("Connection error from %s: %v", c, err)
	s.registry.evict(c)
}
