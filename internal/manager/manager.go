package manager

import (
	"bufio"
	"errors"
	"fmt"
	"log"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/Tyrowin/linechat/internal/network"
)

// Manager accepts management sessions until StopManager. Stopping only
// prevents new sessions; sessions already open run until their peer leaves.
type Manager struct {
	ctrl Controller
	addr string

	mu       sync.Mutex
	listener net.Listener
	stopped  bool
	done     chan struct{}
	sessions sync.WaitGroup
}

// New creates a manager for ctrl that will listen on host:port.
func New(ctrl Controller, host string, port int) *Manager {
	return &Manager{
		ctrl: ctrl,
		addr: net.JoinHostPort(host, strconv.Itoa(port)),
		done: make(chan struct{}),
	}
}

// Start listens and begins accepting sessions in the background. A listen
// failure is returned as a *network.ConnectionError.
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return errors.New("management channel is stopped")
	}
	if m.listener != nil {
		return errors.New("management channel is already accepting")
	}

	ln, err := net.Listen("tcp", m.addr)
	if err != nil {
		return &network.ConnectionError{Op: "listen", Addr: m.addr, Err: err}
	}
	m.listener = ln

	go m.acceptLoop(ln)

	log.Printf("Management channel listening on %s", ln.Addr())
	return nil
}

// Addr returns the bound address, or nil when not accepting.
func (m *Manager) Addr() net.Addr {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listener == nil {
		return nil
	}
	return m.listener.Addr()
}

// StopManager stops accepting new sessions. It is idempotent.
func (m *Manager) StopManager() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return
	}
	m.stopped = true

	if m.listener == nil {
		close(m.done)
		return
	}
	if err := m.listener.Close(); err != nil && !network.IsExpectedCloseError(err) {
		log.Printf("Error closing management listener: %v", err)
	}
}

// Done is closed once the accept loop has exited.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Wait blocks until every open session has ended.
func (m *Manager) Wait() {
	m.sessions.Wait()
}

func (m *Manager) isStopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}

func (m *Manager) acceptLoop(ln net.Listener) {
	defer close(m.done)

	var backoff network.AcceptBackoff
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || m.isStopped() {
				log.Println("Management channel stopped")
				return
			}
			delay := backoff.Next()
			log.Printf("Error accepting management connection: %v; retrying in %v", err, delay)
			time.Sleep(delay)
			continue
		}
		backoff.Reset()

		m.sessions.Add(1)
		go m.serveSession(conn)
	}
}

// serveSession answers every command line until the peer closes the stream
// or an I/O error occurs.
func (m *Manager) serveSession(conn net.Conn) {
	defer m.sessions.Done()
	defer func() {
		if err := conn.Close(); err != nil && !network.IsExpectedCloseError(err) {
			log.Printf("Error closing management session %s: %v", conn.RemoteAddr(), err)
		}
	}()

	log.Printf("Management session opened from %s", conn.RemoteAddr())

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		command := scanner.Text()
		response, fullStop := execute(m.ctrl, command)
		log.Printf("Management command %q from %s: %s", command, conn.RemoteAddr(), response)

		_, err := fmt.Fprintf(conn, "%s\n", response)
		if err != nil {
			log.Printf("Error writing management response to %s: %v", conn.RemoteAddr(), err)
		}

		// The fullstop response is best effort; the shutdown is not.
		if fullStop {
			m.ctrl.FullStopApp()
		}
		if err != nil {
			return
		}
	}

	if err := scanner.Err(); err != nil {
		log.Printf("Management session %s failed: %v", conn.RemoteAddr(), err)
		return
	}
	log.Printf("Management session closed from %s", conn.RemoteAddr())
}
