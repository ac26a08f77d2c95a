package server

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const readTimeout = 2 * time.Second

// startTestServer starts a ChatServer on an ephemeral loopback port.
func startTestServer(t *testing.T, mutate func(*Config), opts ...Option) *ChatServer {
	t.Helper()

	cfg := NewConfig()
	cfg.Host = "127.0.0.1"
	cfg.Port = 0
	if mutate != nil {
		mutate(cfg)
	}

	s := NewChatServer(cfg, opts...)
	require.NoError(t, s.StartServer())
	t.Cleanup(func() {
		_ = s.StopServer()
	})
	return s
}

// peer is a raw TCP chat client.
type peer struct {
	conn net.Conn
	r    *bufio.Reader
}

func dialPeer(t *testing.T, s *ChatServer) *peer {
	t.Helper()

	addr := s.Addr()
	require.NotNil(t, addr, "server must be running")

	conn, err := net.DialTimeout("tcp", addr.String(), readTimeout)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = conn.Close()
	})
	return &peer{conn: conn, r: bufio.NewReader(conn)}
}

// joinPeer dials and waits for the peer's own join notice, so the server has
// registered it before the test continues.
func joinPeer(t *testing.T, s *ChatServer) *peer {
	t.Helper()

	p := dialPeer(t, s)
	p.expect(t, JoinNotice(p.addr()))
	return p
}

// addr is the peer's address as seen by the server.
func (p *peer) addr() string {
	return p.conn.LocalAddr().String()
}

func (p *peer) send(t *testing.T, line string) {
	t.Helper()
	_, err := fmt.Fprintf(p.conn, "%s\r\n", line)
	require.NoError(t, err)
}

func (p *peer) readLine(t *testing.T) string {
	t.Helper()

	require.NoError(t, p.conn.SetReadDeadline(time.Now().Add(readTimeout)))
	line, err := p.r.ReadString('\n')
	require.NoError(t, err)
	return strings.TrimRight(line, "\r\n")
}

func (p *peer) expect(t *testing.T, want string) {
	t.Helper()
	require.Equal(t, want, p.readLine(t))
}

// expectSilence asserts nothing arrives within d.
func (p *peer) expectSilence(t *testing.T, d time.Duration) {
	t.Helper()

	require.NoError(t, p.conn.SetReadDeadline(time.Now().Add(d)))
	line, err := p.r.ReadString('\n')
	var netErr net.Error
	require.Truef(t, errors.As(err, &netErr) && netErr.Timeout(), "unexpected line %q (err %v)", line, err)
}

// expectClosed drains the connection until the server closes it.
func (p *peer) expectClosed(t *testing.T) {
	t.Helper()

	require.NoError(t, p.conn.SetReadDeadline(time.Now().Add(readTimeout)))
	for {
		_, err := p.r.ReadString('\n')
		if err == nil {
			continue
		}
		require.False(t, errors.Is(err, os.ErrDeadlineExceeded), "connection was not closed by the server")
		return
	}
}
