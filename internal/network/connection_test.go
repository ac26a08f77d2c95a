package network

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitTimeout = 2 * time.Second

// recorder is an Observer that keeps every event in arrival order.
type recorder struct {
	mu     sync.Mutex
	events []string
	lines  []string
	errs   []error
	lineCh chan string
}

func newRecorder() *recorder {
	return &recorder{lineCh: make(chan string, 1024)}
}

func (r *recorder) OnReady(*Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "ready")
}

func (r *recorder) OnReceiveLine(_ *Connection, line string) {
	r.mu.Lock()
	r.events = append(r.events, "line")
	r.lines = append(r.lines, line)
	r.mu.Unlock()
	r.lineCh <- line
}

func (r *recorder) OnDisconnect(*Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "disconnect")
}

func (r *recorder) OnError(_ *Connection, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "error")
	r.errs = append(r.errs, err)
}

func (r *recorder) count(event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e == event {
			n++
		}
	}
	return n
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recorder) errList() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

func (r *recorder) nextLine(t *testing.T) string {
	t.Helper()
	select {
	case line := <-r.lineCh:
		return line
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for a line")
		return ""
	}
}

// pair opens a Connection to a local listener and returns it together with
// the accepted peer socket.
func pair(t *testing.T, opts ...Option) (*Connection, net.Conn, *recorder) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	rec := newRecorder()
	c, err := Open(rec, ln.Addr().String(), opts...)
	require.NoError(t, err)

	var peer net.Conn
	select {
	case peer = <-accepted:
	case <-time.After(waitTimeout):
		t.Fatal("listener did not accept")
	}
	t.Cleanup(func() {
		_ = peer.Close()
		c.Disconnect()
	})
	return c, peer, rec
}

func waitDone(t *testing.T, c *Connection) {
	t.Helper()
	select {
	case <-c.Done():
	case <-time.After(waitTimeout):
		t.Fatal("receive loop did not exit")
	}
}

func TestOpenReportsConnectionError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	c, err := Open(newRecorder(), addr)
	require.Error(t, err)
	assert.Nil(t, c)

	var connErr *ConnectionError
	require.True(t, errors.As(err, &connErr))
	assert.Equal(t, "dial", connErr.Op)
	assert.Equal(t, addr, connErr.Addr)
}

func TestReceiveLines(t *testing.T) {
	_, peer, rec := pair(t)

	_, err := peer.Write([]byte("hello\r\nworld\nпривет\r\n"))
	require.NoError(t, err)

	assert.Equal(t, "hello", rec.nextLine(t))
	assert.Equal(t, "world", rec.nextLine(t))
	assert.Equal(t, "привет", rec.nextLine(t))
	assert.Equal(t, "ready", rec.snapshot()[0])
}

func TestSendAppendsTerminator(t *testing.T) {
	c, peer, _ := pair(t)

	c.Send("alice: hi")

	require.NoError(t, peer.SetReadDeadline(time.Now().Add(waitTimeout)))
	line, err := bufio.NewReader(peer).ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "alice: hi\r\n", line)
}

func TestConcurrentSendsDoNotInterleave(t *testing.T) {
	c, peer, _ := pair(t)

	const senders, perSender = 8, 50

	var wg sync.WaitGroup
	for s := 0; s < senders; s++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for i := 0; i < perSender; i++ {
				c.Send(fmt.Sprintf("sender-%d message-%d %s", id, i, strings.Repeat("x", 64)))
			}
		}(s)
	}

	require.NoError(t, peer.SetReadDeadline(time.Now().Add(waitTimeout)))
	reader := bufio.NewReader(peer)
	last := make(map[int]int)
	for n := 0; n < senders*perSender; n++ {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		require.True(t, strings.HasSuffix(line, "\r\n"), "line %q lost its terminator", line)

		var id, seq int
		_, err = fmt.Sscanf(line, "sender-%d message-%d", &id, &seq)
		require.NoError(t, err, "garbled line %q", line)
		if prev, ok := last[id]; ok {
			assert.Equal(t, prev+1, seq, "sender %d out of order", id)
		}
		last[id] = seq
	}
	wg.Wait()
}

func TestDisconnectIsIdempotent(t *testing.T) {
	c, _, rec := pair(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Disconnect()
		}()
	}
	wg.Wait()
	c.Disconnect()
	waitDone(t, c)

	assert.True(t, c.Closed())
	assert.Equal(t, 1, rec.count("disconnect"))
	assert.Empty(t, rec.errList())
	assert.Equal(t, []string{"ready", "disconnect"}, rec.snapshot())
}

func TestDisconnectUnblocksRead(t *testing.T) {
	c, _, rec := pair(t)

	time.Sleep(20 * time.Millisecond)
	start := time.Now()
	c.Disconnect()
	waitDone(t, c)

	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 1, rec.count("disconnect"))
}

func TestPeerCloseIsNormalDisconnect(t *testing.T) {
	c, peer, rec := pair(t)

	_, err := peer.Write([]byte("last words\n"))
	require.NoError(t, err)
	require.NoError(t, peer.Close())

	waitDone(t, c)
	assert.Equal(t, []string{"ready", "line", "disconnect"}, rec.snapshot())
	assert.Empty(t, rec.errList())
}

func TestSendAfterDisconnectIsNoop(t *testing.T) {
	c, _, rec := pair(t)

	c.Disconnect()
	waitDone(t, c)

	assert.NotPanics(t, func() { c.Send("too late") })
	assert.Empty(t, rec.errList())
	assert.Equal(t, 1, rec.count("disconnect"))
}

func TestOversizedLineIsTransportError(t *testing.T) {
	c, peer, rec := pair(t, WithMaxLineSize(16))

	_, err := peer.Write(append(bytes.Repeat([]byte("a"), 64), '\n'))
	require.NoError(t, err)

	waitDone(t, c)
	errs := rec.errList()
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], bufio.ErrTooLong)
	assert.Equal(t, []string{"ready", "error", "disconnect"}, rec.snapshot())
}

func TestAdoptUsesRemoteAddress(t *testing.T) {
	c, peer, _ := pair(t)
	assert.Equal(t, peer.LocalAddr().String(), c.RemoteAddr())
	assert.Equal(t, c.RemoteAddr(), c.String())
}

func TestObserverFuncsIgnoresNilFields(t *testing.T) {
	var obs Observer = ObserverFuncs{}
	assert.NotPanics(t, func() {
		obs.OnReady(nil)
		obs.OnReceiveLine(nil, "x")
		obs.OnError(nil, errors.New("boom"))
		obs.OnDisconnect(nil)
	})
}

func TestIsExpectedCloseError(t *testing.T) {
	assert.True(t, IsExpectedCloseError(nil))
	assert.True(t, IsExpectedCloseError(net.ErrClosed))
	assert.True(t, IsExpectedCloseError(fmt.Errorf("accept: %w", net.ErrClosed)))
	assert.False(t, IsExpectedCloseError(errors.New("connection reset by peer")))
}

// failingStream reads from a pipe but rejects every write.
type failingStream struct {
	net.Conn
}

func (failingStream) Write([]byte) (int, error) {
	return 0, errors.New("write refused")
}

func TestConcurrentSendFailuresReportOneError(t *testing.T) {
	local, remote := net.Pipe()
	defer remote.Close()

	rec := newRecorder()
	c := Adopt(rec, failingStream{local})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Send("doomed")
		}()
	}
	wg.Wait()
	waitDone(t, c)

	assert.True(t, c.Closed())
	errs := rec.errList()
	require.Len(t, errs, 1)
	assert.EqualError(t, errs[0], "write refused")
	assert.Equal(t, 1, rec.count("disconnect"))
}
