package network

import (
	"bufio"
	"context"
	"io"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// LineTerminator is appended to every line written by Send.
const LineTerminator = "\r\n"

const (
	defaultMaxLineSize  = 64 * 1024
	defaultWriteTimeout = 10 * time.Second
	defaultDialTimeout  = 5 * time.Second
)

// Stream is the transport a Connection wraps. net.Conn satisfies it.
type Stream interface {
	io.ReadWriteCloser
	RemoteAddr() net.Addr
}

type writeDeadliner interface {
	SetWriteDeadline(t time.Time) error
}

type options struct {
	maxLineSize  int
	writeTimeout time.Duration
	dialTimeout  time.Duration
}

// Option configures a Connection.
type Option func(*options)

// WithMaxLineSize limits the length of a received line. A longer line is
// reported through OnError and ends the connection.
func WithMaxLineSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxLineSize = n
		}
	}
}

// WithWriteTimeout bounds each Send when the stream supports write deadlines.
// Zero disables the deadline.
func WithWriteTimeout(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.writeTimeout = d
		}
	}
}

// WithDialTimeout bounds Open.
func WithDialTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.dialTimeout = d
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		maxLineSize:  defaultMaxLineSize,
		writeTimeout: defaultWriteTimeout,
		dialTimeout:  defaultDialTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Connection is one stream bound to the line protocol. It starts its receive
// goroutine as soon as it is created and becomes terminal after Disconnect.
type Connection struct {
	stream   Stream
	observer Observer
	addr     string
	opts     options

	sendMu sync.Mutex
	closed atomic.Bool
	done   chan struct{}
}

// Open dials address over TCP and wraps the resulting stream.
func Open(observer Observer, address string, opts ...Option) (*Connection, error) {
	return OpenContext(context.Background(), observer, address, opts...)
}

// OpenContext is Open with a context bounding the dial.
func OpenContext(ctx context.Context, observer Observer, address string, opts ...Option) (*Connection, error) {
	o := buildOptions(opts)
	dialer := net.Dialer{Timeout: o.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, &ConnectionError{Op: "dial", Addr: address, Err: err}
	}
	return Adopt(observer, conn, opts...), nil
}

// Adopt wraps an already established stream, such as one returned by a
// listener's Accept.
func Adopt(observer Observer, stream Stream, opts ...Option) *Connection {
	addr := "unknown"
	if ra := stream.RemoteAddr(); ra != nil {
		addr = ra.String()
	}

	c := &Connection{
		stream:   stream,
		observer: observer,
		addr:     addr,
		opts:     buildOptions(opts),
		done:     make(chan struct{}),
	}
	go c.receiveLoop()
	return c
}

// RemoteAddr returns the peer address as host:port.
func (c *Connection) RemoteAddr() string {
	return c.addr
}

func (c *Connection) String() string {
	return c.addr
}

// Closed reports whether Disconnect has run.
func (c *Connection) Closed() bool {
	return c.closed.Load()
}

// Done is closed once the receive loop has exited and OnDisconnect returned.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

func (c *Connection) receiveLoop() {
	defer close(c.done)

	c.observer.OnReady(c)

	scanner := bufio.NewScanner(c.stream)
	scanner.Buffer(make([]byte, 0, min(4096, c.opts.maxLineSize)), c.opts.maxLineSize)
	for scanner.Scan() {
		if c.closed.Load() {
			break
		}
		c.observer.OnReceiveLine(c, scanner.Text())
	}

	// A read failing because Disconnect closed the stream is an interruption,
	// not a transport fault: shutdown only reports it if it closes first.
	c.shutdown(scanner.Err())
	c.observer.OnDisconnect(c)
}

// Send writes line followed by LineTerminator. Concurrent sends on the same
// connection never interleave. A write failure is reported to the observer
// and disconnects the connection; Send itself never fails.
func (c *Connection) Send(line string) {
	if err := c.write(line); err != nil {
		c.shutdown(err)
	}
}

func (c *Connection) write(line string) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.closed.Load() {
		return nil
	}

	if c.opts.writeTimeout > 0 {
		if d, ok := c.stream.(writeDeadliner); ok {
			if err := d.SetWriteDeadline(time.Now().Add(c.opts.writeTimeout)); err != nil {
				return err
			}
		}
	}

	_, err := io.WriteString(c.stream, line+LineTerminator)
	return err
}

// Disconnect closes the stream, which unblocks the receive loop. It is
// idempotent; the observer learns about the disconnect exactly once, from
// the receive loop.
func (c *Connection) Disconnect() {
	c.shutdown(nil)
}

// shutdown closes the stream once. Only the call that wins the close reports
// cause, so a connection delivers at most one OnError, and it does so before
// the receive loop can observe the close and fire OnDisconnect.
func (c *Connection) shutdown(cause error) {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	if cause != nil {
		c.observer.OnError(c, cause)
	}
	if err := c.stream.Close(); err != nil && !IsExpectedCloseError(err) {
		log.Printf("Error closing connection %s: %v", c.addr, err)
	}
}
