package client

import (
	"errors"
	"strings"
	"sync"

	"github.com/Tyrowin/linechat/internal/network"
)

// ErrNotConnected is returned by HandleInput when text is typed without an
// open connection.
var ErrNotConnected = errors.New("not connected")

// FormatMessage builds the outbound chat line for nickname.
func FormatMessage(nickname, text string) string {
	return nickname + ": " + text
}

// Client holds at most one chat connection and a nickname, like a chat
// window: connecting again replaces the previous connection.
type Client struct {
	observer network.Observer
	opts     []network.Option

	mu       sync.Mutex
	nickname string
	conn     *network.Connection
}

// New creates a disconnected client reporting to observer.
func New(observer network.Observer, nickname string, opts ...network.Option) *Client {
	return &Client{observer: observer, nickname: nickname, opts: opts}
}

// Connect disconnects any current connection and opens a new one to addr.
func (c *Client) Connect(addr string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		c.conn.Disconnect()
		c.conn = nil
	}

	conn, err := network.Open(c.observer, addr, c.opts...)
	if err != nil {
		return err
	}
	c.conn = conn
	return nil
}

// SetNickname changes the name prefixed to outgoing messages.
func (c *Client) SetNickname(nickname string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nickname = nickname
}

// Nickname returns the current nickname.
func (c *Client) Nickname() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nickname
}

// Say sends text as "<nickname>: <text>". Empty text is ignored. It reports
// whether a connection was available.
func (c *Client) Say(text string) bool {
	if text == "" {
		return true
	}

	c.mu.Lock()
	conn, nickname := c.conn, c.nickname
	c.mu.Unlock()

	if conn == nil || conn.Closed() {
		return false
	}
	conn.Send(FormatMessage(nickname, text))
	return true
}

// Close disconnects the current connection, if any, and returns once the
// observer has been told about it.
func (c *Client) Close() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		conn.Disconnect()
		<-conn.Done()
	}
}

// HandleInput interprets one line typed by the user. "/connect host:port"
// reconnects, "/nick name" renames, "/quit" asks the caller to exit, and
// anything else is sent as a chat message.
func (c *Client) HandleInput(line string) (quit bool, err error) {
	fields := strings.Fields(line)
	if len(fields) > 0 {
		switch fields[0] {
		case "/quit":
			return true, nil
		case "/connect":
			if len(fields) != 2 {
				return false, errors.New("usage: /connect host:port")
			}
			return false, c.Connect(fields[1])
		case "/nick":
			if len(fields) < 2 {
				return false, errors.New("usage: /nick name")
			}
			c.SetNickname(strings.Join(fields[1:], " "))
			return false, nil
		}
	}

	if !c.Say(line) {
		return false, ErrNotConnected
	}
	return false, nil
}
