package client

import (
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"

	"github.com/Tyrowin/linechat/internal/network"
)

// Console notifications.
const (
	NoticeConnected    = "Подключение успешно осуществлено"
	NoticeDisconnected = "Подключение прервано"
	noticeErrorPrefix  = "Исключение: "
)

// Console is a network.Observer that prints every event as one line on out.
// Printing is asynchronous: callbacks only append to an unbounded queue.
type Console struct {
	out    io.Writer
	status *color.Color
	alert  *color.Color

	mu     sync.Mutex
	queue  []string
	closed bool
	wake   chan struct{}
	done   chan struct{}
}

// NewConsole starts the writer goroutine. Status and error lines are
// coloured when colored is true.
func NewConsole(out io.Writer, colored bool) *Console {
	c := &Console{
		out:    out,
		status: color.New(color.FgGreen),
		alert:  color.New(color.FgRed),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	if colored {
		c.status.EnableColor()
		c.alert.EnableColor()
	} else {
		c.status.DisableColor()
		c.alert.DisableColor()
	}

	go c.run()
	return c
}

// Print queues msg for output. It never blocks on the writer.
func (c *Console) Print(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.queue = append(c.queue, msg)

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Close flushes the queue and stops the writer goroutine.
func (c *Console) Close() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.wake)
	}
	c.mu.Unlock()
	<-c.done
}

func (c *Console) run() {
	defer close(c.done)

	for range c.wake {
		c.flush()
	}
	c.flush()
}

func (c *Console) flush() {
	c.mu.Lock()
	pending := c.queue
	c.queue = nil
	c.mu.Unlock()

	for _, msg := range pending {
		if _, err := fmt.Fprintln(c.out, msg); err != nil {
			return
		}
	}
}

// OnReady implements network.Observer.
func (c *Console) OnReady(*network.Connection) {
	c.Print(c.status.Sprint(NoticeConnected))
}

// OnReceiveLine implements network.Observer.
func (c *Console) OnReceiveLine(_ *network.Connection, line string) {
	c.Print(line)
}

// OnDisconnect implements network.Observer.
func (c *Console) OnDisconnect(*network.Connection) {
	c.Print(c.status.Sprint(NoticeDisconnected))
}

// OnError implements network.Observer.
func (c *Console) OnError(_ *network.Connection, err error) {
	c.Print(c.alert.Sprint(noticeErrorPrefix + err.Error()))
}
