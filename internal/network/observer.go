package network

// Observer receives the events of one or more connections. Callbacks run on
// the connection's receive goroutine, except OnError raised by a failed Send,
// which runs on the sending goroutine. Implementations must not block for long.
type Observer interface {
	// OnReady is called once, when the receive loop starts.
	OnReady(c *Connection)
	// OnReceiveLine is called for every line read, without its terminator.
	OnReceiveLine(c *Connection, line string)
	// OnDisconnect is called exactly once, after the stream has been closed.
	OnDisconnect(c *Connection)
	// OnError reports a transport failure. OnDisconnect follows it.
	OnError(c *Connection, err error)
}

// ObserverFuncs adapts plain functions to the Observer interface. Nil fields
// are ignored.
type ObserverFuncs struct {
	Ready       func(c *Connection)
	ReceiveLine func(c *Connection, line string)
	Disconnect  func(c *Connection)
	Error       func(c *Connection, err error)
}

// OnReady implements Observer.
func (f ObserverFuncs) OnReady(c *Connection) {
	if f.Ready != nil {
		f.Ready(c)
	}
}

// OnReceiveLine implements Observer.
func (f ObserverFuncs) OnReceiveLine(c *Connection, line string) {
	if f.ReceiveLine != nil {
		f.ReceiveLine(c, line)
	}
}

// OnDisconnect implements Observer.
func (f ObserverFuncs) OnDisconnect(c *Connection) {
	if f.Disconnect != nil {
		f.Disconnect(c)
	}
}

// OnError implements Observer.
func (f ObserverFuncs) OnError(c *Connection, err error) {
	if f.Error != nil {
		f.Error(c, err)
	}
}
