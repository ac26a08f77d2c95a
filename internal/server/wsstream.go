// Package server adapts WebSocket connections to the line stream used by
// chat connections: one text message per line in both directions.
package server

import (
	"bytes"
	"errors"
	"io"
	"net"
	"time"

	"github.com/gorilla/websocket"
)

type wsStream struct {
	conn *websocket.Conn

	// read side, owned by the connection's receive goroutine
	r   io.Reader
	eol bool

	// write side, serialized by Connection.Send
	pending []byte
}

func newWSStream(conn *websocket.Conn) *wsStream {
	return &wsStream{conn: conn}
}

// Read yields message payloads, each followed by a newline.
func (s *wsStream) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	for {
		if s.eol {
			s.eol = false
			p[0] = '\n'
			return 1, nil
		}

		if s.r == nil {
			_, r, err := s.conn.NextReader()
			if err != nil {
				return 0, translateReadError(err)
			}
			s.r = r
		}

		n, err := s.r.Read(p)
		if errors.Is(err, io.EOF) {
			s.r = nil
			s.eol = true
			err = nil
		}
		if n > 0 || err != nil {
			return n, err
		}
	}
}

func translateReadError(err error) error {
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived) {
		return io.EOF
	}
	return err
}

// Write sends every complete line in p as one text message. A trailing
// partial line is held until its terminator arrives.
func (s *wsStream) Write(p []byte) (int, error) {
	s.pending = append(s.pending, p...)

	for {
		i := bytes.IndexByte(s.pending, '\n')
		if i < 0 {
			break
		}
		line := bytes.TrimSuffix(s.pending[:i], []byte{'\r'})
		if err := s.conn.WriteMessage(websocket.TextMessage, line); err != nil {
			s.pending = nil
			return 0, err
		}
		s.pending = s.pending[i+1:]
	}

	if len(s.pending) == 0 {
		s.pending = nil
	}
	return len(p), nil
}

func (s *wsStream) Close() error {
	return s.conn.Close()
}

func (s *wsStream) RemoteAddr() net.Addr {
	return s.conn.RemoteAddr()
}

func (s *wsStream) SetWriteDeadline(t time.Time) error {
	return s.conn.SetWriteDeadline(t)
}
