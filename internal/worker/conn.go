package worker

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// Conn is a newline-delimited JSON message stream: the dedicated
// bi-directional byte channel between a UI thread and the rebuild worker.
// It wraps a generic io.Reader/io.Writer rather than a concrete net.Conn
// because the channel is commonly stdio or an in-process pipe, not a
// socket.
type Conn struct {
	w       io.Writer
	scanner *bufio.Scanner
	mu      sync.Mutex
}

// NewConn wraps r/w as a message channel.
func NewConn(r io.Reader, w io.Writer) *Conn {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	return &Conn{w: w, scanner: sc}
}

// Send writes one message, newline-terminated.
func (c *Conn) Send(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	b, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	if _, err := c.w.Write(append(b, '\n')); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

// SendTyped marshals payload and sends it under msgType.
func (c *Conn) SendTyped(msgType string, payload any) error {
	msg, err := encode(msgType, payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", msgType, err)
	}
	return c.Send(msg)
}

// Recv blocks for the next inbound message. It returns io.EOF when the
// underlying reader is exhausted.
func (c *Conn) Recv() (Message, error) {
	if !c.scanner.Scan() {
		if err := c.scanner.Err(); err != nil {
			return Message{}, err
		}
		return Message{}, io.EOF
	}
	var msg Message
	if err := json.Unmarshal(c.scanner.Bytes(), &msg); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}
	return msg, nil
}
