// Package endpoint implements the local TCP status endpoint. The listener is
// polled rather than served so the controller stays on one goroutine.
package endpoint

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"
)

// DefaultAddr accepts only local clients.
const DefaultAddr = "127.0.0.1:5555"

const (
	acceptTimeout = 10 * time.Millisecond
	readTimeout   = 2 * time.Second
	writeTimeout  = 5 * time.Second
	maxCommandLen = 256
)

// ErrClosed is returned when responding to a request twice.
var ErrClosed = errors.New("endpoint: request already closed")

// Request is one pending client connection.
type Request interface {
	// Command returns the first line the client sent, trimmed.
	Command() (string, error)
	// Respond writes body and closes the connection.
	Respond(body string) error
	// Close drops the connection without a reply.
	Close() error
}

// Inbox yields at most one pending request per Poll.
type Inbox interface {
	// Poll returns the next waiting request, or nil if none is waiting.
	Poll() (Request, error)
	Close() error
}

// Listener is an Inbox over a TCP socket.
type Listener struct {
	ln *net.TCPListener
}

// Listen opens the endpoint on addr.
func Listen(addr string) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	tcp, ok := ln.(*net.TCPListener)
	if !ok {
		ln.Close()
		return nil, fmt.Errorf("listen %s: not a TCP listener", addr)
	}
	return &Listener{ln: tcp}, nil
}

// Addr returns the bound address.
func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

// Poll waits briefly for a client. A timeout means no client and returns nil, nil.
func (l *Listener) Poll() (Request, error) {
	if err := l.ln.SetDeadline(time.Now().Add(acceptTimeout)); err != nil {
		return nil, fmt.Errorf("set accept deadline: %w", err)
	}
	conn, err := l.ln.Accept()
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return nil, nil
		}
		return nil, fmt.Errorf("accept: %w", err)
	}
	return &tcpRequest{conn: conn}, nil
}

// Close stops listening.
func (l *Listener) Close() error {
	return l.ln.Close()
}

type tcpRequest struct {
	conn   net.Conn
	closed bool
}

func (c *tcpRequest) Command() (string, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
		return "", err
	}
	r := bufio.NewReaderSize(c.conn, maxCommandLen)
	line, err := r.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read command: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func (c *tcpRequest) Respond(body string) error {
	if c.closed {
		return ErrClosed
	}
	c.closed = true
	defer c.conn.Close()

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	if _, err := c.conn.Write([]byte(body)); err != nil {
		return fmt.Errorf("write response: %w", err)
	}
	return nil
}

func (c *tcpRequest) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}
