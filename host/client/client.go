// Package client talks to the winder console over a serial port
package client

import (
	"bufio"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"cablewinder/host/serial"
)

// ErrCommand is returned when the winder answered a command with an error
var ErrCommand = errors.New("command failed")

// Client sends console commands and collects their replies
type Client struct {
	mu      sync.Mutex
	port    io.ReadWriteCloser
	lines   chan string
	readErr chan error
	log     logrus.FieldLogger
}

// Connect opens device and starts reading replies
func Connect(device string, baud int, log logrus.FieldLogger) (*Client, error) {
	cfg := serial.DefaultConfig(device)
	if baud > 0 {
		cfg.Baud = baud
	}
	cfg.ReadTimeout = 0
	port, err := serial.Open(cfg)
	if err != nil {
		return nil, err
	}
	// Give the winder time to settle after the port opens
	time.Sleep(100 * time.Millisecond)
	if err := port.Flush(); err != nil {
		log.WithError(err).Debug("flush failed")
	}
	return New(port, log), nil
}

// New wraps an open connection
func New(port io.ReadWriteCloser, log logrus.FieldLogger) *Client {
	if log == nil {
		log = logrus.StandardLogger()
	}
	c := &Client{
		port:    port,
		lines:   make(chan string, 64),
		readErr: make(chan error, 1),
		log:     log.WithField("component", "client"),
	}
	go c.readLoop()
	return c
}

func (c *Client) readLoop() {
	scanner := bufio.NewScanner(c.port)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		c.lines <- line
	}
	err := scanner.Err()
	if err == nil {
		err = io.EOF
	}
	c.readErr <- err
	close(c.lines)
}

// Send writes one command and returns the reply lines before "ok". A reply
// ending in "error: ..." returns ErrCommand wrapped with the message.
func (c *Client) Send(line string, timeout time.Duration) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	line = strings.TrimSpace(line)
	if line == "" {
		return nil, nil
	}
	c.log.WithField("line", line).Debug("send")
	if _, err := io.WriteString(c.port, line+"\n"); err != nil {
		return nil, errors.Wrap(err, "write command")
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	var reply []string
	for {
		select {
		case l, ok := <-c.lines:
			if !ok {
				return reply, errors.Wrap(<-c.readErr, "connection closed")
			}
			switch {
			case l == "ok":
				return reply, nil
			case strings.HasPrefix(l, "error: "):
				return reply, errors.Wrap(ErrCommand, strings.TrimPrefix(l, "error: "))
			default:
				reply = append(reply, l)
			}
		case <-deadline.C:
			return reply, errors.Errorf("no reply to %q within %s", line, timeout)
		}
	}
}

// Close closes the connection
func (c *Client) Close() error {
	return c.port.Close()
}
