// Package client speaks the relay's line protocol from the user side.
package client

import (
	"bufio"
	"chat-relay/codec"
	"chat-relay/domain"
	"context"
	"fmt"
	"net"
	"sync"
	"time"
)

type Client struct {
	conn     net.Conn
	reader   *bufio.Reader
	pending  []byte
	username string
	writeMu  sync.Mutex
}

// Dial connects and immediately sends the join handshake. The server answers
// a rejected handshake with a sys message followed by closing the connection,
// which surfaces on the next Receive.
func Dial(ctx context.Context, address, username string) (*Client, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("could not connect to server at %s: %w", address, err)
	}
	c := New(conn, username)
	if err = c.Send(domain.Message{Kind: domain.KindJoin, From: username}); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("handshake failed: %w", err)
	}
	return c, nil
}

// New wraps an established connection without performing the handshake.
func New(conn net.Conn, username string) *Client {
	return &Client{conn: conn, reader: bufio.NewReader(conn), username: username}
}

func (c *Client) Username() string { return c.username }

func (c *Client) Say(text string) error {
	return c.Send(domain.Message{Kind: domain.KindMsg, Text: text})
}

func (c *Client) Whisper(to, text string) error {
	return c.Send(domain.Message{Kind: domain.KindPM, To: to, Text: text})
}

// Leave announces the departure. The caller still has to Close.
func (c *Client) Leave() error {
	return c.Send(domain.Message{Kind: domain.KindLeave})
}

func (c *Client) Send(m domain.Message) error {
	frame, err := codec.Encode(m)
	if err != nil {
		return err
	}
	return c.SendRaw(frame)
}

// SendRaw writes an arbitrary line; the delimiter is appended.
func (c *Client) SendRaw(line []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err := c.conn.Write(append(append([]byte(nil), line...), '\n'))
	return err
}

// Receive blocks for the next frame. It returns io.EOF once the server closed
// the connection. A read that times out can be retried: the bytes already
// read are kept for the next call. Receive is not safe for concurrent use.
func (c *Client) Receive() (domain.Message, error) {
	line, err := c.reader.ReadBytes('\n')
	if err != nil {
		c.pending = append(c.pending, line...)
		return domain.Message{}, err
	}
	if len(c.pending) > 0 {
		line = append(c.pending, line...)
		c.pending = nil
	}
	return codec.Decode(line)
}

// ReceiveWithin is Receive bounded by a read deadline.
func (c *Client) ReceiveWithin(timeout time.Duration) (domain.Message, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return domain.Message{}, err
	}
	defer func() { _ = c.conn.SetReadDeadline(time.Time{}) }()
	return c.Receive()
}

func (c *Client) Close() error {
	return c.conn.Close()
}
