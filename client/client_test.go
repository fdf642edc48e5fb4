package client

import (
	"chat-relay/domain"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClient_ReceiveResumesAfterTimeout(t *testing.T) {
	req := require.New(t)
	serverConn, clientConn := net.Pipe()
	c := New(clientConn, "alice")
	t.Cleanup(func() {
		_ = c.Close()
		_ = serverConn.Close()
	})

	frame := `{"type":"msg","from":"bob","text":"split in two","ts":42}` + "\n"
	head, tail := frame[:15], frame[15:]

	// Given only the head of a frame arrives before the deadline
	go func() { _, _ = serverConn.Write([]byte(head)) }()
	_, err := c.ReceiveWithin(100 * time.Millisecond)
	var netErr net.Error
	req.ErrorAs(err, &netErr)
	req.True(netErr.Timeout())

	// Then the next read completes the same frame
	go func() { _, _ = serverConn.Write([]byte(tail)) }()
	msg, err := c.ReceiveWithin(time.Second)
	req.NoError(err)
	req.Equal(domain.Message{Kind: domain.KindMsg, From: "bob", Text: "split in two", Timestamp: 42}, msg)
}
