package runtime

import (
	"bufio"
	"bytes"
	"chat-relay/codec"
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/mocks"
	"fmt"
	"io"
	"log/slog"
	"net"
	goruntime "runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type sessionHarness struct {
	session *Session
	client  net.Conn
	reader  *bufio.Reader
	done    chan struct{}
}

func startSession(t *testing.T, registry contract.IRegistry, router contract.IRouter, opts SessionOptions) *sessionHarness {
	t.Helper()
	serverConn, clientConn := net.Pipe()
	session := NewSession(logs.GetLoggerFromLevel(slog.LevelDebug), serverConn, registry, router, opts)
	h := &sessionHarness{
		session: session,
		client:  clientConn,
		reader:  bufio.NewReader(clientConn),
		done:    make(chan struct{}),
	}
	go func() {
		session.Serve()
		close(h.done)
	}()
	t.Cleanup(func() { _ = clientConn.Close() })
	return h
}

func (h *sessionHarness) write(t *testing.T, line string) {
	t.Helper()
	_, err := h.client.Write([]byte(line + "\n"))
	require.NoError(t, err)
}

func (h *sessionHarness) read(t *testing.T) domain.Message {
	t.Helper()
	_ = h.client.SetReadDeadline(time.Now().Add(time.Second))
	line, err := h.reader.ReadBytes('\n')
	require.NoError(t, err)
	m, err := codec.Decode(line)
	require.NoError(t, err)
	return m
}

func (h *sessionHarness) requireClosed(t *testing.T) {
	t.Helper()
	_ = h.client.SetReadDeadline(time.Now().Add(time.Second))
	_, err := h.reader.ReadBytes('\n')
	require.ErrorIs(t, err, io.EOF)
	select {
	case <-h.done:
	case <-time.After(time.Second):
		require.Fail(t, "session did not terminate")
	}
	require.Equal(t, domain.Closed, h.session.State())
}

func TestSession_Handshake_RejectsNonJoin(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	mockRouter := mocks.NewMockIRouter(ctrl)
	registry := NewRegistry()
	h := startSession(t, registry, mockRouter, SessionOptions{})

	// When the first line is not a join
	h.write(t, `{"type":"msg","text":"hello"}`)

	// Then exactly one sys message is sent before the connection closes
	msg := h.read(t)
	require.Equal(t, domain.KindSys, msg.Kind)
	h.requireClosed(t)
	require.Zero(t, registry.Count())
}

func TestSession_Handshake_RejectsBlankUsername(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	registry := NewRegistry()
	h := startSession(t, registry, mocks.NewMockIRouter(ctrl), SessionOptions{})

	h.write(t, `{"type":"join","from":"   "}`)

	require.Equal(t, domain.KindSys, h.read(t).Kind)
	h.requireClosed(t)
}

func TestSession_Handshake_UsernameTaken(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	mockRouter := mocks.NewMockIRouter(ctrl)
	mockRouter.EXPECT().Joined(gomock.Any()).Times(0)
	mockRouter.EXPECT().Left(gomock.Any()).Times(0)

	// Given alice is already connected
	registry := NewRegistry()
	holder := stubPeer{name: "alice"}
	req.True(registry.TryRegister("alice", holder))

	h := startSession(t, registry, mockRouter, SessionOptions{})
	h.write(t, `{"type":"join","from":"alice"}`)

	msg := h.read(t)
	req.Equal(domain.KindSys, msg.Kind)
	req.Contains(msg.Text, "alice")
	h.requireClosed(t)

	// And the first holder is untouched
	found, ok := registry.Lookup("alice")
	req.True(ok)
	req.Equal(holder, found)
}

func TestSession_Lifecycle(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	mockRouter := mocks.NewMockIRouter(ctrl)
	registry := NewRegistry()

	joined := make(chan struct{})
	routed := make(chan domain.Message, 4)
	left := make(chan int, 1)

	mockRouter.EXPECT().Joined("alice").Do(func(string) { close(joined) }).Times(1)
	mockRouter.EXPECT().Route(gomock.Any(), gomock.Any()).
		Do(func(sender contract.Peer, msg domain.Message) {
			req.Equal("alice", sender.Username())
			routed <- msg
		}).Times(2)
	mockRouter.EXPECT().Left("alice").Do(func(string) {
		// The name is released before the departure is announced
		left <- registry.Count()
	}).Times(1)

	h := startSession(t, registry, mockRouter, SessionOptions{})
	h.write(t, `{"type":"join","from":" alice "}`)
	<-joined
	req.Equal(domain.Active, h.session.State())
	req.Equal("alice", h.session.Username())

	// Malformed lines are dropped and the loop keeps going
	h.write(t, `not json at all`)
	h.write(t, `{"type":"pm","text":"missing recipient"}`)
	h.write(t, `{"type":"msg","from":"bob","text":"hi"}`)
	h.write(t, `{"type":"leave"}`)

	first := <-routed
	req.Equal(domain.KindMsg, first.Kind)
	req.Equal("hi", first.Text)
	req.Equal(domain.KindLeave, (<-routed).Kind)

	// When the client goes away
	req.NoError(h.client.Close())

	select {
	case count := <-left:
		req.Zero(count)
	case <-time.After(time.Second):
		req.Fail("leave was not announced")
	}
	<-h.done
	req.Equal(domain.Closed, h.session.State())
	req.True(registry.TryRegister("alice", stubPeer{name: "alice"}))
}

func TestSession_OversizedLineEndsSession(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	mockRouter := mocks.NewMockIRouter(ctrl)
	registry := NewRegistry()

	joined := make(chan struct{})
	mockRouter.EXPECT().Joined("alice").Do(func(string) { close(joined) })
	mockRouter.EXPECT().Left("alice").Times(1)

	h := startSession(t, registry, mockRouter, SessionOptions{MaxLineBytes: 64})
	h.write(t, `{"type":"join","from":"alice"}`)
	<-joined

	go func() {
		_, _ = h.client.Write([]byte(`{"type":"msg","text":"` + strings.Repeat("x", 256) + `"}` + "\n"))
	}()

	select {
	case <-h.done:
	case <-time.After(time.Second):
		require.Fail(t, "session should end on an oversized frame")
	}
	require.Zero(t, registry.Count())
}

func TestSession_SendAfterClose(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	h := startSession(t, NewRegistry(), mocks.NewMockIRouter(ctrl), SessionOptions{})

	require.NoError(t, h.client.Close())
	<-h.done

	require.ErrorIs(t, h.session.Send([]byte(`{}`)), errors.ErrSessionClosed)
}

func TestSession_Send_TimedOutWriteEndsSession(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	mockRouter := mocks.NewMockIRouter(ctrl)
	registry := NewRegistry()

	joined := make(chan struct{})
	left := make(chan struct{})
	mockRouter.EXPECT().Joined("alice").Do(func(string) { close(joined) })
	mockRouter.EXPECT().Left("alice").Do(func(string) { close(left) })

	h := startSession(t, registry, mockRouter, SessionOptions{WriteTimeout: 50 * time.Millisecond})
	h.write(t, `{"type":"join","from":"alice"}`)
	<-joined

	// Given a peer that only takes the first bytes of a frame
	prefix := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 10)
		n, _ := io.ReadFull(h.client, buf)
		prefix <- buf[:n]
	}()

	first, err := codec.Encode(domain.Message{Kind: domain.KindMsg, From: "bob", Text: "first"})
	req.NoError(err)
	req.Error(h.session.Send(first))
	req.Equal(`{"type":"m`, string(<-prefix))

	// Then the session is closed and nothing is appended to the torn frame
	req.Equal(domain.Closed, h.session.State())
	second, err := codec.Encode(domain.Message{Kind: domain.KindMsg, From: "bob", Text: "second"})
	req.NoError(err)
	req.ErrorIs(h.session.Send(second), errors.ErrSessionClosed)

	select {
	case <-left:
	case <-time.After(time.Second):
		req.Fail("leave was not announced")
	}
	<-h.done
	req.Zero(registry.Count())

	_ = h.client.SetReadDeadline(time.Now().Add(time.Second))
	_, err = h.client.Read(make([]byte, 64))
	req.ErrorIs(err, io.EOF)
}

// slowConn writes one byte at a time and yields in between, so unguarded
// concurrent writers would interleave their frames.
type slowConn struct {
	net.Conn
	mu  sync.Mutex
	buf bytes.Buffer
}

func (c *slowConn) Write(p []byte) (int, error) {
	for _, b := range p {
		c.mu.Lock()
		c.buf.WriteByte(b)
		c.mu.Unlock()
		goruntime.Gosched()
	}
	return len(p), nil
}

func (c *slowConn) SetWriteDeadline(time.Time) error { return nil }
func (c *slowConn) RemoteAddr() net.Addr           { return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)} }

func TestSession_Send_FramesNeverInterleave(t *testing.T) {
	req := require.New(t)
	conn := &slowConn{}
	session := NewSession(logs.GetLoggerFromLevel(slog.LevelDebug), conn, NewRegistry(), nil, SessionOptions{})

	const writers, frames = 8, 20
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < frames; i++ {
				frame, err := codec.Encode(domain.NewSys(fmt.Sprintf("writer-%d-frame-%d", w, i), time.Now()))
				req.NoError(err)
				req.NoError(session.Send(frame))
			}
		}(w)
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSuffix(conn.buf.String(), "\n"), "\n")
	req.Len(lines, writers*frames)
	for _, line := range lines {
		m, err := codec.Decode([]byte(line))
		req.NoError(err)
		req.Equal(domain.KindSys, m.Kind)
	}
}
