package e2e

import (
	"chat-relay/client"
	"chat-relay/domain"
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/gookit/color"
	"github.com/samber/lo"
	"github.com/stretchr/testify/suite"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

const receiveTimeout = 5 * time.Second

type BaseRelaySuite struct {
	suite.Suite
	Config Config
}

// SetupSuite loads the environment configuration before running tests
func (s *BaseRelaySuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
	if s.Config.RelayAddr == "" {
		s.T().Skip("E2E_RELAY_ADDR not set")
	}
}

func (s *BaseRelaySuite) header(t *testing.T, name string) {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	t.Log(header)
}

// Dial connects and sends the handshake without waiting for an answer.
func (s *BaseRelaySuite) Dial(name, username string) *client.Client {
	t := s.T()
	s.header(t, name)

	ctx, cancel := context.WithTimeout(context.Background(), receiveTimeout)
	defer cancel()
	c, err := client.Dial(ctx, s.Config.RelayAddr, username)
	s.Require().NoError(err, "Failed to connect to relay at "+s.Config.RelayAddr)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// Join connects a user and waits for the roster that lists it.
func (s *BaseRelaySuite) Join(name, username string) *client.Client {
	c := s.Dial(name, username)
	for {
		msg := s.Receive(c)
		if msg.Kind == domain.KindUserList && lo.Contains(msg.Users, username) {
			return c
		}
	}
}

// Receive logs every frame it returns.
func (s *BaseRelaySuite) Receive(c *client.Client) domain.Message {
	msg, err := c.ReceiveWithin(receiveTimeout)
	s.Require().NoError(err, "%s expected a frame", c.Username())
	s.T().Logf("%s <- %+v", c.Username(), msg)
	return msg
}

// ReceiveKind skips frames until one of the given kind arrives.
func (s *BaseRelaySuite) ReceiveKind(c *client.Client, kind domain.Kind) domain.Message {
	for {
		if msg := s.Receive(c); msg.Kind == kind {
			return msg
		}
	}
}

// WithHealth provides a health client within a contextual test step
func (s *BaseRelaySuite) WithHealth(name string, fn func(ctx context.Context, client grpc_health_v1.HealthClient)) {
	if s.Config.HealthAddr == "" {
		s.T().Skip("E2E_HEALTH_ADDR not set")
	}
	conn := s.grpcConn(s.T(), name, s.Config.HealthAddr)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	fn(ctx, grpc_health_v1.NewHealthClient(conn))
}

// grpcConn initializes a gRPC connection with logging, colors, and JSON debugging
func (s *BaseRelaySuite) grpcConn(t *testing.T, name string, addr string) *grpc.ClientConn {
	s.header(t, name)

	marshaler := protojson.MarshalOptions{
		UseProtoNames:   true,
		Multiline:       true,
		EmitUnpopulated: true,
	}

	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
			start := time.Now()
			err := invoker(ctx, method, req, reply, cc, opts...)

			logBuilder := strings.Builder{}
			fmt.Fprintf(&logBuilder, "GRPC %s [%s] in %v", method, status.Code(err), time.Since(start))

			// Log full JSON request/response bodies if E2E_DEBUG_JSON is enabled
			if s.Config.DebugJSON {
				fmt.Fprintln(&logBuilder, "\nREQUEST:")
				fmt.Fprintln(&logBuilder, marshaler.Format(req.(proto.Message)))
				if err != nil {
					fmt.Fprintln(&logBuilder, "ERROR:", err)
				} else {
					fmt.Fprintln(&logBuilder, "RESPONSE:")
					fmt.Fprintln(&logBuilder, marshaler.Format(reply.(proto.Message)))
				}
			}
			t.Log(logBuilder.String())
			return err
		}),
	)
	s.Require().NoError(err, "Failed to connect to gRPC server at "+addr)
	return conn
}
