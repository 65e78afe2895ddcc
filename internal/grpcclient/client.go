// Package grpcclient provides a gRPC client for a running luserve server.
package grpcclient

import (
	"context"
	"fmt"
	"net"
	"os"
	"runtime"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	pb "github.com/luserve/luserve/api/proto/luservepb"
	apperrors "github.com/luserve/luserve/internal/pkg/errors"
)

// Config holds the client configuration.
type Config struct {
	// ServerAddress is the server address.
	// Supports:
	//   - "localhost:50051" (TCP)
	//   - "unix:///tmp/luserve.sock" (Unix socket)
	//   - "auto" (try Unix socket first, fall back to TCP)
	ServerAddress string

	// UnixSocketPath is the default Unix socket path for auto-detection.
	UnixSocketPath string

	// TCPAddress is the default TCP address for auto-detection.
	TCPAddress string

	// Timeout bounds each call.
	Timeout time.Duration

	// Dialer replaces the network dialer. Used with in-memory listeners.
	Dialer func(ctx context.Context, addr string) (net.Conn, error)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ServerAddress:  "auto",
		UnixSocketPath: "/tmp/luserve.sock",
		TCPAddress:     "localhost:50051",
		Timeout:        10 * time.Second,
	}
}

// Client is a gRPC client for luserve.
type Client struct {
	cfg    Config
	conn   *grpc.ClientConn
	client pb.RecognizerClient
	health healthpb.HealthClient
}

// New creates a client. The connection is established lazily on the first
// call.
func New(cfg Config) (*Client, error) {
	def := DefaultConfig()
	if cfg.ServerAddress == "" {
		cfg.ServerAddress = def.ServerAddress
	}
	if cfg.TCPAddress == "" {
		cfg.TCPAddress = def.TCPAddress
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}

	addr := cfg.resolveAddress()

	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}

	switch {
	case cfg.Dialer != nil:
		opts = append(opts, grpc.WithContextDialer(cfg.Dialer))
	case strings.HasPrefix(addr, "unix://"):
		socketPath := strings.TrimPrefix(addr, "unix://")
		opts = append(opts, grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", socketPath)
		}))
		addr = "passthrough:///" + socketPath
	}

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	return &Client{
		cfg:    cfg,
		conn:   conn,
		client: pb.NewRecognizerClient(conn),
		health: healthpb.NewHealthClient(conn),
	}, nil
}

// Close closes the client connection.
func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// resolveAddress resolves the server address based on configuration.
func (cfg *Config) resolveAddress() string {
	if cfg.ServerAddress != "auto" {
		return cfg.ServerAddress
	}

	if runtime.GOOS != "windows" && cfg.UnixSocketPath != "" {
		if _, err := os.Stat(cfg.UnixSocketPath); err == nil {
			return "unix://" + cfg.UnixSocketPath
		}
	}

	return cfg.TCPAddress
}

// Recognize sends query to the server and returns the JSON-shaped result.
func (c *Client) Recognize(ctx context.Context, query string) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	resp, err := c.client.Recognize(ctx, wrapperspb.String(query))
	if err != nil {
		return nil, fromStatus(err)
	}
	return resp.AsMap(), nil
}

// ListModels returns the server's model descriptions.
func (c *Client) ListModels(ctx context.Context) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	resp, err := c.client.ListModels(ctx, &emptypb.Empty{})
	if err != nil {
		return nil, fromStatus(err)
	}
	return resp.AsMap(), nil
}

// ReloadModels asks the server to reload its models.
func (c *Client) ReloadModels(ctx context.Context) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	resp, err := c.client.ReloadModels(ctx, &emptypb.Empty{})
	if err != nil {
		return nil, fromStatus(err)
	}
	return resp.AsMap(), nil
}

// Healthy reports whether the server's recognizer is SERVING.
func (c *Client) Healthy(ctx context.Context) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	resp, err := c.health.Check(ctx, &healthpb.HealthCheckRequest{Service: pb.RecognizerServiceName})
	if err != nil {
		return false, fromStatus(err)
	}
	return resp.GetStatus() == healthpb.HealthCheckResponse_SERVING, nil
}

// fromStatus converts a gRPC status back into an application error.
func fromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}

	var code string
	switch st.Code() {
	case codes.InvalidArgument:
		code = apperrors.CodeValidation
	case codes.NotFound:
		code = apperrors.CodeNotFound
	case codes.ResourceExhausted:
		code = apperrors.CodeRateLimited
	case codes.Unavailable:
		code = apperrors.CodeUnavailable
	case codes.DeadlineExceeded:
		code = apperrors.CodeTimeout
	case codes.FailedPrecondition:
		code = apperrors.CodeModelError
	default:
		code = apperrors.CodeInternal
	}
	return apperrors.New(code, st.Message())
}
