// Package grpcserver exposes the recognizer over gRPC.
package grpcserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"runtime"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	pb "github.com/luserve/luserve/api/proto/luservepb"
	apperrors "github.com/luserve/luserve/internal/pkg/errors"
	"github.com/luserve/luserve/internal/pkg/logger"
	"github.com/luserve/luserve/internal/recognizer"
)

// Config holds the gRPC server configuration.
type Config struct {
	// TCPAddr is the TCP address to listen on (e.g., ":50051").
	TCPAddr string

	// UnixSocketPath is the Unix socket path for local connections.
	// Empty string disables Unix socket listening.
	UnixSocketPath string

	// MaxRecvMsgSize is the maximum message size in bytes.
	MaxRecvMsgSize int

	// MaxSendMsgSize is the maximum message size in bytes.
	MaxSendMsgSize int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		TCPAddr:        ":50051",
		MaxRecvMsgSize: 4 * 1024 * 1024,
		MaxSendMsgSize: 4 * 1024 * 1024,
	}
}

// Server implements the luserve.v1.Recognizer service and the standard
// health service.
type Server struct {
	cfg    Config
	log    *logger.Logger
	svc    *recognizer.Service
	health *health.Server

	grpcServer *grpc.Server
}

var _ pb.RecognizerServer = (*Server)(nil)

// New creates a gRPC server and registers its services.
func New(cfg Config, svc *recognizer.Service, log *logger.Logger) *Server {
	def := DefaultConfig()
	if cfg.TCPAddr == "" {
		cfg.TCPAddr = def.TCPAddr
	}
	if cfg.MaxRecvMsgSize <= 0 {
		cfg.MaxRecvMsgSize = def.MaxRecvMsgSize
	}
	if cfg.MaxSendMsgSize <= 0 {
		cfg.MaxSendMsgSize = def.MaxSendMsgSize
	}

	s := &Server{
		cfg:    cfg,
		log:    log,
		svc:    svc,
		health: health.NewServer(),
	}

	s.grpcServer = grpc.NewServer(
		grpc.MaxRecvMsgSize(cfg.MaxRecvMsgSize),
		grpc.MaxSendMsgSize(cfg.MaxSendMsgSize),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			MaxConnectionIdle:     5 * time.Minute,
			MaxConnectionAge:      30 * time.Minute,
			MaxConnectionAgeGrace: 5 * time.Second,
			Time:                  10 * time.Second,
			Timeout:               3 * time.Second,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             5 * time.Second,
			PermitWithoutStream: true,
		}),
		grpc.ChainUnaryInterceptor(s.recoveryInterceptor, s.loggingInterceptor),
	)
	pb.RegisterRecognizerServer(s.grpcServer, s)
	healthpb.RegisterHealthServer(s.grpcServer, s.health)
	s.UpdateHealth()

	return s
}

// Start listens on TCP and, when configured, a Unix socket.
func (s *Server) Start() error {
	tcpLis, err := net.Listen("tcp", s.cfg.TCPAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on TCP %s: %w", s.cfg.TCPAddr, err)
	}
	s.log.Info("gRPC server listening on TCP", "addr", tcpLis.Addr().String())
	go s.serve(tcpLis)

	if s.cfg.UnixSocketPath != "" && runtime.GOOS != "windows" {
		_ = os.Remove(s.cfg.UnixSocketPath)

		unixLis, err := net.Listen("unix", s.cfg.UnixSocketPath)
		if err != nil {
			s.log.Warn("Failed to listen on Unix socket", "path", s.cfg.UnixSocketPath, "error", err)
		} else {
			_ = os.Chmod(s.cfg.UnixSocketPath, 0o666)
			s.log.Info("gRPC server listening on Unix socket", "path", s.cfg.UnixSocketPath)
			go s.serve(unixLis)
		}
	}

	return nil
}

// Serve serves on ln until Stop. It blocks.
func (s *Server) Serve(ln net.Listener) error {
	return s.grpcServer.Serve(ln)
}

func (s *Server) serve(ln net.Listener) {
	if err := s.Serve(ln); err != nil {
		s.log.Error("gRPC server error", "addr", ln.Addr().String(), "error", err)
	}
}

// Stop marks the server NOT_SERVING and gracefully stops it.
func (s *Server) Stop() {
	s.log.Info("Stopping gRPC server...")
	s.health.Shutdown()
	s.grpcServer.GracefulStop()

	if s.cfg.UnixSocketPath != "" {
		_ = os.Remove(s.cfg.UnixSocketPath)
	}
}

// UpdateHealth reports SERVING once models are loaded.
func (s *Server) UpdateHealth() {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if s.svc.Ready() {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(pb.RecognizerServiceName, st)
}

// Recognize runs the models over the query.
func (s *Server) Recognize(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	res, err := s.svc.Recognize(ctx, req.GetValue())
	if err != nil {
		return nil, toStatus(err)
	}

	out := map[string]any{
		"cats":       res.Cats,
		"ents":       res.Entities(),
		"entities":   res.Ents,
		"query":      res.Query,
		"top_intent": res.TopIntent,
		"top_score":  res.TopScore,
		"models":     res.Models,
		"cached":     res.Cached,
		"latency_ms": res.LatencyMs,
	}
	return toStruct(out)
}

// ListModels describes the loaded models.
func (s *Server) ListModels(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	return toStruct(map[string]any{"models": s.svc.Models()})
}

// ReloadModels reloads the models from disk.
func (s *Server) ReloadModels(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	err := s.svc.Reload(ctx)
	s.UpdateHealth()
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(map[string]any{"status": "reloaded", "models": s.svc.Models()})
}

func (s *Server) recoveryInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("Panic recovered in gRPC handler", "method", info.FullMethod, "error", r)
			err = status.Error(codes.Internal, "internal server error")
		}
	}()
	return handler(ctx, req)
}

func (s *Server) loggingInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	s.log.Debug("gRPC request",
		"method", info.FullMethod,
		"code", status.Code(err).String(),
		"duration", time.Since(start),
	)
	return resp, err
}

// toStruct converts v to a Struct through its JSON form so that JSON tags
// and custom marshalers apply.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, "encoding response")
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, status.Error(codes.Internal, "encoding response")
	}
	st, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, "encoding response")
	}
	return st, nil
}

// toStatus maps an application error to a gRPC status. Internal details
// are not sent to the client.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}

	appErr, ok := apperrors.As(err)
	if !ok || appErr.Code == apperrors.CodeInternal {
		return status.Error(codes.Internal, "internal server error")
	}
	return status.Error(grpcCode(appErr.Code), appErr.Message)
}

func grpcCode(code string) codes.Code {
	switch code {
	case apperrors.CodeValidation, apperrors.CodeInvalidRequest:
		return codes.InvalidArgument
	case apperrors.CodeNotFound:
		return codes.NotFound
	case apperrors.CodeRateLimited:
		return codes.ResourceExhausted
	case apperrors.CodeUnavailable:
		return codes.Unavailable
	case apperrors.CodeTimeout:
		return codes.DeadlineExceeded
	case apperrors.CodeModelError, apperrors.CodeConversionError:
		return codes.FailedPrecondition
	default:
		return codes.Internal
	}
}
