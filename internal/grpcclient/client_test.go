package grpcclient

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	apperrors "github.com/luserve/luserve/internal/pkg/errors"
)

func TestResolveAddress(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ServerAddress = "example:9000"
	if got := cfg.resolveAddress(); got != "example:9000" {
		t.Errorf("explicit address = %s", got)
	}

	cfg.ServerAddress = "auto"
	cfg.UnixSocketPath = filepath.Join(t.TempDir(), "missing.sock")
	if got := cfg.resolveAddress(); got != cfg.TCPAddress {
		t.Errorf("auto without socket = %s, want %s", got, cfg.TCPAddress)
	}

	if runtime.GOOS == "windows" {
		return
	}
	if err := os.WriteFile(cfg.UnixSocketPath, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	if got := cfg.resolveAddress(); got != "unix://"+cfg.UnixSocketPath {
		t.Errorf("auto with socket = %s", got)
	}
}

func TestNew_Defaults(t *testing.T) {
	c, err := New(Config{ServerAddress: "localhost:1"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer c.Close()

	if c.cfg.Timeout != DefaultConfig().Timeout {
		t.Errorf("Timeout = %s", c.cfg.Timeout)
	}
}

func TestFromStatus(t *testing.T) {
	tests := []struct {
		code codes.Code
		want string
	}{
		{codes.InvalidArgument, apperrors.CodeValidation},
		{codes.NotFound, apperrors.CodeNotFound},
		{codes.Unavailable, apperrors.CodeUnavailable},
		{codes.DeadlineExceeded, apperrors.CodeTimeout},
		{codes.FailedPrecondition, apperrors.CodeModelError},
		{codes.Internal, apperrors.CodeInternal},
	}

	for _, tt := range tests {
		err := fromStatus(status.Error(tt.code, "msg"))
		if got := apperrors.CodeOf(err); got != tt.want {
			t.Errorf("fromStatus(%s) = %s, want %s", tt.code, got, tt.want)
		}
	}
}
