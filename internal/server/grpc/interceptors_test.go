package grpcserver

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

type fakeAddr struct{}

func (fakeAddr) Network() string { return "tcp" }
func (fakeAddr) String() string  { return "127.0.0.1:12345" }

func TestLoggingUnary_Passthrough(t *testing.T) {
	t.Parallel()

	log := zaptest.NewLogger(t)
	ic := LoggingUnary(log)

	ctx := context.Background()

	ctx = peer.NewContext(ctx, &peer.Peer{Addr: fakeAddr{}})

	h := func(ctx context.Context, req any) (any, error) { return "ok", nil }
	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}

	resp, err := ic(ctx, "req", info, h)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if s, _ := resp.(string); s != "ok" {
		t.Fatalf("resp mismatch: %v", resp)
	}

	wantErr := errors.New("boom")
	hErr := func(ctx context.Context, req any) (any, error) { return nil, wantErr }
	_, err = ic(ctx, "req", info, hErr)
	if !errors.Is(err, wantErr) {
		t.Fatalf("want original error, got: %v", err)
	}
}

func TestRecoverUnary_CatchesPanic(t *testing.T) {
	t.Parallel()

	log := zaptest.NewLogger(t)
	ic := RecoverUnary(log)

	ctx := context.Background()
	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}

	panicH := func(ctx context.Context, req any) (any, error) {
		panic("ping pool is nil")
	}

	_, err := ic(ctx, "req", info, panicH)
	if err == nil {
		t.Fatalf("expected error from panic")
	}
	st, ok := status.FromError(err)
	if !ok || st.Code() != codes.Internal {
		t.Fatalf("want codes.Internal, got: %v", err)
	}
}

func TestRecoverUnary_NoPanicPassThrough(t *testing.T) {
	t.Parallel()

	log := zaptest.NewLogger(t)
	ic := RecoverUnary(log)

	ctx := context.Background()
	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}

	h := func(ctx context.Context, req any) (any, error) { return 42, nil }

	resp, err := ic(ctx, "req", info, h)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if resp.(int) != 42 {
		t.Fatalf("resp mismatch: %v", resp)
	}
}

func TestLoggingUnary_DurationFieldDoesNotBlock(t *testing.T) {
	t.Parallel()

	log := zaptest.NewLogger(t)
	ic := LoggingUnary(log)

	ctx := context.Background()
	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}
	h := func(ctx context.Context, req any) (any, error) {
		time.Sleep(5 * time.Millisecond)
		return "done", nil
	}

	start := time.Now()
	resp, err := ic(ctx, "req", info, h)
	if err != nil || resp.(string) != "done" {
		t.Fatalf("unexpected result: %v, %v", resp, err)
	}
	if time.Since(start) < 5*time.Millisecond {
		t.Fatalf("duration should reflect handler time")
	}
}

type fakeStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (f fakeStream) Context() context.Context { return f.ctx }

func TestStreamInterceptors(t *testing.T) {
	t.Parallel()

	log := zaptest.NewLogger(t)
	info := &grpc.StreamServerInfo{FullMethod: "/grpc.health.v1.Health/Watch", IsServerStream: true}
	ss := fakeStream{ctx: peer.NewContext(context.Background(), &peer.Peer{Addr: fakeAddr{}})}

	err := RecoverStream(log)(nil, ss, info, func(any, grpc.ServerStream) error { panic("watch") })
	if status.Code(err) != codes.Internal {
		t.Fatalf("want codes.Internal, got: %v", err)
	}

	wantErr := status.Error(codes.Canceled, "client went away")
	err = LoggingStream(log)(nil, ss, info, func(any, grpc.ServerStream) error { return wantErr })
	if !errors.Is(err, wantErr) {
		t.Fatalf("want original error, got: %v", err)
	}
}
