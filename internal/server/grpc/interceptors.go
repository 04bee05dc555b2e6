package grpcserver

import (
	"context"
	"runtime/debug"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

func peerAddr(ctx context.Context) string {
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return p.Addr.String()
	}
	return ""
}

// LoggingUnary returns a unary server interceptor for structured logging.
func LoggingUnary(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := next(ctx, req)

		// metadata only, no payloads
		log.Debug("grpc",
			zap.String("method", info.FullMethod),
			zap.String("code", status.Code(err).String()),
			zap.Duration("dur", time.Since(start)),
			zap.String("peer", peerAddr(ctx)),
		)
		return resp, err
	}
}

// LoggingStream logs stream calls such as health Watch when they end.
func LoggingStream(log *zap.Logger) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, next grpc.StreamHandler) error {
		start := time.Now()
		err := next(srv, ss)
		log.Debug("grpc stream",
			zap.String("method", info.FullMethod),
			zap.String("code", status.Code(err).String()),
			zap.Duration("dur", time.Since(start)),
			zap.String("peer", peerAddr(ss.Context())),
		)
		return err
	}
}

// RecoverUnary returns a unary server interceptor that recovers from panics.
func RecoverUnary(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				logPanic(log, r, info.FullMethod)
				err = status.Error(codes.Internal, "internal")
			}
		}()
		return next(ctx, req)
	}
}

// RecoverStream is RecoverUnary for streams.
func RecoverStream(log *zap.Logger) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, next grpc.StreamHandler) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logPanic(log, r, info.FullMethod)
				err = status.Error(codes.Internal, "internal")
			}
		}()
		return next(srv, ss)
	}
}

func logPanic(log *zap.Logger, r any, method string) {
	log.Error("panic",
		zap.Any("reason", r),
		zap.ByteString("stack", debug.Stack()),
		zap.String("method", method),
	)
}
