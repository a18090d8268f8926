package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/joseph-ayodele/survey-extractor/internal/common"
)

const requestIDHeader = "x-request-id"

// UnaryInterceptor tags each call with a request id (taken from the
// x-request-id header or generated) and logs its outcome.
func UnaryInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		id := ""
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if v := md.Get(requestIDHeader); len(v) > 0 {
				id = v[0]
			}
		}
		if id == "" {
			id = uuid.NewString()
		}
		ctx = common.WithRequestID(ctx, id)
		_ = grpc.SetHeader(ctx, metadata.Pairs(requestIDHeader, id))

		resp, err := handler(ctx, req)
		attrs := []any{"method", info.FullMethod, "req_id", id,
			"code", status.Code(err).String(), "elapsed_ms", time.Since(start).Milliseconds()}
		if err != nil {
			logger.Warn("grpc.call", append(attrs, "error", err)...)
		} else {
			logger.Info("grpc.call", attrs...)
		}
		return resp, err
	}
}
