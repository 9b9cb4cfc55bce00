package service

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/Distributed-File-Retrieval-Engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Distributed-File-Retrieval-Engine/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Distributed-File-Retrieval-Engine/pkg/proto"
	"github.com/Adithya-Monish-Kumar-K/Distributed-File-Retrieval-Engine/pkg/rpc"
	"github.com/Adithya-Monish-Kumar-K/Distributed-File-Retrieval-Engine/pkg/tracing"
)

// RegisterHandlers exposes the service's operations on srv.
func (s *Service) RegisterHandlers(srv *rpc.Server) {
	srv.Register(proto.MethodRegister, s.instrument(proto.MethodRegister, func(ctx context.Context, raw json.RawMessage) (any, error) {
		var req proto.RegisterRequest
		if err := decode(raw, &req); err != nil {
			return nil, err
		}
		if req.Address == "" {
			req.Address = rpc.PeerFromContext(ctx)
		}
		return s.Register(ctx, req.Address)
	}))

	srv.Register(proto.MethodIndex, s.instrument(proto.MethodIndex, func(ctx context.Context, raw json.RawMessage) (any, error) {
		var req proto.IndexRequest
		if err := decode(raw, &req); err != nil {
			return nil, err
		}
		return s.SubmitIndex(ctx, &req)
	}))

	srv.Register(proto.MethodSearch, s.instrument(proto.MethodSearch, func(ctx context.Context, raw json.RawMessage) (any, error) {
		var req proto.SearchRequest
		if err := decode(raw, &req); err != nil {
			return nil, err
		}
		return s.Search(ctx, &req)
	}))

	srv.Register(proto.MethodDeregister, s.instrument(proto.MethodDeregister, func(ctx context.Context, raw json.RawMessage) (any, error) {
		var req proto.DeregisterRequest
		if err := decode(raw, &req); err != nil {
			return nil, err
		}
		return s.Deregister(ctx, &req)
	}))

	srv.Register(proto.MethodShutdown, s.instrument(proto.MethodShutdown, func(ctx context.Context, raw json.RawMessage) (any, error) {
		var req proto.ShutdownRequest
		if err := decode(raw, &req); err != nil {
			return nil, err
		}
		return s.Shutdown(ctx, &req)
	}))

	s.logger.Info("rpc handlers registered", "methods", srv.MethodCount())
}

// instrument gives every call a request id and a root span, and records
// call counts and latency.
func (s *Service) instrument(method string, next rpc.HandlerFunc) rpc.HandlerFunc {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		traceID := tracing.NewTraceID()
		ctx = logger.WithRequestID(ctx, traceID)
		ctx, span := tracing.StartSpan(ctx, method, traceID)
		span.SetAttr("peer", rpc.PeerFromContext(ctx))

		s.metrics.RPCCallsInFlight.Inc()
		start := time.Now()
		resp, err := next(ctx, raw)
		elapsed := time.Since(start)
		s.metrics.RPCCallsInFlight.Dec()

		status := "ok"
		if err != nil {
			status = "error"
			span.SetAttr("error", err.Error())
			logger.FromContext(ctx).Warn("rpc call failed", "method", method, "error", err)
		}
		s.metrics.RPCCallsTotal.WithLabelValues(method, status).Inc()
		s.metrics.RPCCallDuration.WithLabelValues(method).Observe(elapsed.Seconds())

		span.End()
		span.Log(ctx)
		return resp, err
	}
}

func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "decoding params: %v", err)
	}
	return nil
}
