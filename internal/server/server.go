package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"tonight-api/internal/config"
	"tonight-api/internal/metrics"
	"tonight-api/internal/middleware"
	"tonight-api/internal/telemetry"
	"tonight-api/internal/wire"
)

const msgTooManyRequests = "Troppe richieste"

// DefaultDrainTimeout bounds how long Serve waits for in-flight connections
// after its context is cancelled.
const DefaultDrainTimeout = 10 * time.Second

// Dispatcher answers one parsed request. It must always return a response.
type Dispatcher interface {
	Serve(ctx context.Context, req *wire.Request) *wire.Response
}

// Server accepts raw TCP connections and serves exactly one request on each.
type Server struct {
	cfg          config.ServerConfig
	dispatcher   Dispatcher
	limiter      *middleware.RateLimiter
	sem          *semaphore.Weighted
	log          zerolog.Logger
	tracer       trace.Tracer
	DrainTimeout time.Duration

	wg sync.WaitGroup
}

// New builds a server. limiter may be nil to disable per-peer limiting.
func New(cfg config.ServerConfig, d Dispatcher, limiter *middleware.RateLimiter, logger zerolog.Logger) *Server {
	s := &Server{
		cfg:          cfg,
		dispatcher:   d,
		limiter:      limiter,
		log:          logger,
		tracer:       telemetry.Tracer("tonight-api/server"),
		DrainTimeout: DefaultDrainTimeout,
	}
	if cfg.MaxConnections > 0 {
		s.sem = semaphore.NewWeighted(int64(cfg.MaxConnections))
	}
	return s
}

func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve runs the accept loop until ctx is cancelled, then closes ln and
// waits for in-flight connections. Connections still running after
// DrainTimeout see their context cancelled. Failed accepts are retried with
// backoff; only a listener closed elsewhere makes Serve return an error.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	base, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()

	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	s.log.Info().Str("addr", ln.Addr().String()).Msg("listening")

	var (
		tempDelay time.Duration
		closedErr error
	)
	for {
		if s.sem != nil {
			if err := s.sem.Acquire(ctx, 1); err != nil {
				break
			}
		}
		conn, err := ln.Accept()
		if err != nil {
			if s.sem != nil {
				s.sem.Release(1)
			}
			if ctx.Err() != nil {
				break
			}
			if errors.Is(err, net.ErrClosed) {
				closedErr = fmt.Errorf("accept: %w", err)
				break
			}
			// transient (EMFILE, ECONNABORTED): back off and keep accepting
			tempDelay = acceptBackoff(tempDelay)
			s.log.Warn().Err(err).Dur("retry_in", tempDelay).Msg("accept error")
			select {
			case <-ctx.Done():
			case <-time.After(tempDelay):
			}
			continue
		}
		tempDelay = 0

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if s.sem != nil {
				defer s.sem.Release(1)
			}
			s.handle(base, conn)
		}()
	}

	ln.Close()
	s.drain(cancel)
	return closedErr
}

// acceptBackoff doubles the previous delay from 5ms up to one second.
func acceptBackoff(prev time.Duration) time.Duration {
	if prev == 0 {
		return 5 * time.Millisecond
	}
	if prev *= 2; prev > time.Second {
		return time.Second
	}
	return prev
}

func (s *Server) drain(cancel context.CancelFunc) {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info().Msg("connections drained")
	case <-time.After(s.DrainTimeout):
		s.log.Warn().Dur("timeout", s.DrainTimeout).Msg("drain timed out, cancelling connections")
		cancel()
		<-done
	}
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	metrics.ConnectionsActive.Inc()
	defer metrics.ConnectionsActive.Dec()

	remote := conn.RemoteAddr()
	if s.cfg.ReadTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	}
	req, err := wire.ReadRequest(conn, s.cfg.ReadBufferSize)
	if err != nil {
		// nothing readable: close without a response
		metrics.ConnectionsTotal.WithLabelValues("dropped").Inc()
		s.log.Debug().Err(err).Stringer("remote", remote).Msg("connection dropped")
		return
	}
	if remote != nil {
		req.RemoteAddr = remote.String()
	}
	// the request is read before rejecting so the peer sees the 429
	// instead of a reset
	if s.limiter != nil && !s.limiter.Allow(remote) {
		metrics.ConnectionsTotal.WithLabelValues("limited").Inc()
		s.log.Debug().Str("remote", req.RemoteAddr).Msg("rate limited")
		s.write(conn, wire.Error(http.StatusTooManyRequests, msgTooManyRequests), s.log)
		return
	}

	reqID := uuid.NewString()
	logger := s.log.With().
		Str("request_id", reqID).
		Str("remote", req.RemoteAddr).
		Str("path", req.Path).
		Logger()
	ctx = logger.WithContext(ctx)

	ctx, span := s.tracer.Start(ctx, "tonight.request",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("request.id", reqID),
			attribute.String("http.method", req.Method),
			attribute.String("url.path", req.Path),
		),
	)
	defer span.End()

	resp := s.dispatcher.Serve(ctx, req)
	span.SetAttributes(attribute.Int("http.status_code", resp.Status))
	if resp.Status >= http.StatusInternalServerError {
		span.SetStatus(otelcodes.Error, strconv.Itoa(resp.Status))
	}

	metrics.ConnectionsTotal.WithLabelValues("served").Inc()
	s.write(conn, resp, logger)
}

func (s *Server) write(conn net.Conn, resp *wire.Response, logger zerolog.Logger) {
	if s.cfg.WriteTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	}
	if _, err := resp.WriteTo(conn); err != nil {
		logger.Debug().Err(err).Msg("write response")
	}
}
