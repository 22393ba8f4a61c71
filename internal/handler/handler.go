package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"tonight-api/internal/auth"
	"tonight-api/internal/metrics"
	"tonight-api/internal/middleware"
	"tonight-api/internal/model"
	"tonight-api/internal/wire"
)

// Store is the data access the handlers need; *store.Store satisfies it.
type Store interface {
	CreateUser(ctx context.Context, u *model.User) error
	UserBySubject(ctx context.Context, subject string) (*model.User, error)
	CreateEvent(ctx context.Context, e *model.Event) error
	ListEvents(ctx context.Context) ([]model.Event, error)
	ListEventsByUser(ctx context.Context, userID int64) ([]model.Event, error)
	EventByID(ctx context.Context, id int64) (*model.Event, error)
	DeleteEvent(ctx context.Context, id int64) error
}

type Options struct {
	// StrictStatus answers application errors with 4xx codes instead of 200.
	StrictStatus bool
}

type Handler struct {
	store    Store
	router   *Router
	validate *validator.Validate
	strict   bool
}

func New(st Store, authn auth.Authenticator, opts Options) *Handler {
	h := &Handler{
		store:    st,
		validate: newValidator(),
		strict:   opts.StrictStatus,
	}
	h.router = newRouter(h, middleware.Auth(authn))
	return h
}

// Serve routes one request and always produces a response; handler panics
// and unexpected errors become 500s.
func (h *Handler) Serve(ctx context.Context, req *wire.Request) (resp *wire.Response) {
	start := time.Now()
	route := h.router.match(req.Path)
	log := zerolog.Ctx(ctx)

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("route", route.name).Msg("handler panic")
			resp = wire.Error(http.StatusInternalServerError, msgInternal)
		}
		metrics.RequestsTotal.WithLabelValues(route.name, strconv.Itoa(resp.Status)).Inc()
		metrics.RequestDuration.WithLabelValues(route.name).Observe(time.Since(start).Seconds())
		log.Info().
			Str("route", route.name).
			Int("status", resp.Status).
			Dur("took", time.Since(start)).
			Msg("request served")
	}()

	v, err := route.handle(ctx, req)
	return h.respond(ctx, v, err)
}

func (h *Handler) respond(ctx context.Context, v any, err error) *wire.Response {
	if err != nil {
		st, ok := status.FromError(err)
		if !ok {
			zerolog.Ctx(ctx).Error().Err(err).Msg("unclassified handler error")
			return wire.Error(http.StatusInternalServerError, msgInternal)
		}
		return wire.Error(h.httpStatus(st.Code()), st.Message())
	}

	resp, err := wire.JSON(http.StatusOK, v)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("encode response")
		return wire.Error(http.StatusInternalServerError, msgInternal)
	}
	return resp
}

// httpStatus keeps the legacy 200-with-error-body answer for caller
// correctable errors unless strict mode is on.
func (h *Handler) httpStatus(c codes.Code) int {
	switch c {
	case codes.OK:
		return http.StatusOK
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.ResourceExhausted:
		return http.StatusTooManyRequests
	case codes.InvalidArgument:
		return h.legacy(http.StatusBadRequest)
	case codes.NotFound, codes.Unimplemented:
		return h.legacy(http.StatusNotFound)
	case codes.FailedPrecondition:
		return h.legacy(http.StatusPreconditionFailed)
	case codes.AlreadyExists:
		return h.legacy(http.StatusConflict)
	}
	return http.StatusInternalServerError
}

func (h *Handler) legacy(strict int) int {
	if h.strict {
		return strict
	}
	return http.StatusOK
}

// internal logs the cause and hides it from the caller.
func internal(ctx context.Context, err error, what string) error {
	zerolog.Ctx(ctx).Error().Err(err).Msg(what)
	return status.Error(codes.Internal, msgInternal)
}
