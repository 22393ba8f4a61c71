package handler

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"tonight-api/internal/model"
	"tonight-api/internal/store"
	"tonight-api/internal/wire"
)

type eventJSON struct {
	UID         int64  `json:"uid"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Date        string `json:"date"`
	Location    string `json:"location"`
	ImageURL    string `json:"imageUrl"`
	MapPosition string `json:"mapPosition"`
	UserID      *int64 `json:"userId"`
}

type eventsJSON struct {
	Events []eventJSON `json:"events"`
}

func toEventJSON(e *model.Event) eventJSON {
	return eventJSON{
		UID:         e.ID,
		Title:       e.Title,
		Description: e.Description,
		Date:        e.Date,
		Location:    e.Location,
		ImageURL:    e.ImageURL,
		MapPosition: e.MapPosition,
		UserID:      e.UserID,
	}
}

func toEventsJSON(evs []model.Event) eventsJSON {
	out := eventsJSON{Events: make([]eventJSON, 0, len(evs))}
	for i := range evs {
		out.Events = append(out.Events, toEventJSON(&evs[i]))
	}
	return out
}

// sizes follow the events table
type eventParams struct {
	Title       string `param:"title" validate:"required,max=255"`
	Date        string `param:"date" validate:"required,max=50"`
	Location    string `param:"location" validate:"required,max=255"`
	Description string `param:"description"`
	ImageURL    string `param:"imageUrl"`
	MapPosition string `param:"mapPosition" validate:"max=255"`
}

func (h *Handler) ListEvents(ctx context.Context, _ *wire.Request) (any, error) {
	evs, err := h.store.ListEvents(ctx)
	if err != nil {
		return nil, internal(ctx, err, "list events")
	}
	return toEventsJSON(evs), nil
}

func (h *Handler) GetEvent(ctx context.Context, req *wire.Request) (any, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(req.Path, "/api/event/"), 10, 64)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, msgUIDInvalid)
	}
	ev, err := h.store.EventByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, status.Error(codes.NotFound, msgEventNotFound)
	}
	if err != nil {
		return nil, internal(ctx, err, "get event")
	}
	return toEventJSON(ev), nil
}

func (h *Handler) MyEvents(ctx context.Context, _ *wire.Request) (any, error) {
	u, err := h.caller(ctx, msgUserNotFound)
	if err != nil {
		return nil, err
	}
	evs, err := h.store.ListEventsByUser(ctx, u.ID)
	if err != nil {
		return nil, internal(ctx, err, "list caller events")
	}
	return toEventsJSON(evs), nil
}

func (h *Handler) AddEvent(ctx context.Context, req *wire.Request) (any, error) {
	u, err := h.caller(ctx, msgUserNotFound)
	if err != nil {
		return nil, err
	}
	if !req.HasQuery() {
		return nil, status.Error(codes.InvalidArgument, msgQueryRequired)
	}
	p := eventParams{
		Title:       param(req, "title"),
		Date:        param(req, "date"),
		Location:    param(req, "location"),
		Description: param(req, "description"),
		ImageURL:    param(req, "imageUrl"),
		MapPosition: param(req, "mapPosition"),
	}
	if err := h.validate.Struct(p); err != nil {
		if fe, ok := firstFailure(err); ok && fe.Tag() == "max" {
			return nil, tooLong(fe.Field())
		}
		return nil, status.Error(codes.InvalidArgument, msgMissingEventArgs)
	}

	owner := u.ID
	ev := &model.Event{
		Title:       p.Title,
		Description: p.Description,
		Date:        p.Date,
		Location:    p.Location,
		ImageURL:    p.ImageURL,
		MapPosition: p.MapPosition,
		UserID:      &owner,
	}
	err = h.store.CreateEvent(ctx, ev)
	if errors.Is(err, store.ErrValueTooLong) {
		return nil, status.Error(codes.InvalidArgument, msgInvalidEventArgs)
	}
	if err != nil {
		return nil, internal(ctx, err, "create event")
	}

	zerolog.Ctx(ctx).Info().Int64("user_id", u.ID).Str("title", ev.Title).Msg("event added")
	return wire.Success(msgEventAdded), nil
}

func (h *Handler) DeleteEvent(ctx context.Context, req *wire.Request) (any, error) {
	u, err := h.caller(ctx, msgUserNotFound)
	if err != nil {
		return nil, err
	}
	if !req.HasQuery() {
		return nil, status.Error(codes.InvalidArgument, msgQueryRequired)
	}
	raw := param(req, "uid")
	if raw == "" {
		return nil, status.Error(codes.InvalidArgument, msgUIDRequired)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, msgUIDInvalid)
	}

	if _, err := h.authorizeDelete(ctx, u, id); err != nil {
		return nil, err
	}
	if err := h.store.DeleteEvent(ctx, id); err != nil {
		return nil, internal(ctx, err, "delete event")
	}

	zerolog.Ctx(ctx).Info().Int64("event_id", id).Int64("user_id", u.ID).Msg("event deleted")
	return wire.Success(msgEventDeleted), nil
}

// param returns the trimmed query value, empty when absent.
func param(req *wire.Request, key string) string {
	v, _ := req.Param(key)
	return strings.TrimSpace(v)
}
