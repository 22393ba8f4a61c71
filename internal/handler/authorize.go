package handler

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"tonight-api/internal/middleware"
	"tonight-api/internal/model"
	"tonight-api/internal/store"
)

// caller resolves the authenticated subject to its registered user.
// notFound is the message returned when the subject never registered.
func (h *Handler) caller(ctx context.Context, notFound string) (*model.User, error) {
	id, ok := middleware.IdentityFrom(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "Non autorizzato: nessuna identità")
	}
	u, err := h.store.UserBySubject(ctx, id.Subject)
	if errors.Is(err, store.ErrNotFound) {
		return nil, status.Error(codes.FailedPrecondition, notFound)
	}
	if err != nil {
		return nil, internal(ctx, err, "lookup caller")
	}
	return u, nil
}

// authorizeDelete loads the event and checks the caller owns it.
// Events without an owner can not be deleted by anyone.
func (h *Handler) authorizeDelete(ctx context.Context, u *model.User, eventID int64) (*model.Event, error) {
	ev, err := h.store.EventByID(ctx, eventID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, status.Error(codes.NotFound, msgEventNotFound)
	}
	if err != nil {
		return nil, internal(ctx, err, "load event")
	}
	if !ev.OwnedBy(u.ID) {
		return nil, status.Error(codes.PermissionDenied, msgNotOwner)
	}
	return ev, nil
}
