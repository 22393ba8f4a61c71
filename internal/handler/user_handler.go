package handler

import (
	"context"
	"errors"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"tonight-api/internal/middleware"
	"tonight-api/internal/model"
	"tonight-api/internal/store"
	"tonight-api/internal/wire"
)

type userJSON struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	Age         int    `json:"age"`
	FirebaseUID string `json:"firebaseUid"`
}

// sizes follow the users table
type registerParams struct {
	Name  string `param:"name" validate:"required,max=100"`
	Email string `param:"email" validate:"omitempty,email,max=100"`
	Age   int    `param:"age" validate:"gte=0,lte=150"`
}

var registerMessages = map[string]string{
	"name":  msgNameRequired,
	"email": msgInvalidEmail,
	"age":   msgInvalidAge,
}

func (h *Handler) Register(ctx context.Context, req *wire.Request) (any, error) {
	id, ok := middleware.IdentityFrom(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "Non autorizzato: nessuna identità")
	}
	if !req.HasQuery() {
		return nil, status.Error(codes.InvalidArgument, msgQueryRequired)
	}

	p := registerParams{
		Name:  param(req, "name"),
		Email: param(req, "email"),
	}
	// unparsable ages are stored as 0
	if n, err := strconv.Atoi(param(req, "age")); err == nil {
		p.Age = n
	}
	if err := h.validate.Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) || len(verrs) == 0 {
			return nil, status.Error(codes.InvalidArgument, msgNameRequired)
		}
		if fe := verrs[0]; fe.Tag() == "max" {
			return nil, tooLong(fe.Field())
		}
		return nil, status.Error(codes.InvalidArgument, registerMessages[verrs[0].Field()])
	}

	email := p.Email
	if email == "" {
		email = id.Email
	}
	if email == "" {
		email = placeholderEmail
	}

	if _, err := h.store.UserBySubject(ctx, id.Subject); err == nil {
		return nil, status.Error(codes.AlreadyExists, msgAlreadyRegistered)
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, internal(ctx, err, "lookup subject")
	}

	u := &model.User{Name: p.Name, Email: email, Age: p.Age, FirebaseUID: id.Subject}
	err := h.store.CreateUser(ctx, u)
	switch {
	case errors.Is(err, store.ErrDuplicateSubject):
		// lost a race with a concurrent registration
		return nil, status.Error(codes.AlreadyExists, msgAlreadyRegistered)
	case errors.Is(err, store.ErrDuplicateEmail):
		return nil, status.Error(codes.AlreadyExists, msgEmailTaken)
	case errors.Is(err, store.ErrValueTooLong):
		// the token email can exceed the column
		return nil, status.Error(codes.InvalidArgument, msgInvalidEmail)
	case err != nil:
		return nil, internal(ctx, err, "create user")
	}

	zerolog.Ctx(ctx).Info().Str("subject", id.Subject).Msg("user registered")
	return wire.Success(msgRegistered), nil
}

func (h *Handler) Me(ctx context.Context, _ *wire.Request) (any, error) {
	u, err := h.caller(ctx, msgRegisterFirst)
	if err != nil {
		return nil, err
	}
	return userJSON{
		ID:          u.ID,
		Name:        u.Name,
		Email:       u.Email,
		Age:         u.Age,
		FirebaseUID: u.FirebaseUID,
	}, nil
}
