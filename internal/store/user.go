package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"tonight-api/internal/model"
)

// CreateUser is a single INSERT; the generated id is not returned.
func (s *Store) CreateUser(ctx context.Context, u *model.User) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (name, email, age, firebase_uid) VALUES ($1,$2,$3,$4)`,
		u.Name, u.Email, u.Age, u.FirebaseUID,
	)
	return classify(err)
}

func (s *Store) UserBySubject(ctx context.Context, subject string) (*model.User, error) {
	u := &model.User{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, email, age, firebase_uid, created_at
		 FROM users WHERE firebase_uid = $1`, subject,
	).Scan(&u.ID, &u.Name, &u.Email, &u.Age, &u.FirebaseUID, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}
