package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrDuplicateSubject = errors.New("subject already registered")
	ErrDuplicateEmail   = errors.New("email already registered")
	ErrValueTooLong     = errors.New("value too long for column")
)

// SQLSTATE codes
const (
	codeUniqueViolation = "23505"
	codeStringTooLong   = "22001"
)

// constraint names from 000001_init.up.sql
const (
	constraintUserEmail   = "users_email_key"
	constraintUserSubject = "users_firebase_uid_key"
)

type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Open builds a pool for databaseURL capped at maxConns (0 keeps pgx's default)
// and checks it answers.
func Open(ctx context.Context, databaseURL string, maxConns int) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = int32(maxConns)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// classify maps unique and length violations onto the sentinels above.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case codeStringTooLong:
		return fmt.Errorf("%w: %s", ErrValueTooLong, pgErr.Message)
	case codeUniqueViolation:
		switch pgErr.ConstraintName {
		case constraintUserSubject:
			return fmt.Errorf("%w: %s", ErrDuplicateSubject, pgErr.Detail)
		case constraintUserEmail:
			return fmt.Errorf("%w: %s", ErrDuplicateEmail, pgErr.Detail)
		}
	}
	return err
}
