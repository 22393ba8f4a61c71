package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"tonight-api/internal/model"
)

const eventColumns = `uid, title, description, date, location,
	COALESCE(image_url, ''), COALESCE(map_position, ''), user_id, created_at, updated_at`

// CreateEvent attributes the event to e.UserID. Like CreateUser it does not
// report the generated uid.
func (s *Store) CreateEvent(ctx context.Context, e *model.Event) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO events (title, description, date, location, image_url, map_position, user_id)
		 VALUES ($1,$2,$3,$4,NULLIF($5,''),NULLIF($6,''),$7)`,
		e.Title, e.Description, e.Date, e.Location, e.ImageURL, e.MapPosition, e.UserID,
	)
	return classify(err)
}

// ListEvents returns every event, newest uid first.
func (s *Store) ListEvents(ctx context.Context) ([]model.Event, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+eventColumns+` FROM events ORDER BY uid DESC`)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

func (s *Store) ListEventsByUser(ctx context.Context, userID int64) ([]model.Event, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+eventColumns+` FROM events WHERE user_id = $1 ORDER BY uid DESC`, userID)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

func (s *Store) EventByID(ctx context.Context, id int64) (*model.Event, error) {
	e, err := scanEvent(s.pool.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events WHERE uid = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

// DeleteEvent is a no-op for unknown ids; ownership is checked by the caller.
func (s *Store) DeleteEvent(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM events WHERE uid = $1`, id)
	return err
}

func scanEvent(row pgx.Row) (*model.Event, error) {
	e := &model.Event{}
	err := row.Scan(&e.ID, &e.Title, &e.Description, &e.Date, &e.Location,
		&e.ImageURL, &e.MapPosition, &e.UserID, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return e, nil
}

func scanEvents(rows pgx.Rows) ([]model.Event, error) {
	defer rows.Close()

	out := []model.Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}
