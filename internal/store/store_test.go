package store_test

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"tonight-api/internal/model"
	"tonight-api/internal/store"
)

var (
	sharedOnce      sync.Once
	sharedURL       string
	sharedErr       error
	sharedContainer *postgres.PostgresContainer
)

func TestMain(m *testing.M) {
	code := m.Run()
	if sharedContainer != nil {
		_ = testcontainers.TerminateContainer(sharedContainer)
	}
	os.Exit(code)
}

// databaseURL prefers TEST_DATABASE_URL and otherwise starts one postgres
// container for the whole package.
func databaseURL(t *testing.T) string {
	t.Helper()
	if u := os.Getenv("TEST_DATABASE_URL"); u != "" {
		return u
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	sharedOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		c, err := postgres.Run(ctx, "postgres:16-alpine",
			postgres.WithDatabase("tonight"),
			postgres.WithUsername("tonight"),
			postgres.WithPassword("tonight"),
			postgres.BasicWaitStrategies(),
		)
		if err != nil {
			sharedErr = err
			return
		}
		sharedContainer = c
		sharedURL, sharedErr = c.ConnectionString(ctx, "sslmode=disable")
	})
	if sharedErr != nil {
		t.Skipf("postgres unavailable: %v", sharedErr)
	}
	return sharedURL
}

func setup(t *testing.T) (*store.Store, *pgxpool.Pool) {
	t.Helper()
	ctx := context.Background()
	dbURL := databaseURL(t)

	require.NoError(t, store.MigrateUp(dbURL))
	pool, err := store.Open(ctx, dbURL, 4)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = pool.Exec(ctx, `TRUNCATE events, users RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
	return store.New(pool), pool
}

func createUser(t *testing.T, st *store.Store, subject, email string) *model.User {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, st.CreateUser(ctx, &model.User{Name: subject, Email: email, FirebaseUID: subject}))
	u, err := st.UserBySubject(ctx, subject)
	require.NoError(t, err)
	return u
}

func TestMigrateUpIdempotent(t *testing.T) {
	dbURL := databaseURL(t)
	require.NoError(t, store.MigrateUp(dbURL))
	require.NoError(t, store.MigrateUp(dbURL))
}

func TestCreateAndFindUser(t *testing.T) {
	st, _ := setup(t)
	ctx := context.Background()

	err := st.CreateUser(ctx, &model.User{Name: "Ada", Email: "ada@example.com", Age: 36, FirebaseUID: "fb-ada"})
	require.NoError(t, err)

	u, err := st.UserBySubject(ctx, "fb-ada")
	require.NoError(t, err)
	assert.NotZero(t, u.ID)
	assert.Equal(t, "Ada", u.Name)
	assert.Equal(t, "ada@example.com", u.Email)
	assert.Equal(t, 36, u.Age)
	assert.False(t, u.CreatedAt.IsZero())
}

func TestUserBySubjectNotFound(t *testing.T) {
	st, _ := setup(t)
	_, err := st.UserBySubject(context.Background(), "nobody")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCreateUserDuplicates(t *testing.T) {
	st, pool := setup(t)
	ctx := context.Background()
	createUser(t, st, "fb-1", "one@example.com")

	err := st.CreateUser(ctx, &model.User{Name: "again", Email: "other@example.com", FirebaseUID: "fb-1"})
	assert.ErrorIs(t, err, store.ErrDuplicateSubject)

	err = st.CreateUser(ctx, &model.User{Name: "thief", Email: "one@example.com", FirebaseUID: "fb-2"})
	assert.ErrorIs(t, err, store.ErrDuplicateEmail)

	var n int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestListEventsNewestFirst(t *testing.T) {
	st, pool := setup(t)
	ctx := context.Background()

	for _, uid := range []int64{3, 1, 2} {
		_, err := pool.Exec(ctx,
			`INSERT INTO events (uid, title, date, location) VALUES ($1, $2, '2024-01-01', 'Roma')`,
			uid, "event")
		require.NoError(t, err)
	}

	events, err := st.ListEvents(ctx)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, []int64{3, 2, 1}, []int64{events[0].ID, events[1].ID, events[2].ID})
	assert.Nil(t, events[0].UserID)
	assert.Equal(t, "", events[0].ImageURL)
}

func TestListEventsEmpty(t *testing.T) {
	st, _ := setup(t)
	events, err := st.ListEvents(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, events)
	assert.Empty(t, events)
}

func TestEventsByOwner(t *testing.T) {
	st, _ := setup(t)
	ctx := context.Background()
	a := createUser(t, st, "fb-a", "a@example.com")
	b := createUser(t, st, "fb-b", "b@example.com")

	for _, e := range []model.Event{
		{Title: "A1", Date: "sabato", Location: "Milano", UserID: &a.ID},
		{Title: "B1", Date: "domenica", Location: "Torino", ImageURL: "https://img/b1.png", UserID: &b.ID},
		{Title: "A2", Date: "lunedì", Location: "Napoli", MapPosition: "45.46,9.19", UserID: &a.ID},
	} {
		require.NoError(t, st.CreateEvent(ctx, &e))
	}

	mine, err := st.ListEventsByUser(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, "A2", mine[0].Title)
	assert.Equal(t, "45.46,9.19", mine[0].MapPosition)
	assert.Equal(t, "A1", mine[1].Title)
	assert.True(t, mine[0].OwnedBy(a.ID))
	assert.False(t, mine[0].OwnedBy(b.ID))
}

func TestEventByIDAndDelete(t *testing.T) {
	st, _ := setup(t)
	ctx := context.Background()
	u := createUser(t, st, "fb-owner", "owner@example.com")
	require.NoError(t, st.CreateEvent(ctx, &model.Event{
		Title: "Concerto", Description: "live \"jazz\"", Date: "2024-07-01", Location: "Bologna", UserID: &u.ID,
	}))

	all, err := st.ListEvents(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	id := all[0].ID

	e, err := st.EventByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "live \"jazz\"", e.Description)
	require.NotNil(t, e.UserID)
	assert.Equal(t, u.ID, *e.UserID)

	require.NoError(t, st.DeleteEvent(ctx, id))
	_, err = st.EventByID(ctx, id)
	assert.True(t, errors.Is(err, store.ErrNotFound))

	// deleting again is a silent no-op
	assert.NoError(t, st.DeleteEvent(ctx, id))
}

func TestOverlongValuesRejected(t *testing.T) {
	st, _ := setup(t)
	ctx := context.Background()
	u := createUser(t, st, "fb-long", "long@example.com")

	err := st.CreateEvent(ctx, &model.Event{
		Title: "t", Date: strings.Repeat("d", 51), Location: "l", UserID: &u.ID,
	})
	assert.ErrorIs(t, err, store.ErrValueTooLong)

	err = st.CreateUser(ctx, &model.User{Name: strings.Repeat("n", 101), Email: "n@example.com", FirebaseUID: "fb-n"})
	assert.ErrorIs(t, err, store.ErrValueTooLong)
}

func TestDeletingUserCascades(t *testing.T) {
	st, pool := setup(t)
	ctx := context.Background()
	u := createUser(t, st, "fb-gone", "gone@example.com")
	require.NoError(t, st.CreateEvent(ctx, &model.Event{Title: "x", Date: "d", Location: "l", UserID: &u.ID}))

	_, err := pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, u.ID)
	require.NoError(t, err)

	events, err := st.ListEvents(ctx)
	require.NoError(t, err)
	assert.Empty(t, events)
}
