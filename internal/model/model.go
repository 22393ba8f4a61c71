package model

import "time"

type User struct {
	ID          int64
	Name        string
	Email       string
	Age         int
	FirebaseUID string
	CreatedAt   time.Time
}

type Event struct {
	ID          int64
	Title       string
	Description string
	// free-form, never parsed as a calendar date
	Date        string
	Location    string
	ImageURL    string
	MapPosition string
	// nil for events created before ownership existed
	UserID    *int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// OwnedBy is the ownership check for mutations.
func (e *Event) OwnedBy(userID int64) bool {
	return e.UserID != nil && *e.UserID == userID
}
