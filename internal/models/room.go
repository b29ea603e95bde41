package models

import "time"

// Room is a named chat channel. Rooms are created once and never mutated
// or deleted by this service; duplicate names are allowed.
type Room struct {
	ID          int       `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
