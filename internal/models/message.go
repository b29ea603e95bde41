package models

import "time"

// Message is one immutable entry in a room's feed. AuthorName is denormalized
// at write time and is not re-resolved if the author later renames. CreatedAt
// is assigned by the database so ordering stays consistent across clients.
// A message carries text, an attachment URL, or both - never neither.
type Message struct {
	ID            int       `db:"id" json:"id"`
	RoomID        int       `db:"room_id" json:"room_id"`
	AuthorID      int       `db:"author_id" json:"author_id"`
	AuthorName    string    `db:"author_name" json:"author_name"`
	Text          string    `db:"text" json:"text,omitempty"`
	AttachmentURL string    `db:"attachment_url" json:"attachment_url,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// FeedEvent is pushed over websocket connections. Every event carries the
// room's complete ordered message list; consumers replace prior state with it.
type FeedEvent struct {
	Type     string    `json:"type"`
	RoomID   int       `json:"room_id"`
	Messages []Message `json:"messages"`
}
