package repositories

import (
	"context"

	"github.com/jmoiron/sqlx"

	"roomchat-service/internal/models"
)

// MessageRepository defines interactions for room messages. Messages are
// append-only; the database assigns ids and creation timestamps so that
// ordering does not depend on client clocks.
type MessageRepository interface {
	CreateMessage(ctx context.Context, roomID, authorID int, authorName, text, attachmentURL string) (models.Message, error)
	ListMessages(ctx context.Context, roomID int) ([]models.Message, error)
}

// MessageRepo is a sqlx-backed implementation.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs a MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// CreateMessage persists a message with a store-assigned timestamp.
func (r *MessageRepo) CreateMessage(ctx context.Context, roomID, authorID int, authorName, text, attachmentURL string) (models.Message, error) {
	var msg models.Message
	err := r.db.QueryRowxContext(ctx, `INSERT INTO messages (room_id, author_id, author_name, text, attachment_url) VALUES ($1, $2, $3, $4, $5) RETURNING id, room_id, author_id, author_name, text, attachment_url, created_at`, roomID, authorID, authorName, text, attachmentURL).
		Scan(&msg.ID, &msg.RoomID, &msg.AuthorID, &msg.AuthorName, &msg.Text, &msg.AttachmentURL, &msg.CreatedAt)
	return msg, err
}

// ListMessages returns the room's full feed ordered by creation time ascending.
// The id tiebreak keeps the order stable when timestamps collide.
func (r *MessageRepo) ListMessages(ctx context.Context, roomID int) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs, `SELECT id, room_id, author_id, author_name, text, attachment_url, created_at FROM messages WHERE room_id=$1 ORDER BY created_at ASC, id ASC`, roomID)
	return msgs, err
}
