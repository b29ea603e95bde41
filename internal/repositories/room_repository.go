package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"roomchat-service/internal/models"
)

var ErrRoomNotFound = errors.New("room not found")

// RoomRepository abstracts room persistence. Rooms are the chat directory:
// created on demand, listed without an ordering guarantee, never updated.
type RoomRepository interface {
	CreateRoom(ctx context.Context, name, description string) (models.Room, error)
	ListRooms(ctx context.Context) ([]models.Room, error)
	GetRoom(ctx context.Context, roomID int) (models.Room, error)
}

// RoomRepo is a sqlx implementation of RoomRepository.
type RoomRepo struct {
	db *sqlx.DB
}

// NewRoomRepo constructs a RoomRepo.
func NewRoomRepo(db *sqlx.DB) *RoomRepo {
	return &RoomRepo{db: db}
}

// CreateRoom inserts a room. Duplicate names are permitted.
func (r *RoomRepo) CreateRoom(ctx context.Context, name, description string) (models.Room, error) {
	var room models.Room
	err := r.db.QueryRowxContext(ctx, `INSERT INTO rooms (name, description) VALUES ($1, $2) RETURNING id, name, description, created_at`, name, description).
		Scan(&room.ID, &room.Name, &room.Description, &room.CreatedAt)
	return room, err
}

// ListRooms returns all rooms. Callers must not rely on the order.
func (r *RoomRepo) ListRooms(ctx context.Context) ([]models.Room, error) {
	var rooms []models.Room
	err := r.db.SelectContext(ctx, &rooms, `SELECT id, name, description, created_at FROM rooms`)
	return rooms, err
}

// GetRoom fetches a room by id.
func (r *RoomRepo) GetRoom(ctx context.Context, roomID int) (models.Room, error) {
	var room models.Room
	err := r.db.GetContext(ctx, &room, `SELECT id, name, description, created_at FROM rooms WHERE id=$1`, roomID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Room{}, ErrRoomNotFound
	}
	return room, err
}
