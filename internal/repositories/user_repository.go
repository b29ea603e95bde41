package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"roomchat-service/internal/models"
)

var ErrUserNotFound = errors.New("user not found")

// UserRepository abstracts account and profile persistence. Display name and
// avatar are updated independently so committing one never clobbers the other.
type UserRepository interface {
	CreateUser(ctx context.Context, email, displayName, passwordHash string) (models.User, error)
	GetUser(ctx context.Context, userID int) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)
	UpdateDisplayName(ctx context.Context, userID int, displayName string) error
	UpdateAvatarURL(ctx context.Context, userID int, avatarURL string) error
}

// UserRepo is a sqlx implementation of UserRepository.
type UserRepo struct {
	db *sqlx.DB
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

// CreateUser inserts a new account.
func (r *UserRepo) CreateUser(ctx context.Context, email, displayName, passwordHash string) (models.User, error) {
	var user models.User
	err := r.db.QueryRowxContext(ctx, `INSERT INTO users (email, display_name, password_hash) VALUES ($1, $2, $3) RETURNING id, email, display_name, avatar_url, password_hash, created_at`, email, displayName, passwordHash).
		Scan(&user.ID, &user.Email, &user.DisplayName, &user.AvatarURL, &user.PasswordHash, &user.CreatedAt)
	return user, err
}

// GetUser fetches an account by id.
func (r *UserRepo) GetUser(ctx context.Context, userID int) (models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `SELECT id, email, display_name, avatar_url, password_hash, created_at FROM users WHERE id=$1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return user, err
}

// GetUserByEmail fetches an account by email.
func (r *UserRepo) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `SELECT id, email, display_name, avatar_url, password_hash, created_at FROM users WHERE email=$1`, email)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return user, err
}

// UpdateDisplayName commits a new display name, leaving the avatar untouched.
func (r *UserRepo) UpdateDisplayName(ctx context.Context, userID int, displayName string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET display_name=$1 WHERE id=$2`, displayName, userID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrUserNotFound
	}
	return nil
}

// UpdateAvatarURL commits a new avatar URL, leaving the display name untouched.
func (r *UserRepo) UpdateAvatarURL(ctx context.Context, userID int, avatarURL string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET avatar_url=$1 WHERE id=$2`, avatarURL, userID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrUserNotFound
	}
	return nil
}
