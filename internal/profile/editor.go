package profile

import (
	"context"
	"errors"
	"io"
	"strings"

	"roomchat-service/internal/models"
	"roomchat-service/internal/repositories"
	"roomchat-service/internal/upload"
)

var (
	ErrEmptyName   = errors.New("display name is empty")
	ErrEmptyAvatar = errors.New("avatar url is empty")
)

// Editor commits staged profile edits. Name and avatar are independent:
// saving one reads nothing from and writes nothing to the other, so the most
// recently committed value of the untouched field always survives.
type Editor struct {
	users   repositories.UserRepository
	uploads *upload.Pipeline
}

// NewEditor constructs an Editor.
func NewEditor(users repositories.UserRepository, uploads *upload.Pipeline) *Editor {
	return &Editor{users: users, uploads: uploads}
}

// Load reads the current profile.
func (e *Editor) Load(ctx context.Context, userID int) (models.Principal, error) {
	user, err := e.users.GetUser(ctx, userID)
	if err != nil {
		return models.Principal{}, err
	}
	return user.Principal(), nil
}

// SaveName commits a staged display name.
func (e *Editor) SaveName(ctx context.Context, userID int, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyName
	}
	return e.users.UpdateDisplayName(ctx, userID, name)
}

// SaveAvatarURL commits an externally hosted avatar URL.
func (e *Editor) SaveAvatarURL(ctx context.Context, userID int, avatarURL string) error {
	avatarURL = strings.TrimSpace(avatarURL)
	if avatarURL == "" {
		return ErrEmptyAvatar
	}
	return e.users.UpdateAvatarURL(ctx, userID, avatarURL)
}

// SaveAvatarImage uploads a (typically cropped) image blob and commits the
// resulting URL. The blob is always stored durably before the commit; a
// transient local reference is never written to the profile.
func (e *Editor) SaveAvatarImage(ctx context.Context, userID int, filename string, r io.Reader, size int64) (string, error) {
	stream, err := e.uploads.UploadAvatar(ctx, userID, filename, r, size)
	if err != nil {
		return "", err
	}

	url, err := stream.Wait()
	if err != nil {
		return "", err
	}

	if err := e.users.UpdateAvatarURL(ctx, userID, url); err != nil {
		return "", err
	}
	return url, nil
}
