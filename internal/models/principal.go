package models

import "time"

// Principal is the authenticated identity of the current user.
type Principal struct {
	ID          int    `json:"id"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url,omitempty"`
	Email       string `json:"email"`
}

// User is the stored account backing a Principal.
type User struct {
	ID           int       `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	DisplayName  string    `db:"display_name" json:"display_name"`
	AvatarURL    string    `db:"avatar_url" json:"avatar_url,omitempty"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Principal returns the session view of the user.
func (u User) Principal() Principal {
	return Principal{ID: u.ID, DisplayName: u.DisplayName, AvatarURL: u.AvatarURL, Email: u.Email}
}
