// Package models defines server-side data models persisted in the database.
package models

import "time"

// User is a stored account. PasswordHash never leaves the server: it is
// excluded from JSON and only read by the auth flow.
type User struct {
	ID           string        `json:"id"`
	UserName     string        `json:"username"`
	Email        string        `json:"email"`
	PasswordHash string        `json:"-"`
	IsAdmin      bool          `json:"isAdmin"`
	ProfilePhoto *ProfilePhoto `json:"profilePhoto"`
	Bio          string        `json:"bio"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

// HasProfilePhoto reports whether the user references a hosted photo.
func (u *User) HasProfilePhoto() bool {
	return u.ProfilePhoto != nil && u.ProfilePhoto.ExternalID != ""
}

// ProfilePhoto references an image held by the image host.
type ProfilePhoto struct {
	URL        string `json:"url"`
	ExternalID string `json:"externalId"`
}

// Principal is the verified identity behind a request.
type Principal struct {
	UserID  string
	IsAdmin bool
}

// CanModify reports whether p may modify the account userID.
func (p Principal) CanModify(userID string) bool {
	return p.IsAdmin || p.UserID == userID
}
