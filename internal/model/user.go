package model

import (
	"time"

	"github.com/google/uuid"
)

// DefaultProfilePictureURL is assigned to accounts that never uploaded an avatar.
const DefaultProfilePictureURL = "https://cdn.pixabay.com/photo/2015/10/05/22/37/blank-profile-picture-973460_960_720.png"

type User struct {
	ID                uuid.UUID `db:"id"`
	Username          string    `db:"username"`
	Email             string    `db:"email"`
	PasswordHash      string    `db:"password_hash"`
	ProfilePictureURL string    `db:"profile_picture_url"`
	IsAdmin           bool      `db:"is_admin"`
	IsOauthUser       bool      `db:"is_oauth_user"`
	CreatedAt         time.Time `db:"created_at"`
	UpdatedAt         time.Time `db:"updated_at"`

	// Recovery is nil unless a password reset is in flight. The OTP and its
	// deadline travel together so one can never be persisted without the other.
	Recovery *Recovery
}

// Recovery is the active password-recovery window for a user.
type Recovery struct {
	OTP       string
	ExpiresAt time.Time
}

// Profile is the caller-facing projection of a User. It never carries the
// password hash or any recovery material.
type Profile struct {
	ID                uuid.UUID `json:"id"`
	Username          string    `json:"username"`
	Email             string    `json:"email"`
	ProfilePictureURL string    `json:"profile_picture_url"`
	IsAdmin           bool      `json:"is_admin"`
	IsOauthUser       bool      `json:"is_oauth_user"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func (u *User) Profile() Profile {
	return Profile{
		ID:                u.ID,
		Username:          u.Username,
		Email:             u.Email,
		ProfilePictureURL: u.ProfilePictureURL,
		IsAdmin:           u.IsAdmin,
		IsOauthUser:       u.IsOauthUser,
		CreatedAt:         u.CreatedAt,
		UpdatedAt:         u.UpdatedAt,
	}
}
