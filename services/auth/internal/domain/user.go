package domain

import (
	"strings"
	"time"

	"github.com/anvit-dd/pi-drive/pkg/token"
)

// ProviderLocal marks accounts that sign in with email and password.
const ProviderLocal = "local"

// User represents a registered user in the system.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name,omitempty"`
	PasswordHash string    `json:"-"`
	Provider     string    `json:"provider"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Snapshot returns the copy of the user embedded in access tokens.
func (u *User) Snapshot() token.UserSnapshot {
	return token.UserSnapshot{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Provider:  u.Provider,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

// DefaultName derives a display name from the local part of an email.
func DefaultName(email string) string {
	local, _, _ := strings.Cut(email, "@")
	return local
}
