package models

import (
	"time"

	"github.com/google/uuid"
)

// ThemeMode is the colour scheme preference
type ThemeMode string

const (
	ThemeLight ThemeMode = "light"
	ThemeDark  ThemeMode = "dark"
)

// DefaultTheme is used until the user picks one
const DefaultTheme = ThemeDark

// String returns the string representation of ThemeMode
func (t ThemeMode) String() string {
	return string(t)
}

// IsValid checks if the theme mode is valid
func (t ThemeMode) IsValid() bool {
	return t == ThemeLight || t == ThemeDark
}

// Toggle returns the opposite theme
func (t ThemeMode) Toggle() ThemeMode {
	if t == ThemeLight {
		return ThemeDark
	}
	return ThemeLight
}

// User is the single locally registered account.
// Password holds a bcrypt hash, never the plain credential.
type User struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	Password  string    `json:"password"`
	CreatedAt time.Time `json:"createdAt"`
}
