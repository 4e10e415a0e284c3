package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/liamwears/reeldeck/internal/database"
	"github.com/liamwears/reeldeck/internal/models"
	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength is the shortest accepted password
const MinPasswordLength = 6

var (
	ErrUsernameRequired   = errors.New("username is required")
	ErrPasswordRequired   = errors.New("password is required")
	ErrPasswordTooShort   = fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	ErrPasswordMismatch   = errors.New("passwords do not match")
	ErrNoRegisteredUser   = errors.New("no registered user, sign up first")
	ErrInvalidCredentials = errors.New("invalid username or password")
)

// AccountService manages the single local account and profile preferences.
// Nothing here talks to a server; the account only gates the local profile.
type AccountService struct {
	kv       database.KV
	logger   *log.Logger
	hashCost int
	now      func() time.Time
}

// NewAccountService creates a new AccountService
func NewAccountService(kv database.KV, logger *log.Logger) *AccountService {
	return &AccountService{
		kv:       kv,
		logger:   logger.WithPrefix("account"),
		hashCost: bcrypt.DefaultCost,
		now:      time.Now,
	}
}

// Signup registers username, replacing any previous local account.
// It does not log the user in.
func (s *AccountService) Signup(ctx context.Context, username, password, confirm string) (*models.User, error) {
	username = strings.TrimSpace(username)
	switch {
	case username == "":
		return nil, ErrUsernameRequired
	case password == "":
		return nil, ErrPasswordRequired
	case len(password) < MinPasswordLength:
		return nil, ErrPasswordTooShort
	case password != confirm:
		return nil, ErrPasswordMismatch
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		ID:        uuid.New(),
		Username:  username,
		Password:  string(hash),
		CreatedAt: s.now().UTC(),
	}
	if err := saveJSON(ctx, s.kv, database.KeyUser, user); err != nil {
		return nil, err
	}

	s.logger.Info("account created", "username", username)
	return user, nil
}

// Login checks the credentials against the registered account and marks the profile logged in
func (s *AccountService) Login(ctx context.Context, username, password string) (*models.User, error) {
	user, err := s.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}

	if user.Username != strings.TrimSpace(username) {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	if err := s.kv.Set(ctx, database.KeyLoggedIn, []byte("true")); err != nil {
		return nil, fmt.Errorf("failed to record login: %w", err)
	}
	return user, nil
}

// Logout clears the logged in flag; the account itself is kept
func (s *AccountService) Logout(ctx context.Context) error {
	if err := s.kv.Set(ctx, database.KeyLoggedIn, []byte("false")); err != nil {
		return fmt.Errorf("failed to record logout: %w", err)
	}
	return nil
}

// LoggedIn reports whether the profile is logged in
func (s *AccountService) LoggedIn(ctx context.Context) (bool, error) {
	v, err := s.kv.Get(ctx, database.KeyLoggedIn)
	if errors.Is(err, database.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return string(v) == "true", nil
}

// CurrentUser returns the registered account
func (s *AccountService) CurrentUser(ctx context.Context) (*models.User, error) {
	var user models.User
	err := loadJSON(ctx, s.kv, database.KeyUser, &user)
	if errors.Is(err, ErrMalformedLocalState) {
		s.logger.Warn("ignoring unreadable account record", "err", err)
		return nil, ErrNoRegisteredUser
	}
	if err != nil {
		return nil, err
	}
	if user.Username == "" {
		return nil, ErrNoRegisteredUser
	}
	return &user, nil
}

// Theme returns the stored theme, or the default when unset or unreadable
func (s *AccountService) Theme(ctx context.Context) (models.ThemeMode, error) {
	v, err := s.kv.Get(ctx, database.KeyThemeMode)
	if errors.Is(err, database.ErrKeyNotFound) {
		return models.DefaultTheme, nil
	}
	if err != nil {
		return models.DefaultTheme, err
	}

	theme := models.ThemeMode(v)
	if !theme.IsValid() {
		s.logger.Warn("ignoring unknown theme", "value", string(v))
		return models.DefaultTheme, nil
	}
	return theme, nil
}

// SetTheme stores the theme preference
func (s *AccountService) SetTheme(ctx context.Context, theme models.ThemeMode) error {
	if !theme.IsValid() {
		return fmt.Errorf("unknown theme %q", theme)
	}
	return s.kv.Set(ctx, database.KeyThemeMode, []byte(theme))
}

// ToggleTheme flips between light and dark and returns the new theme
func (s *AccountService) ToggleTheme(ctx context.Context) (models.ThemeMode, error) {
	current, err := s.Theme(ctx)
	if err != nil {
		return current, err
	}
	next := current.Toggle()
	if err := s.SetTheme(ctx, next); err != nil {
		return current, err
	}
	return next, nil
}
