// Package authpw issues API tokens for email/password and Google sign-in.
package authpw

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/maitracle/mindnote-server/internal/google"
	"github.com/maitracle/mindnote-server/internal/store"
)

var (
	ErrMissingFields      = errors.New("email, password, and name are required")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrGoogleLookup       = errors.New("google account lookup failed")
	ErrPasswordTooLong    = errors.New("password exceeds 72 bytes")
)

const (
	maxNameLength     = 100
	maxImageURLLength = 200
)

// Service provides sign-up, sign-in, and profile updates.
type Service struct {
	store  UserStore
	google google.Client
	logger zerolog.Logger
	cost   int
}

// UserStore defines the storage interface for auth
type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	CreateUserWithToken(ctx context.Context, user store.User) (store.User, store.Token, error)
	GetOrCreateUserWithToken(ctx context.Context, user store.User) (store.User, store.Token, bool, error)
	GetOrCreateToken(ctx context.Context, userID int64) (store.Token, error)
	UpdateUser(ctx context.Context, user store.User) (store.User, error)
}

func NewService(store UserStore, googleClient google.Client, logger zerolog.Logger) *Service {
	return &Service{
		store:  store,
		google: googleClient,
		logger: logger,
		cost:   bcrypt.DefaultCost,
	}
}

// WithCost overrides the bcrypt cost.
func (s *Service) WithCost(cost int) *Service {
	s.cost = cost
	return s
}

// Session is a user together with its API token.
type Session struct {
	User    store.User
	Token   store.Token
	Created bool
}

type SignUpRequest struct {
	Email           string
	Password        string
	Name            string
	ProfileImageURL string
}

// SignUp hashes the password and stores the user and its token atomically.
// store.ErrEmailTaken is returned unchanged for duplicate addresses.
func (s *Service) SignUp(ctx context.Context, req SignUpRequest) (*Session, error) {
	if strings.TrimSpace(req.Email) == "" || req.Password == "" || strings.TrimSpace(req.Name) == "" {
		return nil, ErrMissingFields
	}

	hash, err := s.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	user, token, err := s.store.CreateUserWithToken(ctx, store.User{
		Email:           strings.TrimSpace(req.Email),
		PasswordHash:    hash,
		Name:            req.Name,
		ProfileImageURL: req.ProfileImageURL,
	})
	if err != nil {
		if errors.Is(err, store.ErrEmailTaken) {
			return nil, err
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return &Session{User: user, Token: token, Created: true}, nil
}

type SignInRequest struct {
	Email    string
	Password string
}

// SignIn checks the password and returns the user's token, creating it on
// first use.
func (s *Service) SignIn(ctx context.Context, req SignInRequest) (*Session, error) {
	if req.Email == "" || req.Password == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := s.store.GetUserByEmail(ctx, strings.TrimSpace(req.Email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	// Accounts created through Google have no password hash.
	if user.PasswordHash == "" {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	token, err := s.store.GetOrCreateToken(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return &Session{User: user, Token: token}, nil
}

// GoogleSignIn resolves the access token with Google and signs the matching
// account in, registering it on first sight. Name and picture are only
// copied at registration.
func (s *Service) GoogleSignIn(ctx context.Context, accessToken string) (*Session, error) {
	account, err := s.google.Lookup(ctx, accessToken)
	if err != nil {
		s.logger.Warn().Err(err).Str("class", lookupClass(err)).Msg("google userinfo lookup failed")
		return nil, fmt.Errorf("%w: %v", ErrGoogleLookup, err)
	}

	candidate := store.User{
		Email: strings.TrimSpace(account.Email),
		Name:  truncate(account.Name, maxNameLength),
	}
	if utf8.RuneCountInString(account.Picture) <= maxImageURLLength {
		candidate.ProfileImageURL = account.Picture
	}

	user, token, created, err := s.store.GetOrCreateUserWithToken(ctx, candidate)
	if err != nil {
		return nil, fmt.Errorf("google sign in: %w", err)
	}
	if created {
		s.logger.Info().Int64("user_id", user.ID).Msg("registered user from google account")
	}
	return &Session{User: user, Token: token, Created: created}, nil
}

// ProfileUpdate carries the optional fields of a partial profile update.
type ProfileUpdate struct {
	Name            *string
	ProfileImageURL *string
	Password        *string
}

func (s *Service) UpdateProfile(ctx context.Context, user store.User, update ProfileUpdate) (store.User, error) {
	if update.Name != nil {
		user.Name = *update.Name
	}
	if update.ProfileImageURL != nil {
		user.ProfileImageURL = *update.ProfileImageURL
	}
	if update.Password != nil {
		hash, err := s.HashPassword(*update.Password)
		if err != nil {
			return store.User{}, err
		}
		user.PasswordHash = hash
	}
	return s.store.UpdateUser(ctx, user)
}

func (s *Service) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", ErrPasswordTooLong
	}
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func lookupClass(err error) string {
	switch {
	case errors.Is(err, google.ErrTimeoutOrUnreachable):
		return "timeout_or_unreachable"
	case errors.Is(err, google.ErrClient):
		return "client"
	case errors.Is(err, google.ErrServer):
		return "server"
	case errors.Is(err, google.ErrMalformed):
		return "malformed"
	default:
		return "unknown"
	}
}

func truncate(value string, limit int) string {
	if utf8.RuneCountInString(value) <= limit {
		return value
	}
	return string([]rune(value)[:limit])
}
