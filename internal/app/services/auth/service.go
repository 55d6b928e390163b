// Package auth handles registration, login and bearer-token identity. A login
// mints a fresh opaque session id into the token; the vault's session cache
// is keyed by that id, never by the user's primary key.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/quartzlabs/chatvault/internal/app/domain/user"
	"github.com/quartzlabs/chatvault/internal/app/storage"
	"github.com/quartzlabs/chatvault/pkg/logger"
)

// ErrInvalidCredentials covers both unknown email and wrong password so login
// failures do not reveal which one it was.
var ErrInvalidCredentials = errors.New("invalid email or password")

// ErrInvalidToken indicates a bearer token that is missing, malformed,
// expired or signed with the wrong key.
var ErrInvalidToken = errors.New("invalid token")

// Identity is the authenticated caller resolved from a bearer token.
type Identity struct {
	UserID    string
	SessionID string
	Email     string
}

// Service issues and verifies access tokens.
type Service struct {
	users    storage.UserStore
	secret   []byte
	tokenTTL time.Duration
	log      *logger.Logger
}

// New constructs the auth service. secret signs access tokens (HS256).
func New(users storage.UserStore, secret []byte, tokenTTL time.Duration, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("auth")
	}
	if tokenTTL <= 0 {
		tokenTTL = time.Hour
	}
	return &Service{users: users, secret: secret, tokenTTL: tokenTTL, log: log}
}

// Register creates a user with a bcrypt-hashed password. A duplicate email
// returns storage.ErrConflict; callers may choose to mask it.
func (s *Service) Register(ctx context.Context, name, email, password string) (user.User, error) {
	name = strings.TrimSpace(name)
	email = strings.ToLower(strings.TrimSpace(email))
	if name == "" || email == "" {
		return user.User{}, fmt.Errorf("name and email are required")
	}
	if len(password) < 8 {
		return user.User{}, fmt.Errorf("password must be at least 8 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return user.User{}, fmt.Errorf("hash password: %w", err)
	}

	usr, err := s.users.CreateUser(ctx, user.User{
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
	})
	if err != nil {
		return user.User{}, err
	}
	s.log.WithField("user_id", usr.ID).Info("user registered")
	return usr, nil
}

// Login verifies the password and returns a signed access token carrying the
// user id, email and a fresh session id.
func (s *Service) Login(ctx context.Context, email, password string) (string, error) {
	usr, err := s.users.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", err
	}
	if bcrypt.CompareHashAndPassword([]byte(usr.PasswordHash), []byte(password)) != nil {
		return "", ErrInvalidCredentials
	}

	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"sub": usr.Email,
		"uid": usr.ID,
		"sid": uuid.NewString(),
		"iat": now.Unix(),
		"exp": now.Add(s.tokenTTL).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}

// ParseToken validates a bearer token and extracts the caller identity.
func (s *Service) ParseToken(tokenString string) (Identity, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return Identity{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, ErrInvalidToken
	}
	userID, _ := claims["uid"].(string)
	sessionID, _ := claims["sid"].(string)
	email, _ := claims["sub"].(string)
	if userID == "" || sessionID == "" {
		return Identity{}, ErrInvalidToken
	}
	return Identity{UserID: userID, SessionID: sessionID, Email: email}, nil
}
