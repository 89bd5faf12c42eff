package auth

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/bancho-server/internal/domain"
	"golang.org/x/crypto/bcrypt"
)

// UserStore resolves accounts by their normalized name
type UserStore interface {
	GetUserBySafeName(ctx context.Context, safeName string) (*domain.User, error)
}

// Service checks client credentials against stored accounts
type Service struct {
	users UserStore
}

// NewService creates a new auth service
func NewService(users UserStore) *Service {
	return &Service{users: users}
}

// Authenticate resolves username and verifies the md5 hex digest the client sends
// in place of the plain password.
func (s *Service) Authenticate(ctx context.Context, username, passwordMD5 string) (*domain.User, error) {
	if username == "" || passwordMD5 == "" {
		return nil, domain.ErrInvalidCredentials
	}
	user, err := s.users.GetUserBySafeName(ctx, SafeName(username))
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("resolving user %q: %w", username, err)
	}
	if !CheckPassword(passwordMD5, user.PasswordHash) {
		return nil, domain.ErrInvalidCredentials
	}
	return user, nil
}

// SafeName normalizes a username for lookups
func SafeName(username string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(username)), " ", "_")
}

// MD5Hex returns the digest the game client sends for a plain password
func MD5Hex(plain string) string {
	sum := md5.Sum([]byte(plain))
	return hex.EncodeToString(sum[:])
}

// HashPassword creates a bcrypt hash of a password's md5 digest
func HashPassword(passwordMD5 string) (string, error) {
	return HashPasswordCost(passwordMD5, bcrypt.DefaultCost)
}

// HashPasswordCost is HashPassword with an explicit bcrypt cost
func HashPasswordCost(passwordMD5 string, cost int) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(passwordMD5), cost)
	return string(hash), err
}

// CheckPassword compares a password digest against a hash
func CheckPassword(passwordMD5, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(passwordMD5)) == nil
}
