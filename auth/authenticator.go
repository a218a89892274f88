package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Authenticator checks the admin password and manages session lifetimes.
type Authenticator struct {
	hash     []byte
	sessions *SessionStore
	ttl      time.Duration
	now      func() time.Time
}

// NewAuthenticator accepts either a bcrypt hash or a plaintext password; a
// non-empty hash wins. The plaintext form is hashed once here.
func NewAuthenticator(sessions *SessionStore, password, passwordHash string, ttl time.Duration) (*Authenticator, error) {
	var hash []byte
	switch {
	case passwordHash != "":
		if _, err := bcrypt.Cost([]byte(passwordHash)); err != nil {
			return nil, fmt.Errorf("admin password hash: %w", err)
		}
		hash = []byte(passwordHash)
	case password != "":
		h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash admin password: %w", err)
		}
		hash = h
	default:
		return nil, errors.New("admin password not configured")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("session ttl must be positive, got %s", ttl)
	}
	return &Authenticator{hash: hash, sessions: sessions, ttl: ttl, now: time.Now}, nil
}

// SetClock replaces the time source.
func (a *Authenticator) SetClock(now func() time.Time) { a.now = now }

// Login opens a session when password matches.
func (a *Authenticator) Login(password string) (*Session, error) {
	if err := bcrypt.CompareHashAndPassword(a.hash, []byte(password)); err != nil {
		return nil, ErrInvalidPassword
	}
	return a.sessions.Create(a.now(), a.ttl)
}

// Validate resolves a token to a live session.
func (a *Authenticator) Validate(token uuid.UUID) (*Session, error) {
	return a.sessions.Lookup(token, a.now())
}

// Logout revokes the session.
func (a *Authenticator) Logout(sess *Session) error {
	if sess == nil {
		return nil
	}
	return a.sessions.Revoke(sess.Token, a.now())
}

// Purge drops expired and revoked sessions.
func (a *Authenticator) Purge() (int64, error) {
	return a.sessions.PurgeExpired(a.now())
}
