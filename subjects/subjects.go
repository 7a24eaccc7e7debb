// Package subjects holds the authoritative record for each authenticated subject.
// The token service re-reads a subject's claims on every refresh so that claim or
// role revocation takes effect without revoking the whole token family.
package subjects

import (
	"errors"

	"github.com/jrsteele09/go-authz-engine/principal"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrSubjectNotFound  = errors.New("subject not found")
	ErrSubjectDisabled  = errors.New("subject disabled")
	ErrPasswordMismatch = errors.New("password mismatch")
)

// Subject is the persisted record for one principal.
type Subject struct {
	ID           string            `json:"id,omitempty"`       // Unique identifier for the subject
	Username     string            `json:"username,omitempty"` // Unique login name
	PasswordHash string            `json:"-"`                  // Hashed password - never serialize
	Claims       []principal.Claim `json:"claims,omitempty"`   // Current claims, projected into access tokens
	Disabled     bool              `json:"disabled,omitempty"` // Disabled subjects cannot log in or refresh
}

// Principal returns an immutable snapshot of the subject's current claims.
func (s *Subject) Principal() principal.Principal {
	return principal.New(s.ID, s.Claims)
}

// SetPassword hashes and stores the given plaintext password.
func (s *Subject) SetPassword(password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	s.PasswordHash = string(hash)
	return nil
}

// CheckPassword compares the given plaintext password against the stored hash.
func (s *Subject) CheckPassword(password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(s.PasswordHash), []byte(password)); err != nil {
		return ErrPasswordMismatch
	}
	return nil
}

// Authenticate looks up a subject by username and verifies its password.
// Disabled subjects fail authentication regardless of the password.
func Authenticate(repo Repo, username, password string) (*Subject, error) {
	subject, err := repo.GetByUsername(username)
	if err != nil {
		return nil, ErrSubjectNotFound
	}
	if subject.Disabled {
		return nil, ErrSubjectDisabled
	}
	if err := subject.CheckPassword(password); err != nil {
		return nil, err
	}
	return subject, nil
}
