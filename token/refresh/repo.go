// Package refresh defines the persisted refresh-token record and the store
// contract for token-family rotation. A refresh token sent to a client is an
// opaque random string; everything else here is server-side state.
package refresh

import (
	"context"
	"errors"
	"time"
)

// Store outcome errors. The token service maps these onto its client-facing
// error kinds; implementations must return exactly these sentinels so that
// classification survives the repo boundary.
var (
	ErrNotFound = errors.New("refresh token not found")
	ErrUsed     = errors.New("refresh token already used")
	ErrRevoked  = errors.New("refresh token family revoked")
	ErrExpired  = errors.New("refresh token expired")
)

// StoredRefreshToken is one link in a token family: the chain of refresh
// tokens descended from a single login. All records of a family share
// FamilyID; each non-root record points at the token it replaced.
type StoredRefreshToken struct {
	Token            string    // The opaque random token string (sent to client)
	FamilyID         string    // Chain identifier shared by every descendant of one login
	PredecessorToken string    // Token this record replaced; empty for the family root
	SubjectID        string    // Owning subject
	IssuedAt         time.Time // When this record was created
	ExpiresAt        time.Time // Sliding-window expiry for this record
	Used             bool      // Set once at rotation, never cleared
	Revoked          bool      // Set when the family is poisoned or explicitly revoked
}

// Repo manages server-side storage of refresh-token families.
//
// Rotate is the one operation with a strict atomicity contract: the
// read-check-mark-used-insert-successor sequence must execute as a single
// transaction. Under concurrent Rotate calls presenting the same token,
// exactly one succeeds; the rest must observe Used and return ErrUsed.
type Repo interface {
	// Insert persists a new record (a family root or a rotation successor).
	Insert(ctx context.Context, rt *StoredRefreshToken) error

	// Get returns the record for the given token, or ErrNotFound.
	Get(ctx context.Context, token string) (*StoredRefreshToken, error)

	// Rotate atomically redeems the presented token and installs successor as
	// the family's new current token. The successor's FamilyID,
	// PredecessorToken and SubjectID fields are filled in from the presented
	// record; its Token, IssuedAt and ExpiresAt must be set by the caller.
	//
	// Outcomes:
	//   - record missing                      -> nil, ErrNotFound
	//   - record or any family member revoked -> record, ErrRevoked
	//   - record already used (reuse signal)  -> record, ErrUsed; the whole
	//     family is revoked inside the same transaction
	//   - record expired relative to now      -> record, ErrExpired
	//   - otherwise the presented record is marked used, successor inserted,
	//     and the redeemed record returned
	Rotate(ctx context.Context, token string, now time.Time, successor *StoredRefreshToken) (*StoredRefreshToken, error)

	// RevokeFamily marks every record of the family revoked. Idempotent.
	RevokeFamily(ctx context.Context, familyID string) error

	// FamilyRevoked reports whether any record of the family is revoked.
	FamilyRevoked(ctx context.Context, familyID string) (bool, error)
}
