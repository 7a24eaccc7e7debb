package refreshrepofake

import (
	"context"
	"sync"
	"time"

	"github.com/jrsteele09/go-authz-engine/token/refresh"
)

var _ refresh.Repo = (*FakeRefreshTokenRepo)(nil)

// FakeRefreshTokenRepo is an in-memory refresh.Repo. A single mutex guards the
// whole Rotate sequence, which satisfies the atomicity contract for tests and
// for single-process deployments.
type FakeRefreshTokenRepo struct {
	tokens   map[string]*refresh.StoredRefreshToken
	families map[string][]string // family ID to member token IDs
	lock     sync.Mutex
}

func NewFakeRefreshTokenRepo() *FakeRefreshTokenRepo {
	return &FakeRefreshTokenRepo{
		tokens:   make(map[string]*refresh.StoredRefreshToken),
		families: make(map[string][]string),
	}
}

func (tr *FakeRefreshTokenRepo) Insert(_ context.Context, rt *refresh.StoredRefreshToken) error {
	tr.lock.Lock()
	defer tr.lock.Unlock()

	tr.insertLocked(rt)
	return nil
}

func (tr *FakeRefreshTokenRepo) insertLocked(rt *refresh.StoredRefreshToken) {
	copied := *rt
	tr.tokens[rt.Token] = &copied
	tr.families[rt.FamilyID] = append(tr.families[rt.FamilyID], rt.Token)
}

func (tr *FakeRefreshTokenRepo) Get(_ context.Context, token string) (*refresh.StoredRefreshToken, error) {
	tr.lock.Lock()
	defer tr.lock.Unlock()

	rt, ok := tr.tokens[token]
	if !ok {
		return nil, refresh.ErrNotFound
	}
	copied := *rt
	return &copied, nil
}

func (tr *FakeRefreshTokenRepo) Rotate(_ context.Context, token string, now time.Time, successor *refresh.StoredRefreshToken) (*refresh.StoredRefreshToken, error) {
	tr.lock.Lock()
	defer tr.lock.Unlock()

	rt, ok := tr.tokens[token]
	if !ok {
		return nil, refresh.ErrNotFound
	}

	redeemed := *rt
	if rt.Revoked || tr.familyRevokedLocked(rt.FamilyID) {
		return &redeemed, refresh.ErrRevoked
	}
	if rt.Used {
		// Reuse signal: poison the whole family.
		tr.revokeFamilyLocked(rt.FamilyID)
		return &redeemed, refresh.ErrUsed
	}
	if now.After(rt.ExpiresAt) {
		return &redeemed, refresh.ErrExpired
	}

	rt.Used = true
	successor.FamilyID = rt.FamilyID
	successor.PredecessorToken = rt.Token
	successor.SubjectID = rt.SubjectID
	tr.insertLocked(successor)

	redeemed.Used = true
	return &redeemed, nil
}

func (tr *FakeRefreshTokenRepo) RevokeFamily(_ context.Context, familyID string) error {
	tr.lock.Lock()
	defer tr.lock.Unlock()

	tr.revokeFamilyLocked(familyID)
	return nil
}

func (tr *FakeRefreshTokenRepo) FamilyRevoked(_ context.Context, familyID string) (bool, error) {
	tr.lock.Lock()
	defer tr.lock.Unlock()

	return tr.familyRevokedLocked(familyID), nil
}

func (tr *FakeRefreshTokenRepo) revokeFamilyLocked(familyID string) {
	for _, token := range tr.families[familyID] {
		tr.tokens[token].Revoked = true
	}
}

func (tr *FakeRefreshTokenRepo) familyRevokedLocked(familyID string) bool {
	for _, token := range tr.families[familyID] {
		if tr.tokens[token].Revoked {
			return true
		}
	}
	return false
}
