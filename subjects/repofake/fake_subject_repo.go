package subjectrepofake

import (
	"sort"
	"sync"

	"github.com/jrsteele09/go-authz-engine/subjects"
)

var _ subjects.Repo = (*FakeSubjectRepo)(nil)

// FakeSubjectRepo is an in-memory subjects.Repo used in tests and for
// single-process deployments without an external user store.
type FakeSubjectRepo struct {
	byID       map[string]*subjects.Subject
	byUsername map[string]string // username to subject ID
	lock       sync.RWMutex
}

func NewFakeSubjectRepo() *FakeSubjectRepo {
	return &FakeSubjectRepo{
		byID:       make(map[string]*subjects.Subject),
		byUsername: make(map[string]string),
	}
}

func (sr *FakeSubjectRepo) Upsert(subject *subjects.Subject) error {
	sr.lock.Lock()
	defer sr.lock.Unlock()

	copied := *subject
	sr.byID[subject.ID] = &copied
	sr.byUsername[subject.Username] = subject.ID
	return nil
}

func (sr *FakeSubjectRepo) GetByID(id string) (*subjects.Subject, error) {
	sr.lock.RLock()
	defer sr.lock.RUnlock()

	subject, ok := sr.byID[id]
	if !ok {
		return nil, subjects.ErrSubjectNotFound
	}
	copied := *subject
	return &copied, nil
}

func (sr *FakeSubjectRepo) GetByUsername(username string) (*subjects.Subject, error) {
	sr.lock.RLock()
	defer sr.lock.RUnlock()

	id, ok := sr.byUsername[username]
	if !ok {
		return nil, subjects.ErrSubjectNotFound
	}
	copied := *sr.byID[id]
	return &copied, nil
}

func (sr *FakeSubjectRepo) List(offset, limit int) ([]*subjects.Subject, error) {
	sr.lock.RLock()
	defer sr.lock.RUnlock()

	listed := make([]*subjects.Subject, 0, len(sr.byID))
	for _, s := range sr.byID {
		copied := *s
		listed = append(listed, &copied)
	}

	sort.Slice(listed, func(i, j int) bool {
		return listed[i].ID < listed[j].ID
	})

	if offset >= len(listed) {
		return nil, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(listed) {
		end = len(listed)
	}
	return listed[offset:end], nil
}
