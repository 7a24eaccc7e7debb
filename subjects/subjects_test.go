package subjects_test

import (
	"testing"

	"github.com/jrsteele09/go-authz-engine/principal"
	"github.com/jrsteele09/go-authz-engine/subjects"
	subjectrepofake "github.com/jrsteele09/go-authz-engine/subjects/repofake"
	"github.com/stretchr/testify/require"
)

func newTestSubject(t *testing.T, id, username, password string) *subjects.Subject {
	t.Helper()
	subject := &subjects.Subject{
		ID:       id,
		Username: username,
		Claims: []principal.Claim{
			{Type: principal.RoleClaimType, Value: "employee"},
			{Type: "department", Value: "IT"},
		},
	}
	require.NoError(t, subject.SetPassword(password))
	return subject
}

func TestAuthenticate(t *testing.T) {
	repo := subjectrepofake.NewFakeSubjectRepo()
	require.NoError(t, repo.Upsert(newTestSubject(t, "user-1", "alice", "password123")))

	subject, err := subjects.Authenticate(repo, "alice", "password123")
	require.NoError(t, err)
	require.Equal(t, "user-1", subject.ID)
}

func TestAuthenticateWrongPassword(t *testing.T) {
	repo := subjectrepofake.NewFakeSubjectRepo()
	require.NoError(t, repo.Upsert(newTestSubject(t, "user-1", "alice", "password123")))

	_, err := subjects.Authenticate(repo, "alice", "wrong-password")
	require.ErrorIs(t, err, subjects.ErrPasswordMismatch)
}

func TestAuthenticateUnknownUsername(t *testing.T) {
	repo := subjectrepofake.NewFakeSubjectRepo()

	_, err := subjects.Authenticate(repo, "nobody", "password123")
	require.ErrorIs(t, err, subjects.ErrSubjectNotFound)
}

func TestAuthenticateDisabledSubject(t *testing.T) {
	repo := subjectrepofake.NewFakeSubjectRepo()
	subject := newTestSubject(t, "user-1", "alice", "password123")
	subject.Disabled = true
	require.NoError(t, repo.Upsert(subject))

	_, err := subjects.Authenticate(repo, "alice", "password123")
	require.ErrorIs(t, err, subjects.ErrSubjectDisabled)
}

func TestPrincipalSnapshot(t *testing.T) {
	subject := newTestSubject(t, "user-1", "alice", "password123")
	p := subject.Principal()

	require.Equal(t, "user-1", p.SubjectID())
	require.True(t, p.HasRole("employee"))

	// Changing the record afterwards must not alter the snapshot.
	subject.Claims[0].Value = "admin"
	require.True(t, p.HasRole("employee"))
	require.False(t, p.HasRole("admin"))
}
