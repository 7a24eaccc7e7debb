package redisrepo_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jrsteele09/go-authz-engine/token/refresh"
	"github.com/jrsteele09/go-authz-engine/token/refresh/redisrepo"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) *redisrepo.Repo {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return redisrepo.New(client)
}

func insertRoot(t *testing.T, repo *redisrepo.Repo, now time.Time) {
	t.Helper()
	require.NoError(t, repo.Insert(context.Background(), &refresh.StoredRefreshToken{
		Token:     "root-token",
		FamilyID:  "family-1",
		SubjectID: "user-1",
		IssuedAt:  now,
		ExpiresAt: now.Add(time.Hour),
	}))
}

func successor(name string, now time.Time) *refresh.StoredRefreshToken {
	return &refresh.StoredRefreshToken{
		Token:     name,
		IssuedAt:  now,
		ExpiresAt: now.Add(time.Hour),
	}
}

func TestInsertAndGet(t *testing.T) {
	ctx := context.Background()
	now := time.Now().Truncate(time.Second)
	repo := newTestRepo(t)
	insertRoot(t, repo, now)

	rt, err := repo.Get(ctx, "root-token")
	require.NoError(t, err)
	require.Equal(t, "family-1", rt.FamilyID)
	require.Equal(t, "user-1", rt.SubjectID)
	require.Empty(t, rt.PredecessorToken)
	require.False(t, rt.Used)
	require.False(t, rt.Revoked)
	require.Equal(t, now.Unix(), rt.IssuedAt.Unix())

	_, err = repo.Get(ctx, "missing")
	require.ErrorIs(t, err, refresh.ErrNotFound)
}

func TestRotateChain(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	repo := newTestRepo(t)
	insertRoot(t, repo, now)

	succ := successor("succ-1", now)
	redeemed, err := repo.Rotate(ctx, "root-token", now, succ)
	require.NoError(t, err)
	require.True(t, redeemed.Used)
	require.Equal(t, "family-1", succ.FamilyID)
	require.Equal(t, "root-token", succ.PredecessorToken)
	require.Equal(t, "user-1", succ.SubjectID)

	stored, err := repo.Get(ctx, "succ-1")
	require.NoError(t, err)
	require.Equal(t, "root-token", stored.PredecessorToken)
	require.False(t, stored.Used)
}

func TestRotateReusePoisonsFamily(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	repo := newTestRepo(t)
	insertRoot(t, repo, now)

	_, err := repo.Rotate(ctx, "root-token", now, successor("succ-1", now))
	require.NoError(t, err)

	_, err = repo.Rotate(ctx, "root-token", now, successor("succ-2", now))
	require.ErrorIs(t, err, refresh.ErrUsed)

	_, err = repo.Rotate(ctx, "succ-1", now, successor("succ-3", now))
	require.ErrorIs(t, err, refresh.ErrRevoked)

	revoked, err := repo.FamilyRevoked(ctx, "family-1")
	require.NoError(t, err)
	require.True(t, revoked)
}

func TestRotateExpired(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	repo := newTestRepo(t)
	insertRoot(t, repo, now)

	later := now.Add(2 * time.Hour)
	_, err := repo.Rotate(ctx, "root-token", later, successor("succ-1", later))
	require.ErrorIs(t, err, refresh.ErrExpired)
}

func TestRevokeFamilyIdempotent(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	repo := newTestRepo(t)
	insertRoot(t, repo, now)

	require.NoError(t, repo.RevokeFamily(ctx, "family-1"))
	require.NoError(t, repo.RevokeFamily(ctx, "family-1"))

	rt, err := repo.Get(ctx, "root-token")
	require.NoError(t, err)
	require.True(t, rt.Revoked)

	_, err = repo.Rotate(ctx, "root-token", now, successor("succ-1", now))
	require.ErrorIs(t, err, refresh.ErrRevoked)
}

func TestRotateRecordLookupFailureKeepsSentinel(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	repo := redisrepo.New(client)
	insertRoot(t, repo, now)

	_, err := repo.Rotate(ctx, "root-token", now, successor("succ-1", now))
	require.NoError(t, err)

	// Corrupt the consumed record so the post-script lookup fails; the reuse
	// sentinel must survive with the lookup fault attached, not be dropped.
	require.NoError(t, client.HSet(ctx, "refresh:token:root-token", "expires_at", "garbage").Err())

	rt, err := repo.Rotate(ctx, "root-token", now, successor("succ-2", now))
	require.Nil(t, rt)
	require.ErrorIs(t, err, refresh.ErrUsed)
	require.Contains(t, err.Error(), "record lookup after rotate")
}

func TestRotateSequentialChain(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	repo := newTestRepo(t)
	insertRoot(t, repo, now)

	current := "root-token"
	for i := 0; i < 5; i++ {
		succ := successor(fmt.Sprintf("succ-%d", i), now)
		redeemed, err := repo.Rotate(ctx, current, now, succ)
		require.NoError(t, err)
		require.Equal(t, current, redeemed.Token)
		current = succ.Token
	}

	// Every historical link is now used; only the head is live.
	head, err := repo.Get(ctx, current)
	require.NoError(t, err)
	require.False(t, head.Used)

	prev, err := repo.Get(ctx, head.PredecessorToken)
	require.NoError(t, err)
	require.True(t, prev.Used)
}
