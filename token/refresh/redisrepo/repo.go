// Package redisrepo provides a Redis-backed refresh.Repo. The rotation
// read-check-write runs inside a single Lua script, which Redis executes
// atomically, so concurrent refreshes of the same token see exactly one winner.
package redisrepo

import (
	"context"
	"strconv"
	"time"

	"github.com/jrsteele09/go-authz-engine/token/refresh"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

var _ refresh.Repo = (*Repo)(nil)

const defaultKeyPrefix = "refresh:"

// rotateScript implements the full rotation contract server-side:
// missing/revoked/used/expired checks, family poisoning on reuse, then
// mark-used plus successor insert in one atomic step.
var rotateScript = redis.NewScript(`
local prefix = ARGV[5]
if redis.call('EXISTS', KEYS[1]) == 0 then
	return 'notfound'
end
local fam = redis.call('HGET', KEYS[1], 'family')
if redis.call('EXISTS', prefix .. 'family_revoked:' .. fam) == 1 or redis.call('HGET', KEYS[1], 'revoked') == '1' then
	return 'revoked'
end
if redis.call('HGET', KEYS[1], 'used') == '1' then
	redis.call('SET', prefix .. 'family_revoked:' .. fam, '1')
	return 'used'
end
if tonumber(ARGV[1]) > tonumber(redis.call('HGET', KEYS[1], 'expires_at')) then
	return 'expired'
end
redis.call('HSET', KEYS[1], 'used', '1')
local succ = prefix .. 'token:' .. ARGV[2]
redis.call('HSET', succ,
	'token', ARGV[2],
	'family', fam,
	'predecessor', redis.call('HGET', KEYS[1], 'token'),
	'subject', redis.call('HGET', KEYS[1], 'subject'),
	'issued_at', ARGV[3],
	'expires_at', ARGV[4],
	'used', '0',
	'revoked', '0')
redis.call('SADD', prefix .. 'family:' .. fam, ARGV[2])
return 'ok'
`)

type Repo struct {
	client redis.UniversalClient
	prefix string
}

func New(client redis.UniversalClient) *Repo {
	return &Repo{
		client: client,
		prefix: defaultKeyPrefix,
	}
}

func (r *Repo) Insert(ctx context.Context, rt *refresh.StoredRefreshToken) error {
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, r.tokenKey(rt.Token), map[string]any{
		"token":       rt.Token,
		"family":      rt.FamilyID,
		"predecessor": rt.PredecessorToken,
		"subject":     rt.SubjectID,
		"issued_at":   rt.IssuedAt.Unix(),
		"expires_at":  rt.ExpiresAt.Unix(),
		"used":        boolField(rt.Used),
		"revoked":     boolField(rt.Revoked),
	})
	pipe.SAdd(ctx, r.familyKey(rt.FamilyID), rt.Token)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "redisrepo.Insert")
	}
	return nil
}

func (r *Repo) Get(ctx context.Context, token string) (*refresh.StoredRefreshToken, error) {
	fields, err := r.client.HGetAll(ctx, r.tokenKey(token)).Result()
	if err != nil {
		return nil, errors.Wrap(err, "redisrepo.Get")
	}
	if len(fields) == 0 {
		return nil, refresh.ErrNotFound
	}

	rt, err := recordFromFields(fields)
	if err != nil {
		return nil, err
	}

	// Family-level revocation marker overrides the per-record flag.
	if !rt.Revoked {
		revoked, err := r.FamilyRevoked(ctx, rt.FamilyID)
		if err != nil {
			return nil, err
		}
		rt.Revoked = revoked
	}
	return rt, nil
}

func (r *Repo) Rotate(ctx context.Context, token string, now time.Time, successor *refresh.StoredRefreshToken) (*refresh.StoredRefreshToken, error) {
	status, err := rotateScript.Run(ctx, r.client,
		[]string{r.tokenKey(token)},
		now.Unix(),
		successor.Token,
		successor.IssuedAt.Unix(),
		successor.ExpiresAt.Unix(),
		r.prefix,
	).Text()
	if err != nil {
		return nil, errors.Wrap(err, "redisrepo.Rotate script")
	}

	switch status {
	case "notfound":
		return nil, refresh.ErrNotFound
	case "revoked":
		return r.recordAfterStatus(ctx, token, refresh.ErrRevoked)
	case "used":
		return r.recordAfterStatus(ctx, token, refresh.ErrUsed)
	case "expired":
		return r.recordAfterStatus(ctx, token, refresh.ErrExpired)
	case "ok":
		rt, err := r.Get(ctx, token)
		if err != nil {
			return nil, err
		}
		successor.FamilyID = rt.FamilyID
		successor.PredecessorToken = rt.Token
		successor.SubjectID = rt.SubjectID
		return rt, nil
	default:
		return nil, errors.Errorf("redisrepo.Rotate unexpected script status %q", status)
	}
}

// recordAfterStatus fetches the redeemed record for audit context after the
// rotation script reported a terminal status. A failed lookup rides on the
// sentinel's message so the caller's classification still works while the
// fault stays visible.
func (r *Repo) recordAfterStatus(ctx context.Context, token string, sentinel error) (*refresh.StoredRefreshToken, error) {
	rt, err := r.Get(ctx, token)
	if err != nil {
		return nil, errors.WithMessagef(sentinel, "record lookup after rotate: %v", err)
	}
	return rt, sentinel
}

func (r *Repo) RevokeFamily(ctx context.Context, familyID string) error {
	if err := r.client.Set(ctx, r.familyRevokedKey(familyID), "1", 0).Err(); err != nil {
		return errors.Wrap(err, "redisrepo.RevokeFamily marker")
	}

	members, err := r.client.SMembers(ctx, r.familyKey(familyID)).Result()
	if err != nil {
		return errors.Wrap(err, "redisrepo.RevokeFamily members")
	}
	for _, member := range members {
		if err := r.client.HSet(ctx, r.tokenKey(member), "revoked", "1").Err(); err != nil {
			return errors.Wrap(err, "redisrepo.RevokeFamily member")
		}
	}
	return nil
}

func (r *Repo) FamilyRevoked(ctx context.Context, familyID string) (bool, error) {
	exists, err := r.client.Exists(ctx, r.familyRevokedKey(familyID)).Result()
	if err != nil {
		return false, errors.Wrap(err, "redisrepo.FamilyRevoked")
	}
	return exists == 1, nil
}

func (r *Repo) tokenKey(token string) string {
	return r.prefix + "token:" + token
}

func (r *Repo) familyKey(familyID string) string {
	return r.prefix + "family:" + familyID
}

func (r *Repo) familyRevokedKey(familyID string) string {
	return r.prefix + "family_revoked:" + familyID
}

func recordFromFields(fields map[string]string) (*refresh.StoredRefreshToken, error) {
	issuedAt, err := strconv.ParseInt(fields["issued_at"], 10, 64)
	if err != nil {
		return nil, errors.Wrap(err, "redisrepo issued_at")
	}
	expiresAt, err := strconv.ParseInt(fields["expires_at"], 10, 64)
	if err != nil {
		return nil, errors.Wrap(err, "redisrepo expires_at")
	}

	return &refresh.StoredRefreshToken{
		Token:            fields["token"],
		FamilyID:         fields["family"],
		PredecessorToken: fields["predecessor"],
		SubjectID:        fields["subject"],
		IssuedAt:         time.Unix(issuedAt, 0).UTC(),
		ExpiresAt:        time.Unix(expiresAt, 0).UTC(),
		Used:             fields["used"] == "1",
		Revoked:          fields["revoked"] == "1",
	}, nil
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
