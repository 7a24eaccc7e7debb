// Package sqliterepo provides a SQLite-backed refresh.Repo. Rotation runs in a
// single transaction; the pool is capped at one connection so transactions
// serialize instead of failing with SQLITE_BUSY under concurrent refreshes.
package sqliterepo

import (
	"context"
	"database/sql"
	"time"

	"github.com/jrsteele09/go-authz-engine/token/refresh"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

var _ refresh.Repo = (*Repo)(nil)

type Repo struct {
	db *sql.DB
}

// New opens (or creates) the SQLite database at dbPath and initialises the schema.
func New(dbPath string) (*Repo, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, errors.Wrap(err, "sqliterepo.New open")
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000;"); err != nil {
		return nil, errors.Wrap(err, "sqliterepo.New busy_timeout")
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS refresh_tokens (
			token       TEXT PRIMARY KEY,
			family_id   TEXT NOT NULL,
			predecessor TEXT NOT NULL DEFAULT '',
			subject_id  TEXT NOT NULL,
			issued_at   INTEGER NOT NULL,
			expires_at  INTEGER NOT NULL,
			used        INTEGER NOT NULL DEFAULT 0,
			revoked     INTEGER NOT NULL DEFAULT 0
		);`); err != nil {
		return nil, errors.Wrap(err, "sqliterepo.New schema")
	}

	if _, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_refresh_tokens_family
		ON refresh_tokens (family_id);`); err != nil {
		return nil, errors.Wrap(err, "sqliterepo.New index")
	}

	return &Repo{db: db}, nil
}

func (r *Repo) Close() error {
	return r.db.Close()
}

func (r *Repo) Insert(ctx context.Context, rt *refresh.StoredRefreshToken) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens
			(token, family_id, predecessor, subject_id, issued_at, expires_at, used, revoked)
		VALUES (?1, ?2, ?3, ?4, ?5, ?6, ?7, ?8);`,
		rt.Token, rt.FamilyID, rt.PredecessorToken, rt.SubjectID,
		rt.IssuedAt.Unix(), rt.ExpiresAt.Unix(), boolToInt(rt.Used), boolToInt(rt.Revoked),
	)
	if err != nil {
		return errors.Wrap(err, "sqliterepo.Insert")
	}
	return nil
}

func (r *Repo) Get(ctx context.Context, token string) (*refresh.StoredRefreshToken, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT token, family_id, predecessor, subject_id, issued_at, expires_at, used, revoked
		FROM refresh_tokens
		WHERE token = ?1;`, token)
	return scanToken(row)
}

func (r *Repo) Rotate(ctx context.Context, token string, now time.Time, successor *refresh.StoredRefreshToken) (*refresh.StoredRefreshToken, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "sqliterepo.Rotate begin")
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	row := tx.QueryRowContext(ctx, `
		SELECT token, family_id, predecessor, subject_id, issued_at, expires_at, used, revoked
		FROM refresh_tokens
		WHERE token = ?1;`, token)
	rt, err := scanToken(row)
	if err != nil {
		return nil, err
	}

	var familyRevoked bool
	if err := tx.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM refresh_tokens
			WHERE family_id = ?1 AND revoked = 1
		);`, rt.FamilyID).Scan(&familyRevoked); err != nil {
		return nil, errors.Wrap(err, "sqliterepo.Rotate family check")
	}
	if rt.Revoked || familyRevoked {
		return rt, refresh.ErrRevoked
	}

	if rt.Used {
		if _, err := tx.ExecContext(ctx, `
			UPDATE refresh_tokens SET revoked = 1 WHERE family_id = ?1;`, rt.FamilyID); err != nil {
			return nil, errors.Wrap(err, "sqliterepo.Rotate revoke family")
		}
		if err := tx.Commit(); err != nil {
			return nil, errors.Wrap(err, "sqliterepo.Rotate commit revoke")
		}
		return rt, refresh.ErrUsed
	}

	if now.After(rt.ExpiresAt) {
		return rt, refresh.ErrExpired
	}

	// Compare-and-swap form even inside the transaction, so the single-use
	// invariant holds regardless of the connection's isolation behaviour.
	res, err := tx.ExecContext(ctx, `
		UPDATE refresh_tokens SET used = 1 WHERE token = ?1 AND used = 0;`, token)
	if err != nil {
		return nil, errors.Wrap(err, "sqliterepo.Rotate mark used")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, errors.Wrap(err, "sqliterepo.Rotate rows affected")
	}
	if affected != 1 {
		if _, err := tx.ExecContext(ctx, `
			UPDATE refresh_tokens SET revoked = 1 WHERE family_id = ?1;`, rt.FamilyID); err != nil {
			return nil, errors.Wrap(err, "sqliterepo.Rotate revoke family")
		}
		if err := tx.Commit(); err != nil {
			return nil, errors.Wrap(err, "sqliterepo.Rotate commit revoke")
		}
		return rt, refresh.ErrUsed
	}

	successor.FamilyID = rt.FamilyID
	successor.PredecessorToken = rt.Token
	successor.SubjectID = rt.SubjectID
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO refresh_tokens
			(token, family_id, predecessor, subject_id, issued_at, expires_at, used, revoked)
		VALUES (?1, ?2, ?3, ?4, ?5, ?6, 0, 0);`,
		successor.Token, successor.FamilyID, successor.PredecessorToken, successor.SubjectID,
		successor.IssuedAt.Unix(), successor.ExpiresAt.Unix(),
	); err != nil {
		return nil, errors.Wrap(err, "sqliterepo.Rotate insert successor")
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "sqliterepo.Rotate commit")
	}

	rt.Used = true
	return rt, nil
}

func (r *Repo) RevokeFamily(ctx context.Context, familyID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE refresh_tokens SET revoked = 1 WHERE family_id = ?1;`, familyID)
	if err != nil {
		return errors.Wrap(err, "sqliterepo.RevokeFamily")
	}
	return nil
}

func (r *Repo) FamilyRevoked(ctx context.Context, familyID string) (bool, error) {
	var revoked bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM refresh_tokens
			WHERE family_id = ?1 AND revoked = 1
		);`, familyID).Scan(&revoked)
	if err != nil {
		return false, errors.Wrap(err, "sqliterepo.FamilyRevoked")
	}
	return revoked, nil
}

func scanToken(row *sql.Row) (*refresh.StoredRefreshToken, error) {
	var rt refresh.StoredRefreshToken
	var issuedAt, expiresAt int64
	var used, revoked int
	err := row.Scan(&rt.Token, &rt.FamilyID, &rt.PredecessorToken, &rt.SubjectID,
		&issuedAt, &expiresAt, &used, &revoked)
	if err == sql.ErrNoRows {
		return nil, refresh.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "sqliterepo scan")
	}
	rt.IssuedAt = time.Unix(issuedAt, 0).UTC()
	rt.ExpiresAt = time.Unix(expiresAt, 0).UTC()
	rt.Used = used == 1
	rt.Revoked = revoked == 1
	return &rt, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
