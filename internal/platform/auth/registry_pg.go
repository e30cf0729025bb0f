package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type pgRow interface {
	Scan(dest ...any) error
}

// pgConn is the subset of *pgxpool.Pool used by PGPersister, so tests can
// run without a database.
type pgConn interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgRow
	Exec(ctx context.Context, sql string, args ...any) (int64, error)
}

// PGPersister stores admin sessions in the admin_sessions table.
type PGPersister struct {
	db pgConn
}

// NewPGPersister creates a persister on top of db.
func NewPGPersister(db pgConn) *PGPersister {
	return &PGPersister{db: db}
}

// NewPGPersisterFromPool creates a persister backed by a pgx pool.
func NewPGPersisterFromPool(pool *pgxpool.Pool) *PGPersister {
	return &PGPersister{db: &poolConn{pool: pool}}
}

func (p *PGPersister) Save(ctx context.Context, rec Record) error {
	const query = `INSERT INTO admin_sessions (id, access_token, user_id, email, name, expires_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO UPDATE SET access_token = EXCLUDED.access_token,
                               expires_at   = EXCLUDED.expires_at`

	if _, err := p.db.Exec(ctx, query, rec.ID, rec.AccessToken, rec.User.ID, rec.User.Email,
		rec.User.Name, nullTime(rec.ExpiresAt), rec.CreatedAt); err != nil {
		return fmt.Errorf("save admin session: %w", err)
	}
	return nil
}

func (p *PGPersister) Load(ctx context.Context, id string) (*Record, error) {
	const query = `SELECT id, access_token, user_id, email, name, expires_at, created_at
FROM admin_sessions
WHERE id = $1 AND (expires_at IS NULL OR expires_at > now())`

	var (
		rec       Record
		expiresAt *time.Time
	)
	err := p.db.QueryRow(ctx, query, id).Scan(&rec.ID, &rec.AccessToken, &rec.User.ID,
		&rec.User.Email, &rec.User.Name, &expiresAt, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("load admin session: %w", err)
	}
	if expiresAt != nil {
		rec.ExpiresAt = *expiresAt
	}
	return &rec, nil
}

func (p *PGPersister) Delete(ctx context.Context, id string) error {
	if _, err := p.db.Exec(ctx, `DELETE FROM admin_sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete admin session: %w", err)
	}
	return nil
}

func (p *PGPersister) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	n, err := p.db.Exec(ctx, `DELETE FROM admin_sessions WHERE expires_at IS NOT NULL AND expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("purge admin sessions: %w", err)
	}
	return int(n), nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// poolConn adapts *pgxpool.Pool, whose Exec returns a command tag.
type poolConn struct {
	pool *pgxpool.Pool
}

func (c *poolConn) QueryRow(ctx context.Context, sql string, args ...any) pgRow {
	return c.pool.QueryRow(ctx, sql, args...)
}

func (c *poolConn) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	tag, err := c.pool.Exec(ctx, sql, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
