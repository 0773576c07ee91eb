// Package retention purges tombstoned rows and dead token records once
// they age past the retention window. Nothing here runs inline with
// request handling; revocation and soft deletion only mark rows, the
// sweeper is what actually removes them.
package retention

import (
	"context"
	"database/sql"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultRetention is how long tombstoned rows and expired tokens are
// kept before the sweep removes them.
const DefaultRetention = 90 * 24 * time.Hour

// Result counts the rows each sweep removed.
type Result struct {
	Users         int64
	Roles         int64
	Permissions   int64
	AccessTokens  int64
	RefreshTokens int64
}

// Sweeper deletes rows whose tombstone or expiry predates the cutoff.
type Sweeper struct {
	db        *sql.DB
	retention time.Duration
	now       func() time.Time
}

// Option configures Sweeper.
type Option func(*Sweeper)

// WithRetention overrides the retention window.
func WithRetention(d time.Duration) Option {
	return func(s *Sweeper) {
		if d > 0 {
			s.retention = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSweeper constructs a Sweeper.
func NewSweeper(db *sql.DB, opts ...Option) *Sweeper {
	s := &Sweeper{db: db, retention: DefaultRetention, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sweep removes everything older than the cutoff. Independent tables are
// swept concurrently; roles and tokens need ordered statements and run
// sequentially within their own goroutine.
func (s *Sweeper) Sweep(ctx context.Context) (Result, error) {
	cutoff := s.now().UTC().Add(-s.retention)

	var res Result
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		n, err := s.execCount(ctx, `delete from users where deleted_at is not null and deleted_at < $1`, cutoff)
		atomic.AddInt64(&res.Users, n)
		return err
	})

	g.Go(func() error {
		// Users in soft-delete-in-use mode may still point at a
		// tombstoned role; detach them before the delete.
		if _, err := s.db.ExecContext(ctx, `
			update users set role_id = null
			where role_id in (select id from roles where deleted_at is not null and deleted_at < $1)
		`, cutoff); err != nil {
			return err
		}
		n, err := s.execCount(ctx, `delete from roles where deleted_at is not null and deleted_at < $1`, cutoff)
		atomic.AddInt64(&res.Roles, n)
		return err
	})

	g.Go(func() error {
		n, err := s.execCount(ctx, `delete from permissions where deleted_at is not null and deleted_at < $1`, cutoff)
		atomic.AddInt64(&res.Permissions, n)
		return err
	})

	g.Go(func() error {
		n, err := s.execCount(ctx, `delete from refresh_tokens where expires_at < $1`, cutoff)
		atomic.AddInt64(&res.RefreshTokens, n)
		if err != nil {
			return err
		}
		n, err = s.execCount(ctx, `
			delete from access_tokens
			where expires_at < $1
			  and not exists (select 1 from refresh_tokens rt where rt.access_token_id = access_tokens.id)
		`, cutoff)
		atomic.AddInt64(&res.AccessTokens, n)
		return err
	})

	if err := g.Wait(); err != nil {
		return Result{}, err
	}
	return res, nil
}

// execCount runs one statement and reports the affected row count. A
// driver that cannot report the count fails the sweep rather than
// silently zeroing it.
func (s *Sweeper) execCount(ctx context.Context, query string, args ...any) (int64, error) {
	tag, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := tag.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, nil
}
