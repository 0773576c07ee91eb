package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"ekklesia.org/internal/auth"
	"ekklesia.org/internal/ids"
)

type userStore Store

const userColumns = `id, name, email, password_hash, user_type, is_primary_admin,
	tenant_id, role_id, active, created_at, updated_at, deleted_at`

func scanUser(row interface{ Scan(...any) error }) (*auth.User, error) {
	var u auth.User
	err := row.Scan(
		&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.UserType, &u.IsPrimaryAdmin,
		&u.TenantID, &u.RoleID, &u.Active, &u.CreatedAt, &u.UpdatedAt, &u.DeletedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *userStore) Create(ctx context.Context, u *auth.User) error {
	if u.ID == "" {
		u.ID = ids.New()
	}
	row := s.db.QueryRowContext(ctx, `
		insert into users (id, name, email, password_hash, user_type, is_primary_admin, tenant_id, role_id, active)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		returning created_at, updated_at
	`, u.ID, u.Name, u.Email, u.PasswordHash, u.UserType, u.IsPrimaryAdmin, u.TenantID, u.RoleID, u.Active)
	if err := row.Scan(&u.CreatedAt, &u.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return auth.ErrConflict
			case pgErrForeignKeyViolation:
				return auth.ErrUnknownTenant
			}
		}
		return err
	}
	return nil
}

func (s *userStore) Find(ctx context.Context, id string) (*auth.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `
		select `+userColumns+`
		from users
		where id = $1 and deleted_at is null
	`, id))
}

func (s *userStore) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `
		select `+userColumns+`
		from users
		where lower(email) = lower($1) and deleted_at is null
	`, email))
}

func (s *userStore) SetRole(ctx context.Context, userID, roleID string) error {
	res, err := s.db.ExecContext(ctx, `
		update users set role_id = $2, updated_at = now()
		where id = $1 and deleted_at is null
	`, userID, roleID)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return auth.ErrNotFound
		}
		return err
	}
	return requireRow(res)
}

// Deactivate flips the active flag and revokes every token of the user in
// one transaction, so a racing login either sees the active account or a
// fully revoked one — never a partial state.
func (s *userStore) Deactivate(ctx context.Context, userID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		update users set active = false, updated_at = now()
		where id = $1 and deleted_at is null
	`, userID)
	if err != nil {
		return err
	}
	if err := requireRow(res); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		update access_tokens set revoked = true
		where user_id = $1 and not revoked
	`, userID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		update refresh_tokens set revoked = true
		where access_token_id in (select id from access_tokens where user_id = $1) and not revoked
	`, userID); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *userStore) SoftDelete(ctx context.Context, userID string) error {
	res, err := s.db.ExecContext(ctx, `
		update users set deleted_at = now(), active = false, updated_at = now()
		where id = $1 and deleted_at is null
	`, userID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return auth.ErrNotFound
	}
	return nil
}
