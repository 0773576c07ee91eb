package pg

import (
	"context"
	"database/sql"
	"errors"

	"ekklesia.org/internal/auth"
	"ekklesia.org/internal/ids"
)

type roleStore Store

const roleColumns = `id, tenant_id, name, level, is_custom, active, created_at, updated_at, deleted_at`

func scanRole(row interface{ Scan(...any) error }) (*auth.Role, error) {
	var r auth.Role
	err := row.Scan(
		&r.ID, &r.TenantID, &r.Name, &r.Level, &r.IsCustom, &r.Active,
		&r.CreatedAt, &r.UpdatedAt, &r.DeletedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *roleStore) Create(ctx context.Context, role *auth.Role) error {
	if role.ID == "" {
		role.ID = ids.New()
	}
	row := s.db.QueryRowContext(ctx, `
		insert into roles (id, tenant_id, name, level, is_custom, active)
		values ($1, $2, $3, $4, $5, $6)
		returning created_at, updated_at
	`, role.ID, role.TenantID, role.Name, role.Level, role.IsCustom, role.Active)
	if err := row.Scan(&role.CreatedAt, &role.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return auth.ErrConflict
		}
		return err
	}
	return nil
}

func (s *roleStore) Find(ctx context.Context, id string) (*auth.Role, error) {
	return scanRole(s.db.QueryRowContext(ctx, `
		select `+roleColumns+`
		from roles
		where id = $1 and deleted_at is null
	`, id))
}

func (s *roleStore) FindByName(ctx context.Context, tenantID *string, name string) (*auth.Role, error) {
	return scanRole(s.db.QueryRowContext(ctx, `
		select `+roleColumns+`
		from roles
		where name = $1
		  and deleted_at is null
		  and (($2::text is null and tenant_id is null) or tenant_id = $2)
	`, name, tenantID))
}

func (s *roleStore) ListForTenant(ctx context.Context, tenantID string) ([]auth.Role, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+roleColumns+`
		from roles
		where deleted_at is null
		  and (tenant_id is null or tenant_id = $1)
		order by level, name
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []auth.Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *role)
	}
	return result, rows.Err()
}

func (s *roleStore) CountCustom(ctx context.Context, tenantID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		select count(*) from roles
		where tenant_id = $1 and is_custom and deleted_at is null
	`, tenantID).Scan(&n)
	return n, err
}

func (s *roleStore) AssignedUsers(ctx context.Context, roleID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		select count(*) from users
		where role_id = $1 and deleted_at is null
	`, roleID).Scan(&n)
	return n, err
}

func (s *roleStore) SoftDelete(ctx context.Context, roleID string) error {
	res, err := s.db.ExecContext(ctx, `
		update roles set deleted_at = now(), active = false, updated_at = now()
		where id = $1 and deleted_at is null
	`, roleID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// Ensure upserts the system role set. Levels and names are authoritative;
// an existing row keeps its id.
func (s *roleStore) Ensure(ctx context.Context, roles []auth.Role) error {
	for _, role := range roles {
		id := role.ID
		if id == "" {
			id = ids.New()
		}
		if _, err := s.db.ExecContext(ctx, `
			insert into roles (id, tenant_id, name, level, is_custom, active)
			values ($1, null, $2, $3, false, $4)
			on conflict (name) where tenant_id is null
			do update set level = excluded.level, active = excluded.active, updated_at = now()
		`, id, role.Name, role.Level, role.Active); err != nil {
			return err
		}
	}
	return nil
}
