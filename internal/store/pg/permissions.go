package pg

import (
	"context"

	"ekklesia.org/internal/auth"
	"ekklesia.org/internal/ids"
)

type permissionStore Store

const permissionColumns = `id, name, display_name, module, category, tenant_id, is_custom, active, created_at, deleted_at`

// Ensure upserts the builtin permission catalog (tenant_id null).
func (s *permissionStore) Ensure(ctx context.Context, perms []auth.Permission) error {
	for _, p := range perms {
		id := p.ID
		if id == "" {
			id = ids.New()
		}
		if _, err := s.db.ExecContext(ctx, `
			insert into permissions (id, name, display_name, module, category, tenant_id, is_custom, active)
			values ($1, $2, $3, $4, $5, null, false, true)
			on conflict (name) where tenant_id is null
			do update set display_name = excluded.display_name, module = excluded.module, category = excluded.category
		`, id, p.Name, p.DisplayName, p.Module, p.Category); err != nil {
			return err
		}
	}
	return nil
}

// FindByNames resolves permission names to rows, accepting global
// permissions and, when a tenant scope is given, that tenant's own.
func (s *permissionStore) FindByNames(ctx context.Context, tenantID *string, names []string) ([]auth.Permission, error) {
	if len(names) == 0 {
		return nil, nil
	}
	query := `
		select ` + permissionColumns + `
		from permissions
		where deleted_at is null
		  and (tenant_id is null or tenant_id = $1)
		  and name in (` + placeholders(2, len(names)) + `)`
	rows, err := s.db.QueryContext(ctx, query, stringArgs([]any{tenantID}, names)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []auth.Permission
	for rows.Next() {
		var p auth.Permission
		if err := rows.Scan(
			&p.ID, &p.Name, &p.DisplayName, &p.Module, &p.Category,
			&p.TenantID, &p.IsCustom, &p.Active, &p.CreatedAt, &p.DeletedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func (s *permissionStore) ForRole(ctx context.Context, roleID string) ([]auth.Permission, error) {
	rows, err := s.db.QueryContext(ctx, `
		select p.id, p.name, p.display_name, p.module, p.category, p.tenant_id, p.is_custom, p.active, p.created_at, p.deleted_at
		from permissions p
		join role_permission rp on rp.permission_id = p.id
		where rp.role_id = $1 and p.deleted_at is null
		order by p.name
	`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []auth.Permission
	for rows.Next() {
		var p auth.Permission
		if err := rows.Scan(
			&p.ID, &p.Name, &p.DisplayName, &p.Module, &p.Category,
			&p.TenantID, &p.IsCustom, &p.Active, &p.CreatedAt, &p.DeletedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

// EffectiveForUser computes the user's effective permission names in one
// round trip: role-derived grants unioned with direct grants, each side
// filtered to active, non-deleted rows whose tenant scope is global or
// matches the user's tenant. This filter is the storage-level half of
// tenant isolation; the request-time guard is the other.
func (s *permissionStore) EffectiveForUser(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		select p.name
		from permissions p
		join role_permission rp on rp.permission_id = p.id
		join roles r on r.id = rp.role_id
		join users u on u.role_id = r.id
		where u.id = $1
		  and p.active and p.deleted_at is null
		  and r.active and r.deleted_at is null
		  and (r.tenant_id is null or r.tenant_id = u.tenant_id)
		  and (p.tenant_id is null or p.tenant_id = u.tenant_id)
		union
		select p.name
		from permissions p
		join user_permission up on up.permission_id = p.id
		join users u on u.id = up.user_id
		where u.id = $1
		  and p.active and p.deleted_at is null
		  and (p.tenant_id is null or p.tenant_id = u.tenant_id)
		order by 1
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *permissionStore) AssignToRole(ctx context.Context, roleID string, permissionIDs []string) error {
	return s.insertJoin(ctx, "role_permission", "role_id", roleID, permissionIDs)
}

func (s *permissionStore) RemoveFromRole(ctx context.Context, roleID string, permissionIDs []string) error {
	return s.deleteJoin(ctx, "role_permission", "role_id", roleID, permissionIDs)
}

// ReplaceForRole swaps the role's full permission set in one transaction.
func (s *permissionStore) ReplaceForRole(ctx context.Context, roleID string, permissionIDs []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `delete from role_permission where role_id = $1`, roleID); err != nil {
		return err
	}
	for _, permID := range permissionIDs {
		if _, err := tx.ExecContext(ctx, `
			insert into role_permission (role_id, permission_id) values ($1, $2)
			on conflict do nothing
		`, roleID, permID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *permissionStore) AssignToUser(ctx context.Context, userID string, permissionIDs []string) error {
	return s.insertJoin(ctx, "user_permission", "user_id", userID, permissionIDs)
}

func (s *permissionStore) RemoveFromUser(ctx context.Context, userID string, permissionIDs []string) error {
	return s.deleteJoin(ctx, "user_permission", "user_id", userID, permissionIDs)
}

// insertJoin grants idempotently: re-granting an already-held permission is
// a no-op success.
func (s *permissionStore) insertJoin(ctx context.Context, table, ownerCol, ownerID string, permissionIDs []string) error {
	for _, permID := range permissionIDs {
		if _, err := s.db.ExecContext(ctx, `
			insert into `+table+` (`+ownerCol+`, permission_id) values ($1, $2)
			on conflict do nothing
		`, ownerID, permID); err != nil {
			if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
				return auth.ErrNotFound
			}
			return err
		}
	}
	return nil
}

func (s *permissionStore) deleteJoin(ctx context.Context, table, ownerCol, ownerID string, permissionIDs []string) error {
	if len(permissionIDs) == 0 {
		return nil
	}
	query := `delete from ` + table + ` where ` + ownerCol + ` = $1 and permission_id in (` + placeholders(2, len(permissionIDs)) + `)`
	_, err := s.db.ExecContext(ctx, query, stringArgs([]any{ownerID}, permissionIDs)...)
	return err
}
