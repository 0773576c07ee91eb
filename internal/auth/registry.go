package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ekklesia.org/internal/ids"
)

// Registry resolves effective permissions and manages tenant-custom roles.
// System roles are immutable reference data; custom roles live inside a
// configured level band and per-tenant quota.
type Registry struct {
	store Store

	minLevel        int
	maxLevel        int
	quota           int
	softDeleteInUse bool
	superAdminRole  string
}

// RegistryOption configures Registry behavior.
type RegistryOption func(*Registry)

// WithCustomRoleBand overrides the allowed level range for custom roles.
func WithCustomRoleBand(min, max int) RegistryOption {
	return func(r *Registry) {
		if min > 0 && max >= min {
			r.minLevel = min
			r.maxLevel = max
		}
	}
}

// WithCustomRoleQuota overrides the per-tenant custom role limit.
func WithCustomRoleQuota(n int) RegistryOption {
	return func(r *Registry) {
		if n > 0 {
			r.quota = n
		}
	}
}

// WithRoleInUseSoftDelete controls what DeleteRole does with a custom role
// that still has users assigned: soft-delete it (default) or refuse with
// ErrRoleInUse.
func WithRoleInUseSoftDelete(allow bool) RegistryOption {
	return func(r *Registry) { r.softDeleteInUse = allow }
}

// WithRegistrySuperAdminRole overrides the bypass role name.
func WithRegistrySuperAdminRole(name string) RegistryOption {
	return func(r *Registry) {
		if strings.TrimSpace(name) != "" {
			r.superAdminRole = strings.TrimSpace(name)
		}
	}
}

// NewRegistry constructs a Registry.
func NewRegistry(store Store, opts ...RegistryOption) (*Registry, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	reg := &Registry{
		store:           store,
		minLevel:        DefaultCustomRoleMinLevel,
		maxLevel:        DefaultCustomRoleMaxLevel,
		quota:           DefaultCustomRoleQuota,
		softDeleteInUse: true,
		superAdminRole:  RoleSuperAdmin,
	}
	for _, opt := range opts {
		opt(reg)
	}
	return reg, nil
}

// EffectivePermissions returns the union of the user's role-derived and
// directly granted permission names, filtered by the store to active,
// non-deleted rows in the user's tenant scope or global.
func (r *Registry) EffectivePermissions(ctx context.Context, user *User) (map[string]struct{}, error) {
	if user == nil {
		return nil, fmt.Errorf("%w: user is required", ErrInvalidInput)
	}
	names, err := r.store.Permissions().EffectiveForUser(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return set, nil
}

// HasPermission is the canonical capability check: primary admins pass,
// holders of the super-admin role pass, everyone else needs the permission
// in their effective set. Granting a permission can only flip the answer
// from false to true.
func (r *Registry) HasPermission(ctx context.Context, user *User, permissionName string) (bool, error) {
	if user == nil {
		return false, nil
	}
	if user.IsPrimaryAdmin {
		return true, nil
	}
	if user.RoleID != nil {
		role, err := r.store.Roles().Find(ctx, *user.RoleID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return false, err
		}
		if role != nil && roleVisibleTo(role, user) && role.Name == r.superAdminRole {
			return true, nil
		}
	}
	set, err := r.EffectivePermissions(ctx, user)
	if err != nil {
		return false, err
	}
	_, ok := set[permissionName]
	return ok, nil
}

// ListRoles returns the roles visible to a tenant: the global system roles
// plus the tenant's own custom roles.
func (r *Registry) ListRoles(ctx context.Context, tenantID string) ([]Role, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenant_id is required", ErrInvalidInput)
	}
	return r.store.Roles().ListForTenant(ctx, tenantID)
}

// CreateCustomRole defines a tenant-scoped role at a level inside the
// custom band and attaches the named permissions to it. The name must be
// unique within the tenant and the tenant must be under its quota.
func (r *Registry) CreateCustomRole(ctx context.Context, tenantID, name string, level int, permissionNames []string) (*Role, error) {
	tenantID = strings.TrimSpace(tenantID)
	name = strings.TrimSpace(name)
	if tenantID == "" || name == "" {
		return nil, fmt.Errorf("%w: tenant_id and role name are required", ErrInvalidInput)
	}
	if level < r.minLevel || level > r.maxLevel {
		return nil, fmt.Errorf("%w: level %d not in [%d, %d]", ErrLevelOutOfRange, level, r.minLevel, r.maxLevel)
	}
	count, err := r.store.Roles().CountCustom(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if count >= r.quota {
		return nil, fmt.Errorf("%w: tenant already has %d custom roles", ErrQuotaExceeded, count)
	}
	if existing, err := r.store.Roles().FindByName(ctx, &tenantID, name); err == nil && existing != nil {
		return nil, fmt.Errorf("%w: role %q already exists", ErrConflict, name)
	} else if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	// Resolve permission names before touching storage so an unknown name
	// rejects the whole request instead of leaving a permissionless role
	// behind, counted against the quota.
	var permIDs []string
	if len(permissionNames) > 0 {
		permIDs, err = r.resolvePermissionIDs(ctx, &tenantID, permissionNames)
		if err != nil {
			return nil, err
		}
	}
	role := &Role{
		ID:       ids.New(),
		TenantID: &tenantID,
		Name:     name,
		Level:    level,
		IsCustom: true,
		Active:   true,
	}
	if err := r.store.Roles().Create(ctx, role); err != nil {
		return nil, err
	}
	if len(permIDs) > 0 {
		if err := r.store.Permissions().ReplaceForRole(ctx, role.ID, permIDs); err != nil {
			return nil, err
		}
	}
	return role, nil
}

// DeleteRole tombstones a custom role. System roles can never be deleted,
// and a role with users still assigned is either soft-deleted (default) or
// refused, depending on configuration. Hard purge happens later in the
// retention sweep.
func (r *Registry) DeleteRole(ctx context.Context, roleID string) error {
	roleID = strings.TrimSpace(roleID)
	if roleID == "" {
		return fmt.Errorf("%w: role_id is required", ErrInvalidInput)
	}
	role, err := r.store.Roles().Find(ctx, roleID)
	if err != nil {
		return err
	}
	if !role.IsCustom {
		return ErrProtectedRole
	}
	assigned, err := r.store.Roles().AssignedUsers(ctx, roleID)
	if err != nil {
		return err
	}
	if assigned > 0 && !r.softDeleteInUse {
		return fmt.Errorf("%w: %d users assigned", ErrRoleInUse, assigned)
	}
	return r.store.Roles().SoftDelete(ctx, roleID)
}

// AssignToRole grants permissions to a role. Idempotent.
func (r *Registry) AssignToRole(ctx context.Context, roleID string, permissionNames []string) error {
	role, permIDs, err := r.roleAndPermissionIDs(ctx, roleID, permissionNames)
	if err != nil {
		return err
	}
	return r.store.Permissions().AssignToRole(ctx, role.ID, permIDs)
}

// RemoveFromRole removes permissions from a role. Idempotent.
func (r *Registry) RemoveFromRole(ctx context.Context, roleID string, permissionNames []string) error {
	role, permIDs, err := r.roleAndPermissionIDs(ctx, roleID, permissionNames)
	if err != nil {
		return err
	}
	return r.store.Permissions().RemoveFromRole(ctx, role.ID, permIDs)
}

// BulkAssignToRole replaces the role's full permission set.
func (r *Registry) BulkAssignToRole(ctx context.Context, roleID string, permissionNames []string) error {
	roleID = strings.TrimSpace(roleID)
	if roleID == "" {
		return fmt.Errorf("%w: role_id is required", ErrInvalidInput)
	}
	role, err := r.store.Roles().Find(ctx, roleID)
	if err != nil {
		return err
	}
	permIDs, err := r.resolvePermissionIDs(ctx, role.TenantID, permissionNames)
	if err != nil {
		return err
	}
	return r.store.Permissions().ReplaceForRole(ctx, role.ID, permIDs)
}

// AssignToUser grants permissions directly to a user, in addition to
// whatever the user's role carries. Idempotent.
func (r *Registry) AssignToUser(ctx context.Context, userID string, permissionNames []string) error {
	user, permIDs, err := r.userAndPermissionIDs(ctx, userID, permissionNames)
	if err != nil {
		return err
	}
	return r.store.Permissions().AssignToUser(ctx, user.ID, permIDs)
}

// RemoveFromUser removes direct permission grants from a user. Idempotent.
func (r *Registry) RemoveFromUser(ctx context.Context, userID string, permissionNames []string) error {
	user, permIDs, err := r.userAndPermissionIDs(ctx, userID, permissionNames)
	if err != nil {
		return err
	}
	return r.store.Permissions().RemoveFromUser(ctx, user.ID, permIDs)
}

// AssignRoleToUser points a user at a role. The role must be visible to the
// user's tenant.
func (r *Registry) AssignRoleToUser(ctx context.Context, userID, roleID string) error {
	userID = strings.TrimSpace(userID)
	roleID = strings.TrimSpace(roleID)
	if userID == "" || roleID == "" {
		return fmt.Errorf("%w: user_id and role_id are required", ErrInvalidInput)
	}
	user, err := r.store.Users().Find(ctx, userID)
	if err != nil {
		return err
	}
	role, err := r.store.Roles().Find(ctx, roleID)
	if err != nil {
		return err
	}
	if !roleVisibleTo(role, user) {
		return ErrCrossTenantAccess
	}
	return r.store.Users().SetRole(ctx, userID, roleID)
}

func (r *Registry) roleAndPermissionIDs(ctx context.Context, roleID string, names []string) (*Role, []string, error) {
	roleID = strings.TrimSpace(roleID)
	if roleID == "" {
		return nil, nil, fmt.Errorf("%w: role_id is required", ErrInvalidInput)
	}
	role, err := r.store.Roles().Find(ctx, roleID)
	if err != nil {
		return nil, nil, err
	}
	permIDs, err := r.resolvePermissionIDs(ctx, role.TenantID, names)
	if err != nil {
		return nil, nil, err
	}
	return role, permIDs, nil
}

func (r *Registry) userAndPermissionIDs(ctx context.Context, userID string, names []string) (*User, []string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, nil, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	user, err := r.store.Users().Find(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	permIDs, err := r.resolvePermissionIDs(ctx, user.TenantID, names)
	if err != nil {
		return nil, nil, err
	}
	return user, permIDs, nil
}

// resolvePermissionIDs maps permission names to ids, accepting global
// permissions and, when a tenant scope is given, that tenant's custom ones.
// Unknown names are rejected rather than silently dropped.
func (r *Registry) resolvePermissionIDs(ctx context.Context, tenantID *string, names []string) ([]string, error) {
	names = dedupeScopes(names)
	if len(names) == 0 {
		return nil, nil
	}
	perms, err := r.store.Permissions().FindByNames(ctx, tenantID, names)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]string, len(perms))
	for _, p := range perms {
		byName[p.Name] = p.ID
	}
	ids := make([]string, 0, len(names))
	for _, n := range names {
		id, ok := byName[n]
		if !ok {
			return nil, fmt.Errorf("%w: unknown permission %q", ErrNotFound, n)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
