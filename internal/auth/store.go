package auth

import "context"

// Store describes persistence operations required by the authorization core.
// Domain CRUD (families, BCCs, sacraments, dioceses) lives behind its own
// repositories and is not part of this interface.
type Store interface {
	Users() UserStore
	Roles() RoleStore
	Permissions() PermissionStore
	Tokens() TokenStore
}

// UserStore manages identity records.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	SetRole(ctx context.Context, userID, roleID string) error
	// Deactivate clears the active flag and revokes every token of the
	// user inside one transaction.
	Deactivate(ctx context.Context, userID string) error
	SoftDelete(ctx context.Context, userID string) error
}

// RoleStore manages system and tenant-custom roles.
type RoleStore interface {
	Create(ctx context.Context, role *Role) error
	Find(ctx context.Context, id string) (*Role, error)
	FindByName(ctx context.Context, tenantID *string, name string) (*Role, error)
	// ListForTenant returns global system roles plus the tenant's own
	// custom roles, never another tenant's.
	ListForTenant(ctx context.Context, tenantID string) ([]Role, error)
	CountCustom(ctx context.Context, tenantID string) (int, error)
	AssignedUsers(ctx context.Context, roleID string) (int, error)
	SoftDelete(ctx context.Context, roleID string) error
	Ensure(ctx context.Context, roles []Role) error
}

// PermissionStore manages the permission catalog and both join tables.
// Assignment operations are idempotent: granting an already-held permission
// is a no-op success.
type PermissionStore interface {
	Ensure(ctx context.Context, perms []Permission) error
	FindByNames(ctx context.Context, tenantID *string, names []string) ([]Permission, error)
	ForRole(ctx context.Context, roleID string) ([]Permission, error)
	// EffectiveForUser returns the union of role-derived and directly
	// granted permission names, filtered to active, non-deleted rows whose
	// tenant scope is global or matches the user's tenant.
	EffectiveForUser(ctx context.Context, userID string) ([]string, error)
	AssignToRole(ctx context.Context, roleID string, permissionIDs []string) error
	RemoveFromRole(ctx context.Context, roleID string, permissionIDs []string) error
	ReplaceForRole(ctx context.Context, roleID string, permissionIDs []string) error
	AssignToUser(ctx context.Context, userID string, permissionIDs []string) error
	RemoveFromUser(ctx context.Context, userID string, permissionIDs []string) error
}

// TokenStore manages access/refresh token pairs. Tokens are marked revoked,
// never deleted inline; the retention sweep prunes them.
type TokenStore interface {
	CreatePair(ctx context.Context, access *AccessToken, refresh *RefreshToken) error
	FindAccess(ctx context.Context, id string) (*AccessToken, error)
	FindRefresh(ctx context.Context, id string) (*RefreshToken, error)
	// Rotate revokes the given refresh token and its owning access token
	// and persists the replacement pair in one transaction. When two
	// callers race on the same refresh token exactly one succeeds; the
	// loser gets ErrInvalidOrRevokedToken.
	Rotate(ctx context.Context, refreshID string, newAccess *AccessToken, newRefresh *RefreshToken) error
	Revoke(ctx context.Context, accessID string) error
	RevokeAllForUser(ctx context.Context, userID string) error
}
