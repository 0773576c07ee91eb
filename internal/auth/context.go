package auth

import "context"

// Principal is an authenticated user with the role and effective permission
// set resolved once per request. Handlers read it from the request context;
// nothing in this package stores per-request state globally.
type Principal struct {
	User        *User
	Role        *Role
	Permissions map[string]struct{}

	superAdminRole string
}

// NewPrincipal builds a principal from a user, its resolved role (may be
// nil) and its effective permission names.
func NewPrincipal(user *User, role *Role, permissionNames []string) Principal {
	set := make(map[string]struct{}, len(permissionNames))
	for _, name := range permissionNames {
		set[name] = struct{}{}
	}
	return Principal{User: user, Role: role, Permissions: set, superAdminRole: RoleSuperAdmin}
}

// HasPermission is the single capability-check entry point: primary admins
// pass, holders of the super-admin role pass, everyone else needs the named
// permission in their effective set.
func (p Principal) HasPermission(name string) bool {
	if p.User == nil {
		return false
	}
	if p.User.IsPrimaryAdmin {
		return true
	}
	if p.Role != nil && p.Role.Name == p.superAdminRole {
		return true
	}
	_, ok := p.Permissions[name]
	return ok
}

// TenantID returns the principal's tenant scope, resolved once per request
// and threaded through every downstream data-access call.
func (p Principal) TenantID() (string, bool) {
	if p.User == nil || p.User.TenantID == nil {
		return "", false
	}
	return *p.User.TenantID, true
}

type principalContextKey struct{}
type tokenContextKey struct{}
type tenantContextKey struct{}

// ContextWithPrincipal attaches the authenticated principal to the context.
func ContextWithPrincipal(ctx context.Context, principal Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, &principal)
}

// PrincipalFromContext extracts the authenticated principal.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	v, ok := ctx.Value(principalContextKey{}).(*Principal)
	if !ok || v == nil {
		return Principal{}, false
	}
	return *v, true
}

// ContextWithToken stores the verified access token id inside the context.
func ContextWithToken(ctx context.Context, tokenID string) context.Context {
	if tokenID == "" {
		return ctx
	}
	return context.WithValue(ctx, tokenContextKey{}, tokenID)
}

// TokenFromContext returns the access token id if previously attached.
func TokenFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	v, ok := ctx.Value(tokenContextKey{}).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// ContextWithTenant records the tenant scope resolved for this request.
func ContextWithTenant(ctx context.Context, tenantID string) context.Context {
	if tenantID == "" {
		return ctx
	}
	return context.WithValue(ctx, tenantContextKey{}, tenantID)
}

// TenantFromContext returns the resolved tenant scope for this request.
func TenantFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	v, ok := ctx.Value(tenantContextKey{}).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
