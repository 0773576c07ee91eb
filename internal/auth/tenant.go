package auth

import "strings"

// Guard is the request-time tenant isolation policy. It is the single choke
// point deciding whether a caller may touch rows of a given tenant; storage
// queries still filter by tenant id as defense in depth.
type Guard struct {
	superAdminBypass bool
}

// GuardOption configures Guard behavior.
type GuardOption func(*Guard)

// WithSuperAdminBypass toggles the global super-admin exemption.
func WithSuperAdminBypass(enabled bool) GuardOption {
	return func(g *Guard) { g.superAdminBypass = enabled }
}

// NewGuard constructs a Guard. The super-admin bypass is on by default.
func NewGuard(opts ...GuardOption) Guard {
	g := Guard{superAdminBypass: true}
	for _, opt := range opts {
		opt(&g)
	}
	return g
}

// Authorize decides whether the user may access resources of the requested
// tenant. An empty requestedTenantID means the route did not pin a tenant
// and the user's own scope applies.
//
// Rules, in order: super-admins pass (when the bypass is enabled); users
// without any tenant are denied with ErrNoTenantMembership; users asking
// for a different tenant than their own are denied with
// ErrCrossTenantAccess.
func (g Guard) Authorize(user *User, requestedTenantID string) error {
	if user == nil {
		return ErrNoTenantMembership
	}
	if g.superAdminBypass && user.IsSuperAdmin() {
		return nil
	}
	if user.TenantID == nil {
		return ErrNoTenantMembership
	}
	requestedTenantID = strings.TrimSpace(requestedTenantID)
	if requestedTenantID != "" && requestedTenantID != *user.TenantID {
		return ErrCrossTenantAccess
	}
	return nil
}

// ResolveTenant returns the tenant scope for the request. The value is
// resolved once and threaded through context to every downstream
// data-access call, never re-derived ad hoc. Super-admins have no tenant of
// their own; their scope is whatever tenant the route addresses.
func (g Guard) ResolveTenant(user *User, requestedTenantID string) (string, bool) {
	if user == nil {
		return "", false
	}
	if user.TenantID != nil {
		return *user.TenantID, true
	}
	if g.superAdminBypass && user.IsSuperAdmin() && strings.TrimSpace(requestedTenantID) != "" {
		return strings.TrimSpace(requestedTenantID), true
	}
	return "", false
}
