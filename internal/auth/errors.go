package auth

import "errors"

// Every rejection in this package maps to exactly one of these sentinels so
// the HTTP boundary and the audit log can attribute it without guessing.
var (
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrDuplicateEmail     = errors.New("auth: email already registered")
	ErrWeakPassword       = errors.New("auth: password does not meet policy")

	ErrMalformedToken        = errors.New("auth: malformed token")
	ErrSignatureInvalid      = errors.New("auth: token signature invalid")
	ErrExpiredToken          = errors.New("auth: token expired")
	ErrInvalidOrRevokedToken = errors.New("auth: token invalid or revoked")
	ErrOrphanedToken         = errors.New("auth: refresh token has no access token")

	ErrAccountInactive = errors.New("auth: account inactive")

	ErrNoTenantMembership = errors.New("auth: user has no tenant membership")
	ErrCrossTenantAccess  = errors.New("auth: cross-tenant access denied")
	ErrUnknownTenant      = errors.New("auth: tenant does not exist")

	ErrProtectedRole   = errors.New("auth: system role is protected")
	ErrRoleInUse       = errors.New("auth: role has assigned users")
	ErrLevelOutOfRange = errors.New("auth: role level outside custom band")
	ErrQuotaExceeded   = errors.New("auth: custom role quota exceeded")

	ErrNotFound     = errors.New("auth: not found")
	ErrConflict     = errors.New("auth: resource conflict")
	ErrInvalidInput = errors.New("auth: invalid input")
)
