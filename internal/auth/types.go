package auth

import "time"

// Tenant is an isolated church organization. Rows owned by one tenant are
// never visible to users of another tenant.
type Tenant struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Active    bool       `json:"active"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"-"`
}

// User type markers. A nil UserType means a system-level account.
const (
	UserTypeRegular     = 1
	UserTypeTenantAdmin = 2
)

// User is an identity record. A user with a nil TenantID and the primary
// admin flag set is a super-admin with global reach; every other user
// belongs to exactly one tenant.
type User struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Email          string     `json:"email"`
	PasswordHash   string     `json:"-"`
	UserType       *int       `json:"user_type,omitempty"`
	IsPrimaryAdmin bool       `json:"is_primary_admin"`
	TenantID       *string    `json:"tenant_id,omitempty"`
	RoleID         *string    `json:"role_id,omitempty"`
	Active         bool       `json:"active"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	DeletedAt      *time.Time `json:"-"`
}

// IsSuperAdmin reports whether the user has unrestricted global reach.
func (u *User) IsSuperAdmin() bool {
	return u != nil && u.IsPrimaryAdmin && u.TenantID == nil
}

// Usable reports whether the account may authenticate at all.
func (u *User) Usable() bool {
	return u != nil && u.Active && u.DeletedAt == nil
}

// Role is a named authorization level. System roles (IsCustom=false,
// TenantID=nil) are shared across all tenants and protected from deletion;
// custom roles belong to one tenant and live in the custom level band.
type Role struct {
	ID        string     `json:"id"`
	TenantID  *string    `json:"tenant_id,omitempty"`
	Name      string     `json:"name"`
	Level     int        `json:"level"`
	IsCustom  bool       `json:"is_custom"`
	Active    bool       `json:"active"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"-"`
}

// Permission is a named capability in dotted form, e.g. "users.create".
type Permission struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	DisplayName string     `json:"display_name"`
	Module      string     `json:"module"`
	Category    string     `json:"category"`
	TenantID    *string    `json:"tenant_id,omitempty"`
	IsCustom    bool       `json:"is_custom"`
	Active      bool       `json:"active"`
	CreatedAt   time.Time  `json:"created_at"`
	DeletedAt   *time.Time `json:"-"`
}

// AccessToken is the persisted record behind a signed bearer assertion.
// The row outlives revocation so the audit trail stays intact; expired
// revoked rows are pruned by the retention sweep, never inline.
type AccessToken struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	ClientID  string    `json:"client_id"`
	Scopes    []string  `json:"scopes"`
	Revoked   bool      `json:"revoked"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// RefreshToken owns exactly one access token and can mint at most one new
// pair; using it revokes both old records atomically.
type RefreshToken struct {
	ID            string    `json:"id"`
	AccessTokenID string    `json:"access_token_id"`
	Revoked       bool      `json:"revoked"`
	ExpiresAt     time.Time `json:"expires_at"`
	CreatedAt     time.Time `json:"created_at"`
}

// TokenPair is what a successful registration, login or refresh hands out.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	TokenType        string    `json:"token_type"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}
