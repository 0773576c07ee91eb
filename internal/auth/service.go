package auth

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"
	"time"

	"ekklesia.org/internal/ids"
)

const (
	// DefaultAccessTTL is the access token lifetime.
	DefaultAccessTTL = 6 * time.Hour
	// DefaultRefreshTTL is the refresh token lifetime.
	DefaultRefreshTTL = 30 * 24 * time.Hour

	tokenTypeBearer = "Bearer"
)

// Service issues, refreshes, revokes and verifies token pairs and owns the
// credential checks behind them. All state lives in the Store; the service
// itself is safe for concurrent use.
type Service struct {
	store Store
	now   func() time.Time

	signKey   *rsa.PrivateKey
	verifyKey *rsa.PublicKey

	issuer            string
	clientID          string
	accessTTL         time.Duration
	refreshTTL        time.Duration
	minPasswordLength int
	superAdminRole    string
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithRS256Keys configures the PEM-encoded RSA key pair used for signing
// and verifying access tokens.
func WithRS256Keys(privatePEM, publicPEM string) ServiceOption {
	return func(s *Service) error {
		if strings.TrimSpace(privatePEM) == "" || strings.TrimSpace(publicPEM) == "" {
			return errors.New("auth: both private and public keys are required")
		}
		priv, err := ParseSigningKey(privatePEM)
		if err != nil {
			return err
		}
		pub, err := ParseVerificationKey(publicPEM)
		if err != nil {
			return err
		}
		s.signKey = priv
		s.verifyKey = pub
		return nil
	}
}

// WithIssuer overrides the token issuer claim.
func WithIssuer(issuer string) ServiceOption {
	return func(s *Service) error {
		s.issuer = strings.TrimSpace(issuer)
		return nil
	}
}

// WithClientID sets the audience recorded on issued tokens.
func WithClientID(clientID string) ServiceOption {
	return func(s *Service) error {
		s.clientID = strings.TrimSpace(clientID)
		return nil
	}
}

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.accessTTL = ttl
		}
		return nil
	}
}

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
		return nil
	}
}

// WithMinPasswordLength overrides the password policy floor.
func WithMinPasswordLength(n int) ServiceOption {
	return func(s *Service) error {
		if n > 0 {
			s.minPasswordLength = n
		}
		return nil
	}
}

// WithSuperAdminRole overrides the role name that bypasses permission checks.
func WithSuperAdminRole(name string) ServiceOption {
	return func(s *Service) error {
		if strings.TrimSpace(name) != "" {
			s.superAdminRole = strings.TrimSpace(name)
		}
		return nil
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// NewService constructs a Service with optional configuration.
func NewService(store Store, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	svc := &Service{
		store:             store,
		now:               time.Now,
		issuer:            "ekklesia",
		clientID:          "ekklesia-web",
		accessTTL:         DefaultAccessTTL,
		refreshTTL:        DefaultRefreshTTL,
		minPasswordLength: DefaultMinPasswordLength,
		superAdminRole:    RoleSuperAdmin,
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	return svc, nil
}

// EnsureBuiltins seeds the system roles and the builtin permission catalog.
// Idempotent; run at startup.
func (s *Service) EnsureBuiltins(ctx context.Context) error {
	if err := s.store.Roles().Ensure(ctx, SystemRoles); err != nil {
		return fmt.Errorf("ensure system roles: %w", err)
	}
	if err := s.store.Permissions().Ensure(ctx, BuiltinPermissions); err != nil {
		return fmt.Errorf("ensure builtin permissions: %w", err)
	}
	return nil
}

// Register creates a user and issues its first token pair. The plaintext
// password is hashed immediately and never stored.
func (s *Service) Register(ctx context.Context, name, email, password string, tenantID *string) (*User, TokenPair, error) {
	name = strings.TrimSpace(name)
	email = normalizeEmail(email)
	if name == "" || email == "" || !strings.Contains(email, "@") {
		return nil, TokenPair{}, fmt.Errorf("%w: name and valid email are required", ErrInvalidInput)
	}
	if err := CheckPasswordPolicy(password, s.minPasswordLength); err != nil {
		return nil, TokenPair{}, err
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, TokenPair{}, err
	}
	userType := UserTypeRegular
	user := &User{
		ID:           ids.New(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		UserType:     &userType,
		TenantID:     tenantID,
		Active:       true,
	}
	if err := s.store.Users().Create(ctx, user); err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, TokenPair{}, ErrDuplicateEmail
		}
		return nil, TokenPair{}, err
	}
	pair, err := s.IssueTokenPair(ctx, user, s.clientID, nil)
	if err != nil {
		return nil, TokenPair{}, err
	}
	return user, pair, nil
}

// VerifyCredentials resolves an email/password pair to a user. Unknown
// emails and wrong passwords both cost one bcrypt compare and return the
// same error, so the response gives no account-existence oracle. Inactive
// accounts are attributed separately for the audit log but surface
// identically at the HTTP boundary.
func (s *Service) VerifyCredentials(ctx context.Context, email, password string) (*User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		_ = VerifyPassword("", password)
		return nil, ErrInvalidCredentials
	}
	user, err := s.store.Users().FindByEmail(ctx, email)
	if err != nil {
		_ = VerifyPassword("", password)
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return nil, ErrInvalidCredentials
	}
	if !user.Usable() {
		return nil, ErrAccountInactive
	}
	return user, nil
}

// Login verifies credentials and issues a fresh token pair.
func (s *Service) Login(ctx context.Context, email, password string) (Principal, TokenPair, error) {
	user, err := s.VerifyCredentials(ctx, email, password)
	if err != nil {
		return Principal{}, TokenPair{}, err
	}
	principal, err := s.Principal(ctx, user.ID)
	if err != nil {
		return Principal{}, TokenPair{}, err
	}
	pair, err := s.IssueTokenPair(ctx, user, s.clientID, nil)
	if err != nil {
		return Principal{}, TokenPair{}, err
	}
	return principal, pair, nil
}

// Principal loads a user with its role and effective permission set
// resolved. Role and permission rows outside the user's tenant scope are
// already filtered out by the store.
func (s *Service) Principal(ctx context.Context, userID string) (Principal, error) {
	user, err := s.store.Users().Find(ctx, userID)
	if err != nil {
		return Principal{}, err
	}
	var role *Role
	if user.RoleID != nil {
		role, err = s.store.Roles().Find(ctx, *user.RoleID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return Principal{}, err
		}
		if role != nil && !roleVisibleTo(role, user) {
			role = nil
		}
	}
	names, err := s.store.Permissions().EffectiveForUser(ctx, userID)
	if err != nil {
		return Principal{}, err
	}
	principal := NewPrincipal(user, role, names)
	principal.superAdminRole = s.superAdminRole
	return principal, nil
}

func roleVisibleTo(role *Role, user *User) bool {
	if !role.Active || role.DeletedAt != nil {
		return false
	}
	if role.TenantID == nil {
		return true
	}
	return user.TenantID != nil && *role.TenantID == *user.TenantID
}

// IssueTokenPair generates a fresh opaque access/refresh record pair,
// persists both, and signs the externally handed-out access assertion.
func (s *Service) IssueTokenPair(ctx context.Context, user *User, clientID string, scopes []string) (TokenPair, error) {
	if user == nil {
		return TokenPair{}, fmt.Errorf("%w: user is required", ErrInvalidInput)
	}
	if clientID == "" {
		clientID = s.clientID
	}
	now := s.now().UTC()
	access := &AccessToken{
		ID:        ids.New(),
		UserID:    user.ID,
		ClientID:  clientID,
		Scopes:    dedupeScopes(scopes),
		ExpiresAt: now.Add(s.accessTTL),
		CreatedAt: now,
	}
	refresh := &RefreshToken{
		ID:            ids.New(),
		AccessTokenID: access.ID,
		ExpiresAt:     now.Add(s.refreshTTL),
		CreatedAt:     now,
	}
	if err := s.store.Tokens().CreatePair(ctx, access, refresh); err != nil {
		return TokenPair{}, err
	}
	signed, err := s.signAccessToken(access, now)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      signed,
		RefreshToken:     refresh.ID,
		TokenType:        tokenTypeBearer,
		AccessExpiresAt:  access.ExpiresAt,
		RefreshExpiresAt: refresh.ExpiresAt,
	}, nil
}

// Refresh rotates a refresh token: the old pair is revoked and a new pair
// issued to the same user and client in one transaction. A refresh token is
// single-use — when two calls race, exactly one wins and the loser observes
// the token as already revoked.
func (s *Service) Refresh(ctx context.Context, refreshTokenID string) (Principal, TokenPair, error) {
	refreshTokenID = strings.TrimSpace(refreshTokenID)
	if refreshTokenID == "" {
		return Principal{}, TokenPair{}, ErrInvalidOrRevokedToken
	}
	tokens := s.store.Tokens()
	record, err := tokens.FindRefresh(ctx, refreshTokenID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Principal{}, TokenPair{}, ErrInvalidOrRevokedToken
		}
		return Principal{}, TokenPair{}, err
	}
	if record.Revoked {
		return Principal{}, TokenPair{}, ErrInvalidOrRevokedToken
	}
	if s.now().After(record.ExpiresAt) {
		return Principal{}, TokenPair{}, ErrExpiredToken
	}
	oldAccess, err := tokens.FindAccess(ctx, record.AccessTokenID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Principal{}, TokenPair{}, ErrOrphanedToken
		}
		return Principal{}, TokenPair{}, err
	}

	principal, err := s.Principal(ctx, oldAccess.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Principal{}, TokenPair{}, ErrInvalidOrRevokedToken
		}
		return Principal{}, TokenPair{}, err
	}
	if !principal.User.Usable() {
		return Principal{}, TokenPair{}, ErrAccountInactive
	}

	now := s.now().UTC()
	newAccess := &AccessToken{
		ID:        ids.New(),
		UserID:    oldAccess.UserID,
		ClientID:  oldAccess.ClientID,
		Scopes:    oldAccess.Scopes,
		ExpiresAt: now.Add(s.accessTTL),
		CreatedAt: now,
	}
	newRefresh := &RefreshToken{
		ID:            ids.New(),
		AccessTokenID: newAccess.ID,
		ExpiresAt:     now.Add(s.refreshTTL),
		CreatedAt:     now,
	}
	if err := tokens.Rotate(ctx, record.ID, newAccess, newRefresh); err != nil {
		return Principal{}, TokenPair{}, err
	}
	signed, err := s.signAccessToken(newAccess, now)
	if err != nil {
		return Principal{}, TokenPair{}, err
	}
	return principal, TokenPair{
		AccessToken:      signed,
		RefreshToken:     newRefresh.ID,
		TokenType:        tokenTypeBearer,
		AccessExpiresAt:  newAccess.ExpiresAt,
		RefreshExpiresAt: newRefresh.ExpiresAt,
	}, nil
}

// Revoke marks one access token and its owned refresh token revoked.
func (s *Service) Revoke(ctx context.Context, accessTokenID string) error {
	return s.store.Tokens().Revoke(ctx, accessTokenID)
}

// RevokeAll revokes every non-revoked token of the user. Used on
// logout-everywhere and deactivation.
func (s *Service) RevokeAll(ctx context.Context, userID string) error {
	return s.store.Tokens().RevokeAllForUser(ctx, userID)
}

// Deactivate disables the account and revokes all of its tokens in one
// transaction, so a racing login lands on one consistent outcome.
func (s *Service) Deactivate(ctx context.Context, userID string) error {
	return s.store.Users().Deactivate(ctx, userID)
}

// FindUser loads a user by id.
func (s *Service) FindUser(ctx context.Context, userID string) (*User, error) {
	return s.store.Users().Find(ctx, userID)
}

// Verify validates a bearer string: structure, then signature, then time
// claims, then store state. A structurally valid token whose record is
// missing or revoked fails, which is what makes revocation effective
// before the signed expiry.
func (s *Service) Verify(ctx context.Context, tokenString string) (*Claims, error) {
	claims, err := s.parseAccessToken(tokenString)
	if err != nil {
		return nil, err
	}
	record, err := s.store.Tokens().FindAccess(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidOrRevokedToken
		}
		return nil, err
	}
	if record.Revoked {
		return nil, ErrInvalidOrRevokedToken
	}
	return claims, nil
}

// Authenticate verifies a bearer string and resolves the principal behind
// it, rejecting inactive or soft-deleted accounts. Returns the access token
// id alongside so the caller can revoke it later (logout).
func (s *Service) Authenticate(ctx context.Context, tokenString string) (Principal, string, error) {
	claims, err := s.Verify(ctx, tokenString)
	if err != nil {
		return Principal{}, "", err
	}
	principal, err := s.Principal(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Principal{}, "", ErrInvalidOrRevokedToken
		}
		return Principal{}, "", err
	}
	if !principal.User.Usable() {
		return Principal{}, "", ErrAccountInactive
	}
	return principal, claims.ID, nil
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}

func dedupeScopes(scopes []string) []string {
	if len(scopes) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(scopes))
	var out []string
	for _, sc := range scopes {
		sc = strings.TrimSpace(sc)
		if sc == "" {
			continue
		}
		if _, ok := seen[sc]; ok {
			continue
		}
		seen[sc] = struct{}{}
		out = append(out, sc)
	}
	return out
}
