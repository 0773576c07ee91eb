package httpapi

import (
	"context"
	"sync"
	"time"

	"ekklesia.org/internal/auth"
)

// memStore backs the handler tests with the same semantics the Postgres
// store provides, including one-winner refresh rotation.
type memStore struct {
	mu sync.Mutex

	users     map[string]*auth.User
	roles     map[string]*auth.Role
	perms     map[string]*auth.Permission
	rolePerms map[string]map[string]struct{}
	userPerms map[string]map[string]struct{}
	access    map[string]*auth.AccessToken
	refresh   map[string]*auth.RefreshToken
}

func newMemStore() *memStore {
	return &memStore{
		users:     map[string]*auth.User{},
		roles:     map[string]*auth.Role{},
		perms:     map[string]*auth.Permission{},
		rolePerms: map[string]map[string]struct{}{},
		userPerms: map[string]map[string]struct{}{},
		access:    map[string]*auth.AccessToken{},
		refresh:   map[string]*auth.RefreshToken{},
	}
}

func (m *memStore) Users() auth.UserStore             { return (*memUsers)(m) }
func (m *memStore) Roles() auth.RoleStore             { return (*memRoles)(m) }
func (m *memStore) Permissions() auth.PermissionStore { return (*memPerms)(m) }
func (m *memStore) Tokens() auth.TokenStore           { return (*memTokens)(m) }

type memUsers memStore

func (m *memUsers) Create(_ context.Context, u *auth.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == u.Email && existing.DeletedAt == nil {
			return auth.ErrConflict
		}
	}
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *memUsers) Find(_ context.Context, id string) (*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memUsers) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email && u.DeletedAt == nil {
			cp := *u
			return &cp, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (m *memUsers) SetRole(_ context.Context, userID, roleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return auth.ErrNotFound
	}
	u.RoleID = &roleID
	return nil
}

func (m *memUsers) Deactivate(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return auth.ErrNotFound
	}
	u.Active = false
	for _, a := range m.access {
		if a.UserID == userID {
			a.Revoked = true
		}
	}
	for _, r := range m.refresh {
		if a, ok := m.access[r.AccessTokenID]; ok && a.UserID == userID {
			r.Revoked = true
		}
	}
	return nil
}

func (m *memUsers) SoftDelete(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return auth.ErrNotFound
	}
	now := time.Now()
	u.DeletedAt = &now
	return nil
}

type memRoles memStore

func (m *memRoles) Create(_ context.Context, role *auth.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *role
	m.roles[role.ID] = &cp
	return nil
}

func (m *memRoles) Find(_ context.Context, id string) (*auth.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.roles[id]
	if !ok || r.DeletedAt != nil {
		return nil, auth.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memRoles) FindByName(_ context.Context, tenantID *string, name string) (*auth.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.roles {
		if r.Name != name || r.DeletedAt != nil {
			continue
		}
		if tenantID == nil && r.TenantID == nil {
			cp := *r
			return &cp, nil
		}
		if tenantID != nil && r.TenantID != nil && *tenantID == *r.TenantID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (m *memRoles) ListForTenant(_ context.Context, tenantID string) ([]auth.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []auth.Role
	for _, r := range m.roles {
		if r.DeletedAt != nil {
			continue
		}
		if r.TenantID == nil || *r.TenantID == tenantID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *memRoles) CountCustom(_ context.Context, tenantID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.roles {
		if r.IsCustom && r.DeletedAt == nil && r.TenantID != nil && *r.TenantID == tenantID {
			n++
		}
	}
	return n, nil
}

func (m *memRoles) AssignedUsers(_ context.Context, roleID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, u := range m.users {
		if u.RoleID != nil && *u.RoleID == roleID && u.DeletedAt == nil {
			n++
		}
	}
	return n, nil
}

func (m *memRoles) SoftDelete(_ context.Context, roleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.roles[roleID]
	if !ok {
		return auth.ErrNotFound
	}
	now := time.Now()
	r.DeletedAt = &now
	return nil
}

func (m *memRoles) Ensure(_ context.Context, roles []auth.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range roles {
		role := roles[i]
		found := false
		for _, existing := range m.roles {
			if existing.Name == role.Name && existing.TenantID == nil {
				found = true
				break
			}
		}
		if !found {
			if role.ID == "" {
				role.ID = "role-" + role.Name
			}
			cp := role
			m.roles[cp.ID] = &cp
		}
	}
	return nil
}

type memPerms memStore

func (m *memPerms) Ensure(_ context.Context, perms []auth.Permission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range perms {
		p := perms[i]
		found := false
		for _, existing := range m.perms {
			if existing.Name == p.Name {
				found = true
				break
			}
		}
		if !found {
			if p.ID == "" {
				p.ID = "perm-" + p.Name
			}
			p.Active = true
			cp := p
			m.perms[cp.ID] = &cp
		}
	}
	return nil
}

func (m *memPerms) FindByNames(_ context.Context, tenantID *string, names []string) ([]auth.Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := make(map[string]struct{}, len(names))
	for _, n := range names {
		want[n] = struct{}{}
	}
	var out []auth.Permission
	for _, p := range m.perms {
		if _, ok := want[p.Name]; !ok || p.DeletedAt != nil {
			continue
		}
		if p.TenantID == nil {
			out = append(out, *p)
			continue
		}
		if tenantID != nil && *p.TenantID == *tenantID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *memPerms) ForRole(_ context.Context, roleID string) ([]auth.Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []auth.Permission
	for id := range m.rolePerms[roleID] {
		if p, ok := m.perms[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *memPerms) EffectiveForUser(_ context.Context, userID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return nil, auth.ErrNotFound
	}
	visible := func(p *auth.Permission) bool {
		if !p.Active || p.DeletedAt != nil {
			return false
		}
		if p.TenantID == nil {
			return true
		}
		return u.TenantID != nil && *p.TenantID == *u.TenantID
	}
	set := map[string]struct{}{}
	if u.RoleID != nil {
		if role, ok := m.roles[*u.RoleID]; ok && role.Active && role.DeletedAt == nil {
			if role.TenantID == nil || (u.TenantID != nil && *role.TenantID == *u.TenantID) {
				for id := range m.rolePerms[role.ID] {
					if p, ok := m.perms[id]; ok && visible(p) {
						set[p.Name] = struct{}{}
					}
				}
			}
		}
	}
	for id := range m.userPerms[userID] {
		if p, ok := m.perms[id]; ok && visible(p) {
			set[p.Name] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for n := range set {
		out = append(out, n)
	}
	return out, nil
}

func (m *memPerms) AssignToRole(_ context.Context, roleID string, permissionIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rolePerms[roleID] == nil {
		m.rolePerms[roleID] = map[string]struct{}{}
	}
	for _, id := range permissionIDs {
		m.rolePerms[roleID][id] = struct{}{}
	}
	return nil
}

func (m *memPerms) RemoveFromRole(_ context.Context, roleID string, permissionIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range permissionIDs {
		delete(m.rolePerms[roleID], id)
	}
	return nil
}

func (m *memPerms) ReplaceForRole(_ context.Context, roleID string, permissionIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := map[string]struct{}{}
	for _, id := range permissionIDs {
		set[id] = struct{}{}
	}
	m.rolePerms[roleID] = set
	return nil
}

func (m *memPerms) AssignToUser(_ context.Context, userID string, permissionIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.userPerms[userID] == nil {
		m.userPerms[userID] = map[string]struct{}{}
	}
	for _, id := range permissionIDs {
		m.userPerms[userID][id] = struct{}{}
	}
	return nil
}

func (m *memPerms) RemoveFromUser(_ context.Context, userID string, permissionIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range permissionIDs {
		delete(m.userPerms[userID], id)
	}
	return nil
}

type memTokens memStore

func (m *memTokens) CreatePair(_ context.Context, access *auth.AccessToken, refresh *auth.RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ac, rc := *access, *refresh
	m.access[access.ID] = &ac
	m.refresh[refresh.ID] = &rc
	return nil
}

func (m *memTokens) FindAccess(_ context.Context, id string) (*auth.AccessToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.access[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memTokens) FindRefresh(_ context.Context, id string) (*auth.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.refresh[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memTokens) Rotate(_ context.Context, refreshID string, newAccess *auth.AccessToken, newRefresh *auth.RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.refresh[refreshID]
	if !ok || old.Revoked {
		return auth.ErrInvalidOrRevokedToken
	}
	old.Revoked = true
	if a, ok := m.access[old.AccessTokenID]; ok {
		a.Revoked = true
	}
	ac, rc := *newAccess, *newRefresh
	m.access[newAccess.ID] = &ac
	m.refresh[newRefresh.ID] = &rc
	return nil
}

func (m *memTokens) Revoke(_ context.Context, accessID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.access[accessID]
	if !ok {
		return auth.ErrNotFound
	}
	a.Revoked = true
	for _, r := range m.refresh {
		if r.AccessTokenID == accessID {
			r.Revoked = true
		}
	}
	return nil
}

func (m *memTokens) RevokeAllForUser(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.access {
		if a.UserID == userID {
			a.Revoked = true
		}
	}
	for _, r := range m.refresh {
		if a, ok := m.access[r.AccessTokenID]; ok && a.UserID == userID {
			r.Revoked = true
		}
	}
	return nil
}
