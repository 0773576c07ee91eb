package auth

// System role names. Levels are fixed: lower means more privileged, and the
// four system roles occupy levels 1-4. Custom roles start at
// DefaultCustomRoleMinLevel.
const (
	RoleSuperAdmin      = "SuperAdmin"
	RoleEkklesiaAdmin   = "EkklesiaAdmin"
	RoleEkklesiaManager = "EkklesiaManager"
	RoleEkklesiaUser    = "EkklesiaUser"
)

// Custom role level band and quota defaults.
const (
	DefaultCustomRoleMinLevel = 5
	DefaultCustomRoleMaxLevel = 10
	DefaultCustomRoleQuota    = 50
)

// SystemRoles is the protected role set seeded at bootstrap.
var SystemRoles = []Role{
	{Name: RoleSuperAdmin, Level: 1, Active: true},
	{Name: RoleEkklesiaAdmin, Level: 2, Active: true},
	{Name: RoleEkklesiaManager, Level: 3, Active: true},
	{Name: RoleEkklesiaUser, Level: 4, Active: true},
}

// Well-known permission keys referenced directly in code.
const (
	PermUsersCreate       = "users.create"
	PermUsersUpdate       = "users.update"
	PermUsersDelete       = "users.delete"
	PermUsersView         = "users.view"
	PermRolesManage       = "roles.manage"
	PermPermissionsManage = "permissions.manage"
)

// BuiltinPermissions is the global permission catalog (tenant_id null,
// is_custom false) visible to every tenant. Domain modules outside this
// core gate their routes on the members/families/bccs/sacraments keys.
var BuiltinPermissions = []Permission{
	{Name: PermUsersCreate, DisplayName: "Create users", Module: "users", Category: "write"},
	{Name: PermUsersUpdate, DisplayName: "Update users", Module: "users", Category: "write"},
	{Name: PermUsersDelete, DisplayName: "Delete users", Module: "users", Category: "write"},
	{Name: PermUsersView, DisplayName: "View users", Module: "users", Category: "read"},
	{Name: PermRolesManage, DisplayName: "Manage roles", Module: "roles", Category: "admin"},
	{Name: PermPermissionsManage, DisplayName: "Manage permissions", Module: "permissions", Category: "admin"},

	{Name: "members.create", DisplayName: "Create members", Module: "members", Category: "write"},
	{Name: "members.update", DisplayName: "Update members", Module: "members", Category: "write"},
	{Name: "members.delete", DisplayName: "Delete members", Module: "members", Category: "write"},
	{Name: "members.view", DisplayName: "View members", Module: "members", Category: "read"},
	{Name: "families.create", DisplayName: "Create families", Module: "families", Category: "write"},
	{Name: "families.update", DisplayName: "Update families", Module: "families", Category: "write"},
	{Name: "families.view", DisplayName: "View families", Module: "families", Category: "read"},
	{Name: "bccs.create", DisplayName: "Create BCCs", Module: "bccs", Category: "write"},
	{Name: "bccs.update", DisplayName: "Update BCCs", Module: "bccs", Category: "write"},
	{Name: "bccs.view", DisplayName: "View BCCs", Module: "bccs", Category: "read"},
	{Name: "sacraments.create", DisplayName: "Record sacraments", Module: "sacraments", Category: "write"},
	{Name: "sacraments.view", DisplayName: "View sacraments", Module: "sacraments", Category: "read"},
}
