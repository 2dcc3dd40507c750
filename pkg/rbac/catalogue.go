package rbac

import (
	"sort"

	"github.com/platinummonkey/authsvc/pkg/auth"
)

// DefaultRole is assigned to every new account
const DefaultRole = auth.RoleUser

// Catalogue is the fixed set of roles and the permissions each one grants
var Catalogue = map[auth.RoleName]auth.PermissionSet{
	auth.RoleSuperuser: auth.NewPermissionSet(auth.PermissionAll),
	auth.RoleAdmin: auth.NewPermissionSet(
		auth.PermissionCreate,
		auth.PermissionRead,
		auth.PermissionUpdate,
		auth.PermissionDelete,
	),
	auth.RoleModerator: auth.NewPermissionSet(auth.PermissionRead, auth.PermissionUpdate),
	auth.RoleUser:      auth.NewPermissionSet(auth.PermissionRead),
}

// AllPermissions lists every permission name
var AllPermissions = []auth.PermissionName{
	auth.PermissionAll,
	auth.PermissionCreate,
	auth.PermissionRead,
	auth.PermissionUpdate,
	auth.PermissionDelete,
}

// BuiltInRoles returns the catalogue as roles without ids, sorted by name
func BuiltInRoles() []auth.Role {
	roles := make([]auth.Role, 0, len(Catalogue))
	for name, perms := range Catalogue {
		roles = append(roles, auth.Role{Name: name, Permissions: perms})
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i].Name < roles[j].Name })
	return roles
}
