package rbac

import (
	"github.com/platinummonkey/authsvc/pkg/auth"
)

const forbiddenMessage = "You don't have enough permissions"

func forbidden() error {
	return auth.NewError(auth.KindForbidden, forbiddenMessage)
}

// RequireRoleAndAnyPermission passes a superuser, or a user whose role is in allowed
// and whose permissions intersect anyOf
func RequireRoleAndAnyPermission(user *auth.User, allowed []auth.RoleName, anyOf []auth.PermissionName) error {
	role := user.RoleName()
	if role == "" {
		return forbidden()
	}
	if role == auth.RoleSuperuser {
		return nil
	}

	for _, r := range allowed {
		if r == role {
			if user.Permissions().HasAny(anyOf...) {
				return nil
			}
			break
		}
	}
	return forbidden()
}

// RequireModerator passes superusers and moderators
func RequireModerator(user *auth.User) error {
	switch user.RoleName() {
	case auth.RoleSuperuser, auth.RoleModerator:
		return nil
	}
	return forbidden()
}

// RequireSuperuser passes only superusers
func RequireSuperuser(user *auth.User) error {
	if user.RoleName() == auth.RoleSuperuser {
		return nil
	}
	return forbidden()
}
