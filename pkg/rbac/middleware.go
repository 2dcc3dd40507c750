package rbac

import (
	"net/http"

	"github.com/platinummonkey/authsvc/pkg/audit"
	"github.com/platinummonkey/authsvc/pkg/auth"
	"github.com/platinummonkey/authsvc/pkg/httputil"
	"github.com/platinummonkey/authsvc/pkg/middleware"
	"github.com/platinummonkey/authsvc/pkg/observability"
)

// AccessMiddleware applies the access predicates to requests carrying a resolved
// user. Refusals are reported to the audit logger found in the request context.
type AccessMiddleware struct{}

// NewAccessMiddleware creates a new access middleware
func NewAccessMiddleware() *AccessMiddleware {
	return &AccessMiddleware{}
}

// RequireRoleAndAnyPermission creates middleware backed by RequireRoleAndAnyPermission
func (am *AccessMiddleware) RequireRoleAndAnyPermission(allowed []auth.RoleName, anyOf []auth.PermissionName) func(http.Handler) http.Handler {
	return am.guard(func(u *auth.User) error {
		return RequireRoleAndAnyPermission(u, allowed, anyOf)
	})
}

// RequireModerator creates middleware backed by RequireModerator
func (am *AccessMiddleware) RequireModerator() func(http.Handler) http.Handler {
	return am.guard(RequireModerator)
}

// RequireSuperuser creates middleware backed by RequireSuperuser
func (am *AccessMiddleware) RequireSuperuser() func(http.Handler) http.Handler {
	return am.guard(RequireSuperuser)
}

func (am *AccessMiddleware) guard(check func(*auth.User) error) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := middleware.GetUser(r)
			if user == nil {
				httputil.WriteUnauthorized(w, "Authentication required")
				return
			}
			if err := check(user); err != nil {
				auditDenied(r, user, err)
				httputil.WriteAuthError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func auditDenied(r *http.Request, user *auth.User, reason error) {
	ctx := r.Context()
	event := audit.NewEvent(ctx, audit.EventTypeAuthzAccessDenied, audit.EventStatusDenied)
	event.UserID = user.ID
	event.Email = user.Email
	event.UserAgent = r.UserAgent()
	event.ErrorMessage = reason.Error()
	event.Metadata["method"] = r.Method
	event.Metadata["path"] = r.URL.Path
	if user.Role != nil {
		event.Metadata["role"] = string(user.Role.Name)
	}
	if err := audit.FromContext(ctx).Log(ctx, event); err != nil {
		observability.FromContext(ctx).WithError(err).Warn("failed to audit access denial")
	}
}
