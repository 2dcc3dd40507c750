package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/authsvc/pkg/audit"
	"github.com/platinummonkey/authsvc/pkg/auth"
	"github.com/platinummonkey/authsvc/pkg/httputil"
	"github.com/platinummonkey/authsvc/pkg/middleware"
	"github.com/platinummonkey/authsvc/pkg/observability"
	"github.com/platinummonkey/authsvc/pkg/rbac"
)

// RoleHandlers exposes the role catalogue and role assignment. Every route
// needs a resolved user that passes the route's access check.
type RoleHandlers struct {
	accounts AccountService
	roles    RoleAdmin
	access   *rbac.AccessMiddleware
}

// NewRoleHandlers creates the role handlers
func NewRoleHandlers(accounts AccountService, roles RoleAdmin) *RoleHandlers {
	return &RoleHandlers{
		accounts: accounts,
		roles:    roles,
		access:   rbac.NewAccessMiddleware(),
	}
}

// RegisterRoutes registers /roles and /user_roles routes
func (h *RoleHandlers) RegisterRoutes(router *mux.Router) {
	authenticated := func(next http.Handler) http.Handler {
		return middleware.RequireBearer(middleware.ResolveUser(h.accounts)(next))
	}
	moderator := h.access.RequireModerator()
	superuser := h.access.RequireSuperuser()

	router.Handle("/roles", authenticated(moderator(http.HandlerFunc(h.listRoles)))).Methods("GET")
	router.Handle("/roles/permissions", authenticated(moderator(http.HandlerFunc(h.listPermissions)))).Methods("GET")
	router.Handle("/user_roles/assign/{user_id}", authenticated(superuser(http.HandlerFunc(h.assignRole)))).Methods("POST")
}

// listRoles handles GET /roles
func (h *RoleHandlers) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.roles.ListRoles(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if roles == nil {
		roles = []auth.Role{}
	}
	httputil.WriteSuccess(w, roles)
}

// listPermissions handles GET /roles/permissions
func (h *RoleHandlers) listPermissions(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, PermissionsResponse{Permissions: rbac.AllPermissions})
}

// assignRole handles POST /user_roles/assign/{user_id}?role=<name>
func (h *RoleHandlers) assignRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathStringOrError(w, r, "user_id")
	if !ok {
		return
	}
	role := auth.RoleName(httputil.ParseQueryString(r, "role", ""))
	if !role.Valid() {
		httputil.WriteAuthError(w, auth.Validationf("role must be one of superuser, admin, moderator, user"))
		return
	}

	ctx := r.Context()
	if err := h.roles.AssignRole(ctx, userID, role); err != nil {
		writeError(w, r, err)
		return
	}

	event := audit.NewEvent(ctx, audit.EventTypeAdminRoleAssign, audit.EventStatusSuccess)
	if actor := middleware.GetUser(r); actor != nil {
		event.UserID, event.Email = actor.ID, actor.Email
	}
	event.Message = "role assigned"
	event.Metadata["target_user_id"] = userID
	event.Metadata["role"] = string(role)
	if err := audit.FromContext(ctx).Log(ctx, event); err != nil {
		observability.FromContext(ctx).WithError(err).Warn("failed to audit role assignment")
	}

	httputil.WriteDetail(w, "Role assigned.")
}
