package api

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/authsvc/pkg/audit"
	"github.com/platinummonkey/authsvc/pkg/auth"
	"github.com/platinummonkey/authsvc/pkg/rbac"
)

func userWithRole(name auth.RoleName) *auth.User {
	return &auth.User{
		ID:    "user-1",
		Email: "alice@example.com",
		Role:  &auth.Role{ID: "role-" + string(name), Name: name, Permissions: rbac.Catalogue[name]},
	}
}

func TestListRoles_AccessChecks(t *testing.T) {
	roles := &fakeRoleAdmin{roles: rbac.BuiltInRoles()}

	tests := []struct {
		name   string
		user   *auth.User
		token  string
		status int
	}{
		{"no bearer", nil, "", http.StatusUnauthorized},
		{"invalid token", nil, "stale", http.StatusForbidden},
		{"plain user", userWithRole(auth.RoleUser), "access-1", http.StatusForbidden},
		{"moderator", userWithRole(auth.RoleModerator), "access-1", http.StatusOK},
		{"admin", userWithRole(auth.RoleAdmin), "access-1", http.StatusForbidden},
		{"superuser", userWithRole(auth.RoleSuperuser), "access-1", http.StatusOK},
		{"no role", &auth.User{ID: "user-2"}, "access-1", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := NewServer(&fakeAccounts{user: tt.user}, nil, roles)
			rec := doJSON(t, srv, "GET", "/api/v1/roles", tt.token, nil)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestListRoles_Body(t *testing.T) {
	srv := NewServer(&fakeAccounts{user: userWithRole(auth.RoleSuperuser)}, nil, &fakeRoleAdmin{})

	rec := doJSON(t, srv, "GET", "/api/v1/roles", "access-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = doJSON(t, srv, "GET", "/api/v1/roles/permissions", "access-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"permissions":["all","create","read","update","delete"]}`, rec.Body.String())
}

func TestAssignRole(t *testing.T) {
	t.Run("superuser assigns", func(t *testing.T) {
		roles := &fakeRoleAdmin{}
		srv := NewServer(&fakeAccounts{user: userWithRole(auth.RoleSuperuser)}, nil, roles)

		rec := doJSON(t, srv, "POST", "/api/v1/user_roles/assign/user-9?role=moderator", "access-1", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "user-9", roles.assignedTo)
		assert.Equal(t, auth.RoleModerator, roles.assigned)
	})

	t.Run("assignment is audited", func(t *testing.T) {
		rec := &recordingAudit{}
		srv := NewServer(&fakeAccounts{user: userWithRole(auth.RoleSuperuser)}, nil, &fakeRoleAdmin{})

		resp := doJSON(t, audit.Middleware(rec)(srv), "POST", "/api/v1/user_roles/assign/user-9?role=admin", "access-1", nil)
		require.Equal(t, http.StatusOK, resp.Code)
		require.Len(t, rec.events, 1)
		assert.Equal(t, audit.EventTypeAdminRoleAssign, rec.events[0].EventType)
		assert.Equal(t, "user-1", rec.events[0].UserID)
		assert.Equal(t, "user-9", rec.events[0].Metadata["target_user_id"])
		assert.Equal(t, "admin", rec.events[0].Metadata["role"])
	})

	t.Run("moderator refused", func(t *testing.T) {
		roles := &fakeRoleAdmin{}
		srv := NewServer(&fakeAccounts{user: userWithRole(auth.RoleModerator)}, nil, roles)

		rec := doJSON(t, srv, "POST", "/api/v1/user_roles/assign/user-9?role=admin", "access-1", nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Empty(t, roles.assignedTo)
	})

	t.Run("unknown role", func(t *testing.T) {
		srv := NewServer(&fakeAccounts{user: userWithRole(auth.RoleSuperuser)}, nil, &fakeRoleAdmin{})
		rec := doJSON(t, srv, "POST", "/api/v1/user_roles/assign/user-9?role=owner", "access-1", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown user", func(t *testing.T) {
		roles := &fakeRoleAdmin{err: auth.NewError(auth.KindNotFound, "user not found")}
		srv := NewServer(&fakeAccounts{user: userWithRole(auth.RoleSuperuser)}, nil, roles)
		rec := doJSON(t, srv, "POST", "/api/v1/user_roles/assign/user-9?role=user", "access-1", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("store failure", func(t *testing.T) {
		roles := &fakeRoleAdmin{err: errors.New("connection reset")}
		srv := NewServer(&fakeAccounts{user: userWithRole(auth.RoleSuperuser)}, nil, roles)
		rec := doJSON(t, srv, "POST", "/api/v1/user_roles/assign/user-9?role=user", "access-1", nil)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

type recordingAudit struct {
	audit.NoopLogger
	events []*audit.AuditEvent
}

func (r *recordingAudit) Log(_ context.Context, e *audit.AuditEvent) error {
	r.events = append(r.events, e)
	return nil
}
