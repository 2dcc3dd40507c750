package api

import (
	"context"

	"github.com/platinummonkey/authsvc/pkg/auth"
)

// AccountService is the account lifecycle behind the auth routes
type AccountService interface {
	Register(ctx context.Context, reg auth.Registration) (auth.TokenPair, error)
	LoginByCredentials(ctx context.Context, creds auth.Credentials) (auth.TokenPair, error)
	Login(ctx context.Context, in auth.Login) (auth.TokenPair, error)
	LoginByProvider(ctx context.Context, provider, code, userAgent string) (auth.TokenPair, error)
	Logout(ctx context.Context, accessToken string) error
	Refresh(ctx context.Context, refreshToken string) (auth.TokenPair, error)
	LoginHistory(ctx context.Context, accessToken string) (auth.LoginHistory, error)
	UpdateUser(ctx context.Context, accessToken string, upd auth.UserUpdate) error
	UserInfo(ctx context.Context, accessToken string) (auth.UserInfo, error)
	CurrentUser(ctx context.Context, accessToken string) (*auth.User, error)
}

// ProviderDirectory builds authorization URLs for configured identity providers
type ProviderDirectory interface {
	AuthorizationURL(name, state string) (string, error)
	Names() []string
}

// RoleAdmin lists roles and assigns them to users
type RoleAdmin interface {
	ListRoles(ctx context.Context) ([]auth.Role, error)
	AssignRole(ctx context.Context, userID string, name auth.RoleName) error
}

// AuthorizationURLResponse is returned by the provider login route
type AuthorizationURLResponse struct {
	Provider         string `json:"provider"`
	AuthorizationURL string `json:"authorization_url"`
}

// ProvidersResponse lists the configured identity providers
type ProvidersResponse struct {
	Providers []string `json:"providers"`
}

// PermissionsResponse lists every known permission name
type PermissionsResponse struct {
	Permissions []auth.PermissionName `json:"permissions"`
}
