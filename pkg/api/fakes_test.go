package api

import (
	"context"
	"sync"

	"github.com/platinummonkey/authsvc/pkg/auth"
)

// fakeAccounts answers every call with the configured result and records what it saw
type fakeAccounts struct {
	mu sync.Mutex

	pair    auth.TokenPair
	history auth.LoginHistory
	info    auth.UserInfo
	user    *auth.User
	err     error

	lastToken    string
	lastReg      auth.Registration
	lastLogin    auth.Login
	lastCreds    auth.Credentials
	lastUpdate   auth.UserUpdate
	lastProvider string
	lastCode     string
	lastAgent    string
}

func (f *fakeAccounts) Register(_ context.Context, reg auth.Registration) (auth.TokenPair, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastReg = reg
	return f.pair, f.err
}

func (f *fakeAccounts) LoginByCredentials(_ context.Context, creds auth.Credentials) (auth.TokenPair, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastCreds = creds
	return f.pair, f.err
}

func (f *fakeAccounts) Login(_ context.Context, in auth.Login) (auth.TokenPair, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastLogin = in
	return f.pair, f.err
}

func (f *fakeAccounts) LoginByProvider(_ context.Context, provider, code, userAgent string) (auth.TokenPair, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastProvider, f.lastCode, f.lastAgent = provider, code, userAgent
	return f.pair, f.err
}

func (f *fakeAccounts) Logout(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastToken = token
	return f.err
}

func (f *fakeAccounts) Refresh(_ context.Context, token string) (auth.TokenPair, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastToken = token
	return f.pair, f.err
}

func (f *fakeAccounts) LoginHistory(_ context.Context, token string) (auth.LoginHistory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastToken = token
	return f.history, f.err
}

func (f *fakeAccounts) UpdateUser(_ context.Context, token string, upd auth.UserUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastToken = token
	f.lastUpdate = upd
	return f.err
}

func (f *fakeAccounts) UserInfo(_ context.Context, token string) (auth.UserInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastToken = token
	return f.info, f.err
}

func (f *fakeAccounts) CurrentUser(_ context.Context, token string) (*auth.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastToken = token
	if f.user == nil {
		return nil, auth.NewError(auth.KindTokenInvalid, "Invalid token.")
	}
	return f.user, nil
}

type fakeProviders struct {
	names []string
	state string
}

func (f *fakeProviders) AuthorizationURL(name, state string) (string, error) {
	for _, n := range f.names {
		if n == name {
			f.state = state
			return "https://idp.example.com/authorize?client_id=authsvc&state=" + state, nil
		}
	}
	return "", auth.NewError(auth.KindNotFound, "provider not found")
}

func (f *fakeProviders) Names() []string { return f.names }

type fakeRoleAdmin struct {
	roles      []auth.Role
	err        error
	assignedTo string
	assigned   auth.RoleName
}

func (f *fakeRoleAdmin) ListRoles(context.Context) ([]auth.Role, error) {
	return f.roles, f.err
}

func (f *fakeRoleAdmin) AssignRole(_ context.Context, userID string, name auth.RoleName) error {
	if f.err != nil {
		return f.err
	}
	f.assignedTo, f.assigned = userID, name
	return nil
}
