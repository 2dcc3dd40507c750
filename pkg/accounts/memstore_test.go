package accounts

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/authsvc/pkg/auth"
)

// memStore keeps everything in maps. Transactions are serialized and work on
// the live data; a failed transaction restores the snapshot taken at its start.
type memStore struct {
	mu sync.Mutex

	users   map[string]auth.User
	devices []auth.Device
	tokens  []auth.RefreshToken
	links   map[string]string

	// failures makes the named Tx method return the error
	failures map[string]error
	txCount  int
}

func newMemStore() *memStore {
	return &memStore{
		users:    make(map[string]auth.User),
		links:    make(map[string]string),
		failures: make(map[string]error),
	}
}

type memSnapshot struct {
	users   map[string]auth.User
	devices []auth.Device
	tokens  []auth.RefreshToken
	links   map[string]string
}

func (s *memStore) snapshot() memSnapshot {
	snap := memSnapshot{
		users:   make(map[string]auth.User, len(s.users)),
		devices: append([]auth.Device(nil), s.devices...),
		tokens:  append([]auth.RefreshToken(nil), s.tokens...),
		links:   make(map[string]string, len(s.links)),
	}
	for k, v := range s.users {
		snap.users[k] = v
	}
	for k, v := range s.links {
		snap.links[k] = v
	}
	return snap
}

func (s *memStore) restore(snap memSnapshot) {
	s.users = snap.users
	s.devices = snap.devices
	s.tokens = snap.tokens
	s.links = snap.links
}

func (s *memStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txCount++

	snap := s.snapshot()
	if err := fn(context.WithoutCancel(ctx), &memTx{s: s}); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func (s *memStore) UserByEmail(_ context.Context, email string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userByEmail(email)
}

func (s *memStore) UserByID(_ context.Context, id string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userByID(id)
}

func (s *memStore) ListDevices(_ context.Context, userID string) ([]auth.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []auth.Device
	for _, d := range s.devices {
		if d.UserID == userID {
			out = append(out, d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].LastLogin.After(out[j].LastLogin) })
	return out, nil
}

func (s *memStore) userByEmail(email string) (*auth.User, error) {
	for _, u := range s.users {
		if u.Email == email {
			u := u
			return &u, nil
		}
	}
	return nil, auth.NewError(auth.KindNotFound, "user not found")
}

func (s *memStore) userByID(id string) (*auth.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, auth.NewError(auth.KindNotFound, "user not found")
	}
	return &u, nil
}

func (s *memStore) countUsers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}

func (s *memStore) userTokens(userID string) []auth.RefreshToken {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []auth.RefreshToken
	for _, t := range s.tokens {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out
}

func (s *memStore) failOn(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method] = err
}

type memTx struct {
	s *memStore
}

func (tx *memTx) fail(method string) error {
	return tx.s.failures[method]
}

func (tx *memTx) CreateUser(_ context.Context, u *auth.User, role auth.RoleName) error {
	if err := tx.fail("CreateUser"); err != nil {
		return err
	}
	if _, err := tx.s.userByEmail(u.Email); err == nil {
		return auth.NewError(auth.KindConflict, "email already exists")
	}
	u.ID = uuid.NewString()
	u.CreatedAt = time.Now()
	roleID := "role-" + string(role)
	u.RoleID = &roleID
	tx.s.users[u.ID] = *u
	return nil
}

func (tx *memTx) UserByEmail(_ context.Context, email string) (*auth.User, error) {
	return tx.s.userByEmail(email)
}

func (tx *memTx) LockUser(_ context.Context, id string) (*auth.User, error) {
	if err := tx.fail("LockUser"); err != nil {
		return nil, err
	}
	return tx.s.userByID(id)
}

func (tx *memTx) UpdateUser(_ context.Context, u *auth.User) error {
	if err := tx.fail("UpdateUser"); err != nil {
		return err
	}
	if _, ok := tx.s.users[u.ID]; !ok {
		return auth.NewError(auth.KindNotFound, "user not found")
	}
	tx.s.users[u.ID] = *u
	return nil
}

func sameFingerprint(a, b auth.DeviceFingerprint) bool {
	return a.UserAgent == b.UserAgent &&
		equalPtr(a.ScreenWidth, b.ScreenWidth) &&
		equalPtr(a.ScreenHeight, b.ScreenHeight) &&
		equalPtr(a.Timezone, b.Timezone)
}

func equalPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func (tx *memTx) UpsertDevice(_ context.Context, userID string, fp auth.DeviceFingerprint, at time.Time) error {
	if err := tx.fail("UpsertDevice"); err != nil {
		return err
	}
	for i, d := range tx.s.devices {
		if d.UserID == userID && sameFingerprint(d.DeviceFingerprint, fp) {
			tx.s.devices[i].LastLogin = at
			return nil
		}
	}
	tx.s.devices = append(tx.s.devices, auth.Device{
		ID:                uuid.NewString(),
		UserID:            userID,
		DeviceFingerprint: fp,
		LastLogin:         at,
	})
	return nil
}

func (tx *memTx) SaveRefreshToken(_ context.Context, userID, token string, at time.Time) error {
	if err := tx.fail("SaveRefreshToken"); err != nil {
		return err
	}
	for i, t := range tx.s.tokens {
		if t.UserID == userID && t.SupersededAt == nil {
			superseded := at
			tx.s.tokens[i].SupersededAt = &superseded
		}
	}
	tx.s.tokens = append(tx.s.tokens, auth.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    userID,
		Token:     token,
		CreatedAt: at,
	})
	return nil
}

func (tx *memTx) CurrentRefreshToken(_ context.Context, userID string) (*auth.RefreshToken, error) {
	for _, t := range tx.s.tokens {
		if t.UserID == userID && t.SupersededAt == nil {
			t := t
			return &t, nil
		}
	}
	return nil, auth.NewError(auth.KindNotFound, "refresh token not found")
}

func linkKey(provider, providerUserID string) string {
	return provider + "|" + providerUserID
}

func (tx *memTx) UserBySocialAccount(_ context.Context, provider, providerUserID string) (*auth.User, error) {
	userID, ok := tx.s.links[linkKey(provider, providerUserID)]
	if !ok {
		return nil, auth.NewError(auth.KindNotFound, "social account not found")
	}
	return tx.s.userByID(userID)
}

func (tx *memTx) LinkSocialAccount(_ context.Context, userID, provider, providerUserID string, _ time.Time) error {
	if err := tx.fail("LinkSocialAccount"); err != nil {
		return err
	}
	key := linkKey(provider, providerUserID)
	if _, ok := tx.s.links[key]; ok {
		return auth.NewError(auth.KindConflict, "social account already linked")
	}
	tx.s.links[key] = userID
	return nil
}
