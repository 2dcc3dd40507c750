package accounts

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/authsvc/pkg/audit"
	"github.com/platinummonkey/authsvc/pkg/auth"
	"github.com/platinummonkey/authsvc/pkg/observability"
	redisstore "github.com/platinummonkey/authsvc/pkg/storage/redis"
)

const testPassword = "correct horse battery staple"

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeRoles struct {
	roles map[string]*auth.Role
}

func (f *fakeRoles) RoleByID(_ context.Context, id string) (*auth.Role, error) {
	role, ok := f.roles[id]
	if !ok {
		return nil, auth.NewError(auth.KindNotFound, "role not found")
	}
	return role, nil
}

func (f *fakeRoles) RoleByName(ctx context.Context, name auth.RoleName) (*auth.Role, error) {
	return f.RoleByID(ctx, "role-"+string(name))
}

type fakeExchanger struct {
	identity auth.ExternalIdentity
	err      error
}

func (f *fakeExchanger) Exchange(_ context.Context, provider, _ string) (auth.ExternalIdentity, error) {
	if f.err != nil {
		return auth.ExternalIdentity{}, f.err
	}
	id := f.identity
	id.Provider = provider
	return id, nil
}

type recordingAudit struct {
	mu     sync.Mutex
	events []*audit.AuditEvent
}

func (r *recordingAudit) Log(_ context.Context, e *audit.AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingAudit) LogAuthentication(ctx context.Context, eventType audit.EventType, userID, email string, status audit.EventStatus, message string) error {
	e := audit.NewEvent(ctx, eventType, status)
	e.UserID = userID
	e.Email = email
	e.Message = message
	return r.Log(ctx, e)
}

func (r *recordingAudit) Close() error { return nil }

func (r *recordingAudit) types() []audit.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]audit.EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.EventType)
	}
	return out
}

type fixture struct {
	svc        *Service
	store      *memStore
	redis      *miniredis.Miniredis
	clock      *testClock
	tokens     *auth.JWTHandler
	audit      *recordingAudit
	metrics    *observability.Metrics
	identities *fakeExchanger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	clock := &testClock{now: time.Now().Truncate(time.Second)}
	tokens := auth.NewJWTHandler(
		auth.NewHMACEncoder(auth.NewSHA256KeyDeriver("test-secret"), auth.WithEncoderClock(clock.Now)),
		auth.WithClock(clock.Now),
	)
	roles := &fakeRoles{roles: map[string]*auth.Role{
		"role-user":      {ID: "role-user", Name: auth.RoleUser, Permissions: auth.NewPermissionSet(auth.PermissionRead)},
		"role-superuser": {ID: "role-superuser", Name: auth.RoleSuperuser, Permissions: auth.NewPermissionSet(auth.PermissionAll)},
	}}

	f := &fixture{
		store:      newMemStore(),
		redis:      mr,
		clock:      clock,
		tokens:     tokens,
		audit:      &recordingAudit{},
		metrics:    observability.NewMetrics(prometheus.NewRegistry()),
		identities: &fakeExchanger{},
	}
	f.svc = NewService(f.store, redisstore.NewInvalidationStore(client, ""), tokens, roles,
		WithIdentityExchanger(f.identities),
		WithAuditLogger(f.audit),
		WithMetrics(f.metrics),
		WithLogger(observability.NewLogger(observability.DebugLevel, &bytes.Buffer{})),
		WithBcryptCost(4),
		WithServiceClock(clock.Now),
	)
	return f
}

func fingerprint(ua string) auth.DeviceFingerprint {
	w, h, tz := 1920, 1080, "Europe/Moscow"
	return auth.DeviceFingerprint{UserAgent: ua, ScreenWidth: &w, ScreenHeight: &h, Timezone: &tz}
}

func (f *fixture) register(t *testing.T, email string) auth.TokenPair {
	t.Helper()
	pair, err := f.svc.Register(context.Background(), auth.Registration{
		Email:             email,
		Username:          "alice",
		Password:          testPassword,
		DeviceFingerprint: fingerprint("Mozilla/5.0"),
	})
	require.NoError(t, err)
	return pair
}

func (f *fixture) login(t *testing.T, email string, fp auth.DeviceFingerprint) auth.TokenPair {
	t.Helper()
	pair, err := f.svc.Login(context.Background(), auth.Login{
		Credentials:       auth.Credentials{Email: email, Password: testPassword},
		DeviceFingerprint: fp,
	})
	require.NoError(t, err)
	return pair
}

func userIDOf(t *testing.T, f *fixture, token string) string {
	t.Helper()
	claims, err := f.tokens.DecodeVerified(token)
	require.NoError(t, err)
	return claims.UserID
}

func TestRegister_ThenLoginIssuesNewPair(t *testing.T) {
	f := newFixture(t)
	registered := f.register(t, "alice@example.com")
	loggedIn := f.login(t, "alice@example.com", fingerprint("Mozilla/5.0"))

	assert.NotEqual(t, registered.AccessToken, loggedIn.AccessToken)
	assert.NotEqual(t, registered.RefreshToken, loggedIn.RefreshToken)

	userID := userIDOf(t, f, loggedIn.AccessToken)
	assert.Equal(t, userID, userIDOf(t, f, registered.AccessToken))

	rows := f.store.userTokens(userID)
	require.Len(t, rows, 2)
	assert.NotNil(t, rows[0].SupersededAt)
	assert.Nil(t, rows[1].SupersededAt)
	assert.Equal(t, loggedIn.RefreshToken, rows[1].Token)

	assert.Equal(t, []audit.EventType{audit.EventTypeAuthRegister, audit.EventTypeAuthLogin}, f.audit.types())
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.AuthOperationsTotal.WithLabelValues("register", "ok")))
}

func TestRegister_DuplicateEmailIsConflictAndLeavesNothing(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice@example.com")

	_, err := f.svc.Register(context.Background(), auth.Registration{
		Email:             "alice@example.com",
		Username:          "mallory",
		Password:          "another-password",
		DeviceFingerprint: fingerprint("curl/8.0"),
	})
	require.Error(t, err)
	assert.Equal(t, auth.KindConflict, auth.KindOf(err))
	assert.Equal(t, 1, f.store.countUsers())

	user, err := f.store.UserByEmail(context.Background(), "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	devices, err := f.store.ListDevices(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Len(t, devices, 1)
}

func TestRegister_RollsBackOnPartialFailure(t *testing.T) {
	f := newFixture(t)
	f.store.failOn("SaveRefreshToken", errors.New("disk full"))

	_, err := f.svc.Register(context.Background(), auth.Registration{
		Email:             "alice@example.com",
		Username:          "alice",
		Password:          testPassword,
		DeviceFingerprint: fingerprint("Mozilla/5.0"),
	})
	require.Error(t, err)
	assert.Equal(t, auth.KindInternal, auth.KindOf(err))
	assert.Equal(t, 0, f.store.countUsers())
}

func TestRegister_ValidationBeforeStore(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Register(context.Background(), auth.Registration{Email: "not-an-email", Username: "a", Password: "p"})
	assert.Equal(t, auth.KindValidation, auth.KindOf(err))
	assert.Zero(t, f.store.txCount)
}

func TestLogin_FailuresAreIndistinguishable(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice@example.com")

	_, unknownErr := f.svc.Login(context.Background(), auth.Login{
		Credentials:       auth.Credentials{Email: "bob@example.com", Password: testPassword},
		DeviceFingerprint: fingerprint("Mozilla/5.0"),
	})
	_, wrongErr := f.svc.Login(context.Background(), auth.Login{
		Credentials:       auth.Credentials{Email: "alice@example.com", Password: "wrong"},
		DeviceFingerprint: fingerprint("Mozilla/5.0"),
	})

	require.Error(t, unknownErr)
	require.Error(t, wrongErr)
	assert.Equal(t, auth.KindInvalidCredentials, auth.KindOf(unknownErr))
	assert.Equal(t, auth.KindInvalidCredentials, auth.KindOf(wrongErr))
	assert.Equal(t, unknownErr.Error(), wrongErr.Error())
}

func TestLogin_PersistenceFailureIsInternal(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice@example.com")
	f.store.failOn("UpsertDevice", auth.NewError(auth.KindConflict, "device race"))

	_, err := f.svc.Login(context.Background(), auth.Login{
		Credentials:       auth.Credentials{Email: "alice@example.com", Password: testPassword},
		DeviceFingerprint: fingerprint("Mozilla/5.0"),
	})
	require.Error(t, err)
	assert.Equal(t, auth.KindInternal, auth.KindOf(err))
	var ae *auth.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, serverErrorMessage, ae.Message)
}

func TestLogin_SameDeviceTwiceIsOneHistoryEntry(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice@example.com")

	f.clock.Advance(time.Minute)
	f.login(t, "alice@example.com", fingerprint("Mozilla/5.0"))
	f.clock.Advance(time.Minute)
	last := f.login(t, "alice@example.com", fingerprint("Mozilla/5.0"))

	history, err := f.svc.LoginHistory(context.Background(), last.AccessToken)
	require.NoError(t, err)
	require.Len(t, history.HistoricalPoints, 1)
	assert.Equal(t, f.clock.Now(), history.HistoricalPoints[0].LastLogin)
}

func TestLogin_DistinctDevicesNewestFirst(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice@example.com")

	f.clock.Advance(time.Minute)
	noScreen := auth.DeviceFingerprint{UserAgent: "Mozilla/5.0"}
	last := f.login(t, "alice@example.com", noScreen)

	history, err := f.svc.LoginHistory(context.Background(), last.AccessToken)
	require.NoError(t, err)
	require.Len(t, history.HistoricalPoints, 2)
	assert.Nil(t, history.HistoricalPoints[0].ScreenWidth)
	assert.NotNil(t, history.HistoricalPoints[1].ScreenWidth)
}

func TestLoginByCredentials_RecordsNoDevice(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice@example.com")

	pair, err := f.svc.LoginByCredentials(context.Background(), auth.Credentials{Email: "alice@example.com", Password: testPassword})
	require.NoError(t, err)

	history, err := f.svc.LoginHistory(context.Background(), pair.AccessToken)
	require.NoError(t, err)
	assert.Len(t, history.HistoricalPoints, 1)
}

func TestRefresh_RotatesAndRejectsSuperseded(t *testing.T) {
	f := newFixture(t)
	first := f.register(t, "alice@example.com")

	second, err := f.svc.Refresh(context.Background(), first.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)

	_, err = f.svc.Refresh(context.Background(), first.RefreshToken)
	require.Error(t, err)
	assert.Equal(t, auth.KindTokenInvalid, auth.KindOf(err))

	third, err := f.svc.Refresh(context.Background(), second.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, second.RefreshToken, third.RefreshToken)

	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.TokenFailuresTotal.WithLabelValues(string(auth.KindTokenInvalid))))
	assert.Contains(t, f.audit.types(), audit.EventTypeAuthTokenRefreshFailed)
}

func TestRefresh_LoginSupersedesEarlierRefreshToken(t *testing.T) {
	f := newFixture(t)
	registered := f.register(t, "alice@example.com")
	f.login(t, "alice@example.com", fingerprint("Mozilla/5.0"))

	_, err := f.svc.Refresh(context.Background(), registered.RefreshToken)
	assert.Equal(t, auth.KindTokenInvalid, auth.KindOf(err))
}

func TestRefresh_ExpiredAndMalformed(t *testing.T) {
	f := newFixture(t)
	pair := f.register(t, "alice@example.com")

	_, err := f.svc.Refresh(context.Background(), "garbage")
	assert.Equal(t, auth.KindTokenMalformed, auth.KindOf(err))

	f.clock.Advance(14401 * time.Minute)
	_, err = f.svc.Refresh(context.Background(), pair.RefreshToken)
	assert.Equal(t, auth.KindTokenExpired, auth.KindOf(err))
}

func TestRefresh_DeletedUser(t *testing.T) {
	f := newFixture(t)
	pair := f.register(t, "alice@example.com")
	f.store.failOn("LockUser", auth.NewError(auth.KindNotFound, "user not found"))

	_, err := f.svc.Refresh(context.Background(), pair.RefreshToken)
	assert.Equal(t, auth.KindTokenInvalid, auth.KindOf(err))
}

func TestRefresh_ConcurrentPresentationsOneWins(t *testing.T) {
	f := newFixture(t)
	pair := f.register(t, "alice@example.com")

	const callers = 8
	var wg sync.WaitGroup
	results := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = f.svc.Refresh(context.Background(), pair.RefreshToken)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range results {
		if err == nil {
			wins++
			continue
		}
		assert.Equal(t, auth.KindTokenInvalid, auth.KindOf(err))
	}
	assert.Equal(t, 1, wins)
}

func TestLogout_SingleSlotMarker(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice@example.com")
	a := f.login(t, "alice@example.com", fingerprint("Mozilla/5.0"))
	b := f.login(t, "alice@example.com", fingerprint("Mozilla/5.0"))
	ctx := context.Background()

	require.NoError(t, f.svc.Logout(ctx, a.AccessToken))

	_, err := f.svc.LoginHistory(ctx, a.AccessToken)
	assert.Equal(t, auth.KindTokenInvalid, auth.KindOf(err))
	_, err = f.svc.LoginHistory(ctx, b.AccessToken)
	assert.NoError(t, err)

	userID := userIDOf(t, f, a.AccessToken)
	assert.Equal(t, 900*time.Second, f.redis.TTL(userID))

	// the marker holds only the latest logout
	require.NoError(t, f.svc.Logout(ctx, b.AccessToken))
	_, err = f.svc.LoginHistory(ctx, a.AccessToken)
	assert.NoError(t, err)
	_, err = f.svc.UserInfo(ctx, b.AccessToken)
	assert.Equal(t, auth.KindTokenInvalid, auth.KindOf(err))
}

func TestLogout_ExpiredTokenIsInvalid(t *testing.T) {
	f := newFixture(t)
	pair := f.register(t, "alice@example.com")
	f.clock.Advance(16 * time.Minute)

	err := f.svc.Logout(context.Background(), pair.AccessToken)
	require.Error(t, err)
	assert.Equal(t, auth.KindTokenInvalid, auth.KindOf(err))
	assert.False(t, f.redis.Exists(userIDOf(t, f, pair.RefreshToken)))
}

func TestAccessOperations_RejectRefreshToken(t *testing.T) {
	f := newFixture(t)
	pair := f.register(t, "alice@example.com")
	ctx := context.Background()

	_, err := f.svc.LoginHistory(ctx, pair.RefreshToken)
	assert.Equal(t, auth.KindTokenInvalid, auth.KindOf(err))
	_, err = f.svc.UserInfo(ctx, pair.RefreshToken)
	assert.Equal(t, auth.KindTokenInvalid, auth.KindOf(err))
	err = f.svc.UpdateUser(ctx, pair.RefreshToken, auth.UserUpdate{Username: strPtr("bob")})
	assert.Equal(t, auth.KindTokenInvalid, auth.KindOf(err))

	// long after the access token lapsed the refresh token still opens nothing
	f.clock.Advance(2 * time.Hour)
	_, err = f.svc.LoginHistory(ctx, pair.RefreshToken)
	assert.Equal(t, auth.KindTokenInvalid, auth.KindOf(err))

	_, err = f.svc.Refresh(ctx, pair.RefreshToken)
	assert.NoError(t, err)
}

func TestLogout_RefreshTokenCannotReplaceMarker(t *testing.T) {
	f := newFixture(t)
	pair := f.register(t, "alice@example.com")
	ctx := context.Background()

	require.NoError(t, f.svc.Logout(ctx, pair.AccessToken))

	err := f.svc.Logout(ctx, pair.RefreshToken)
	assert.Equal(t, auth.KindTokenInvalid, auth.KindOf(err))

	_, err = f.svc.LoginHistory(ctx, pair.AccessToken)
	assert.Equal(t, auth.KindTokenInvalid, auth.KindOf(err))
}

func TestRefresh_RejectsAccessToken(t *testing.T) {
	f := newFixture(t)
	pair := f.register(t, "alice@example.com")

	_, err := f.svc.Refresh(context.Background(), pair.AccessToken)
	assert.Equal(t, auth.KindTokenInvalid, auth.KindOf(err))
}

func TestLogout_RedisDownIsInternal(t *testing.T) {
	f := newFixture(t)
	pair := f.register(t, "alice@example.com")
	f.redis.Close()

	err := f.svc.Logout(context.Background(), pair.AccessToken)
	assert.Equal(t, auth.KindInternal, auth.KindOf(err))
}

func TestLoginByProvider(t *testing.T) {
	ctx := context.Background()

	t.Run("creates user and link", func(t *testing.T) {
		f := newFixture(t)
		f.identities.identity = auth.ExternalIdentity{ProviderUserID: "ya-1", Email: "ivan@yandex.ru", DisplayName: "Ivan Petrov"}

		pair, err := f.svc.LoginByProvider(ctx, "yandex", "code", "")
		require.NoError(t, err)

		user, err := f.svc.CurrentUser(ctx, pair.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, "Ivan Petrov", user.Username)
		assert.Equal(t, auth.RoleUser, user.RoleName())
		assert.Error(t, auth.VerifyPassword(user.PasswordHash, ""))

		history, err := f.svc.LoginHistory(ctx, pair.AccessToken)
		require.NoError(t, err)
		require.Len(t, history.HistoricalPoints, 1)
		assert.Equal(t, "unknown", history.HistoricalPoints[0].UserAgent)
		assert.Nil(t, history.HistoricalPoints[0].ScreenWidth)

		again, err := f.svc.LoginByProvider(ctx, "yandex", "code", "")
		require.NoError(t, err)
		assert.Equal(t, user.ID, userIDOf(t, f, again.AccessToken))
		assert.Equal(t, 1, f.store.countUsers())
	})

	t.Run("links existing user by email", func(t *testing.T) {
		f := newFixture(t)
		registered := f.register(t, "alice@example.com")
		f.identities.identity = auth.ExternalIdentity{ProviderUserID: "g-1", Email: "alice@example.com"}

		pair, err := f.svc.LoginByProvider(ctx, "google", "code", "Firefox")
		require.NoError(t, err)
		assert.Equal(t, userIDOf(t, f, registered.AccessToken), userIDOf(t, f, pair.AccessToken))
		assert.Equal(t, 1, f.store.countUsers())
		assert.Contains(t, f.audit.types(), audit.EventTypeAuthProviderLogin)

		// password login still works for the linked account
		f.login(t, "alice@example.com", fingerprint("Mozilla/5.0"))
	})

	t.Run("exchange errors pass through", func(t *testing.T) {
		f := newFixture(t)
		f.identities.err = auth.NewError(auth.KindInvalidCredentials, "provider rejected the code")

		_, err := f.svc.LoginByProvider(ctx, "yandex", "bad", "")
		assert.Equal(t, auth.KindInvalidCredentials, auth.KindOf(err))
		assert.Zero(t, f.store.txCount)
	})

	t.Run("empty code", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.LoginByProvider(ctx, "yandex", " ", "")
		assert.Equal(t, auth.KindValidation, auth.KindOf(err))
	})

	t.Run("link failure rolls back", func(t *testing.T) {
		f := newFixture(t)
		f.identities.identity = auth.ExternalIdentity{ProviderUserID: "ya-1", Email: "ivan@yandex.ru"}
		f.store.failOn("LinkSocialAccount", errors.New("connection reset"))

		_, err := f.svc.LoginByProvider(ctx, "yandex", "code", "")
		assert.Equal(t, auth.KindInternal, auth.KindOf(err))
		assert.Equal(t, 0, f.store.countUsers())
	})

	t.Run("without exchanger", func(t *testing.T) {
		f := newFixture(t)
		f.svc.identities = nil
		_, err := f.svc.LoginByProvider(ctx, "yandex", "code", "")
		assert.Equal(t, auth.KindNotFound, auth.KindOf(err))
	})
}

func strPtr(s string) *string { return &s }

func TestUpdateUser(t *testing.T) {
	ctx := context.Background()

	t.Run("password change", func(t *testing.T) {
		f := newFixture(t)
		pair := f.register(t, "alice@example.com")

		err := f.svc.UpdateUser(ctx, pair.AccessToken, auth.UserUpdate{
			OldPassword:             strPtr(testPassword),
			NewPassword:             strPtr("new-password"),
			NewPasswordConfirmation: strPtr("new-password"),
		})
		require.NoError(t, err)

		_, err = f.svc.LoginByCredentials(ctx, auth.Credentials{Email: "alice@example.com", Password: "new-password"})
		assert.NoError(t, err)
		_, err = f.svc.LoginByCredentials(ctx, auth.Credentials{Email: "alice@example.com", Password: testPassword})
		assert.Equal(t, auth.KindInvalidCredentials, auth.KindOf(err))
		assert.Contains(t, f.audit.types(), audit.EventTypeAuthPasswordChange)
	})

	t.Run("wrong old password", func(t *testing.T) {
		f := newFixture(t)
		pair := f.register(t, "alice@example.com")

		err := f.svc.UpdateUser(ctx, pair.AccessToken, auth.UserUpdate{
			Username:                strPtr("bob"),
			OldPassword:             strPtr("wrong"),
			NewPassword:             strPtr("new-password"),
			NewPasswordConfirmation: strPtr("new-password"),
		})
		require.Error(t, err)
		assert.Equal(t, auth.KindInvalidCredentials, auth.KindOf(err))

		info, err := f.svc.UserInfo(ctx, pair.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, "alice", info.Username)
	})

	t.Run("username only", func(t *testing.T) {
		f := newFixture(t)
		pair := f.register(t, "alice@example.com")

		require.NoError(t, f.svc.UpdateUser(ctx, pair.AccessToken, auth.UserUpdate{Username: strPtr("  alicia ")}))

		info, err := f.svc.UserInfo(ctx, pair.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, auth.UserInfo{Username: "alicia", Email: "alice@example.com", Role: auth.RoleUser}, info)
		assert.Contains(t, f.audit.types(), audit.EventTypeAuthProfileUpdate)
	})

	t.Run("logged out token", func(t *testing.T) {
		f := newFixture(t)
		pair := f.register(t, "alice@example.com")
		require.NoError(t, f.svc.Logout(ctx, pair.AccessToken))

		err := f.svc.UpdateUser(ctx, pair.AccessToken, auth.UserUpdate{Username: strPtr("bob")})
		assert.Equal(t, auth.KindTokenInvalid, auth.KindOf(err))
	})

	t.Run("empty update", func(t *testing.T) {
		f := newFixture(t)
		pair := f.register(t, "alice@example.com")
		err := f.svc.UpdateUser(ctx, pair.AccessToken, auth.UserUpdate{})
		assert.Equal(t, auth.KindValidation, auth.KindOf(err))
	})
}

func TestCurrentUser(t *testing.T) {
	f := newFixture(t)
	pair := f.register(t, "alice@example.com")
	ctx := context.Background()

	user, err := f.svc.CurrentUser(ctx, pair.AccessToken)
	require.NoError(t, err)
	require.NotNil(t, user.Role)
	assert.True(t, user.Permissions().Has(auth.PermissionRead))

	f.clock.Advance(16 * time.Minute)
	_, err = f.svc.CurrentUser(ctx, pair.AccessToken)
	assert.Equal(t, auth.KindTokenExpired, auth.KindOf(err))

	orphan, err := f.tokens.BuildPair(&auth.User{ID: "missing-user", Email: "ghost@example.com"})
	require.NoError(t, err)
	_, err = f.svc.CurrentUser(ctx, orphan.AccessToken)
	assert.Equal(t, auth.KindNotFound, auth.KindOf(err))
}

func TestUsernameFor(t *testing.T) {
	assert.Equal(t, "Ivan", usernameFor(auth.ExternalIdentity{DisplayName: " Ivan ", Email: "ivan@yandex.ru"}))
	assert.Equal(t, "ivan", usernameFor(auth.ExternalIdentity{Email: "ivan@yandex.ru"}))

	long := usernameFor(auth.ExternalIdentity{DisplayName: string(bytes.Repeat([]byte("й"), 60))})
	assert.Equal(t, 50, len([]rune(long)))
}
