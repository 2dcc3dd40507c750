package accounts

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	"github.com/platinummonkey/authsvc/pkg/audit"
	"github.com/platinummonkey/authsvc/pkg/auth"
	"github.com/platinummonkey/authsvc/pkg/observability"
	"github.com/platinummonkey/authsvc/pkg/rbac"
)

const (
	invalidCredentialsMessage = "Invalid information is provided."
	invalidTokenMessage       = "Invalid token."
	serverErrorMessage        = "Server error."

	maxUsernameLength = 50
)

// IdentityExchanger redeems an authorization code with a named identity provider
type IdentityExchanger interface {
	Exchange(ctx context.Context, provider, code string) (auth.ExternalIdentity, error)
}

// Service implements registration, login, logout, refresh and profile
// operations. Every durable write of one operation happens in one transaction.
type Service struct {
	store         Store
	invalidations Invalidations
	tokens        auth.TokenHandler
	roles         rbac.RoleResolver
	identities    IdentityExchanger

	audit   audit.Logger
	metrics *observability.Metrics
	logger  *observability.Logger

	bcryptCost int
	now        func() time.Time
	locks      *keyLock

	dummyOnce sync.Once
	dummyHash []byte
}

// Option configures a Service
type Option func(*Service)

// WithIdentityExchanger enables provider logins
func WithIdentityExchanger(x IdentityExchanger) Option {
	return func(s *Service) { s.identities = x }
}

// WithAuditLogger sets where authentication events are reported
func WithAuditLogger(l audit.Logger) Option {
	return func(s *Service) { s.audit = l }
}

// WithMetrics records operation counts and token failures
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLogger sets the service logger
func WithLogger(l *observability.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithBcryptCost overrides the password hashing cost
func WithBcryptCost(cost int) Option {
	return func(s *Service) { s.bcryptCost = cost }
}

// WithServiceClock sets the clock used for device and refresh token timestamps
func WithServiceClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates the account service. roles may be nil, in which case
// users are returned without their role.
func NewService(store Store, invalidations Invalidations, tokens auth.TokenHandler, roles rbac.RoleResolver, opts ...Option) *Service {
	s := &Service{
		store:         store,
		invalidations: invalidations,
		tokens:        tokens,
		roles:         roles,
		audit:         audit.NoopLogger{},
		logger:        observability.NewLogger(observability.InfoLevel, nil),
		bcryptCost:    bcrypt.DefaultCost,
		now:           time.Now,
		locks:         newKeyLock(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates the user, its first device and its first refresh token.
// A duplicate email is a Conflict and leaves nothing behind.
func (s *Service) Register(ctx context.Context, reg auth.Registration) (pair auth.TokenPair, err error) {
	ctx, done := s.begin(ctx, "register")
	defer done(&err)

	if err := reg.Validate(); err != nil {
		return auth.TokenPair{}, err
	}
	hash, err := auth.HashPasswordCost(reg.Password, s.bcryptCost)
	if err != nil {
		return auth.TokenPair{}, err
	}

	user := &auth.User{Email: reg.Email, Username: reg.Username, PasswordHash: hash}
	err = s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.CreateUser(ctx, user, auth.RoleUser); err != nil {
			return err
		}
		now := s.now()
		if err := tx.UpsertDevice(ctx, user.ID, reg.DeviceFingerprint, now); err != nil {
			return err
		}
		pair, err = s.issue(ctx, tx, user, now)
		return err
	})
	if err != nil {
		if errors.Is(err, auth.ErrConflict) {
			s.auditAuth(ctx, audit.EventTypeAuthRegister, "", reg.Email, audit.EventStatusFailure, "email already registered")
			return auth.TokenPair{}, auth.Wrap(auth.KindConflict, "Email already in use.", err)
		}
		return auth.TokenPair{}, asInternal(err)
	}

	s.auditAuth(ctx, audit.EventTypeAuthRegister, user.ID, user.Email, audit.EventStatusSuccess, "user registered")
	return pair, nil
}

// LoginByCredentials is the credential grant: a new pair without a device record
func (s *Service) LoginByCredentials(ctx context.Context, creds auth.Credentials) (pair auth.TokenPair, err error) {
	ctx, done := s.begin(ctx, "login_credentials")
	defer done(&err)

	if err := creds.Validate(); err != nil {
		return auth.TokenPair{}, err
	}
	user, err := s.authenticate(ctx, creds)
	if err != nil {
		return auth.TokenPair{}, err
	}
	return s.loginUser(ctx, user, nil)
}

// Login authenticates and records the device the login came from
func (s *Service) Login(ctx context.Context, in auth.Login) (pair auth.TokenPair, err error) {
	ctx, done := s.begin(ctx, "login")
	defer done(&err)

	if err := in.Validate(); err != nil {
		return auth.TokenPair{}, err
	}
	user, err := s.authenticate(ctx, in.Credentials)
	if err != nil {
		return auth.TokenPair{}, err
	}
	fp := in.DeviceFingerprint
	return s.loginUser(ctx, user, &fp)
}

// LoginByProvider exchanges code with the named provider, resolves or creates
// the local user and logs it in with a user-agent-only device record
func (s *Service) LoginByProvider(ctx context.Context, provider, code, userAgent string) (pair auth.TokenPair, err error) {
	ctx, done := s.begin(ctx, "login_provider")
	defer done(&err)

	if s.identities == nil {
		return auth.TokenPair{}, auth.NewError(auth.KindNotFound, "provider not found")
	}
	if strings.TrimSpace(code) == "" {
		return auth.TokenPair{}, auth.Validationf("code is required")
	}

	identity, err := s.identities.Exchange(ctx, provider, code)
	if err != nil {
		s.auditAuth(ctx, audit.EventTypeAuthLoginFailed, "", "", audit.EventStatusFailure, "identity provider exchange failed: "+provider)
		return auth.TokenPair{}, err
	}

	if userAgent == "" {
		userAgent = "unknown"
	}
	fp := auth.DeviceFingerprint{UserAgent: userAgent}

	var user *auth.User
	err = s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		user, err = s.resolveExternalUser(ctx, tx, identity)
		if err != nil {
			return err
		}
		now := s.now()
		if err := tx.UpsertDevice(ctx, user.ID, fp, now); err != nil {
			return err
		}
		pair, err = s.issue(ctx, tx, user, now)
		return err
	})
	if err != nil {
		s.logger.WithError(err).WithField("provider", provider).Error("Provider login failed")
		return auth.TokenPair{}, loginFailure(err)
	}

	s.auditAuth(ctx, audit.EventTypeAuthProviderLogin, user.ID, user.Email, audit.EventStatusSuccess, "user logged in via "+provider)
	return pair, nil
}

// resolveExternalUser prefers an existing provider link, then a user with the
// same email, and otherwise creates a user nobody can log in to with a password.
// Without an existing link, one is stored for the resolved user.
func (s *Service) resolveExternalUser(ctx context.Context, tx Tx, id auth.ExternalIdentity) (*auth.User, error) {
	user, err := tx.UserBySocialAccount(ctx, id.Provider, id.ProviderUserID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, auth.ErrNotFound) {
		return nil, err
	}

	user, err = tx.UserByEmail(ctx, id.Email)
	if errors.Is(err, auth.ErrNotFound) {
		hash, hashErr := auth.UnusablePasswordHash(s.bcryptCost)
		if hashErr != nil {
			return nil, hashErr
		}
		user = &auth.User{
			Email:        id.Email,
			Username:     usernameFor(id),
			PasswordHash: hash,
		}
		err = tx.CreateUser(ctx, user, auth.RoleUser)
	}
	if err != nil {
		return nil, err
	}

	if err := tx.LinkSocialAccount(ctx, user.ID, id.Provider, id.ProviderUserID, s.now()); err != nil {
		return nil, err
	}
	return user, nil
}

// Logout stores token as the user's invalidation marker until it would expire.
// An expired token is refused as invalid.
func (s *Service) Logout(ctx context.Context, accessToken string) (err error) {
	ctx, done := s.begin(ctx, "logout")
	defer done(&err)

	claims, err := s.tokens.DecodeVerified(accessToken)
	if err != nil {
		if errors.Is(err, auth.ErrTokenExpired) {
			return auth.Wrap(auth.KindTokenInvalid, invalidTokenMessage, err)
		}
		return err
	}
	if err := auth.RequireTokenType(claims, auth.TokenTypeAccess); err != nil {
		return err
	}

	ttl := s.tokens.SecondsUntilExpiry(claims)
	if ttl <= 0 {
		return auth.NewError(auth.KindTokenInvalid, invalidTokenMessage)
	}
	if err := s.invalidations.SetMarker(ctx, claims.UserID, accessToken, time.Duration(ttl)*time.Second); err != nil {
		return asInternal(err)
	}

	s.auditAuth(ctx, audit.EventTypeAuthLogout, claims.UserID, claims.Email, audit.EventStatusSuccess, "user logged out")
	return nil
}

// Refresh rotates the pair. Only the user's current refresh token is accepted;
// concurrent refreshes of the same user are serialized here and by a row lock
// in the store, so at most one of them wins.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (pair auth.TokenPair, err error) {
	ctx, done := s.begin(ctx, "refresh")
	defer done(&err)

	claims, err := s.tokens.DecodeVerified(refreshToken)
	if err != nil {
		return auth.TokenPair{}, err
	}
	if err := auth.RequireTokenType(claims, auth.TokenTypeRefresh); err != nil {
		return auth.TokenPair{}, err
	}

	unlock := s.locks.Lock(claims.UserID)
	defer unlock()

	err = s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		current, err := tx.CurrentRefreshToken(ctx, claims.UserID)
		if errors.Is(err, auth.ErrNotFound) {
			return auth.NewError(auth.KindTokenInvalid, invalidTokenMessage)
		}
		if err != nil {
			return err
		}
		if current.Token != refreshToken {
			return auth.NewError(auth.KindTokenInvalid, invalidTokenMessage)
		}

		user, err := tx.LockUser(ctx, claims.UserID)
		if errors.Is(err, auth.ErrNotFound) {
			return auth.NewError(auth.KindTokenInvalid, invalidTokenMessage)
		}
		if err != nil {
			return err
		}
		pair, err = s.issue(ctx, tx, user, s.now())
		return err
	})
	if err != nil {
		s.auditAuth(ctx, audit.EventTypeAuthTokenRefreshFailed, claims.UserID, "", audit.EventStatusFailure, err.Error())
		if auth.IsTokenError(err) {
			return auth.TokenPair{}, err
		}
		return auth.TokenPair{}, asInternal(err)
	}

	s.auditAuth(ctx, audit.EventTypeAuthTokenRefresh, claims.UserID, "", audit.EventStatusSuccess, "token pair rotated")
	return pair, nil
}

// CheckNotInvalidated verifies accessToken and refuses it when it is the
// token stored at the user's last logout. Other access tokens of the same
// user pass; refresh tokens never do.
func (s *Service) CheckNotInvalidated(ctx context.Context, accessToken string) (*auth.Claims, error) {
	claims, err := s.tokens.DecodeVerified(accessToken)
	if err != nil {
		return nil, err
	}
	if err := auth.RequireTokenType(claims, auth.TokenTypeAccess); err != nil {
		return nil, err
	}

	marker, err := s.invalidations.Marker(ctx, claims.UserID)
	if err != nil {
		return nil, asInternal(err)
	}
	if marker != "" && marker == accessToken {
		return nil, auth.NewError(auth.KindTokenInvalid, invalidTokenMessage)
	}
	return claims, nil
}

// LoginHistory lists the user's distinct devices, most recent login first
func (s *Service) LoginHistory(ctx context.Context, accessToken string) (history auth.LoginHistory, err error) {
	ctx, done := s.begin(ctx, "login_history")
	defer done(&err)

	claims, err := s.CheckNotInvalidated(ctx, accessToken)
	if err != nil {
		return auth.LoginHistory{}, err
	}

	devices, err := s.store.ListDevices(ctx, claims.UserID)
	if err != nil {
		return auth.LoginHistory{}, asInternal(err)
	}
	if devices == nil {
		devices = []auth.Device{}
	}
	return auth.LoginHistory{HistoricalPoints: devices}, nil
}

// UpdateUser changes the username and/or the password. A password change
// requires the old password.
func (s *Service) UpdateUser(ctx context.Context, accessToken string, upd auth.UserUpdate) (err error) {
	ctx, done := s.begin(ctx, "update_user")
	defer done(&err)

	claims, err := s.CheckNotInvalidated(ctx, accessToken)
	if err != nil {
		return err
	}
	if err := upd.Validate(); err != nil {
		return err
	}

	var email string
	err = s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		user, err := tx.LockUser(ctx, claims.UserID)
		if err != nil {
			return err
		}
		email = user.Email

		if upd.OldPassword != nil {
			if err := auth.VerifyPassword(user.PasswordHash, *upd.OldPassword); err != nil {
				return auth.NewError(auth.KindInvalidCredentials, "Old password is incorrect.")
			}
		}
		if upd.ChangesPassword() {
			hash, err := auth.HashPasswordCost(*upd.NewPassword, s.bcryptCost)
			if err != nil {
				return err
			}
			user.PasswordHash = hash
		}
		if upd.Username != nil {
			user.Username = strings.TrimSpace(*upd.Username)
		}
		return tx.UpdateUser(ctx, user)
	})
	if err != nil {
		var ae *auth.Error
		if errors.As(err, &ae) {
			return err
		}
		return asInternal(err)
	}

	if upd.ChangesPassword() {
		s.auditAuth(ctx, audit.EventTypeAuthPasswordChange, claims.UserID, email, audit.EventStatusSuccess, "password changed")
	} else {
		s.auditAuth(ctx, audit.EventTypeAuthProfileUpdate, claims.UserID, email, audit.EventStatusSuccess, "profile updated")
	}
	return nil
}

// CurrentUser resolves the user behind an access token, with its role
func (s *Service) CurrentUser(ctx context.Context, accessToken string) (user *auth.User, err error) {
	ctx, done := s.begin(ctx, "current_user")
	defer done(&err)

	claims, err := s.CheckNotInvalidated(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	user, err = s.store.UserByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			return nil, auth.NewError(auth.KindNotFound, "User not found.")
		}
		return nil, asInternal(err)
	}
	if err := s.attachRole(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// UserInfo is the public profile of the current user
func (s *Service) UserInfo(ctx context.Context, accessToken string) (auth.UserInfo, error) {
	user, err := s.CurrentUser(ctx, accessToken)
	if err != nil {
		return auth.UserInfo{}, err
	}
	return auth.UserInfo{Username: user.Username, Email: user.Email, Role: user.RoleName()}, nil
}

func (s *Service) attachRole(ctx context.Context, user *auth.User) error {
	if s.roles == nil || user.RoleID == nil || user.Role != nil {
		return nil
	}
	role, err := s.roles.RoleByID(ctx, *user.RoleID)
	if errors.Is(err, auth.ErrNotFound) {
		return nil
	}
	if err != nil {
		return asInternal(err)
	}
	user.Role = role
	return nil
}

// authenticate looks the user up and checks the password. Every failure is
// the same InvalidCredentials, and an unknown email still costs one bcrypt
// comparison.
func (s *Service) authenticate(ctx context.Context, creds auth.Credentials) (*auth.User, error) {
	user, err := s.store.UserByEmail(ctx, creds.Email)
	if err != nil {
		if !errors.Is(err, auth.ErrNotFound) {
			return nil, asInternal(err)
		}
		_ = bcrypt.CompareHashAndPassword(s.dummyPasswordHash(), []byte(creds.Password))
		s.auditAuth(ctx, audit.EventTypeAuthLoginFailed, "", creds.Email, audit.EventStatusFailure, "unknown email")
		return nil, auth.NewError(auth.KindInvalidCredentials, invalidCredentialsMessage)
	}
	if err := auth.VerifyPassword(user.PasswordHash, creds.Password); err != nil {
		s.auditAuth(ctx, audit.EventTypeAuthLoginFailed, user.ID, creds.Email, audit.EventStatusFailure, "wrong password")
		return nil, auth.NewError(auth.KindInvalidCredentials, invalidCredentialsMessage)
	}
	return user, nil
}

// loginUser issues and stores a new pair, recording fp when given
func (s *Service) loginUser(ctx context.Context, user *auth.User, fp *auth.DeviceFingerprint) (pair auth.TokenPair, err error) {
	err = s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		now := s.now()
		if fp != nil {
			if err := tx.UpsertDevice(ctx, user.ID, *fp, now); err != nil {
				return err
			}
		}
		pair, err = s.issue(ctx, tx, user, now)
		return err
	})
	if err != nil {
		s.logger.WithError(err).WithField("user_id", user.ID).Error("Login failed after authentication")
		return auth.TokenPair{}, loginFailure(err)
	}

	s.auditAuth(ctx, audit.EventTypeAuthLogin, user.ID, user.Email, audit.EventStatusSuccess, "user logged in")
	return pair, nil
}

// issue builds a pair and makes its refresh token the user's current one
func (s *Service) issue(ctx context.Context, tx Tx, user *auth.User, now time.Time) (auth.TokenPair, error) {
	pair, err := s.tokens.BuildPair(user)
	if err != nil {
		return auth.TokenPair{}, err
	}
	if err := tx.SaveRefreshToken(ctx, user.ID, pair.RefreshToken, now); err != nil {
		return auth.TokenPair{}, err
	}
	return pair, nil
}

func (s *Service) dummyPasswordHash() []byte {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-password"), s.bcryptCost)
	})
	return s.dummyHash
}

// begin opens the operation span; the returned func records metrics and ends it
func (s *Service) begin(ctx context.Context, op string) (context.Context, func(*error)) {
	start := time.Now()
	ctx, span := observability.StartAuthSpan(ctx, op)
	return ctx, func(errp *error) {
		err := *errp
		s.metrics.ObserveAuth(op, start, err)
		if err != nil && auth.IsTokenError(err) {
			s.metrics.ObserveTokenFailure(string(auth.KindOf(err)))
		}
		observability.EndAuthSpan(span, string(auth.KindOf(err)), err != nil)
	}
}

func (s *Service) auditAuth(ctx context.Context, eventType audit.EventType, userID, email string, status audit.EventStatus, msg string) {
	if err := s.audit.LogAuthentication(ctx, eventType, userID, email, status, msg); err != nil {
		s.logger.WithError(err).Warn("Failed to write audit event")
	}
}

// loginFailure reports any persistence failure after authentication as
// Internal, conflicts included; the login is not retried
func loginFailure(err error) error {
	return auth.Wrap(auth.KindInternal, serverErrorMessage, err)
}

// asInternal keeps typed errors and wraps everything else as Internal
func asInternal(err error) error {
	var ae *auth.Error
	if errors.As(err, &ae) {
		return err
	}
	return auth.Wrap(auth.KindInternal, serverErrorMessage, err)
}

// usernameFor derives a username from the provider's display name, falling
// back to the local part of the email
func usernameFor(id auth.ExternalIdentity) string {
	name := strings.TrimSpace(id.DisplayName)
	if name == "" {
		name, _, _ = strings.Cut(id.Email, "@")
	}
	for utf8.RuneCountInString(name) > maxUsernameLength {
		_, size := utf8.DecodeLastRuneInString(name)
		name = name[:len(name)-size]
	}
	return name
}
