package accounts

import (
	"context"
	"time"

	"github.com/platinummonkey/authsvc/pkg/auth"
)

// Store is the durable store behind the service. Lookups that find nothing
// return an auth error of kind NotFound.
type Store interface {
	// InTx runs fn inside one transaction. fn receives a context detached from the
	// caller's cancellation so a started transaction always commits or rolls back.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	UserByEmail(ctx context.Context, email string) (*auth.User, error)
	UserByID(ctx context.Context, id string) (*auth.User, error)
	// ListDevices returns one row per distinct fingerprint, latest login first
	ListDevices(ctx context.Context, userID string) ([]auth.Device, error)
}

// Tx is the set of writes and locking reads available inside a transaction
type Tx interface {
	// CreateUser inserts u with the named role, filling ID and CreatedAt.
	// A duplicate email is reported as Conflict.
	CreateUser(ctx context.Context, u *auth.User, role auth.RoleName) error
	UserByEmail(ctx context.Context, email string) (*auth.User, error)
	// LockUser reads a user and holds its row until the transaction ends
	LockUser(ctx context.Context, id string) (*auth.User, error)
	UpdateUser(ctx context.Context, u *auth.User) error

	// UpsertDevice inserts the fingerprint or moves its last login to at
	UpsertDevice(ctx context.Context, userID string, fp auth.DeviceFingerprint, at time.Time) error

	// SaveRefreshToken supersedes the user's current refresh token and stores token
	SaveRefreshToken(ctx context.Context, userID, token string, at time.Time) error
	// CurrentRefreshToken locks and returns the one token a refresh may present
	CurrentRefreshToken(ctx context.Context, userID string) (*auth.RefreshToken, error)

	AccountLinker
}

// AccountLinker persists the link between a local user and a provider account
type AccountLinker interface {
	UserBySocialAccount(ctx context.Context, provider, providerUserID string) (*auth.User, error)
	LinkSocialAccount(ctx context.Context, userID, provider, providerUserID string, at time.Time) error
}

// Invalidations is the ephemeral store of logout markers. A missing marker is
// reported as ("", nil).
type Invalidations interface {
	SetMarker(ctx context.Context, userID, token string, ttl time.Duration) error
	Marker(ctx context.Context, userID string) (string, error)
}
