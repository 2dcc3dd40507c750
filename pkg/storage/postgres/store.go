package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/platinummonkey/authsvc/pkg/accounts"
	"github.com/platinummonkey/authsvc/pkg/auth"
)

// uniqueViolation is the SQLSTATE for unique_violation
const uniqueViolation = "23505"

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Store is the PostgreSQL implementation of accounts.Store
type Store struct {
	conns *ConnectionManager
}

var _ accounts.Store = (*Store)(nil)

// NewStore creates a store on top of a connection manager
func NewStore(conns *ConnectionManager) *Store {
	return &Store{conns: conns}
}

// InTx runs fn in a transaction on the primary. The transaction context is
// detached from ctx so a cancelled request cannot interrupt it half way.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx accounts.Tx) error) error {
	txCtx := context.WithoutCancel(ctx)

	sqlTx, err := s.conns.Primary().BeginTx(txCtx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(txCtx, &Tx{q: sqlTx}); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return translateError(err, "failed to commit transaction")
	}
	return nil
}

// UserByEmail looks a user up by email
func (s *Store) UserByEmail(ctx context.Context, email string) (*auth.User, error) {
	return userByEmail(ctx, s.conns.Primary(), email)
}

// UserByID looks a user up by id
func (s *Store) UserByID(ctx context.Context, id string) (*auth.User, error) {
	return scanUser(s.conns.Primary().QueryRowContext(ctx, userSelect+" WHERE id = $1", id))
}

// ListDevices returns the login history of a user, newest first. It reads from a replica when one exists.
func (s *Store) ListDevices(ctx context.Context, userID string) ([]auth.Device, error) {
	rows, err := s.conns.Replica().QueryContext(ctx, `
		SELECT id, user_id, user_agent, screen_width, screen_height, timezone, last_login
		FROM devices
		WHERE user_id = $1
		ORDER BY last_login DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	defer rows.Close()

	devices := []auth.Device{}
	for rows.Next() {
		var (
			d        auth.Device
			width    sql.NullInt32
			height   sql.NullInt32
			timezone sql.NullString
		)
		if err := rows.Scan(&d.ID, &d.UserID, &d.UserAgent, &width, &height, &timezone, &d.LastLogin); err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		d.ScreenWidth = nullIntPtr(width)
		d.ScreenHeight = nullIntPtr(height)
		if timezone.Valid {
			tz := timezone.String
			d.Timezone = &tz
		}
		devices = append(devices, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate devices: %w", err)
	}
	return devices, nil
}

// PurgeSupersededRefreshTokens deletes rotated refresh tokens superseded before cutoff
func (s *Store) PurgeSupersededRefreshTokens(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.conns.Primary().ExecContext(ctx,
		"DELETE FROM refresh_tokens WHERE superseded_at IS NOT NULL AND superseded_at < $1",
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to purge refresh tokens: %w", err)
	}
	return res.RowsAffected()
}

// HealthCheck pings the primary and replicas
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.conns.HealthCheck(ctx)
}

// Tx implements accounts.Tx over a *sql.Tx
type Tx struct {
	q querier
}

var _ accounts.Tx = (*Tx)(nil)

// CreateUser inserts a user holding the named role
func (t *Tx) CreateUser(ctx context.Context, u *auth.User, role auth.RoleName) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}

	var roleID sql.NullString
	err := t.q.QueryRowContext(ctx, `
		INSERT INTO users (id, email, username, password_hash, role_id)
		VALUES ($1, $2, $3, $4, (SELECT id FROM roles WHERE name = $5))
		RETURNING role_id, created_at
	`, u.ID, u.Email, u.Username, u.PasswordHash, string(role)).Scan(&roleID, &u.CreatedAt)
	if err != nil {
		return translateError(err, "failed to create user")
	}
	u.RoleID = nullStringPtr(roleID)
	return nil
}

// UserByEmail looks a user up by email inside the transaction
func (t *Tx) UserByEmail(ctx context.Context, email string) (*auth.User, error) {
	return userByEmail(ctx, t.q, email)
}

// LockUser reads a user with FOR UPDATE
func (t *Tx) LockUser(ctx context.Context, id string) (*auth.User, error) {
	return scanUser(t.q.QueryRowContext(ctx, userSelect+" WHERE id = $1 FOR UPDATE", id))
}

// UpdateUser writes username and password hash
func (t *Tx) UpdateUser(ctx context.Context, u *auth.User) error {
	res, err := t.q.ExecContext(ctx,
		"UPDATE users SET username = $1, password_hash = $2 WHERE id = $3",
		u.Username, u.PasswordHash, u.ID,
	)
	if err != nil {
		return translateError(err, "failed to update user")
	}
	return expectOneRow(res, "user not found")
}

// UpsertDevice records a login from fp. Screen and timezone may be NULL; the
// uq_device_details constraint treats NULLs as equal so such rows still dedupe.
func (t *Tx) UpsertDevice(ctx context.Context, userID string, fp auth.DeviceFingerprint, at time.Time) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO devices (id, user_id, user_agent, screen_width, screen_height, timezone, last_login)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT ON CONSTRAINT uq_device_details
		DO UPDATE SET last_login = EXCLUDED.last_login
	`, uuid.NewString(), userID, fp.UserAgent, intPtrArg(fp.ScreenWidth), intPtrArg(fp.ScreenHeight), stringPtrArg(fp.Timezone), at)
	if err != nil {
		return translateError(err, "failed to upsert device")
	}
	return nil
}

// SaveRefreshToken supersedes the current token then inserts the new one
func (t *Tx) SaveRefreshToken(ctx context.Context, userID, token string, at time.Time) error {
	if _, err := t.q.ExecContext(ctx,
		"UPDATE refresh_tokens SET superseded_at = $2 WHERE user_id = $1 AND superseded_at IS NULL",
		userID, at,
	); err != nil {
		return translateError(err, "failed to supersede refresh token")
	}

	if _, err := t.q.ExecContext(ctx,
		"INSERT INTO refresh_tokens (id, user_id, token, created_at) VALUES ($1, $2, $3, $4)",
		uuid.NewString(), userID, token, at,
	); err != nil {
		return translateError(err, "failed to save refresh token")
	}
	return nil
}

// CurrentRefreshToken locks the user's current refresh token row
func (t *Tx) CurrentRefreshToken(ctx context.Context, userID string) (*auth.RefreshToken, error) {
	var rt auth.RefreshToken
	err := t.q.QueryRowContext(ctx, `
		SELECT id, user_id, token, created_at
		FROM refresh_tokens
		WHERE user_id = $1 AND superseded_at IS NULL
		FOR UPDATE
	`, userID).Scan(&rt.ID, &rt.UserID, &rt.Token, &rt.CreatedAt)
	if err != nil {
		return nil, translateError(err, "refresh token not found")
	}
	return &rt, nil
}

// UserBySocialAccount resolves a provider account to its local user
func (t *Tx) UserBySocialAccount(ctx context.Context, provider, providerUserID string) (*auth.User, error) {
	return scanUser(t.q.QueryRowContext(ctx, `
		SELECT u.id, u.email, u.username, u.password_hash, u.role_id, u.created_at
		FROM users u
		JOIN social_accounts s ON s.user_id = u.id
		WHERE s.provider = $1 AND s.provider_user_id = $2
	`, provider, providerUserID))
}

// LinkSocialAccount records that a provider account belongs to userID
func (t *Tx) LinkSocialAccount(ctx context.Context, userID, provider, providerUserID string, at time.Time) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO social_accounts (id, user_id, provider, provider_user_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, uuid.NewString(), userID, provider, providerUserID, at)
	if err != nil {
		return translateError(err, "failed to link social account")
	}
	return nil
}

const userSelect = `SELECT id, email, username, password_hash, role_id, created_at FROM users`

func userByEmail(ctx context.Context, q querier, email string) (*auth.User, error) {
	return scanUser(q.QueryRowContext(ctx, userSelect+" WHERE email = $1", email))
}

func scanUser(row *sql.Row) (*auth.User, error) {
	var (
		u      auth.User
		roleID sql.NullString
	)
	if err := row.Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash, &roleID, &u.CreatedAt); err != nil {
		return nil, translateError(err, "user not found")
	}
	u.RoleID = nullStringPtr(roleID)
	return &u, nil
}

// translateError maps driver errors onto the auth error kinds. Unique
// violations become Conflict and missing rows become NotFound.
func translateError(err error, msg string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return auth.NewError(auth.KindNotFound, msg)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
		return auth.Wrap(auth.KindConflict, conflictMessage(pqErr.Constraint), err)
	}

	return fmt.Errorf("%s: %w", msg, err)
}

func conflictMessage(constraint string) string {
	switch constraint {
	case "users_email_key":
		return "user with this email already exists"
	case "uq_social_account":
		return "provider account is already linked"
	default:
		return "record already exists"
	}
}

func expectOneRow(res sql.Result, notFound string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return auth.NewError(auth.KindNotFound, notFound)
	}
	return nil
}

func nullStringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func nullIntPtr(ni sql.NullInt32) *int {
	if !ni.Valid {
		return nil
	}
	v := int(ni.Int32)
	return &v
}

func intPtrArg(v *int) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func stringPtrArg(v *string) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
