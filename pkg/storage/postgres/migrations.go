package postgres

import (
	"context"
	"database/sql"

	"github.com/platinummonkey/authsvc/pkg/storage"
)

// GetMigrations returns the account schema. rbac.RunMigrations must run first
// because users reference roles.
func GetMigrations() []storage.Migration {
	return []storage.Migration{
		{
			Version:     1,
			Description: "Create users table",
			SQL: `
				CREATE TABLE IF NOT EXISTS users (
					id UUID PRIMARY KEY,
					email VARCHAR(255) NOT NULL UNIQUE,
					username VARCHAR(50) NOT NULL,
					password_hash TEXT NOT NULL,
					role_id UUID REFERENCES roles(id) ON DELETE SET NULL,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);
			`,
		},
		{
			Version:     2,
			Description: "Create refresh_tokens table",
			SQL: `
				CREATE TABLE IF NOT EXISTS refresh_tokens (
					id UUID PRIMARY KEY,
					user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					token TEXT NOT NULL UNIQUE,
					created_at TIMESTAMPTZ NOT NULL,
					superseded_at TIMESTAMPTZ
				);

				CREATE UNIQUE INDEX IF NOT EXISTS uq_refresh_tokens_current
					ON refresh_tokens(user_id) WHERE superseded_at IS NULL;
				CREATE INDEX IF NOT EXISTS idx_refresh_tokens_superseded_at
					ON refresh_tokens(superseded_at) WHERE superseded_at IS NOT NULL;
			`,
		},
		{
			Version:     3,
			Description: "Create devices table",
			SQL: `
				CREATE TABLE IF NOT EXISTS devices (
					id UUID PRIMARY KEY,
					user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					user_agent TEXT NOT NULL,
					screen_width INT,
					screen_height INT,
					timezone VARCHAR(64),
					last_login TIMESTAMPTZ NOT NULL,
					CONSTRAINT uq_device_details UNIQUE NULLS NOT DISTINCT
						(user_id, user_agent, screen_width, screen_height, timezone)
				);

				CREATE INDEX IF NOT EXISTS idx_devices_user_last_login
					ON devices(user_id, last_login DESC);
			`,
		},
		{
			Version:     4,
			Description: "Create social_accounts table",
			SQL: `
				CREATE TABLE IF NOT EXISTS social_accounts (
					id UUID PRIMARY KEY,
					user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					provider VARCHAR(32) NOT NULL,
					provider_user_id VARCHAR(255) NOT NULL,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					CONSTRAINT uq_social_account UNIQUE (provider, provider_user_id)
				);

				CREATE INDEX IF NOT EXISTS idx_social_accounts_user_id ON social_accounts(user_id);
			`,
		},
	}
}

// RunMigrations applies the account schema, tracked in account_migrations
func RunMigrations(ctx context.Context, db *sql.DB) error {
	return storage.Migrate(ctx, db, "account_migrations", GetMigrations())
}
