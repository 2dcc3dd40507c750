package rbac

import (
	"context"
	"database/sql"

	"github.com/platinummonkey/authsvc/pkg/storage"
)

// GetMigrations returns all role migrations. They run before the account tables,
// which reference roles.
func GetMigrations() []storage.Migration {
	return []storage.Migration{
		{
			Version:     1,
			Description: "Create roles and permissions tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS roles (
					id UUID PRIMARY KEY,
					name VARCHAR(32) NOT NULL UNIQUE
				);

				CREATE TABLE IF NOT EXISTS permissions (
					id UUID PRIMARY KEY,
					name VARCHAR(32) NOT NULL UNIQUE
				);
			`,
		},
		{
			Version:     2,
			Description: "Create role_permissions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS role_permissions (
					role_id UUID NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
					permission_id UUID NOT NULL REFERENCES permissions(id) ON DELETE CASCADE,
					PRIMARY KEY (role_id, permission_id)
				);

				CREATE INDEX IF NOT EXISTS idx_role_permissions_permission_id ON role_permissions(permission_id);
			`,
		},
	}
}

// RunMigrations applies the role schema, tracked in rbac_migrations
func RunMigrations(ctx context.Context, db *sql.DB) error {
	return storage.Migrate(ctx, db, "rbac_migrations", GetMigrations())
}
