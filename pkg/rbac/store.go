package rbac

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/platinummonkey/authsvc/pkg/auth"
)

// RoleResolver loads roles with their permissions
type RoleResolver interface {
	RoleByID(ctx context.Context, id string) (*auth.Role, error)
	RoleByName(ctx context.Context, name auth.RoleName) (*auth.Role, error)
}

// Store handles role persistence
type Store struct {
	db *sql.DB
}

// NewStore creates a new role store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const roleSelect = `
	SELECT r.id, r.name, p.name
	FROM roles r
	LEFT JOIN role_permissions rp ON rp.role_id = r.id
	LEFT JOIN permissions p ON p.id = rp.permission_id
`

// RoleByID retrieves a role by id
func (s *Store) RoleByID(ctx context.Context, id string) (*auth.Role, error) {
	roles, err := s.queryRoles(ctx, roleSelect+"WHERE r.id = $1", id)
	if err != nil {
		return nil, err
	}
	if len(roles) == 0 {
		return nil, auth.NewError(auth.KindNotFound, fmt.Sprintf("role not found: %s", id))
	}
	return &roles[0], nil
}

// RoleByName retrieves a role by name
func (s *Store) RoleByName(ctx context.Context, name auth.RoleName) (*auth.Role, error) {
	roles, err := s.queryRoles(ctx, roleSelect+"WHERE r.name = $1", string(name))
	if err != nil {
		return nil, err
	}
	if len(roles) == 0 {
		return nil, auth.NewError(auth.KindNotFound, fmt.Sprintf("role not found: %s", name))
	}
	return &roles[0], nil
}

// ListRoles returns every role ordered by name
func (s *Store) ListRoles(ctx context.Context) ([]auth.Role, error) {
	return s.queryRoles(ctx, roleSelect+"ORDER BY r.name, p.name")
}

func (s *Store) queryRoles(ctx context.Context, query string, args ...interface{}) ([]auth.Role, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query roles: %w", err)
	}
	defer rows.Close()

	var roles []auth.Role
	index := make(map[string]int)
	for rows.Next() {
		var (
			id, name   string
			permission sql.NullString
		)
		if err := rows.Scan(&id, &name, &permission); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}

		i, ok := index[id]
		if !ok {
			roles = append(roles, auth.Role{ID: id, Name: auth.RoleName(name), Permissions: auth.PermissionSet{}})
			i = len(roles) - 1
			index[id] = i
		}
		if permission.Valid {
			roles[i].Permissions[auth.PermissionName(permission.String)] = struct{}{}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate roles: %w", err)
	}
	return roles, nil
}

// EnsureCatalogue creates any missing role, permission or grant of the catalogue
func (s *Store) EnsureCatalogue(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	for _, p := range AllPermissions {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO permissions (id, name) VALUES ($1, $2) ON CONFLICT (name) DO NOTHING`,
			uuid.NewString(), string(p),
		); err != nil {
			return fmt.Errorf("failed to create permission %s: %w", p, err)
		}
	}

	for _, role := range BuiltInRoles() {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO roles (id, name) VALUES ($1, $2) ON CONFLICT (name) DO NOTHING`,
			uuid.NewString(), string(role.Name),
		); err != nil {
			return fmt.Errorf("failed to create role %s: %w", role.Name, err)
		}
		for _, p := range role.Permissions.Names() {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO role_permissions (role_id, permission_id)
				SELECT r.id, p.id FROM roles r, permissions p
				WHERE r.name = $1 AND p.name = $2
				ON CONFLICT DO NOTHING`,
				string(role.Name), string(p),
			); err != nil {
				return fmt.Errorf("failed to grant %s to %s: %w", p, role.Name, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit catalogue: %w", err)
	}
	return nil
}

// AssignRole sets the role of a user
func (s *Store) AssignRole(ctx context.Context, userID string, name auth.RoleName) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE users SET role_id = (SELECT id FROM roles WHERE name = $1) WHERE id = $2`,
		string(name), userID,
	)
	if err != nil {
		return fmt.Errorf("failed to assign role: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to assign role: %w", err)
	}
	if n == 0 {
		return auth.NewError(auth.KindNotFound, "user not found")
	}
	return nil
}
