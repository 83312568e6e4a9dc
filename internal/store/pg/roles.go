package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"vouchr.org/internal/auth"
	"vouchr.org/internal/roleedit"
)

var _ roleedit.Store = (*Store)(nil)

// Catalog lists every module with its permissions, in display order.
func (s *Store) Catalog(ctx context.Context) ([]auth.Module, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, `
		select m.slug, m.name, p.id, p.action, p.label
		from modules m
		join permissions p on p.module_id = m.id
		order by m.position, m.slug, p.id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var modules []auth.Module
	for rows.Next() {
		var (
			slug, name string
			perm       auth.Permission
			label      sql.NullString
		)
		if err := rows.Scan(&slug, &name, &perm.ID, &perm.Action, &label); err != nil {
			return nil, err
		}
		if label.Valid {
			perm.Label = label.String
		}
		if n := len(modules); n == 0 || modules[n-1].Slug != slug {
			modules = append(modules, auth.Module{Slug: slug, Name: name})
		}
		last := &modules[len(modules)-1]
		last.Permissions = append(last.Permissions, perm)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return modules, nil
}

func (s *Store) GetRole(ctx context.Context, roleID string) (auth.RoleDefinition, error) {
	if s.db == nil {
		return auth.RoleDefinition{}, errNoDB
	}
	id, err := parseRoleID(roleID)
	if err != nil {
		return auth.RoleDefinition{}, err
	}
	var role auth.RoleDefinition
	err = s.db.QueryRowContext(ctx, `
		select id, name, updated_at
		from roles
		where id = $1
	`, id).Scan(&role.ID, &role.Name, &role.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.RoleDefinition{}, auth.ErrNotFound
	}
	if err != nil {
		return auth.RoleDefinition{}, err
	}
	role.PermissionIDs, err = permissionIDs(ctx, s.db, id)
	if err != nil {
		return auth.RoleDefinition{}, err
	}
	return role, nil
}

// SetRolePermissions replaces the role's permission set in one transaction.
func (s *Store) SetRolePermissions(ctx context.Context, roleID string, permissionIDs []int) (auth.RoleDefinition, error) {
	if s.db == nil {
		return auth.RoleDefinition{}, errNoDB
	}
	id, err := parseRoleID(roleID)
	if err != nil {
		return auth.RoleDefinition{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return auth.RoleDefinition{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var role auth.RoleDefinition
	if err := tx.QueryRowContext(ctx, `select id, name from roles where id = $1 for update`, id).Scan(&role.ID, &role.Name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return auth.RoleDefinition{}, auth.ErrNotFound
		}
		return auth.RoleDefinition{}, err
	}

	if _, err := tx.ExecContext(ctx, `delete from role_permissions where role_id = $1`, id); err != nil {
		return auth.RoleDefinition{}, err
	}
	for _, pid := range permissionIDs {
		if _, err := tx.ExecContext(ctx, `
			insert into role_permissions (role_id, permission_id)
			values ($1, $2)
		`, id, pid); err != nil {
			if pgErr, ok := maybePgError(err); ok {
				switch pgErr.Code {
				case pgErrForeignKeyViolation:
					return auth.RoleDefinition{}, fmt.Errorf("%w: permission %d does not exist", auth.ErrInvalidInput, pid)
				case pgErrUniqueViolation:
					return auth.RoleDefinition{}, fmt.Errorf("%w: permission %d listed twice", auth.ErrInvalidInput, pid)
				}
			}
			return auth.RoleDefinition{}, err
		}
	}
	if err := tx.QueryRowContext(ctx, `
		update roles set updated_at = now()
		where id = $1
		returning updated_at
	`, id).Scan(&role.UpdatedAt); err != nil {
		return auth.RoleDefinition{}, err
	}
	if err := tx.Commit(); err != nil {
		return auth.RoleDefinition{}, err
	}
	role.PermissionIDs = append([]int(nil), permissionIDs...)
	return role, nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func permissionIDs(ctx context.Context, q queryer, roleID string) ([]int, error) {
	rows, err := q.QueryContext(ctx, `
		select permission_id
		from role_permissions
		where role_id = $1
		order by permission_id
	`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []int{}
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

func parseRoleID(raw string) (string, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("%w: role_id must be a uuid", auth.ErrInvalidInput)
	}
	return id.String(), nil
}
