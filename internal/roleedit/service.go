package roleedit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"vouchr.org/internal/audit"
	"vouchr.org/internal/auth"
)

// EventPermissionsUpdate is the audit event recorded on every save.
const EventPermissionsUpdate = "role.permissions.update"

// Store persists roles and exposes the permission catalog.
type Store interface {
	Catalog(ctx context.Context) ([]auth.Module, error)
	GetRole(ctx context.Context, roleID string) (auth.RoleDefinition, error)
	SetRolePermissions(ctx context.Context, roleID string, permissionIDs []int) (auth.RoleDefinition, error)
}

// View is a role together with its editable grid.
type View struct {
	Role auth.RoleDefinition `json:"role"`
	Grid []Row               `json:"grid"`
}

// Service edits role permissions on behalf of super admins.
type Service struct {
	store Store
}

// NewService wires the store.
func NewService(store Store) (*Service, error) {
	if store == nil {
		return nil, errors.New("roleedit: store is required")
	}
	return &Service{store: store}, nil
}

// Load returns the role with its grid. Stored selections are normalized through the
// toggle rules.
func (s *Service) Load(ctx context.Context, actor auth.Session, roleID string) (View, error) {
	if err := authorize(actor); err != nil {
		return View{}, err
	}
	role, catalog, err := s.load(ctx, roleID)
	if err != nil {
		return View{}, err
	}
	ed, err := NewEditor(catalog, role.PermissionIDs)
	if err != nil {
		return View{}, err
	}
	role.PermissionIDs = ed.Selected()
	return View{Role: role, Grid: ed.Grid()}, nil
}

// Toggle applies one checkbox change to selection and returns the resulting grid without
// persisting anything. changed is false when the toggle was refused.
func (s *Service) Toggle(ctx context.Context, actor auth.Session, roleID string, selection []int, id int) (View, bool, error) {
	if err := authorize(actor); err != nil {
		return View{}, false, err
	}
	role, catalog, err := s.load(ctx, roleID)
	if err != nil {
		return View{}, false, err
	}
	ed, err := FromSelection(catalog, selection)
	if err != nil {
		return View{}, false, err
	}
	if err := ed.Validate(); err != nil {
		return View{}, false, err
	}
	changed, err := ed.Toggle(id)
	if err != nil {
		return View{}, false, err
	}
	role.PermissionIDs = ed.Selected()
	return View{Role: role, Grid: ed.Grid()}, changed, nil
}

// Save validates ids exactly as submitted and persists them. Inconsistent selections are
// rejected with ErrInvariantViolation and never stored.
func (s *Service) Save(ctx context.Context, actor auth.Session, roleID string, ids []int) (auth.RoleDefinition, error) {
	if err := authorize(actor); err != nil {
		return auth.RoleDefinition{}, err
	}
	before, catalog, err := s.load(ctx, roleID)
	if err != nil {
		return auth.RoleDefinition{}, err
	}
	ed, err := FromSelection(catalog, ids)
	if err != nil {
		return auth.RoleDefinition{}, err
	}
	selected, err := ed.Submit()
	if err != nil {
		return auth.RoleDefinition{}, err
	}

	saved, err := s.store.SetRolePermissions(ctx, before.ID, selected)
	if err != nil {
		return auth.RoleDefinition{}, err
	}
	added, removed := diff(before.PermissionIDs, selected)
	_ = audit.LogEvent(ctx, EventPermissionsUpdate, map[string]any{
		"role_id":        saved.ID,
		"permission_ids": selected,
		"added":          added,
		"removed":        removed,
	})
	return saved, nil
}

func (s *Service) load(ctx context.Context, roleID string) (auth.RoleDefinition, []auth.Module, error) {
	roleID = strings.TrimSpace(roleID)
	if roleID == "" {
		return auth.RoleDefinition{}, nil, fmt.Errorf("%w: role_id is required", auth.ErrInvalidInput)
	}
	role, err := s.store.GetRole(ctx, roleID)
	if err != nil {
		return auth.RoleDefinition{}, nil, err
	}
	catalog, err := s.store.Catalog(ctx)
	if err != nil {
		return auth.RoleDefinition{}, nil, err
	}
	return role, catalog, nil
}

func authorize(actor auth.Session) error {
	if actor.Role != auth.RoleSuperAdmin {
		return fmt.Errorf("%w: role editing requires super_admin", auth.ErrUnauthorized)
	}
	return nil
}

func diff(before, after []int) (added, removed []int) {
	prev := make(map[int]struct{}, len(before))
	for _, id := range before {
		prev[id] = struct{}{}
	}
	next := make(map[int]struct{}, len(after))
	for _, id := range after {
		next[id] = struct{}{}
		if _, ok := prev[id]; !ok {
			added = append(added, id)
		}
	}
	for _, id := range before {
		if _, ok := next[id]; !ok {
			removed = append(removed, id)
		}
	}
	return added, removed
}
