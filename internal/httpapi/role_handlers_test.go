package httpapi

import (
	"errors"
	"net/http"
	"reflect"
	"testing"

	"vouchr.org/internal/auth"
)

func newRoleAPI(t *testing.T, store *stubRoleStore) http.Handler {
	t.Helper()
	return New(ReadyProbe{}, "dev", WithGate(newTestGate(t)), WithRoles(newRoleService(t, store))).Handler()
}

func rolePath(suffix string) string {
	return "/v1/roles/" + testRoleID + "/permissions" + suffix
}

func TestRolePermissionsAuth(t *testing.T) {
	h := newRoleAPI(t, &stubRoleStore{role: auth.RoleDefinition{ID: testRoleID}})

	if rec := do(h, http.MethodGet, rolePath(""), "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous: expected 401, got %d", rec.Code)
	}
	rec := do(h, http.MethodGet, rolePath(""), "pending", nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("pending mfa: expected 403, got %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["error"] != "mfa verification required" {
		t.Fatalf("unexpected error: %v", body)
	}
	if rec := do(h, http.MethodGet, rolePath(""), "admin", nil); rec.Code != http.StatusForbidden {
		t.Fatalf("admin: expected 403, got %d", rec.Code)
	}
}

func TestGetRolePermissions(t *testing.T) {
	h := newRoleAPI(t, &stubRoleStore{role: auth.RoleDefinition{ID: testRoleID, Name: "buyer", PermissionIDs: []int{3}}})

	rec := do(h, http.MethodGet, rolePath(""), "super", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	role := body["role"].(map[string]any)
	if !reflect.DeepEqual(role["permission_ids"], []any{float64(1), float64(3)}) {
		t.Fatalf("stored selection should gain its view action: %v", role["permission_ids"])
	}
	if grid, _ := body["grid"].([]any); len(grid) != 1 {
		t.Fatalf("unexpected grid: %v", body["grid"])
	}

	missing := "/v1/roles/00000000-0000-0000-0000-000000000000/permissions"
	if rec := do(h, http.MethodGet, missing, "super", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestPutRolePermissions(t *testing.T) {
	store := &stubRoleStore{role: auth.RoleDefinition{ID: testRoleID}}
	h := newRoleAPI(t, store)

	rec := do(h, http.MethodPut, rolePath(""), "super", map[string]any{"permission_ids": []int{2, 1}})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !reflect.DeepEqual(store.saved, []int{1, 2}) {
		t.Fatalf("unexpected saved ids: %v", store.saved)
	}

	rec = do(h, http.MethodPut, rolePath(""), "super", map[string]any{"permission_ids": []int{3}})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}

	rec = do(h, http.MethodPut, rolePath(""), "super", map[string]any{"permission_ids": []int{99}})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}

	rec = do(h, http.MethodPut, rolePath(""), "super", map[string]any{"unknown": true})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", rec.Code)
	}

	store.setErr = errors.New("connection reset")
	rec = do(h, http.MethodPut, rolePath(""), "super", map[string]any{"permission_ids": []int{1}})
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestToggleRolePermission(t *testing.T) {
	h := newRoleAPI(t, &stubRoleStore{role: auth.RoleDefinition{ID: testRoleID}})

	rec := do(h, http.MethodPost, rolePath("/toggle"), "super", map[string]any{"permission_ids": []int{}, "toggle": 2})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["changed"] != true {
		t.Fatalf("expected change: %v", body)
	}
	role := body["role"].(map[string]any)
	if !reflect.DeepEqual(role["permission_ids"], []any{float64(1), float64(2)}) {
		t.Fatalf("create should imply view: %v", role["permission_ids"])
	}

	rec = do(h, http.MethodPost, rolePath("/toggle"), "super", map[string]any{"permission_ids": []int{1, 2}, "toggle": 1})
	if body := decodeBody(t, rec); body["changed"] != false {
		t.Fatalf("unchecking view under create must be refused: %v", body)
	}
}
