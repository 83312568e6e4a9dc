package auth

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
)

// Wildcard grants every permission. Only super admins receive it.
const Wildcard = "*"

// Action verbs used in permission tokens.
const (
	VerbView   = "view"
	VerbCreate = "create"
	VerbEdit   = "edit"
	VerbDelete = "delete"
)

type entryKind uint8

const (
	entryID entryKind = iota + 1
	entryRecord
)

// PermissionEntry is one element of a module's permission list as served by the API,
// which sends either a bare integer id or a full {id, action, label} record.
type PermissionEntry struct {
	kind   entryKind
	id     int
	record Permission
}

// EntryID builds an entry from a bare permission id.
func EntryID(id int) PermissionEntry {
	return PermissionEntry{kind: entryID, id: id}
}

// EntryRecord builds an entry from a full permission record.
func EntryRecord(p Permission) PermissionEntry {
	return PermissionEntry{kind: entryRecord, record: p}
}

// Normalize returns the canonical record. A bare id becomes {id, "permission_<id>"}.
func (e PermissionEntry) Normalize() Permission {
	switch e.kind {
	case entryID:
		return Permission{ID: e.id, Action: "permission_" + strconv.Itoa(e.id)}
	case entryRecord:
		return e.record
	default:
		return Permission{}
	}
}

// UnmarshalJSON accepts a bare id or a record. Anything else decodes to the zero entry,
// which grants nothing, so one bad element never discards the rest of a listing.
func (e *PermissionEntry) UnmarshalJSON(data []byte) error {
	*e = PermissionEntry{}
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var p Permission
		if err := json.Unmarshal(data, &p); err == nil {
			*e = EntryRecord(p)
		}
		return nil
	}
	var id int
	if err := json.Unmarshal(data, &id); err == nil && !bytes.Equal(data, []byte("null")) {
		*e = EntryID(id)
	}
	return nil
}

func (e PermissionEntry) MarshalJSON() ([]byte, error) {
	if e.kind == entryID {
		return json.Marshal(e.id)
	}
	return json.Marshal(e.Normalize())
}

// ModuleGrant is the per-module permission listing of the current actor.
type ModuleGrant struct {
	Slug        string            `json:"slug"`
	Permissions []PermissionEntry `json:"permissions"`
}

// GrantsBySlug indexes grants by module slug, concatenating duplicates.
func GrantsBySlug(grants []ModuleGrant) map[string][]PermissionEntry {
	out := make(map[string][]PermissionEntry, len(grants))
	for _, g := range grants {
		slug := strings.TrimSpace(strings.ToLower(g.Slug))
		out[slug] = append(out[slug], g.Permissions...)
	}
	return out
}

// PermissionSet holds lower-cased permission tokens. A nil set denies everything.
type PermissionSet map[string]struct{}

// BuildPermissionSet turns module grants into a capability set. Super admins get the
// wildcard without the grants being inspected.
func BuildPermissionSet(role Role, modules map[string][]PermissionEntry) PermissionSet {
	if role == RoleSuperAdmin {
		return PermissionSet{Wildcard: {}}
	}
	set := make(PermissionSet)
	for _, entries := range modules {
		for _, entry := range entries {
			action := strings.ToLower(entry.Normalize().Action)
			if action == "" {
				continue
			}
			set[action] = struct{}{}
		}
	}
	return set
}

// Tokens returns the sorted tokens of the set.
func (s PermissionSet) Tokens() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ModulePermissionToken is the only sanctioned way to build a token from a verb and a
// module slug.
func ModulePermissionToken(action, moduleSlug string) string {
	return strings.ToLower(action + "_" + moduleSlug)
}

// Verb returns the verb part of an action ("edit_supplier" -> "edit").
func Verb(action string) string {
	action = strings.ToLower(action)
	if i := strings.IndexByte(action, '_'); i > 0 {
		return action[:i]
	}
	return action
}
