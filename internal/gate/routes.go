package gate

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed routes.yaml
var defaultRoutes []byte

// ErrInvalidTable reports a malformed route classification file.
var ErrInvalidTable = errors.New("gate: invalid route table")

// RouteKind classifies a path for the gate. The zero value is the fallback for paths that
// match no entry: authenticated, not an auth or MFA route.
type RouteKind int

const (
	RouteProtected RouteKind = iota
	RouteRoot
	RouteLogin
	RouteSignup
	RouteLogout
	RouteCallback
	RouteSetupMFA
	RouteVerifyMFA
	RouteUpdatePassword
)

var kindNames = map[string]RouteKind{
	"protected":       RouteProtected,
	"login":           RouteLogin,
	"signup":          RouteSignup,
	"logout":          RouteLogout,
	"callback":        RouteCallback,
	"setup_mfa":       RouteSetupMFA,
	"verify_mfa":      RouteVerifyMFA,
	"update_password": RouteUpdatePassword,
}

func (k RouteKind) String() string {
	if k == RouteRoot {
		return "root"
	}
	for name, v := range kindNames {
		if v == k {
			return name
		}
	}
	return fmt.Sprintf("RouteKind(%d)", int(k))
}

// Classification is the static metadata of a path.
type Classification struct {
	Kind   RouteKind
	Prefix string
	// Module is the slug gating an admin route; empty elsewhere.
	Module string
}

// IsAuth reports whether the route is reachable without a session.
func (c Classification) IsAuth() bool {
	switch c.Kind {
	case RouteLogin, RouteSignup, RouteLogout, RouteCallback, RouteSetupMFA, RouteVerifyMFA, RouteUpdatePassword:
		return true
	default:
		return false
	}
}

// IsMFA reports whether the route belongs to the MFA setup or verification flow.
func (c Classification) IsMFA() bool {
	return c.Kind == RouteSetupMFA || c.Kind == RouteVerifyMFA
}

// IsUpdatePassword reports whether the route is the password update page.
func (c Classification) IsUpdatePassword() bool {
	return c.Kind == RouteUpdatePassword
}

// IsAdmin reports whether the route is gated by a module.
func (c Classification) IsAdmin() bool {
	return c.Module != ""
}

// Targets are the redirect destinations of the gate.
type Targets struct {
	AdminHome string `yaml:"admin_home"`
	UserHome  string `yaml:"user_home"`
	Login     string `yaml:"login"`
	SetupMFA  string `yaml:"setup_mfa"`
	VerifyMFA string `yaml:"verify_mfa"`
}

// Table is the compiled classification table. It is read-only after construction.
type Table struct {
	routes  []Classification
	admin   []Classification
	targets Targets
}

type tableFile struct {
	Routes []struct {
		Prefix string `yaml:"prefix"`
		Kind   string `yaml:"kind"`
	} `yaml:"routes"`
	Admin []struct {
		Prefix string `yaml:"prefix"`
		Module string `yaml:"module"`
	} `yaml:"admin"`
	Targets Targets `yaml:"targets"`
}

// DefaultTable returns the embedded classification table.
func DefaultTable() (*Table, error) {
	return ParseTable(defaultRoutes)
}

// LoadTable reads a classification file; an empty name yields the embedded default.
func LoadTable(name string) (*Table, error) {
	if strings.TrimSpace(name) == "" {
		return DefaultTable()
	}
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("read route table: %w", err)
	}
	return ParseTable(data)
}

// ParseTable compiles a YAML classification document.
func ParseTable(data []byte) (*Table, error) {
	var f tableFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTable, err)
	}

	t := &Table{targets: f.Targets}
	seen := make(map[string]struct{})
	for _, r := range f.Routes {
		prefix, err := normalizePrefix(r.Prefix, seen)
		if err != nil {
			return nil, err
		}
		kind, ok := kindNames[strings.TrimSpace(strings.ToLower(r.Kind))]
		if !ok || kind == RouteProtected {
			return nil, fmt.Errorf("%w: unknown kind %q for %s", ErrInvalidTable, r.Kind, prefix)
		}
		t.routes = append(t.routes, Classification{Kind: kind, Prefix: prefix})
	}
	for _, a := range f.Admin {
		prefix, err := normalizePrefix(a.Prefix, seen)
		if err != nil {
			return nil, err
		}
		module := strings.TrimSpace(strings.ToLower(a.Module))
		if module == "" {
			return nil, fmt.Errorf("%w: admin route %s has no module", ErrInvalidTable, prefix)
		}
		t.admin = append(t.admin, Classification{Kind: RouteProtected, Prefix: prefix, Module: module})
	}
	if err := t.targets.validate(); err != nil {
		return nil, err
	}

	longestFirst := func(list []Classification) {
		sort.SliceStable(list, func(i, j int) bool { return len(list[i].Prefix) > len(list[j].Prefix) })
	}
	longestFirst(t.routes)
	longestFirst(t.admin)
	return t, nil
}

// Targets returns the redirect destinations.
func (t *Table) Targets() Targets { return t.targets }

// AdminRoutes returns the module-gated routes.
func (t *Table) AdminRoutes() []Classification {
	out := make([]Classification, len(t.admin))
	copy(out, t.admin)
	return out
}

// Classify maps a request path to its classification. Auth routes win over admin routes;
// unmatched paths fall back to RouteProtected.
func (t *Table) Classify(p string) Classification {
	p = cleanPath(p)
	if p == "/" {
		return Classification{Kind: RouteRoot, Prefix: "/"}
	}
	for _, c := range t.routes {
		if hasSegmentPrefix(p, c.Prefix) {
			return c
		}
	}
	for _, c := range t.admin {
		if hasSegmentPrefix(p, c.Prefix) {
			return c
		}
	}
	return Classification{Kind: RouteProtected}
}

func (tg Targets) validate() error {
	for name, v := range map[string]string{
		"admin_home": tg.AdminHome,
		"user_home":  tg.UserHome,
		"login":      tg.Login,
		"setup_mfa":  tg.SetupMFA,
		"verify_mfa": tg.VerifyMFA,
	} {
		if !strings.HasPrefix(v, "/") {
			return fmt.Errorf("%w: target %s must be an absolute path, got %q", ErrInvalidTable, name, v)
		}
	}
	return nil
}

func normalizePrefix(raw string, seen map[string]struct{}) (string, error) {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "/") || raw == "/" {
		return "", fmt.Errorf("%w: prefix %q must be an absolute, non-root path", ErrInvalidTable, raw)
	}
	p := cleanPath(raw)
	if _, dup := seen[p]; dup {
		return "", fmt.Errorf("%w: duplicate prefix %s", ErrInvalidTable, p)
	}
	seen[p] = struct{}{}
	return p, nil
}

func cleanPath(p string) string {
	if p == "" {
		return "/"
	}
	if p[0] != '/' {
		p = "/" + p
	}
	return path.Clean(p)
}

func hasSegmentPrefix(p, prefix string) bool {
	return p == prefix || strings.HasPrefix(p, prefix+"/")
}
