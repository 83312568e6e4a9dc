// Package guard decides whether module-scoped admin pages may render for the current actor.
// It mirrors the route gate for convenience and is not a security boundary: data endpoints
// enforce permissions on their own.
package guard

import (
	"sync"

	"vouchr.org/internal/auth"
	"vouchr.org/internal/userinfo"
)

// Mode selects how multiple required tokens combine.
type Mode int

const (
	// ModeAny passes when at least one token is held.
	ModeAny Mode = iota
	// ModeAll passes when every token is held.
	ModeAll
)

// Requirement lists the tokens a page needs.
type Requirement struct {
	Tokens []string
	Mode   Mode
}

// Status is the render decision for a guarded page.
type Status int

const (
	StatusLoading Status = iota
	StatusAllowed
	StatusDenied
)

func (s Status) String() string {
	switch s {
	case StatusAllowed:
		return "allowed"
	case StatusDenied:
		return "denied"
	default:
		return "loading"
	}
}

// Decide evaluates req against the snapshot. super_admin passes before anything is loaded.
func Decide(role auth.Role, snap userinfo.Snapshot, req Requirement) Status {
	if role == auth.RoleSuperAdmin {
		return StatusAllowed
	}
	if !snap.Loaded {
		return StatusLoading
	}
	var ok bool
	if req.Mode == ModeAll {
		ok = auth.HasAll(req.Tokens, snap.Set)
	} else {
		ok = len(req.Tokens) == 0 || auth.HasAny(req.Tokens, snap.Set)
	}
	if ok {
		return StatusAllowed
	}
	return StatusDenied
}

// Notifier shows the denial notice.
type Notifier interface {
	Notify(message string)
}

// Navigator performs the fallback navigation.
type Navigator interface {
	Navigate(path string)
}

// DefaultFallback is where denied actors are sent.
const DefaultFallback = "/dashboard"

// DeniedMessage is the notice shown on denial.
const DeniedMessage = "You do not have permission to access this page."

// Mount is one rendering of a guarded page. Update is called for every snapshot the page
// sees; the denial notice and redirect happen at most once, and never after Unmount.
type Mount struct {
	role     auth.Role
	req      Requirement
	fallback string
	notifier Notifier
	nav      Navigator

	mu       sync.Mutex
	notified bool
	unmount  bool
}

// NewMount creates a mount. An empty fallback means DefaultFallback.
func NewMount(role auth.Role, req Requirement, fallback string, n Notifier, nav Navigator) *Mount {
	if fallback == "" {
		fallback = DefaultFallback
	}
	return &Mount{role: role, req: req, fallback: fallback, notifier: n, nav: nav}
}

// Update applies a snapshot and returns what the page should render.
func (m *Mount) Update(snap userinfo.Snapshot) Status {
	status := Decide(m.role, snap, m.req)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unmount {
		return status
	}
	if status == StatusDenied && !m.notified {
		m.notified = true
		if m.notifier != nil {
			m.notifier.Notify(DeniedMessage)
		}
		if m.nav != nil {
			m.nav.Navigate(m.fallback)
		}
	}
	return status
}

// Unmount disables all further side effects.
func (m *Mount) Unmount() {
	m.mu.Lock()
	m.unmount = true
	m.mu.Unlock()
}
