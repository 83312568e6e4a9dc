// Package roleedit builds and validates role permission sets through a module/action grid.
package roleedit

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"vouchr.org/internal/auth"
)

// ErrInvariantViolation means a non-view action is selected without its module's view action.
var ErrInvariantViolation = errors.New("roleedit: invariant violation")

type cell struct {
	module int
	verb   string
}

// Editor holds the selection for one role. Every mutation keeps the view prerequisite
// intact: a module's create/edit/delete action implies its view action.
type Editor struct {
	modules  []auth.Module
	cells    map[int]cell
	views    map[int]int // module index -> view permission id
	selected map[int]struct{}
}

// NewEditor starts from initial, applying each id with the same rules as Toggle, so
// stored selections lacking a view action come back with it checked.
func NewEditor(catalog []auth.Module, initial []int) (*Editor, error) {
	e, err := newEditor(catalog)
	if err != nil {
		return nil, err
	}
	for _, id := range initial {
		if _, err := e.Set(id, true); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// FromSelection loads ids as-is, without the toggle rules. Use Validate to check the result.
func FromSelection(catalog []auth.Module, ids []int) (*Editor, error) {
	e, err := newEditor(catalog)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		if _, ok := e.cells[id]; !ok {
			return nil, fmt.Errorf("%w: unknown permission id %d", auth.ErrInvalidInput, id)
		}
		e.selected[id] = struct{}{}
	}
	return e, nil
}

func newEditor(catalog []auth.Module) (*Editor, error) {
	e := &Editor{
		modules:  catalog,
		cells:    make(map[int]cell),
		views:    make(map[int]int),
		selected: make(map[int]struct{}),
	}
	for mi, m := range catalog {
		for _, p := range m.Permissions {
			if _, dup := e.cells[p.ID]; dup {
				return nil, fmt.Errorf("%w: permission id %d listed twice", auth.ErrInvalidInput, p.ID)
			}
			verb := auth.Verb(p.Action)
			e.cells[p.ID] = cell{module: mi, verb: verb}
			if verb == auth.VerbView {
				if _, ok := e.views[mi]; !ok {
					e.views[mi] = p.ID
				}
			}
		}
	}
	return e, nil
}

// Toggle flips id and reports whether the selection changed.
func (e *Editor) Toggle(id int) (bool, error) {
	return e.Set(id, !e.Checked(id))
}

// Set checks or unchecks id. Checking a non-view action also checks the module's view
// action. Unchecking a view action while another action of the module is checked is
// refused and reports false.
func (e *Editor) Set(id int, on bool) (bool, error) {
	c, ok := e.cells[id]
	if !ok {
		return false, fmt.Errorf("%w: unknown permission id %d", auth.ErrInvalidInput, id)
	}
	if on {
		changed := e.check(id)
		if view, ok := e.views[c.module]; ok && view != id {
			changed = e.check(view) || changed
		}
		return changed, nil
	}
	if !e.Checked(id) {
		return false, nil
	}
	if e.isView(id) && e.moduleHasAction(c.module) {
		return false, nil
	}
	delete(e.selected, id)
	return true, nil
}

// Checked reports whether id is selected.
func (e *Editor) Checked(id int) bool {
	_, ok := e.selected[id]
	return ok
}

// Selected returns the sorted selected ids.
func (e *Editor) Selected() []int {
	out := make([]int, 0, len(e.selected))
	for id := range e.selected {
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}

// Validate re-checks the view prerequisite for every module.
func (e *Editor) Validate() error {
	var problems []string
	for mi, m := range e.modules {
		view, ok := e.views[mi]
		if !ok || e.Checked(view) {
			continue
		}
		for _, p := range m.Permissions {
			if p.ID != view && e.Checked(p.ID) {
				problems = append(problems, fmt.Sprintf("%s requires %s", p.Action, e.action(view)))
			}
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvariantViolation, strings.Join(problems, "; "))
	}
	return nil
}

// Submit returns the flat id list after a final validation pass.
func (e *Editor) Submit() ([]int, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return e.Selected(), nil
}

// Cell is one checkbox of the grid.
type Cell struct {
	ID      int    `json:"id"`
	Action  string `json:"action"`
	Label   string `json:"label,omitempty"`
	Checked bool   `json:"checked"`
	// Locked is set on a checked view action that cannot be unchecked yet.
	Locked bool `json:"locked,omitempty"`
}

// Row is one module of the grid.
type Row struct {
	Slug  string `json:"slug"`
	Name  string `json:"name,omitempty"`
	Cells []Cell `json:"cells"`
}

// Grid renders the current selection.
func (e *Editor) Grid() []Row {
	rows := make([]Row, 0, len(e.modules))
	for mi, m := range e.modules {
		row := Row{Slug: m.Slug, Name: m.Name, Cells: make([]Cell, 0, len(m.Permissions))}
		for _, p := range m.Permissions {
			checked := e.Checked(p.ID)
			row.Cells = append(row.Cells, Cell{
				ID:      p.ID,
				Action:  p.Action,
				Label:   p.Label,
				Checked: checked,
				Locked:  checked && e.isView(p.ID) && e.moduleHasAction(mi),
			})
		}
		rows = append(rows, row)
	}
	return rows
}

func (e *Editor) check(id int) bool {
	if e.Checked(id) {
		return false
	}
	e.selected[id] = struct{}{}
	return true
}

func (e *Editor) isView(id int) bool {
	c := e.cells[id]
	view, ok := e.views[c.module]
	return ok && view == id
}

func (e *Editor) moduleHasAction(mi int) bool {
	view := e.views[mi]
	for _, p := range e.modules[mi].Permissions {
		if p.ID != view && e.Checked(p.ID) {
			return true
		}
	}
	return false
}

func (e *Editor) action(id int) string {
	c := e.cells[id]
	for _, p := range e.modules[c.module].Permissions {
		if p.ID == id {
			return p.Action
		}
	}
	return fmt.Sprintf("permission_%d", id)
}
