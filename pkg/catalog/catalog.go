// Package catalog describes the data entities agents act on, their
// sensitivity, and which roles may reach them.
package catalog

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rmax-ai/auditsim/pkg/action"
	"github.com/rmax-ai/auditsim/pkg/behavior"
)

// Column is one column of an entity's table.
type Column struct {
	Name string
	Type string
}

// Entity is a target table in the simulated system.
type Entity struct {
	Name        string
	Domain      string
	Sensitivity action.Sensitivity
	Columns     []Column
	Operations  []action.Operation
}

// Allows reports whether op may be performed on the entity.
func (e Entity) Allows(op action.Operation) bool {
	for _, o := range e.Operations {
		if o == op {
			return true
		}
	}
	return false
}

// ColumnNames returns the column names in declaration order.
func (e Entity) ColumnNames() []string {
	names := make([]string, len(e.Columns))
	for i, c := range e.Columns {
		names[i] = c.Name
	}
	return names
}

// Catalog is immutable after New.
type Catalog struct {
	entities  []Entity
	byName    map[string]int
	access    map[behavior.Role][]string
	clearance map[behavior.Role]action.Sensitivity
}

// New validates that every access entry names a known entity and builds
// the catalog.
func New(entities []Entity, access map[behavior.Role][]string, clearance map[behavior.Role]action.Sensitivity) (*Catalog, error) {
	c := &Catalog{
		entities:  make([]Entity, len(entities)),
		byName:    make(map[string]int, len(entities)),
		access:    make(map[behavior.Role][]string, len(access)),
		clearance: make(map[behavior.Role]action.Sensitivity, len(clearance)),
	}
	copy(c.entities, entities)

	for i, e := range c.entities {
		if e.Name == "" {
			return nil, fmt.Errorf("entity %d has no name", i)
		}
		if _, dup := c.byName[e.Name]; dup {
			return nil, fmt.Errorf("duplicate entity %q", e.Name)
		}
		if len(e.Columns) == 0 {
			return nil, fmt.Errorf("entity %q has no columns", e.Name)
		}
		c.byName[e.Name] = i
	}

	for role, names := range access {
		for _, n := range names {
			if _, ok := c.byName[n]; !ok {
				return nil, fmt.Errorf("role %s: unknown entity %q", role, n)
			}
		}
		c.access[role] = append([]string(nil), names...)
	}
	for role, s := range clearance {
		c.clearance[role] = s
	}
	return c, nil
}

// Entities returns all entities in declaration order.
func (c *Catalog) Entities() []Entity {
	out := make([]Entity, len(c.entities))
	copy(out, c.entities)
	return out
}

// Lookup finds an entity by name.
func (c *Catalog) Lookup(name string) (Entity, bool) {
	i, ok := c.byName[name]
	if !ok {
		return Entity{}, false
	}
	return c.entities[i], true
}

// Clearance returns the highest sensitivity role may touch. Unknown roles
// are cleared for public data only.
func (c *Catalog) Clearance(role behavior.Role) action.Sensitivity {
	if s, ok := c.clearance[role]; ok {
		return s
	}
	return action.Public
}

// Access returns the entity names reachable by role.
func (c *Catalog) Access(role behavior.Role) []string {
	return append([]string(nil), c.access[role]...)
}

// ForRole returns the entities role can reach that allow op and are no more
// sensitive than limit, in the role's access order.
func (c *Catalog) ForRole(role behavior.Role, limit action.Sensitivity, op action.Operation) []Entity {
	var out []Entity
	for _, name := range c.access[role] {
		e := c.entities[c.byName[name]]
		if e.Sensitivity > limit || !e.Allows(op) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Schema returns CREATE TABLE statements for every entity, sorted by name.
func (c *Catalog) Schema() []string {
	stmts := make([]string, 0, len(c.entities))
	for _, e := range c.entities {
		cols := make([]string, len(e.Columns))
		for i, col := range e.Columns {
			cols[i] = col.Name + " " + col.Type
		}
		stmts = append(stmts, fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", e.Name, strings.Join(cols, ", ")))
	}
	sort.Strings(stmts)
	return stmts
}
