package generator

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/rmax-ai/auditsim/pkg/action"
	"github.com/rmax-ai/auditsim/pkg/catalog"
)

var textValues = map[string][]string{
	"status":     {"open", "closed", "pending", "paid", "overdue"},
	"priority":   {"low", "medium", "high", "urgent"},
	"region":     {"emea", "amer", "apac"},
	"tier":       {"bronze", "silver", "gold"},
	"currency":   {"USD", "EUR", "GBP"},
	"department": {"analytics", "engineering", "finance", "people", "customer_success"},
	"category":   {"hardware", "software", "services"},
	"privilege":  {"read", "write", "admin"},
}

// grantable are the entities admin sessions hand out access to.
var grantable = []string{"customers", "employees", "invoices", "payroll", "salaries"}

// payloadBuilder renders SQLite-compatible statements for catalog entities.
type payloadBuilder struct {
	rng *rand.Rand
	now time.Time
}

func newBuilder(rng *rand.Rand, now time.Time) payloadBuilder {
	return payloadBuilder{rng: rng, now: now}
}

func (b payloadBuilder) literal(col catalog.Column) string {
	switch {
	case strings.HasPrefix(col.Type, "INTEGER"):
		return fmt.Sprintf("%d", b.rng.Intn(1000)+1)
	case col.Type == "REAL":
		return fmt.Sprintf("%.2f", 10+b.rng.Float64()*9990)
	}

	switch name := col.Name; {
	case strings.HasSuffix(name, "_at") || strings.HasSuffix(name, "_date"):
		return quote(b.now.Format(time.RFC3339))
	case name == "email":
		return quote(fmt.Sprintf("user%d@example.com", b.rng.Intn(5000)))
	case name == "period":
		return quote(b.now.Format("2006-01"))
	default:
		if vals, ok := textValues[name]; ok {
			return quote(vals[b.rng.Intn(len(vals))])
		}
		return quote(fmt.Sprintf("%s-%d", name, b.rng.Intn(10000)))
	}
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// dataColumns skips the primary key.
func dataColumns(e catalog.Entity) []catalog.Column {
	if len(e.Columns) <= 1 {
		return nil
	}
	return e.Columns[1:]
}

func (b payloadBuilder) pick(cols []catalog.Column) catalog.Column {
	return cols[b.rng.Intn(len(cols))]
}

func (b payloadBuilder) textColumn(e catalog.Entity) (catalog.Column, bool) {
	var text []catalog.Column
	for _, c := range dataColumns(e) {
		if c.Type == "TEXT" {
			text = append(text, c)
		}
	}
	if len(text) == 0 {
		return catalog.Column{}, false
	}
	return b.pick(text), true
}

func (b payloadBuilder) where(e catalog.Entity, c action.Complexity) string {
	switch c {
	case action.Simple:
		return fmt.Sprintf("id = %d", b.rng.Intn(1000)+1)
	case action.Intermediate:
		if col, ok := b.textColumn(e); ok {
			return fmt.Sprintf("%s = %s", col.Name, b.literal(col))
		}
		fallthrough
	default:
		lo := b.rng.Intn(900) + 1
		return fmt.Sprintf("id BETWEEN %d AND %d", lo, lo+b.rng.Intn(100)+1)
	}
}

// build renders op against e at the given complexity.
func (b payloadBuilder) build(e catalog.Entity, op action.Operation, c action.Complexity, agentID string) string {
	cols := dataColumns(e)
	switch op {
	case action.OpSelect:
		return b.selectStmt(e, c)
	case action.OpExport:
		switch c {
		case action.Simple:
			return fmt.Sprintf("SELECT * FROM %s LIMIT 1000", e.Name)
		case action.Intermediate:
			return fmt.Sprintf("SELECT %s FROM %s WHERE %s", strings.Join(e.ColumnNames(), ", "), e.Name, b.where(e, action.Complex))
		default:
			return fmt.Sprintf("SELECT * FROM %s ORDER BY id", e.Name)
		}
	case action.OpInsert:
		names := make([]string, len(cols))
		vals := make([]string, len(cols))
		for i, col := range cols {
			names[i] = col.Name
			vals[i] = b.literal(col)
		}
		return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", e.Name, strings.Join(names, ", "), strings.Join(vals, ", "))
	case action.OpUpdate:
		col := b.pick(cols)
		set := fmt.Sprintf("%s = %s", col.Name, b.literal(col))
		if c == action.Complex {
			return fmt.Sprintf("UPDATE %s SET %s WHERE id IN (SELECT id FROM %s WHERE %s LIMIT 25)",
				e.Name, set, e.Name, b.where(e, action.Intermediate))
		}
		return fmt.Sprintf("UPDATE %s SET %s WHERE %s", e.Name, set, b.where(e, c))
	case action.OpDelete:
		return fmt.Sprintf("DELETE FROM %s WHERE %s", e.Name, b.where(e, c))
	case action.OpGrant:
		on := grantable[b.rng.Intn(len(grantable))]
		priv := textValues["privilege"][b.rng.Intn(len(textValues["privilege"]))]
		return GrantStatement(agentID, on, priv, b.now)
	default:
		return ProbeStatement
	}
}

func (b payloadBuilder) selectStmt(e catalog.Entity, c action.Complexity) string {
	switch c {
	case action.Simple:
		return fmt.Sprintf("SELECT * FROM %s WHERE %s", e.Name, b.where(e, c))
	case action.Intermediate:
		cols := dataColumns(e)
		a, z := b.pick(cols), b.pick(cols)
		list := a.Name
		if z.Name != a.Name {
			list += ", " + z.Name
		}
		return fmt.Sprintf("SELECT id, %s FROM %s WHERE %s ORDER BY id DESC LIMIT %d",
			list, e.Name, b.where(e, c), 10*(b.rng.Intn(10)+1))
	default:
		group, ok := b.textColumn(e)
		if !ok {
			return fmt.Sprintf("SELECT COUNT(*) AS n FROM %s WHERE %s", e.Name, b.where(e, c))
		}
		return fmt.Sprintf("SELECT %s, COUNT(*) AS n FROM %s WHERE %s GROUP BY %s HAVING COUNT(*) > 1 ORDER BY n DESC",
			group.Name, e.Name, b.where(e, c), group.Name)
	}
}

// ProbeStatement is the always-valid read-only fallback payload.
const ProbeStatement = "SELECT 1 FROM system_health LIMIT 1"

// ProbeTarget is the entity the fallback payload reads.
const ProbeTarget = "system_health"

// GrantStatement records a privilege grant in access_grants.
func GrantStatement(grantee, entity, privilege string, at time.Time) string {
	return fmt.Sprintf("INSERT INTO access_grants (grantee, entity, privilege, granted_at) VALUES (%s, %s, %s, %s)",
		quote(grantee), quote(entity), quote(privilege), quote(at.Format(time.RFC3339)))
}
