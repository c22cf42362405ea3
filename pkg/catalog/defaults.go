package catalog

import (
	"github.com/rmax-ai/auditsim/pkg/action"
	"github.com/rmax-ai/auditsim/pkg/behavior"
)

var (
	crud     = []action.Operation{action.OpSelect, action.OpInsert, action.OpUpdate, action.OpDelete, action.OpExport}
	readOnly = []action.Operation{action.OpSelect, action.OpExport}
)

func cols(spec ...string) []Column {
	out := []Column{{Name: "id", Type: "INTEGER PRIMARY KEY"}}
	for i := 0; i+1 < len(spec); i += 2 {
		out = append(out, Column{Name: spec[i], Type: spec[i+1]})
	}
	return out
}

// DefaultEntities is the built-in corporate data model.
func DefaultEntities() []Entity {
	return []Entity{
		{Name: "employees", Domain: "hr", Sensitivity: action.Confidential, Operations: crud,
			Columns: cols("name", "TEXT", "email", "TEXT", "department", "TEXT", "title", "TEXT", "manager_id", "INTEGER")},
		{Name: "salaries", Domain: "hr", Sensitivity: action.Restricted, Operations: crud,
			Columns: cols("employee_id", "INTEGER", "amount", "REAL", "currency", "TEXT", "effective_date", "TEXT")},
		{Name: "payroll", Domain: "finance", Sensitivity: action.Restricted, Operations: crud,
			Columns: cols("employee_id", "INTEGER", "period", "TEXT", "gross", "REAL", "net", "REAL")},
		{Name: "customers", Domain: "sales", Sensitivity: action.Confidential, Operations: crud,
			Columns: cols("name", "TEXT", "email", "TEXT", "region", "TEXT", "tier", "TEXT")},
		{Name: "orders", Domain: "sales", Sensitivity: action.Internal, Operations: crud,
			Columns: cols("customer_id", "INTEGER", "total", "REAL", "status", "TEXT", "created_at", "TEXT")},
		{Name: "invoices", Domain: "finance", Sensitivity: action.Confidential, Operations: crud,
			Columns: cols("customer_id", "INTEGER", "amount", "REAL", "due_date", "TEXT", "status", "TEXT")},
		{Name: "tickets", Domain: "support", Sensitivity: action.Internal, Operations: crud,
			Columns: cols("customer_id", "INTEGER", "subject", "TEXT", "priority", "TEXT", "status", "TEXT")},
		{Name: "products", Domain: "catalog", Sensitivity: action.Public, Operations: crud,
			Columns: cols("sku", "TEXT", "name", "TEXT", "price", "REAL", "category", "TEXT")},
		{Name: "audit_log", Domain: "security", Sensitivity: action.Restricted, Operations: readOnly,
			Columns: cols("actor", "TEXT", "event", "TEXT", "target", "TEXT", "created_at", "TEXT")},
		{Name: "access_grants", Domain: "security", Sensitivity: action.Restricted,
			Operations: []action.Operation{action.OpSelect, action.OpGrant, action.OpDelete},
			Columns:    cols("grantee", "TEXT", "entity", "TEXT", "privilege", "TEXT", "granted_at", "TEXT")},
		{Name: "system_config", Domain: "platform", Sensitivity: action.Restricted,
			Operations: []action.Operation{action.OpSelect, action.OpUpdate},
			Columns:    cols("setting", "TEXT", "value", "TEXT", "updated_at", "TEXT")},
		{Name: "system_health", Domain: "platform", Sensitivity: action.Public,
			Operations: []action.Operation{action.OpSelect, action.OpProbe},
			Columns:    cols("component", "TEXT", "status", "TEXT", "checked_at", "TEXT")},
	}
}

// DefaultAccess maps each role to the entities it works with.
func DefaultAccess() map[behavior.Role][]string {
	return map[behavior.Role][]string{
		behavior.RoleAnalyst:  {"orders", "products", "customers", "invoices", "tickets"},
		behavior.RoleEngineer: {"products", "orders", "tickets", "system_health", "system_config", "access_grants"},
		behavior.RoleFinance:  {"invoices", "orders", "customers", "payroll", "salaries"},
		behavior.RoleHR:       {"employees", "tickets", "salaries", "payroll"},
		behavior.RoleSupport:  {"tickets", "orders", "products", "customers"},
		behavior.RoleDBA: {
			"system_health", "system_config", "access_grants", "audit_log",
			"products", "orders", "tickets", "customers", "invoices", "employees", "salaries", "payroll",
		},
		behavior.RoleService: {"orders", "invoices", "products", "system_health", "tickets"},
	}
}

// DefaultClearance is the maximum sensitivity each role is cleared for.
func DefaultClearance() map[behavior.Role]action.Sensitivity {
	return map[behavior.Role]action.Sensitivity{
		behavior.RoleAnalyst:  action.Confidential,
		behavior.RoleEngineer: action.Restricted,
		behavior.RoleFinance:  action.Restricted,
		behavior.RoleHR:       action.Restricted,
		behavior.RoleSupport:  action.Confidential,
		behavior.RoleDBA:      action.Restricted,
		behavior.RoleService:  action.Confidential,
	}
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := New(DefaultEntities(), DefaultAccess(), DefaultClearance())
	if err != nil {
		panic("catalog: built-in catalog invalid: " + err.Error())
	}
	return c
}
