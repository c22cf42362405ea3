package scenario

import (
	"github.com/rmax-ai/auditsim/pkg/action"
	"github.com/rmax-ai/auditsim/pkg/behavior"
)

// BuiltinDefinitions returns the shipped rule-bypass scenarios.
func BuiltinDefinitions() []Definition {
	return []Definition{
		{
			Name:        "off_hours_exfiltration",
			Description: "Reads and exports the customer table outside business hours.",
			Roles:       []behavior.Role{behavior.RoleAnalyst, behavior.RoleFinance, behavior.RoleSupport},
			Stages: []Stage{
				{Name: "recon", When: OffHours, Target: "customers", Operation: action.OpSelect, Sensitivity: action.Confidential,
					Complexity: action.Simple, Payload: "SELECT COUNT(*) FROM customers"},
				{Name: "bulk_read", When: OffHours, Target: "customers", Operation: action.OpSelect, Sensitivity: action.Confidential,
					Payload: "SELECT id, name, email, region FROM customers ORDER BY id"},
				{Name: "export", When: OffHours, Target: "customers", Operation: action.OpExport, Sensitivity: action.Confidential,
					Complexity: action.Complex, Success: OnSuccess, Payload: "SELECT * FROM customers"},
			},
		},
		{
			Name:        "privilege_escalation",
			Description: "Grants itself access to salary data after hours, then uses it.",
			Roles:       []behavior.Role{behavior.RoleEngineer, behavior.RoleDBA},
			Stages: []Stage{
				{Name: "probe_grants", When: Any, Target: "access_grants", Operation: action.OpSelect, Sensitivity: action.Restricted,
					Complexity: action.Simple, Payload: "SELECT * FROM access_grants WHERE grantee = '{{.Agent}}'"},
				{Name: "self_grant", When: OffHours, Target: "access_grants", Operation: action.OpGrant, Sensitivity: action.Restricted,
					Success: OnSuccess,
					Payload: "INSERT INTO access_grants (grantee, entity, privilege, granted_at) VALUES ('{{.Agent}}', 'salaries', 'admin', '{{.Now}}')"},
				{Name: "use_grant", When: Any, Target: "salaries", Operation: action.OpSelect, Sensitivity: action.Restricted,
					Complexity: action.Complex, Payload: "SELECT employee_id, amount FROM salaries ORDER BY amount DESC LIMIT 50"},
			},
		},
		{
			Name:        "holiday_bulk_delete",
			Description: "Purges invoices on a public holiday when nobody is watching.",
			Roles:       []behavior.Role{behavior.RoleDBA, behavior.RoleEngineer, behavior.RoleFinance},
			Stages: []Stage{
				{Name: "inspect", When: Holiday, Target: "invoices", Operation: action.OpSelect, Sensitivity: action.Confidential,
					Complexity: action.Simple, Payload: "SELECT COUNT(*) FROM invoices WHERE status = 'overdue'"},
				{Name: "purge", When: Holiday, Target: "invoices", Operation: action.OpDelete, Sensitivity: action.Confidential,
					Complexity: action.Complex, Success: OnSuccess, Payload: "DELETE FROM invoices WHERE id BETWEEN 1 AND 500"},
			},
		},
		{
			Name:        "lunch_break_snooping",
			Description: "Browses colleagues' personal and salary records over lunch.",
			Roles:       []behavior.Role{behavior.RoleHR, behavior.RoleAnalyst, behavior.RoleSupport},
			Stages: []Stage{
				{Name: "browse", When: Lunch, Target: "employees", Operation: action.OpSelect, Sensitivity: action.Confidential,
					Payload: "SELECT name, email, title FROM employees WHERE department = 'engineering'"},
				{Name: "peek_salaries", When: Lunch, Target: "salaries", Operation: action.OpSelect, Sensitivity: action.Restricted,
					Payload: "SELECT * FROM salaries WHERE employee_id BETWEEN {{.Lo}} AND {{.Hi}}"},
			},
		},
		{
			Name:        "slow_drip_export",
			Description: "Exports invoices in small slices spread over the day.",
			Roles:       []behavior.Role{behavior.RoleAnalyst, behavior.RoleFinance},
			Stages: []Stage{
				{Name: "drip_1", When: Any, Target: "invoices", Operation: action.OpExport, Sensitivity: action.Confidential,
					Payload: "SELECT * FROM invoices WHERE id BETWEEN {{.Lo}} AND {{.Hi}}"},
				{Name: "drip_2", When: Any, Target: "invoices", Operation: action.OpExport, Sensitivity: action.Confidential,
					Payload: "SELECT * FROM invoices WHERE id BETWEEN {{.Lo}} AND {{.Hi}}"},
				{Name: "drip_3", When: Any, Target: "invoices", Operation: action.OpExport, Sensitivity: action.Confidential,
					Payload: "SELECT * FROM invoices WHERE id BETWEEN {{.Lo}} AND {{.Hi}}"},
				{Name: "drip_4", When: Any, Target: "invoices", Operation: action.OpExport, Sensitivity: action.Confidential,
					Payload: "SELECT * FROM invoices WHERE id BETWEEN {{.Lo}} AND {{.Hi}}"},
			},
		},
		{
			Name:        "shadow_account",
			Description: "Creates an unlisted employee record on a non-business day and grants it access.",
			Roles:       []behavior.Role{behavior.RoleDBA},
			Stages: []Stage{
				{Name: "create", When: NonBusinessDay, Target: "employees", Operation: action.OpInsert, Sensitivity: action.Confidential,
					Success: OnSuccess,
					Payload: "INSERT INTO employees (name, email, department, title) VALUES ('svc-{{.Agent}}', 'svc-{{.Agent}}@example.com', 'platform', 'service')"},
				{Name: "grant", When: NonBusinessDay, Target: "access_grants", Operation: action.OpGrant, Sensitivity: action.Restricted,
					Success: OnSuccess,
					Payload: "INSERT INTO access_grants (grantee, entity, privilege, granted_at) VALUES ('svc-{{.Agent}}', 'payroll', 'write', '{{.Now}}')"},
				{Name: "verify", When: Any, Target: "access_grants", Operation: action.OpSelect, Sensitivity: action.Restricted,
					Complexity: action.Simple, Payload: "SELECT * FROM access_grants WHERE grantee = 'svc-{{.Agent}}'"},
			},
		},
	}
}

// Builtin returns a registry of the shipped scenarios.
func Builtin() *Registry {
	r, err := NewRegistry(BuiltinDefinitions()...)
	if err != nil {
		panic("scenario: built-in definitions invalid: " + err.Error())
	}
	return r
}
