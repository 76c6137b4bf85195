package auth

// Canonical role names. Older clients used SUPERADMIN and CAISSIER literals;
// those are normalized at the login boundary and never stored.
const (
	RoleSuperAdmin = "SUPER_ADMIN"
	RoleAdmin      = "ADMIN"
	RoleCashier    = "CASHIER"
)

const (
	ResourceDashboard = "dashboard"
	ResourceCompanies = "companies"
	ResourceEmployees = "employees"
	ResourcePayRuns   = "payruns"
	ResourcePayslips  = "payslips"
	ResourcePayments  = "payments"
	ResourceUsers     = "users"
	ResourceReports   = "reports"
	ResourceSettings  = "settings"
	ResourceAudit     = "audit"
	ResourceMetrics   = "metrics"
)

const (
	ActionView   = "view"
	ActionCreate = "create"
	ActionEdit   = "edit"
	ActionDelete = "delete"
)

var Roles = []string{RoleSuperAdmin, RoleAdmin, RoleCashier}

// rolePermissions maps role -> resource -> allowed actions. Every check in
// the transport layer goes through Can; handlers never compare raw role
// strings against anything but these constants.
var rolePermissions = map[string]map[string][]string{
	RoleSuperAdmin: {
		ResourceDashboard: {ActionView},
		ResourceCompanies: {ActionView, ActionCreate, ActionEdit, ActionDelete},
		ResourceEmployees: {ActionView, ActionCreate, ActionEdit, ActionDelete},
		ResourcePayRuns:   {ActionView, ActionCreate, ActionEdit, ActionDelete},
		ResourcePayslips:  {ActionView},
		ResourcePayments:  {ActionView, ActionCreate, ActionEdit, ActionDelete},
		ResourceUsers:     {ActionView, ActionCreate, ActionEdit, ActionDelete},
		ResourceReports:   {ActionView},
		ResourceSettings:  {ActionView, ActionEdit},
		ResourceAudit:     {ActionView},
		ResourceMetrics:   {ActionView},
	},
	RoleAdmin: {
		ResourceDashboard: {ActionView},
		ResourceEmployees: {ActionView, ActionCreate, ActionEdit, ActionDelete},
		ResourcePayRuns:   {ActionView, ActionCreate, ActionEdit},
		ResourcePayslips:  {ActionView},
		ResourcePayments:  {ActionView, ActionCreate, ActionEdit, ActionDelete},
		ResourceUsers:     {ActionView, ActionCreate, ActionEdit, ActionDelete},
		ResourceReports:   {ActionView},
		ResourceSettings:  {ActionView, ActionEdit},
	},
	RoleCashier: {
		ResourceDashboard: {ActionView},
		ResourceEmployees: {ActionView},
		ResourcePayslips:  {ActionView},
		ResourcePayments:  {ActionView, ActionCreate, ActionEdit, ActionDelete},
		ResourceReports:   {ActionView},
	},
}

func Can(role, resource, action string) bool {
	resources, ok := rolePermissions[role]
	if !ok {
		return false
	}
	actions, ok := resources[resource]
	if !ok {
		return false
	}
	for _, allowed := range actions {
		if allowed == action {
			return true
		}
	}
	return false
}

func ValidRole(role string) bool {
	_, ok := rolePermissions[role]
	return ok
}

type NavEntry struct {
	Path     string `json:"path"`
	Label    string `json:"label"`
	ReadOnly bool   `json:"readonly,omitempty"`
}

var navigation = map[string][]NavEntry{
	RoleSuperAdmin: {
		{Path: "/dashboard", Label: "Dashboard"},
		{Path: "/companies", Label: "Companies"},
		{Path: "/employees", Label: "Employees"},
		{Path: "/payruns", Label: "Pay Runs"},
		{Path: "/payslips", Label: "Payslips"},
		{Path: "/payments", Label: "Payments"},
		{Path: "/reports", Label: "Reports"},
		{Path: "/settings", Label: "Settings"},
	},
	RoleAdmin: {
		{Path: "/dashboard", Label: "Dashboard"},
		{Path: "/employees", Label: "Employees"},
		{Path: "/payruns", Label: "Pay Runs"},
		{Path: "/payslips", Label: "Payslips"},
		{Path: "/payments", Label: "Payments"},
		{Path: "/reports", Label: "Reports"},
		{Path: "/settings", Label: "Settings"},
	},
	RoleCashier: {
		{Path: "/dashboard", Label: "Dashboard"},
		{Path: "/employees", Label: "Employees", ReadOnly: true},
		{Path: "/payslips", Label: "Payslips", ReadOnly: true},
		{Path: "/payments", Label: "Payments"},
		{Path: "/reports", Label: "Reports"},
	},
}

// Navigation returns the ordered menu entries visible to a role. The result
// is a copy; callers may not mutate the table.
func Navigation(role string) []NavEntry {
	entries, ok := navigation[role]
	if !ok {
		return nil
	}
	out := make([]NavEntry, len(entries))
	copy(out, entries)
	return out
}

// EffectiveCompany resolves the company scope for a request. ADMIN and
// CASHIER are always pinned to their own company. A SUPER_ADMIN with an
// active impersonation is pinned to the impersonated company, which takes
// precedence over any caller-supplied value; without one, the caller's
// requested company (possibly empty, meaning all companies) is honored.
func EffectiveCompany(user UserContext, requested string) (string, bool) {
	switch user.Role {
	case RoleAdmin, RoleCashier:
		return user.CompanyID, true
	case RoleSuperAdmin:
		if user.ImpersonateCompany != "" {
			return user.ImpersonateCompany, true
		}
		return requested, requested != ""
	default:
		return "", false
	}
}

// NormalizeRole folds legacy role literals onto the canonical set. Unknown
// values are returned unchanged so validation can reject them.
func NormalizeRole(role string) string {
	switch role {
	case "SUPERADMIN":
		return RoleSuperAdmin
	case "CAISSIER":
		return RoleCashier
	default:
		return role
	}
}
