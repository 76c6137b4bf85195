package auth

import "testing"

func TestNavigationTable(t *testing.T) {
	tests := []struct {
		role    string
		labels  []string
		ronly   map[string]bool
		missing []string
	}{
		{
			role:   RoleSuperAdmin,
			labels: []string{"Dashboard", "Companies", "Employees", "Pay Runs", "Payslips", "Payments", "Reports", "Settings"},
		},
		{
			role:    RoleAdmin,
			labels:  []string{"Dashboard", "Employees", "Pay Runs", "Payslips", "Payments", "Reports", "Settings"},
			missing: []string{"Companies"},
		},
		{
			role:    RoleCashier,
			labels:  []string{"Dashboard", "Employees", "Payslips", "Payments", "Reports"},
			ronly:   map[string]bool{"Employees": true, "Payslips": true},
			missing: []string{"Companies", "Pay Runs", "Settings"},
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.role, func(t *testing.T) {
			entries := Navigation(tc.role)
			if len(entries) != len(tc.labels) {
				t.Fatalf("expected %d entries, got %d: %+v", len(tc.labels), len(entries), entries)
			}
			for i, label := range tc.labels {
				if entries[i].Label != label {
					t.Fatalf("entry %d: expected %q, got %q", i, label, entries[i].Label)
				}
				if entries[i].ReadOnly != tc.ronly[label] {
					t.Fatalf("entry %q: readonly = %v, expected %v", label, entries[i].ReadOnly, tc.ronly[label])
				}
			}
			for _, label := range tc.missing {
				for _, entry := range entries {
					if entry.Label == label {
						t.Fatalf("role %s must not see %q", tc.role, label)
					}
				}
			}
		})
	}
}

func TestNavigationUnknownRole(t *testing.T) {
	if entries := Navigation("MANAGER"); entries != nil {
		t.Fatalf("expected no navigation for unknown role, got %+v", entries)
	}
}

func TestCanActionGates(t *testing.T) {
	tests := []struct {
		name     string
		role     string
		resource string
		action   string
		want     bool
	}{
		{"super admin manages companies", RoleSuperAdmin, ResourceCompanies, ActionCreate, true},
		{"admin cannot manage companies", RoleAdmin, ResourceCompanies, ActionView, false},
		{"admin writes employees", RoleAdmin, ResourceEmployees, ActionEdit, true},
		{"cashier reads employees", RoleCashier, ResourceEmployees, ActionView, true},
		{"cashier cannot write employees", RoleCashier, ResourceEmployees, ActionCreate, false},
		{"cashier cannot see payruns", RoleCashier, ResourcePayRuns, ActionView, false},
		{"admin cannot delete payruns", RoleAdmin, ResourcePayRuns, ActionDelete, false},
		{"super admin deletes payruns", RoleSuperAdmin, ResourcePayRuns, ActionDelete, true},
		{"cashier writes payments", RoleCashier, ResourcePayments, ActionCreate, true},
		{"cashier has no settings", RoleCashier, ResourceSettings, ActionView, false},
		{"only super admin reads audit", RoleAdmin, ResourceAudit, ActionView, false},
		{"unknown role denied", "MANAGER", ResourceEmployees, ActionView, false},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			if got := Can(tc.role, tc.resource, tc.action); got != tc.want {
				t.Fatalf("Can(%s,%s,%s) = %v, expected %v", tc.role, tc.resource, tc.action, got, tc.want)
			}
		})
	}
}

func TestEffectiveCompany(t *testing.T) {
	tests := []struct {
		name      string
		user      UserContext
		requested string
		want      string
		scoped    bool
	}{
		{
			name:      "admin pinned to own company",
			user:      UserContext{Role: RoleAdmin, CompanyID: "c1"},
			requested: "c2",
			want:      "c1",
			scoped:    true,
		},
		{
			name:      "cashier pinned to own company",
			user:      UserContext{Role: RoleCashier, CompanyID: "c3"},
			requested: "",
			want:      "c3",
			scoped:    true,
		},
		{
			name:      "impersonation wins over requested company",
			user:      UserContext{Role: RoleSuperAdmin, ImpersonateCompany: "c9"},
			requested: "c2",
			want:      "c9",
			scoped:    true,
		},
		{
			name:      "super admin honors requested company",
			user:      UserContext{Role: RoleSuperAdmin},
			requested: "c4",
			want:      "c4",
			scoped:    true,
		},
		{
			name:   "super admin unscoped by default",
			user:   UserContext{Role: RoleSuperAdmin},
			scoped: false,
		},
		{
			name:   "unknown role unscoped",
			user:   UserContext{Role: "MANAGER", CompanyID: "c1"},
			scoped: false,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got, scoped := EffectiveCompany(tc.user, tc.requested)
			if got != tc.want || scoped != tc.scoped {
				t.Fatalf("EffectiveCompany = (%q, %v), expected (%q, %v)", got, scoped, tc.want, tc.scoped)
			}
		})
	}
}

func TestNormalizeRole(t *testing.T) {
	if NormalizeRole("SUPERADMIN") != RoleSuperAdmin {
		t.Fatal("expected SUPERADMIN to normalize to SUPER_ADMIN")
	}
	if NormalizeRole("CAISSIER") != RoleCashier {
		t.Fatal("expected CAISSIER to normalize to CASHIER")
	}
	if NormalizeRole(RoleAdmin) != RoleAdmin {
		t.Fatal("expected canonical role to pass through")
	}
	if NormalizeRole("bogus") != "bogus" {
		t.Fatal("expected unknown role to pass through for validation")
	}
}
