package payrun

import (
	"errors"
	"testing"
	"time"

	"payhub/internal/domain/auth"
	"payhub/internal/domain/employee"
)

func TestTransitionGates(t *testing.T) {
	tests := []struct {
		name    string
		check   func() error
		wantErr error
	}{
		{"approve from draft", func() error { return CanApprove(StatusDraft) }, nil},
		{"approve from approved", func() error { return CanApprove(StatusApproved) }, ErrNotDraft},
		{"approve from closed", func() error { return CanApprove(StatusClosed) }, ErrNotDraft},
		{"approve unknown status", func() error { return CanApprove("PENDING") }, ErrUnknownStatus},
		{"close from approved", func() error { return CanClose(StatusApproved) }, nil},
		{"close from draft", func() error { return CanClose(StatusDraft) }, ErrNotApproved},
		{"close from closed", func() error { return CanClose(StatusClosed) }, ErrClosed},
		{"update draft", func() error { return CanUpdate(StatusDraft) }, nil},
		{"update approved", func() error { return CanUpdate(StatusApproved) }, ErrNotDraft},
		{"delete draft as super admin", func() error { return CanDelete(StatusDraft, auth.RoleSuperAdmin) }, nil},
		{"delete draft as admin", func() error { return CanDelete(StatusDraft, auth.RoleAdmin) }, ErrDeleteRequires},
		{"delete approved as super admin", func() error { return CanDelete(StatusApproved, auth.RoleSuperAdmin) }, ErrDeleteRequires},
		{"delete closed as cashier", func() error { return CanDelete(StatusClosed, auth.RoleCashier) }, ErrDeleteRequires},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			err := tc.check()
			if tc.wantErr == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestWorkingDays(t *testing.T) {
	// 2025-03-03 is a Monday.
	monday := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		start time.Time
		end   time.Time
		want  int
	}{
		{"single weekday", monday, monday, 1},
		{"full week", monday, monday.AddDate(0, 0, 6), 5},
		{"two weeks", monday, monday.AddDate(0, 0, 13), 10},
		{"weekend only", monday.AddDate(0, 0, 5), monday.AddDate(0, 0, 6), 0},
		{"inverted window", monday.AddDate(0, 0, 1), monday, 0},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			if got := WorkingDays(tc.start, tc.end); got != tc.want {
				t.Fatalf("WorkingDays = %d, expected %d", got, tc.want)
			}
		})
	}
}

func TestGrossByContractType(t *testing.T) {
	monday := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	end := monday.AddDate(0, 0, 6) // five working days

	if got := Gross(employee.ContractFixed, 250000, monday, end); got != 250000 {
		t.Fatalf("fixed gross = %v, expected 250000", got)
	}
	if got := Gross(employee.ContractFreelance, 80000, monday, end); got != 80000 {
		t.Fatalf("freelance gross = %v, expected 80000", got)
	}
	if got := Gross(employee.ContractDaily, 10000, monday, end); got != 50000 {
		t.Fatalf("daily gross = %v, expected 50000", got)
	}
	if got := Gross("UNKNOWN", 10000, monday, end); got != 0 {
		t.Fatalf("unknown contract gross = %v, expected 0", got)
	}
}

func TestSumTotals(t *testing.T) {
	slips := []Payslip{
		{GrossSalary: 100, TotalDeductions: 10, NetSalary: 90},
		{GrossSalary: 200, TotalDeductions: 0, NetSalary: 200},
		{GrossSalary: 50, TotalDeductions: 5, NetSalary: 45},
	}
	totals := Sum(slips)
	if totals.Gross != 350 || totals.Deductions != 15 || totals.Net != 335 {
		t.Fatalf("unexpected totals: %+v", totals)
	}

	empty := Sum(nil)
	if empty.Gross != 0 || empty.Deductions != 0 || empty.Net != 0 {
		t.Fatalf("expected zero totals for empty slice, got %+v", empty)
	}
}

func TestPaymentStatus(t *testing.T) {
	if got := PaymentStatus(100, 0); got != PayslipPending {
		t.Fatalf("expected PENDING, got %s", got)
	}
	if got := PaymentStatus(100, 40); got != PayslipPartial {
		t.Fatalf("expected PARTIAL, got %s", got)
	}
	if got := PaymentStatus(100, 100); got != PayslipPaid {
		t.Fatalf("expected PAID, got %s", got)
	}
	if got := PaymentStatus(100, 120); got != PayslipPaid {
		t.Fatalf("expected PAID for overpayment, got %s", got)
	}
}
