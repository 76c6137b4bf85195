package payrun

import (
	"time"

	"payhub/internal/domain/auth"
	"payhub/internal/domain/employee"
)

// CanApprove reports whether a pay run in the given status may move to
// APPROVED. Transitions are strictly forward; the check runs before any
// mutation is attempted.
func CanApprove(status string) error {
	switch status {
	case StatusDraft:
		return nil
	case StatusApproved, StatusClosed:
		return ErrNotDraft
	default:
		return ErrUnknownStatus
	}
}

func CanClose(status string) error {
	switch status {
	case StatusApproved:
		return nil
	case StatusDraft:
		return ErrNotApproved
	case StatusClosed:
		return ErrClosed
	default:
		return ErrUnknownStatus
	}
}

// CanUpdate gates PUT: only draft runs are editable.
func CanUpdate(status string) error {
	if status != StatusDraft {
		return ErrNotDraft
	}
	return nil
}

// CanDelete requires both a draft run and a SUPER_ADMIN caller.
func CanDelete(status, role string) error {
	if status != StatusDraft || role != auth.RoleSuperAdmin {
		return ErrDeleteRequires
	}
	return nil
}

// WorkingDays counts Monday-Friday days in the inclusive window.
func WorkingDays(start, end time.Time) int {
	if end.Before(start) {
		return 0
	}
	days := 0
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		switch d.Weekday() {
		case time.Saturday, time.Sunday:
		default:
			days++
		}
	}
	return days
}

// Gross computes an employee's gross for the run window. FIXED contracts earn
// their salary per run, DAILY contracts earn rate times working days in the
// window, FREELANCE contracts earn their flat rate. Statutory deductions are
// not modeled here.
func Gross(contractType string, rateOrSalary float64, start, end time.Time) float64 {
	switch contractType {
	case employee.ContractDaily:
		return rateOrSalary * float64(WorkingDays(start, end))
	case employee.ContractFixed, employee.ContractFreelance:
		return rateOrSalary
	default:
		return 0
	}
}

func Net(gross, deductions float64) float64 {
	return gross - deductions
}

// Sum aggregates payslip amounts into run totals.
func Sum(payslips []Payslip) Totals {
	var totals Totals
	for _, slip := range payslips {
		totals.Gross += slip.GrossSalary
		totals.Deductions += slip.TotalDeductions
		totals.Net += slip.NetSalary
	}
	return totals
}

// PaymentStatus derives a payslip's paid state from its net and the amount
// paid so far.
func PaymentStatus(net, paid float64) string {
	switch {
	case paid <= 0:
		return PayslipPending
	case paid < net:
		return PayslipPartial
	default:
		return PayslipPaid
	}
}
