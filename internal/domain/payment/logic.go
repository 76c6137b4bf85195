package payment

import "errors"

var (
	ErrInvalidAmount  = errors.New("payment amount must be positive")
	ErrExceedsBalance = errors.New("payment exceeds payslip balance")
	ErrUnknownMethod  = errors.New("unknown payment method")
	ErrPayRunClosed   = errors.New("payments on a closed pay run cannot be modified")
)

// ValidateAmount checks a payment against the payslip's remaining balance.
// remaining is net minus the sum of other payments on the payslip.
func ValidateAmount(amount, remaining float64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if amount > remaining {
		return ErrExceedsBalance
	}
	return nil
}

func ValidateMethod(method string) error {
	if !ValidMethod(method) {
		return ErrUnknownMethod
	}
	return nil
}
