package payment

import "time"

const (
	MethodCash         = "CASH"
	MethodBankTransfer = "BANK_TRANSFER"
	MethodOrangeMoney  = "ORANGE_MONEY"
	MethodWave         = "WAVE"
	MethodOther        = "OTHER"
)

var Methods = []string{MethodCash, MethodBankTransfer, MethodOrangeMoney, MethodWave, MethodOther}

type Payment struct {
	ID            string    `json:"id"`
	PayslipID     string    `json:"payslipId"`
	Amount        float64   `json:"amount"`
	PaymentMethod string    `json:"paymentMethod"`
	Reference     string    `json:"reference,omitempty"`
	Notes         string    `json:"notes,omitempty"`
	PaidAt        time.Time `json:"paidAt"`
	CreatedByUser string    `json:"createdByUser"`
	CreatedAt     time.Time `json:"createdAt"`
}

func ValidMethod(value string) bool {
	for _, method := range Methods {
		if method == value {
			return true
		}
	}
	return false
}
