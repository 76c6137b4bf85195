package company

import "time"

const (
	StatusActive   = "ACTIVE"
	StatusInactive = "INACTIVE"
)

const (
	PeriodMonthly = "MONTHLY"
	PeriodWeekly  = "WEEKLY"
	PeriodDaily   = "DAILY"
)

var PeriodTypes = []string{PeriodMonthly, PeriodWeekly, PeriodDaily}

type Company struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Address    string    `json:"address"`
	Currency   string    `json:"currency"`
	PeriodType string    `json:"periodType"`
	LogoURL    string    `json:"logoUrl,omitempty"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"createdAt"`
}

func ValidPeriodType(value string) bool {
	for _, period := range PeriodTypes {
		if period == value {
			return true
		}
	}
	return false
}
