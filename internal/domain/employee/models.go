package employee

import "time"

const (
	ContractDaily     = "DAILY"
	ContractFixed     = "FIXED"
	ContractFreelance = "FREELANCE"
)

var ContractTypes = []string{ContractDaily, ContractFixed, ContractFreelance}

type Employee struct {
	ID           string    `json:"id"`
	CompanyID    string    `json:"companyId"`
	FullName     string    `json:"fullName"`
	Position     string    `json:"position"`
	ContractType string    `json:"contractType"`
	RateOrSalary float64   `json:"rateOrSalary"`
	BankDetails  string    `json:"bankDetails,omitempty"`
	IsActive     bool      `json:"isActive"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func ValidContractType(value string) bool {
	for _, contract := range ContractTypes {
		if contract == value {
			return true
		}
	}
	return false
}
