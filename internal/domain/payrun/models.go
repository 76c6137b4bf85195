package payrun

import "time"

type PayRun struct {
	ID              string    `json:"id"`
	CompanyID       string    `json:"companyId"`
	Name            string    `json:"name"`
	PeriodType      string    `json:"periodType"`
	StartDate       time.Time `json:"startDate"`
	EndDate         time.Time `json:"endDate"`
	Status          string    `json:"status"`
	TotalGross      float64   `json:"totalGross"`
	TotalDeductions float64   `json:"totalDeductions"`
	TotalNet        float64   `json:"totalNet"`
	Payslips        []Payslip `json:"payslips,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

type Payslip struct {
	ID              string  `json:"id"`
	PayRunID        string  `json:"payRunId"`
	EmployeeID      string  `json:"employeeId"`
	EmployeeName    string  `json:"employeeName,omitempty"`
	GrossSalary     float64 `json:"grossSalary"`
	TotalDeductions float64 `json:"totalDeductions"`
	NetSalary       float64 `json:"netSalary"`
	PaidAmount      float64 `json:"paidAmount"`
	PaymentStatus   string  `json:"paymentStatus"`
	FileURL         string  `json:"fileUrl,omitempty"`
}

type Totals struct {
	Gross      float64
	Deductions float64
	Net        float64
}
