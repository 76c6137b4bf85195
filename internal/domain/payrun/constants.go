package payrun

const (
	StatusDraft    = "DRAFT"
	StatusApproved = "APPROVED"
	StatusClosed   = "CLOSED"
)

const (
	PayslipPending = "PENDING"
	PayslipPartial = "PARTIAL"
	PayslipPaid    = "PAID"
)
