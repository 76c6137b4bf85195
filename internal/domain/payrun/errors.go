package payrun

import "errors"

var (
	ErrNotDraft       = errors.New("pay run is not in draft")
	ErrNotApproved    = errors.New("pay run is not approved")
	ErrClosed         = errors.New("pay run is closed")
	ErrUnknownStatus  = errors.New("unknown pay run status")
	ErrDeleteRequires = errors.New("only a draft pay run can be deleted, by a super admin")
)
