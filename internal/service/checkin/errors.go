package checkin

import "errors"

var (
	ErrInvalidCredential = errors.New("ticket credential is invalid or tampered")
	ErrTicketNotFound    = errors.New("ticket not found")
	ErrWrongTenant       = errors.New("ticket does not belong to this tenant")
	ErrDuplicateScan     = errors.New("ticket has already been checked in")
	ErrNotCheckable      = errors.New("ticket is not in a checkable state")
	ErrMissingInput      = errors.New("either a QR payload or a ticket id is required")
)
