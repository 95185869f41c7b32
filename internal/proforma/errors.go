package proforma

import "errors"

// Domain errors for proformas.
var (
	// ErrNotFound indicates the requested proforma does not exist.
	ErrNotFound = errors.New("proforma not found")

	// Validation errors.
	ErrValidation       = errors.New("validation failed")
	ErrInvalidLineItem  = errors.New("invalid line item")
	ErrInvalidPromo     = errors.New("invalid promo discount")
	ErrMissingRecipient = errors.New("recipient is required")
	ErrEmptyItems       = errors.New("at least one item is required")
	ErrValidityPassed   = errors.New("valid_until must be in the future")
	ErrReasonRequired   = errors.New("cancellation reason is required")
	ErrNotExpired       = errors.New("proforma validity has not passed yet")
	ErrCatalogMiss      = errors.New("catalog work not available")

	// Lifecycle errors.
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrAlreadyConverted  = errors.New("proforma already converted to an order")

	// ErrConcurrentUpdate is returned when a document kept changing underneath
	// a transition or a conversion lock could not be obtained.
	ErrConcurrentUpdate = errors.New("proforma modified concurrently")
	// ErrVersionConflict is returned by repositories when the expected version
	// no longer matches the stored one.
	ErrVersionConflict = errors.New("proforma version conflict")

	// Integrity errors. These indicate a bug and are never retried.
	ErrIntegrity       = errors.New("proforma integrity violation")
	ErrNumberCollision = errors.New("proforma number collision")

	// Collaborator errors.
	ErrOrderCreation = errors.New("order creation failed")
	ErrNotification  = errors.New("recipient notification failed")
	ErrRendering     = errors.New("document rendering failed")
)

// ErrorKind groups domain errors for callers that branch on the category
// rather than the exact sentinel.
type ErrorKind string

const (
	KindValidation   ErrorKind = "validation"
	KindState        ErrorKind = "state"
	KindConflict     ErrorKind = "conflict"
	KindNotFound     ErrorKind = "not_found"
	KindIntegrity    ErrorKind = "integrity"
	KindCollaborator ErrorKind = "collaborator"
	KindUnknown      ErrorKind = "unknown"
)

var kindTable = []struct {
	kind ErrorKind
	errs []error
}{
	{KindIntegrity, []error{ErrIntegrity, ErrNumberCollision}},
	{KindState, []error{ErrInvalidTransition, ErrAlreadyConverted}},
	{KindConflict, []error{ErrConcurrentUpdate, ErrVersionConflict}},
	{KindNotFound, []error{ErrNotFound}},
	{KindValidation, []error{
		ErrValidation, ErrInvalidLineItem, ErrInvalidPromo, ErrMissingRecipient,
		ErrEmptyItems, ErrValidityPassed, ErrReasonRequired, ErrNotExpired, ErrCatalogMiss,
	}},
	{KindCollaborator, []error{ErrOrderCreation, ErrNotification, ErrRendering}},
}

// Kind classifies err. Integrity wins over every other category so a bug is
// never reported as a caller mistake.
func Kind(err error) ErrorKind {
	if err == nil {
		return ""
	}
	for _, entry := range kindTable {
		for _, target := range entry.errs {
			if errors.Is(err, target) {
				return entry.kind
			}
		}
	}
	return KindUnknown
}
