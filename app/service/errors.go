package service

import "errors"

var (
	ErrInvalidRequest      = errors.New("invalid request")
	ErrInvalidPhone        = errors.New("invalid phone number")
	ErrInvalidPayload      = errors.New("payload is not valid json")
	ErrIntegrationNotFound = errors.New("integration not found")
	ErrSourceIPRejected    = errors.New("source ip is not allowlisted")
	ErrSignatureRejected   = errors.New("signature verification failed")
	ErrSigningKeyMissing   = errors.New("signing key is not available")
	ErrInvalidTransition   = errors.New("invalid event status transition")

	ErrInvoiceNotFound        = errors.New("invoice not found")
	ErrInvoiceNotPayable      = errors.New("invoice is not payable")
	ErrInvoiceSettled         = errors.New("invoice has no outstanding balance")
	ErrAmountExceedsBalance   = errors.New("amount exceeds invoice balance")
	ErrDuplicateRequest       = errors.New("a payment request for this phone and invoice is already in progress")
	ErrPaymentRequestNotFound = errors.New("payment request not found")
	ErrPushUnavailable        = errors.New("push integration is not available")
	ErrProviderRejected       = errors.New("provider rejected the payment request")
	ErrProviderUnavailable    = errors.New("provider call failed")

	ErrAlertNotFound = errors.New("alert not found")
)
