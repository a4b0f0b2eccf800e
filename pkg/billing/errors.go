package billing

import "errors"

var (
	// ErrProviderNotConfigured is returned when a provider is not properly configured
	ErrProviderNotConfigured = errors.New("billing provider not configured")

	// ErrInvalidSignature is returned when webhook signature validation fails
	ErrInvalidSignature = errors.New("invalid webhook signature")

	// ErrInvalidPayload is returned when a webhook payload cannot be parsed
	ErrInvalidPayload = errors.New("invalid webhook payload")

	// ErrDuplicateEvent is returned when an event ID is already in the ledger
	ErrDuplicateEvent = errors.New("event already processed")

	// ErrCustomerNotFound is returned when a customer cannot be found at the provider
	ErrCustomerNotFound = errors.New("customer not found in billing provider")
)
