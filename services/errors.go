package services

import (
	"errors"
	"fmt"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeValidation   ErrorType = "validation"
	ErrorTypeUnauthorized ErrorType = "unauthorized"
	ErrorTypeForbidden    ErrorType = "forbidden"
	ErrorTypeConflict     ErrorType = "conflict"
	ErrorTypeInternal     ErrorType = "internal"
	ErrorTypeExternal     ErrorType = "external"
)

// DomainError represents a structured error with additional context.
// Code identifies a specific failure within a Type and is exposed to API clients.
type DomainError struct {
	Type    ErrorType
	Code    string
	Message string
	Err     error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is. A target carrying a Code only matches that code;
// a target without one matches any error of the same Type.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	if t.Code != "" {
		return e.Code == t.Code
	}
	return e.Type == t.Type
}

// WithDetail adds a detail to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// NewCodedError creates a domain error identified by code
func NewCodedError(errType ErrorType, code, message string) *DomainError {
	e := NewDomainError(errType, message, nil)
	e.Code = code
	return e
}

// Domain error variables

var (
	// Not Found Errors
	ErrUserNotFound           = NewCodedError(ErrorTypeNotFound, "USER_NOT_FOUND", "user not found")
	ErrEntrepriseNotFound     = NewCodedError(ErrorTypeNotFound, "ENTREPRISE_NOT_FOUND", "entreprise not found")
	ErrMembershipNotFound     = NewCodedError(ErrorTypeNotFound, "MEMBERSHIP_NOT_FOUND", "membership not found")
	ErrCustomerNotFound       = NewCodedError(ErrorTypeNotFound, "CUSTOMER_NOT_FOUND", "customer not found")
	ErrInvoiceNotFound        = NewCodedError(ErrorTypeNotFound, "INVOICE_NOT_FOUND", "invoice not found")
	ErrTransactionNotFound    = NewCodedError(ErrorTypeNotFound, "TRANSACTION_NOT_FOUND", "bank transaction not found")
	ErrReconciliationNotFound = NewCodedError(ErrorTypeNotFound, "RECONCILIATION_NOT_FOUND", "reconciliation not found")

	// Validation Errors
	ErrInvalidInput        = NewCodedError(ErrorTypeValidation, "INVALID_INPUT", "invalid input")
	ErrInvalidSiret        = NewCodedError(ErrorTypeValidation, "INVALID_SIRET", "siret must be exactly 14 digits")
	ErrInvalidRole         = NewCodedError(ErrorTypeValidation, "INVALID_ROLE", "role cannot be assigned")
	ErrTenantInactive      = NewCodedError(ErrorTypeValidation, "TENANT_INACTIVE", "entreprise is inactive")
	ErrNoActiveTenant      = NewCodedError(ErrorTypeValidation, "NO_ACTIVE_TENANT", "no active entreprise selected")
	ErrInvalidInvoiceState = NewCodedError(ErrorTypeValidation, "INVALID_INVOICE_STATE", "invoice status does not allow this operation")

	// Authorization Errors
	ErrUnauthorized = NewCodedError(ErrorTypeUnauthorized, "UNAUTHORIZED", "unauthorized")

	// Permission Errors
	ErrTenantAccessDenied = NewCodedError(ErrorTypeForbidden, "TENANT_ACCESS_DENIED", "no active membership in this entreprise")
	ErrAccessDenied       = NewCodedError(ErrorTypeForbidden, "ACCESS_DENIED", "role does not allow this operation")
	ErrOwnerProtected     = NewCodedError(ErrorTypeForbidden, "OWNER_PROTECTED", "the entreprise owner cannot be removed or demoted")
	ErrSelfRemovalDenied  = NewCodedError(ErrorTypeForbidden, "SELF_REMOVAL_DENIED", "members cannot remove themselves")

	// Conflict Errors
	ErrDuplicateSiret          = NewCodedError(ErrorTypeConflict, "DUPLICATE_SIRET", "an entreprise with this siret already exists")
	ErrAlreadyMember           = NewCodedError(ErrorTypeConflict, "ALREADY_MEMBER", "user is already a member of this entreprise")
	ErrDuplicateReconciliation = NewCodedError(ErrorTypeConflict, "DUPLICATE_RECONCILIATION", "this transaction is already matched to this invoice")
	ErrConcurrentUpdate        = NewCodedError(ErrorTypeConflict, "CONCURRENT_UPDATE", "concurrent update detected")

	// Internal Errors
	ErrInternal                  = NewCodedError(ErrorTypeInternal, "INTERNAL", "internal server error")
	ErrRoleSeedMissing           = NewCodedError(ErrorTypeInternal, "ROLE_SEED_MISSING", "default role is not seeded")
	ErrAuthProviderNotConfigured = NewCodedError(ErrorTypeInternal, "AUTH_PROVIDER_NOT_CONFIGURED", "identity provider is not configured")

	// External Errors
	ErrAuthProviderUnavailable = NewCodedError(ErrorTypeExternal, "AUTH_PROVIDER_UNAVAILABLE", "identity provider unavailable")
)

// Error type checking helper functions

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeNotFound
	}
	return false
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeValidation
	}
	return false
}

// IsUnauthorizedError checks if an error is an unauthorized error
func IsUnauthorizedError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeUnauthorized
	}
	return false
}

// IsForbiddenError checks if an error is a forbidden error
func IsForbiddenError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeForbidden
	}
	return false
}

// IsConflictError checks if an error is a conflict error
func IsConflictError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeConflict
	}
	return false
}

// IsInternalError checks if an error is an internal error
func IsInternalError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeInternal
	}
	return false
}

// IsExternalError checks if an error is an external provider error
func IsExternalError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeExternal
	}
	return false
}

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// GetErrorCode returns the Code of a domain error, or empty string if not a domain error
func GetErrorCode(err error) string {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return ""
}

// GetErrorMessage returns the Message of a domain error, or err.Error() otherwise
func GetErrorMessage(err error) string {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Message
	}
	return err.Error()
}

// GetErrorDetails returns the details map of a domain error, or nil if not a domain error
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}

// WrapError wraps an error with additional context
func WrapError(errType ErrorType, message string, err error) error {
	return NewDomainError(errType, message, err)
}

// WrapInternal wraps an error as an internal error
func WrapInternal(message string, err error) error {
	return NewDomainError(ErrorTypeInternal, message, err)
}

// WrapExternal wraps an error as an external provider error
func WrapExternal(message string, err error) error {
	return NewDomainError(ErrorTypeExternal, message, err)
}
