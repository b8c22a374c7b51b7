package repositories

import "fmt"

// CartErrorCode enumerates backend error causes for cart operations.
type CartErrorCode string

const (
	// CartErrorUnknown represents an unspecified failure.
	CartErrorUnknown CartErrorCode = "cart_unknown"
	// CartErrorNotFound indicates the item or cart vanished server-side.
	CartErrorNotFound CartErrorCode = "cart_not_found"
	// CartErrorInsufficientStock indicates requested quantity exceeds availability.
	CartErrorInsufficientStock CartErrorCode = "cart_insufficient_stock"
	// CartErrorRejected indicates the backend refused the mutation outright.
	CartErrorRejected CartErrorCode = "cart_rejected"
	// CartErrorUnavailable indicates a transport or infrastructure failure.
	CartErrorUnavailable CartErrorCode = "cart_unavailable"
)

// CartError wraps backend cart failures with machine readable codes.
type CartError struct {
	Op      string
	Code    CartErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *CartError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap exposes the underlying error, if any.
func (e *CartError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsNotFound reports whether the item or cart is missing server-side.
func (e *CartError) IsNotFound() bool { return e != nil && e.Code == CartErrorNotFound }

// IsInsufficientStock reports whether the backend refused due to stock limits.
func (e *CartError) IsInsufficientStock() bool {
	return e != nil && e.Code == CartErrorInsufficientStock
}

// IsRejected reports whether the backend rejected the mutation.
func (e *CartError) IsRejected() bool { return e != nil && e.Code == CartErrorRejected }

// IsUnavailable reports whether the failure is transient infrastructure.
func (e *CartError) IsUnavailable() bool {
	return e != nil && (e.Code == CartErrorUnavailable || e.Code == CartErrorUnknown)
}

// NewCartError constructs a typed cart error.
func NewCartError(code CartErrorCode, message string, err error) *CartError {
	if message == "" {
		message = string(code)
	}
	return &CartError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}
