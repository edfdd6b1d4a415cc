package domain

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindValidation        ErrorKind = "ValidationError"
	KindDuplicateSKU      ErrorKind = "DuplicateSkuError"
	KindInvalidBounds     ErrorKind = "InvalidBoundsError"
	KindNotFound          ErrorKind = "NotFoundError"
	KindInsufficientStock ErrorKind = "InsufficientStockError"
	KindContention        ErrorKind = "ContentionError"
	KindDuplicateRequest  ErrorKind = "DuplicateRequestError"
)

// Error is the single error type returned for rejected ledger and registry
// calls. A rejected call never leaves a side effect behind.
type Error struct {
	Kind      ErrorKind
	Message   string
	Field     string
	ProductID string
	Available int
	Requested int
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so the sentinels below work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

func (e *Error) Retryable() bool { return e.Kind == KindContention }

var (
	ErrValidation        = &Error{Kind: KindValidation, Message: "invalid input"}
	ErrDuplicateSKU      = &Error{Kind: KindDuplicateSKU, Message: "sku already exists"}
	ErrInvalidBounds     = &Error{Kind: KindInvalidBounds, Message: "minStock must be lower than maxStock"}
	ErrNotFound          = &Error{Kind: KindNotFound, Message: "not found"}
	ErrInsufficientStock = &Error{Kind: KindInsufficientStock, Message: "insufficient stock"}
	ErrContention        = &Error{Kind: KindContention, Message: "products are busy, retry"}
	ErrDuplicateRequest  = &Error{Kind: KindDuplicateRequest, Message: "duplicate request"}
)

func NewValidationError(field, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Field: field, Message: fmt.Sprintf(format, args...)}
}

func NewDuplicateSKUError(sku string) *Error {
	return &Error{Kind: KindDuplicateSKU, Field: "sku", Message: fmt.Sprintf("sku %q already exists", sku)}
}

func NewInvalidBoundsError(minStock, maxStock int) *Error {
	return &Error{
		Kind:    KindInvalidBounds,
		Field:   "minStock",
		Message: fmt.Sprintf("minStock (%d) must be lower than maxStock (%d)", minStock, maxStock),
	}
}

func NewNotFoundError(entity, id string) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("%s %q not found", entity, id)}
}

func NewInsufficientStockError(productID string, available, requested int) *Error {
	return &Error{
		Kind:      KindInsufficientStock,
		ProductID: productID,
		Available: available,
		Requested: requested,
		Message: fmt.Sprintf("insufficient stock for product %s: available %d, requested %d",
			productID, available, requested),
	}
}

func NewContentionError(err error) *Error {
	return &Error{Kind: KindContention, Message: "timed out waiting for product lock, retry", Err: err}
}

// KindOf returns the kind of a domain error, or "" for anything else.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}
