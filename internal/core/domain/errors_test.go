package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestError_IsMatchesKind(t *testing.T) {
	err := fmt.Errorf("apply: %w", NewInsufficientStockError("p1", 1, 3))

	if !errors.Is(err, ErrInsufficientStock) {
		t.Error("expected errors.Is to match insufficient stock")
	}
	if errors.Is(err, ErrValidation) {
		t.Error("did not expect a validation match")
	}

	var de *Error
	if !errors.As(err, &de) {
		t.Fatal("expected errors.As to find *Error")
	}
	if de.ProductID != "p1" || de.Available != 1 || de.Requested != 3 {
		t.Errorf("unexpected detail: %+v", de)
	}
}

func TestContentionError_Retryable(t *testing.T) {
	err := NewContentionError(context.DeadlineExceeded)

	if !err.Retryable() {
		t.Error("expected contention to be retryable")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("expected the wait error to stay reachable")
	}
	if NewValidationError("x", "bad").Retryable() {
		t.Error("validation errors are not retryable")
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorKind
	}{
		{NewDuplicateSKUError("A"), KindDuplicateSKU},
		{NewInvalidBoundsError(5, 5), KindInvalidBounds},
		{fmt.Errorf("wrapped: %w", NewNotFoundError("product", "x")), KindNotFound},
		{ErrDuplicateRequest, KindDuplicateRequest},
		{errors.New("plain"), ""},
	}

	for _, tt := range tests {
		if got := KindOf(tt.err); got != tt.want {
			t.Errorf("KindOf(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
