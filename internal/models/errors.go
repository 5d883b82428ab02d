package models

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for conditions with no extra payload.
var (
	ErrEmptyCart = errors.New("cart is empty")
	ErrForbidden = errors.New("forbidden")
)

// ValidationError reports malformed input as field-level messages.
type ValidationError struct {
	Fields map[string]string
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: message}}
}

func (e *ValidationError) Add(field, message string) {
	if e.Fields == nil {
		e.Fields = map[string]string{}
	}
	e.Fields[field] = message
}

func (e *ValidationError) Empty() bool { return len(e.Fields) == 0 }

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, field+": "+msg)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// NotFoundError reports an absent order, cart line, product or review.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ConflictError reports a uniqueness violation or an operation against
// state that moved underneath the caller.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

// InvalidTransitionError reports an illegal status change. It carries the
// transitions that would have been allowed from the current status.
type InvalidTransitionError struct {
	From    Status
	To      Status
	Allowed []Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition %s -> %s (allowed: %v)", e.From, e.To, e.Allowed)
}

// StockErrorReason classifies checkout stock failures.
type StockErrorReason string

const (
	StockReasonOutOfStock         StockErrorReason = "out_of_stock"
	StockReasonInsufficientStock  StockErrorReason = "insufficient_stock"
	StockReasonProductUnavailable StockErrorReason = "product_unavailable"
)

// StockError is raised per offending cart line during checkout. A single
// StockError aborts the whole checkout with zero side effects.
type StockError struct {
	Reason    StockErrorReason
	ProductID int64
	Requested int
	Available int
}

func (e *StockError) Error() string {
	switch e.Reason {
	case StockReasonInsufficientStock:
		return fmt.Sprintf("insufficient stock for product %d: requested %d, available %d",
			e.ProductID, e.Requested, e.Available)
	case StockReasonOutOfStock:
		return fmt.Sprintf("product %d is out of stock", e.ProductID)
	default:
		return fmt.Sprintf("product %d is unavailable", e.ProductID)
	}
}
