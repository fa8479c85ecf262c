// Package apperror holds the error taxonomy shared by the order pipeline and
// its HTTP surface.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindBadRequest        Kind = "bad_request"
	KindNotFound          Kind = "not_found"
	KindForbidden         Kind = "forbidden"
	KindInsufficientStock Kind = "insufficient_stock"
	KindServer            Kind = "server_error"
)

// ErrTransactionsUnsupported is returned by a transactor when the deployment
// cannot run multi-document transactions. It is a capability failure, not a
// data conflict.
var ErrTransactionsUnsupported = errors.New("multi-document transactions are not supported by this deployment")

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func BadRequest(format string, args ...any) *Error {
	return &Error{Kind: KindBadRequest, Message: fmt.Sprintf(format, args...)}
}

func NotFound(what string) *Error {
	return &Error{Kind: KindNotFound, Message: what + " not found"}
}

func Forbidden(message string) *Error {
	return &Error{Kind: KindForbidden, Message: message}
}

// StockError carries the product and quantities behind an insufficient stock failure.
type StockError struct {
	ProductID string
	Name      string
	Available int
	Requested int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: available %d, requested %d", e.label(), e.Available, e.Requested)
}

func (e *StockError) label() string {
	if e.Name != "" {
		return e.Name
	}
	return e.ProductID
}

func InsufficientStock(productID, name string, available, requested int) *Error {
	se := &StockError{ProductID: productID, Name: name, Available: available, Requested: requested}
	return &Error{
		Kind:    KindInsufficientStock,
		Message: fmt.Sprintf("Insufficient stock for %s. Available: %d", se.label(), available),
		Err:     se,
	}
}

// Server wraps an unexpected infrastructure failure. The message is safe to show;
// the cause is kept for logs only.
func Server(message string, err error) *Error {
	return &Error{Kind: KindServer, Message: message, Err: err}
}

// KindOf classifies any error; unknown errors are server errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindServer
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// PublicMessage is what a client may see for err.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "Server error"
}

func HTTPStatus(kind Kind) int {
	switch kind {
	case KindBadRequest:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	case KindInsufficientStock:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}
