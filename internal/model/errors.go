package model

import (
	"errors"
	"fmt"
)

// ErrorKind names a class of pipeline failure. The kind is what clients see.
type ErrorKind string

const (
	KindConnection            ErrorKind = "ConnectionError"
	KindContractCall          ErrorKind = "ContractCallError"
	KindPriceUnavailable      ErrorKind = "PriceUnavailable"
	KindInvalidSampleWindow   ErrorKind = "InvalidSampleWindow"
	KindDivisionByZero        ErrorKind = "DivisionByZero"
	KindEmptyPool             ErrorKind = "EmptyPool"
	KindInvalidEmissionParams ErrorKind = "InvalidEmissionParams"
	KindUnknown               ErrorKind = "Unknown"
)

// Sentinels for errors.Is. They match any *Error of the same kind.
var (
	ErrConnection            = &Error{Kind: KindConnection}
	ErrContractCall          = &Error{Kind: KindContractCall}
	ErrPriceUnavailable      = &Error{Kind: KindPriceUnavailable}
	ErrInvalidSampleWindow   = &Error{Kind: KindInvalidSampleWindow}
	ErrDivisionByZero        = &Error{Kind: KindDivisionByZero}
	ErrEmptyPool             = &Error{Kind: KindEmptyPool}
	ErrInvalidEmissionParams = &Error{Kind: KindInvalidEmissionParams}
)

// Error is a tagged failure raised by a calculator or collaborator.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

// NewError builds a tagged error for operation op.
func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds a tagged error with a formatted message.
func Errorf(kind ErrorKind, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg += " in " + e.Op
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports kind equality. An empty pool is also a division by zero.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind == e.Kind {
		return true
	}
	return e.Kind == KindEmptyPool && t.Kind == KindDivisionByZero
}

// KindOf returns the kind of the first tagged error in err's chain.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
