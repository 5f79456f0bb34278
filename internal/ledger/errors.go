package ledger

import (
	"errors"
	"fmt"
)

// Class groups protocol errors so that callers can tell an economic rejection
// apart from an integrity violation without matching individual codes.
type Class uint8

const (
	ClassValidation Class = iota + 1
	ClassArithmetic
	ClassAuthorization
	ClassState
	ClassResource
)

func (c Class) String() string {
	switch c {
	case ClassValidation:
		return "validation"
	case ClassArithmetic:
		return "arithmetic"
	case ClassAuthorization:
		return "authorization"
	case ClassState:
		return "state"
	case ClassResource:
		return "resource"
	default:
		return "unknown"
	}
}

// Error is a typed protocol error. Every program declares its errors as
// package-level *Error sentinels so they can be matched with errors.Is.
type Error struct {
	Code  uint32
	Name  string
	Class Class
	Msg   string
}

// NewError declares a protocol error sentinel.
func NewError(code uint32, name string, class Class, msg string) *Error {
	return &Error{Code: code, Name: name, Class: class, Msg: msg}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Name, e.Code, e.Msg)
}

// ClassOf returns the class of the first protocol error in err's chain.
func ClassOf(err error) (Class, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Class, true
	}
	return 0, false
}

// AsError returns the first protocol error in err's chain.
func AsError(err error) (*Error, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// Errors shared by every program.
var (
	ErrArithmeticOverflow   = NewError(100, "ArithmeticOverflow", ClassArithmetic, "arithmetic overflow")
	ErrArithmeticUnderflow  = NewError(101, "ArithmeticUnderflow", ClassArithmetic, "arithmetic underflow")
	ErrDivisionByZero       = NewError(102, "DivisionByZero", ClassArithmetic, "division by zero")
	ErrAccountNotFound      = NewError(103, "AccountNotFound", ClassState, "account does not exist")
	ErrAccountAlreadyExists = NewError(104, "AccountAlreadyExists", ClassState, "account already exists")
	ErrAccountTypeMismatch  = NewError(105, "AccountTypeMismatch", ClassState, "account holds a different record kind")
	ErrInvalidSeeds         = NewError(106, "InvalidSeeds", ClassValidation, "address seeds cannot be derived")
	ErrLoanNotRepaid        = NewError(107, "LoanNotRepaid", ClassState, "flash loan still outstanding at commit")
)
