package research

import (
	"errors"
	"fmt"
)

// Error is a precondition failure raised by one of the program's operations. Every Error
// aborts its transaction with no state change.
type Error struct {
	Code uint32 `json:"code"`
	Name string `json:"name"`
	Msg  string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Name, e.Code, e.Msg)
}

// Is matches on Code so errors decoded from the wire compare equal to the sentinels.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

const errorCodeOffset = 6000

var (
	ErrTopicTooLong          = &Error{Code: errorCodeOffset + 0, Name: "TopicTooLong", Msg: "Topic exceeds maximum length"}
	ErrDeadlineInPast        = &Error{Code: errorCodeOffset + 1, Name: "DeadlineInPast", Msg: "Deadline must be in the future"}
	ErrInvalidStatus         = &Error{Code: errorCodeOffset + 2, Name: "InvalidStatus", Msg: "Invalid request status for this operation"}
	ErrDeadlinePassed        = &Error{Code: errorCodeOffset + 3, Name: "DeadlinePassed", Msg: "Deadline has passed"}
	ErrNotAssignedResearcher = &Error{Code: errorCodeOffset + 4, Name: "NotAssignedResearcher", Msg: "Not the assigned researcher"}
	ErrTooManySources        = &Error{Code: errorCodeOffset + 5, Name: "TooManySources", Msg: "Too many sources"}
	ErrInvalidArweaveTx      = &Error{Code: errorCodeOffset + 6, Name: "InvalidArweaveTx", Msg: "Invalid Arweave transaction ID"}
)

var programErrors = []*Error{
	ErrTopicTooLong,
	ErrDeadlineInPast,
	ErrInvalidStatus,
	ErrDeadlinePassed,
	ErrNotAssignedResearcher,
	ErrTooManySources,
	ErrInvalidArweaveTx,
}

// ErrorByCode returns the program error with the given code.
func ErrorByCode(code uint32) (*Error, bool) {
	for _, e := range programErrors {
		if e.Code == code {
			return e, true
		}
	}
	return nil, false
}

// Ledger substrate failures.
var (
	ErrAccountInUse                 = errors.New("account already in use")
	ErrAccountNotFound              = errors.New("account not found")
	ErrAccountDiscriminatorMismatch = errors.New("account discriminator did not match")
	ErrArithmeticOverflow           = errors.New("arithmetic overflow")
)

var substrateErrors = map[string]error{
	"AccountInUse":                 ErrAccountInUse,
	"AccountNotFound":              ErrAccountNotFound,
	"AccountDiscriminatorMismatch": ErrAccountDiscriminatorMismatch,
	"ArithmeticOverflow":           ErrArithmeticOverflow,
}

// Describe returns the wire form of a program or substrate error. Substrate errors
// carry code 0.
func Describe(err error) (*Error, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe, true
	}
	for name, sentinel := range substrateErrors {
		if errors.Is(err, sentinel) {
			return &Error{Name: name, Msg: sentinel.Error()}, true
		}
	}
	return nil, false
}

// FromWire rebuilds an error described by Describe. Unknown descriptions come back as
// a plain *Error.
func FromWire(e Error) error {
	if known, ok := ErrorByCode(e.Code); ok {
		return known
	}
	if sentinel, ok := substrateErrors[e.Name]; ok {
		return sentinel
	}
	return &e
}
