package store

import "errors"

type ErrorCode string

const (
	ErrorCodeNotFound ErrorCode = "NOT_FOUND"
	ErrorCodeConflict ErrorCode = "CONFLICT"
	ErrorCodeInvalid  ErrorCode = "INVALID"
)

type StoreError struct {
	Code ErrorCode
	Msg  string
}

func (e *StoreError) Error() string {
	return e.Msg
}

func NewNotFoundError(msg string) error {
	return &StoreError{Code: ErrorCodeNotFound, Msg: msg}
}

func NewConflictError(msg string) error {
	return &StoreError{Code: ErrorCodeConflict, Msg: msg}
}

func NewInvalidError(msg string) error {
	return &StoreError{Code: ErrorCodeInvalid, Msg: msg}
}

func isCode(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}
	var se *StoreError
	if !errors.As(err, &se) {
		return false
	}
	return se.Code == code
}

func IsNotFound(err error) bool {
	return isCode(err, ErrorCodeNotFound)
}

func IsConflict(err error) bool {
	return isCode(err, ErrorCodeConflict)
}

func IsInvalid(err error) bool {
	return isCode(err, ErrorCodeInvalid)
}
