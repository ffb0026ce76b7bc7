package core

import "errors"

// Code is the stable short code a failed operation is reported with.
type Code string

const (
	CodeInit             Code = "INIT_ERROR"
	CodeNoActivity       Code = "ACTIVITY_DOES_NOT_EXIST"
	CodePermissionDenied Code = "VPN_PERMISSION_DENIED"
	CodePermission       Code = "PERMISSION_ERROR"
	CodeKeygen           Code = "KEYGEN_ERROR"
	CodeConnect          Code = "CONNECT_ERROR"
	CodeDisconnect       Code = "DISCONNECT_ERROR"
)

// Error is returned by every failing Controller operation.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
