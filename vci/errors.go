package vci

import (
	"errors"
	"fmt"

	"github.com/LoveWonYoung/vci4go/native"
)

// Error is a failed native call. Two errors match with errors.Is when their
// codes are equal, so every sentinel below can be tested against a wrapped
// error coming from any operation.
type Error struct {
	Op      string
	Code    native.Status
	Message string
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("vci: %s (%s)", e.Message, e.Code)
	}
	return fmt.Sprintf("vci: %s: %s (%s)", e.Op, e.Message, e.Code)
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func sentinel(code native.Status) *Error {
	return &Error{Code: code, Message: code.String()}
}

var (
	ErrNotImplemented = sentinel(native.ENotImpl)

	ErrUnexpected           = sentinel(native.EUnexpected)
	ErrVciNotImplemented    = sentinel(native.ENotImplemented)
	ErrOutOfMemory          = sentinel(native.EOutOfMemory)
	ErrInvalidArg           = sentinel(native.EInvalidArg)
	ErrNoInterface          = sentinel(native.ENoInterface)
	ErrInvalidPointer       = sentinel(native.EInvalidPointer)
	ErrInvalidHandle        = sentinel(native.EInvalidHandle)
	ErrAbort                = sentinel(native.EAbort)
	ErrFail                 = sentinel(native.EFail)
	ErrAccessDenied         = sentinel(native.EAccessDenied)
	ErrTimeout              = sentinel(native.ETimeout)
	ErrBusy                 = sentinel(native.EBusy)
	ErrPending              = sentinel(native.EPending)
	ErrNoData               = sentinel(native.ENoData)
	ErrNoMoreItems          = sentinel(native.ENoMoreItems)
	ErrNotInitialized       = sentinel(native.ENotInitialized)
	ErrAlreadyInitialized   = sentinel(native.EAlreadyInitialized)
	ErrRxQueueEmpty         = sentinel(native.ERxQueueEmpty)
	ErrTxQueueFull          = sentinel(native.ETxQueueFull)
	ErrBufferOverflow       = sentinel(native.EBufferOverflow)
	ErrInvalidState         = sentinel(native.EInvalidState)
	ErrObjectAlreadyExists  = sentinel(native.EObjectAlreadyExists)
	ErrInvalidIndex         = sentinel(native.EInvalidIndex)
	ErrEndOfFile            = sentinel(native.EEndOfFile)
	ErrDisconnected         = sentinel(native.EDisconnected)
	ErrInvalidFirmware      = sentinel(native.EInvalidFirmware)
	ErrInvalidLicense       = sentinel(native.EInvalidLicense)
	ErrNoSuchLicense        = sentinel(native.ENoSuchLicense)
	ErrLicenseExpired       = sentinel(native.ELicenseExpired)
	ErrLicenseQuotaExceeded = sentinel(native.ELicenseQuotaExceeded)
	ErrInvalidTiming        = sentinel(native.EInvalidTiming)
	ErrInUse                = sentinel(native.EInUse)
	ErrNoSuchDevice         = sentinel(native.ENoSuchDevice)
	ErrDeviceNotConnected   = sentinel(native.EDeviceNotConnected)
	ErrDeviceNotReady       = sentinel(native.EDeviceNotReady)
	ErrTypeMismatch         = sentinel(native.ETypeMismatch)
	ErrNotSupported         = sentinel(native.ENotSupported)
	ErrDuplicateObjectID    = sentinel(native.EDuplicateObjectID)
	ErrObjectIDNotFound     = sentinel(native.EObjectIDNotFound)
	ErrWrongLevel           = sentinel(native.EWrongLevel)
	ErrWrongDriverVersion   = sentinel(native.EWrongDriverVersion)
	ErrLuidsExhausted       = sentinel(native.ELuidsExhausted)
)

// Errors raised by the binding itself.
var (
	ErrClosed           = errors.New("vci: object closed")
	ErrOutOfRange       = errors.New("vci: index out of range")
	ErrInvalidOperation = errors.New("vci: invalid operation")
	ErrInvalidArgument  = errors.New("vci: invalid argument")
)

// statusError translates st into an *Error whose message comes from the
// library's error formatter. It returns nil for StatusOK.
func statusError(lib native.Library, op string, st native.Status) error {
	if st == native.StatusOK {
		return nil
	}
	msg := ""
	if lib != nil {
		if text, fst := lib.FormatError(st); fst == native.StatusOK {
			msg = text
		}
	}
	if msg == "" {
		msg = st.String()
	}
	return &Error{Op: op, Code: st, Message: msg}
}
