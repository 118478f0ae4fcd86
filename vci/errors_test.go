package vci

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LoveWonYoung/vci4go/native"
	"github.com/LoveWonYoung/vci4go/native/sim"
)

func TestStatusErrorOK(t *testing.T) {
	assert.NoError(t, statusError(sim.New(), "anything", native.StatusOK))
}

func TestStatusErrorUsesLibraryText(t *testing.T) {
	err := statusError(sim.New(), "open device", native.EAccessDenied)
	require.Error(t, err)

	var verr *Error
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "open device", verr.Op)
	assert.Equal(t, native.EAccessDenied, verr.Code)
	assert.Equal(t, "Access denied.", verr.Message)
	assert.Contains(t, err.Error(), "open device")
	assert.Contains(t, err.Error(), "Access denied.")
}

func TestStatusErrorWithoutLibrary(t *testing.T) {
	err := statusError(nil, "set event", native.EInvalidHandle)
	var verr *Error
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, native.EInvalidHandle.String(), verr.Message)
}

func TestErrorMatchesSentinelByCode(t *testing.T) {
	err := fmt.Errorf("reading: %w", statusError(sim.New(), "read message", native.ERxQueueEmpty))

	assert.ErrorIs(t, err, ErrRxQueueEmpty)
	assert.NotErrorIs(t, err, ErrTxQueueFull)
	assert.NotErrorIs(t, err, ErrClosed)
}

func TestSentinelsCoverTheVciRange(t *testing.T) {
	codes := map[*Error]native.Status{
		ErrUnexpected:      native.EUnexpected,
		ErrInvalidArg:      native.EInvalidArg,
		ErrTimeout:         native.ETimeout,
		ErrNoMoreItems:     native.ENoMoreItems,
		ErrInvalidState:    native.EInvalidState,
		ErrNotSupported:    native.ENotSupported,
		ErrLuidsExhausted:  native.ELuidsExhausted,
		ErrNotImplemented:  native.ENotImpl,
		ErrNoSuchDevice:    native.ENoSuchDevice,
		ErrInvalidTiming:   native.EInvalidTiming,
		ErrNotInitialized:  native.ENotInitialized,
		ErrAccessDenied:    native.EAccessDenied,
		ErrTxQueueFull:     native.ETxQueueFull,
		ErrRxQueueEmpty:    native.ERxQueueEmpty,
		ErrInvalidIndex:    native.EInvalidIndex,
		ErrInvalidHandle:   native.EInvalidHandle,
		ErrNoInterface:     native.ENoInterface,
		ErrDisconnected:    native.EDisconnected,
		ErrWrongLevel:      native.EWrongLevel,
		ErrBufferOverflow:  native.EBufferOverflow,
		ErrEndOfFile:       native.EEndOfFile,
	}
	for sentinel, code := range codes {
		assert.Equal(t, code, sentinel.Code)
		assert.ErrorIs(t, &Error{Op: "x", Code: code}, sentinel)
	}
	assert.Equal(t, native.ENotImplemented, ErrVciNotImplemented.Code)
	assert.Equal(t, native.Status(0xE0010001), native.EUnexpected)
	assert.Equal(t, native.Status(0xE001002A), native.ELuidsExhausted)
}
