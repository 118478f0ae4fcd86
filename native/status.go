package native

import "fmt"

// Status is the 32-bit result code returned by every native VCI call.
type Status uint32

const sevVciError = 0xC0000000 | 0x20000000 | 0x00010000

const (
	StatusOK Status = 0

	// ENotImpl is the generic COM "not implemented" code.
	ENotImpl Status = 0x80004001
)

const (
	EUnexpected Status = sevVciError | (iota + 1)
	ENotImplemented
	EOutOfMemory
	EInvalidArg
	ENoInterface
	EInvalidPointer
	EInvalidHandle
	EAbort
	EFail
	EAccessDenied
	ETimeout
	EBusy
	EPending
	ENoData
	ENoMoreItems
	ENotInitialized
	EAlreadyInitialized
	ERxQueueEmpty
	ETxQueueFull
	EBufferOverflow
	EInvalidState
	EObjectAlreadyExists
	EInvalidIndex
	EEndOfFile
	EDisconnected
	EInvalidFirmware
	EInvalidLicense
	ENoSuchLicense
	ELicenseExpired
	ELicenseQuotaExceeded
	EInvalidTiming
	EInUse
	ENoSuchDevice
	EDeviceNotConnected
	EDeviceNotReady
	ETypeMismatch
	ENotSupported
	EDuplicateObjectID
	EObjectIDNotFound
	EWrongLevel
	EWrongDriverVersion
	ELuidsExhausted
)

var statusNames = map[Status]string{
	StatusOK:              "VCI_OK",
	ENotImpl:              "E_NOTIMPL",
	EUnexpected:           "VCI_E_UNEXPECTED",
	ENotImplemented:       "VCI_E_NOT_IMPLEMENTED",
	EOutOfMemory:          "VCI_E_OUTOFMEMORY",
	EInvalidArg:           "VCI_E_INVALIDARG",
	ENoInterface:          "VCI_E_NOINTERFACE",
	EInvalidPointer:       "VCI_E_INVPOINTER",
	EInvalidHandle:        "VCI_E_INVHANDLE",
	EAbort:                "VCI_E_ABORT",
	EFail:                 "VCI_E_FAIL",
	EAccessDenied:         "VCI_E_ACCESSDENIED",
	ETimeout:              "VCI_E_TIMEOUT",
	EBusy:                 "VCI_E_BUSY",
	EPending:              "VCI_E_PENDING",
	ENoData:               "VCI_E_NO_DATA",
	ENoMoreItems:          "VCI_E_NO_MORE_ITEMS",
	ENotInitialized:       "VCI_E_NOT_INITIALIZED",
	EAlreadyInitialized:   "VCI_E_ALREADY_INITIALIZED",
	ERxQueueEmpty:         "VCI_E_RXQUEUE_EMPTY",
	ETxQueueFull:          "VCI_E_TXQUEUE_FULL",
	EBufferOverflow:       "VCI_E_BUFFER_OVERFLOW",
	EInvalidState:         "VCI_E_INVALID_STATE",
	EObjectAlreadyExists:  "VCI_E_OBJECT_ALREADY_EXISTS",
	EInvalidIndex:         "VCI_E_INVALID_INDEX",
	EEndOfFile:            "VCI_E_END_OF_FILE",
	EDisconnected:         "VCI_E_DISCONNECTED",
	EInvalidFirmware:      "VCI_E_INVALID_FIRMWARE",
	EInvalidLicense:       "VCI_E_INVALID_LICENSE",
	ENoSuchLicense:        "VCI_E_NO_SUCH_LICENSE",
	ELicenseExpired:       "VCI_E_LICENSE_EXPIRED",
	ELicenseQuotaExceeded: "VCI_E_LICENSE_QUOTA_EXCEEDED",
	EInvalidTiming:        "VCI_E_INVALID_TIMING",
	EInUse:                "VCI_E_IN_USE",
	ENoSuchDevice:         "VCI_E_NO_SUCH_DEVICE",
	EDeviceNotConnected:   "VCI_E_DEVICE_NOT_CONNECTED",
	EDeviceNotReady:       "VCI_E_DEVICE_NOT_READY",
	ETypeMismatch:         "VCI_E_TYPE_MISMATCH",
	ENotSupported:         "VCI_E_NOT_SUPPORTED",
	EDuplicateObjectID:    "VCI_E_DUPLICATE_OBJECTID",
	EObjectIDNotFound:     "VCI_E_OBJECTID_NOT_FOUND",
	EWrongLevel:           "VCI_E_WRONG_LEVEL",
	EWrongDriverVersion:   "VCI_E_WRONG_DRV_VERSION",
	ELuidsExhausted:       "VCI_E_LUIDS_EXHAUSTED",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("vci status 0x%08X", uint32(s))
}

func (s Status) OK() bool { return s == StatusOK }

// Failed reports whether the severity bit is set.
func (s Status) Failed() bool { return s&0x80000000 != 0 }
