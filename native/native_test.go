package native

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGUID(t *testing.T) {
	g := NewGUID(0x12345678, 0x9ABC, 0xDEF0, [8]byte{1, 2, 3, 4, 5, 6, 7, 8})
	assert.Equal(t, []byte{0x78, 0x56, 0x34, 0x12, 0xBC, 0x9A, 0xF0, 0xDE}, g[:8], "little endian in memory")
	assert.Equal(t, "{12345678-9ABC-DEF0-0102-030405060708}", g.String())
	assert.Equal(t, uuid.MustParse("12345678-9abc-def0-0102-030405060708"), g.UUID())
	assert.Equal(t, g, GUIDFromUUID(g.UUID()))
}

const header = `
// VCI interface ids
DEFINE_GUID(CLSID_VCIBAL, 0x8FC1B6B0, 0xC7A1, 0x4D2F,
            0x83, 0x0E, 0x56, 0xD2, 0xB2, 0x1D, 0x43, 0x4A);
DEFINE_GUID( IID_ICanSocket , 0x1ED1FB92L, 0x2A8Cu, 0x4B34,
            0x84,0x96, 0x58, 0x84,0x75,0xC2,0x92,0x58);
`

func TestParseGUIDHeader(t *testing.T) {
	guids, err := ParseGUIDHeader(strings.NewReader(header))
	require.NoError(t, err)
	require.Len(t, guids, 2)
	assert.Equal(t, "{8FC1B6B0-C7A1-4D2F-830E-56D2B21D434A}", guids[SymbolBalClass].String())
	assert.Equal(t, "{1ED1FB92-2A8C-4B34-8496-588475C29258}", guids[IIDCanSocket.Symbol()].String())

	missing := MissingGUIDs(guids)
	assert.Len(t, missing, 8)
	assert.Contains(t, missing, SymbolBalObject)
	assert.Contains(t, missing, "IID_ILinControl")
	assert.NotContains(t, missing, SymbolBalClass)
	assert.NotContains(t, missing, "IID_ICanSocket")

	_, err = ParseGUIDHeader(strings.NewReader("DEFINE_GUID(X, 1, 2)"))
	assert.EqualError(t, err, "guid X: expected 11 components, got 2")
	_, err = ParseGUIDHeader(strings.NewReader("DEFINE_GUID(Y, zz, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0)"))
	assert.ErrorContains(t, err, "guid Y component 0")
}

func TestStatus(t *testing.T) {
	assert.Equal(t, Status(0xE0010004), EInvalidArg)
	assert.Equal(t, "VCI_E_INVALIDARG", EInvalidArg.String())
	assert.Equal(t, "VCI_OK", StatusOK.String())
	assert.Equal(t, "E_NOTIMPL", ENotImpl.String())
	assert.Equal(t, "vci status 0x00001234", Status(0x1234).String())

	assert.True(t, StatusOK.OK())
	assert.False(t, StatusOK.Failed())
	assert.True(t, EFail.Failed())
	assert.False(t, EFail.OK())
	assert.False(t, Status(1).Failed())
	assert.True(t, ENotImpl.Failed())
}
