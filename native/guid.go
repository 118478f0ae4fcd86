package native

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// NewGUID builds a GUID in its in-memory layout (little endian Data1..Data3).
func NewGUID(d1 uint32, d2, d3 uint16, d4 [8]byte) GUID {
	var g GUID
	binary.LittleEndian.PutUint32(g[0:4], d1)
	binary.LittleEndian.PutUint16(g[4:6], d2)
	binary.LittleEndian.PutUint16(g[6:8], d3)
	copy(g[8:], d4[:])
	return g
}

// UUID converts the in-memory layout to RFC 4122 byte order.
func (g GUID) UUID() uuid.UUID {
	var u uuid.UUID
	binary.BigEndian.PutUint32(u[0:4], binary.LittleEndian.Uint32(g[0:4]))
	binary.BigEndian.PutUint16(u[4:6], binary.LittleEndian.Uint16(g[4:6]))
	binary.BigEndian.PutUint16(u[6:8], binary.LittleEndian.Uint16(g[6:8]))
	copy(u[8:], g[8:])
	return u
}

// GUIDFromUUID is the inverse of GUID.UUID.
func GUIDFromUUID(u uuid.UUID) GUID {
	var d4 [8]byte
	copy(d4[:], u[8:])
	return NewGUID(binary.BigEndian.Uint32(u[0:4]), binary.BigEndian.Uint16(u[4:6]), binary.BigEndian.Uint16(u[6:8]), d4)
}

func (g GUID) String() string { return "{" + strings.ToUpper(g.UUID().String()) + "}" }

var defineGUID = regexp.MustCompile(`DEFINE_GUID\s*\(\s*(\w+)\s*,([^)]*)\)`)

// ParseGUIDHeader collects every DEFINE_GUID(name, d1, d2, d3, b0..b7)
// declaration of a C header.
func ParseGUIDHeader(r io.Reader) (map[string]GUID, error) {
	guids := make(map[string]GUID)
	var text strings.Builder
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		text.WriteString(sc.Text())
		text.WriteByte(' ')
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	for _, m := range defineGUID.FindAllStringSubmatch(text.String(), -1) {
		parts := strings.Split(m[2], ",")
		if len(parts) != 11 {
			return nil, fmt.Errorf("guid %s: expected 11 components, got %d", m[1], len(parts))
		}
		var vals [11]uint64
		for i, p := range parts {
			v, err := strconv.ParseUint(strings.TrimSpace(strings.TrimRight(strings.TrimSpace(p), "uUlL")), 0, 32)
			if err != nil {
				return nil, fmt.Errorf("guid %s component %d: %w", m[1], i, err)
			}
			vals[i] = v
		}
		var d4 [8]byte
		for i := range d4 {
			d4[i] = byte(vals[3+i])
		}
		guids[m[1]] = NewGUID(uint32(vals[0]), uint16(vals[1]), uint16(vals[2]), d4)
	}
	return guids, nil
}

// iidNames maps interface selectors to their header symbol.
var iidNames = map[IID]string{
	IIDCanSocket:     "IID_ICanSocket",
	IIDCanSocket2:    "IID_ICanSocket2",
	IIDCanControl:    "IID_ICanControl",
	IIDCanControl2:   "IID_ICanControl2",
	IIDCanScheduler:  "IID_ICanScheduler",
	IIDCanScheduler2: "IID_ICanScheduler2",
	IIDLinSocket:     "IID_ILinSocket",
	IIDLinControl:    "IID_ILinControl",
}

// Symbols besides the socket interfaces that the binding needs.
const (
	SymbolBalClass  = "CLSID_VCIBAL"
	SymbolBalObject = "IID_IBalObject"
)

// Symbol returns the header symbol of the interface.
func (i IID) Symbol() string { return iidNames[i] }

// MissingGUIDs lists the required symbols absent from guids.
func MissingGUIDs(guids map[string]GUID) []string {
	var missing []string
	for _, name := range []string{SymbolBalClass, SymbolBalObject} {
		if _, ok := guids[name]; !ok {
			missing = append(missing, name)
		}
	}
	for i := IIDCanSocket; i <= IIDLinControl; i++ {
		if _, ok := guids[i.Symbol()]; !ok {
			missing = append(missing, i.Symbol())
		}
	}
	return missing
}
