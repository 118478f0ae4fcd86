//go:build !windows

package native

import (
	"errors"
	"runtime"
)

// ErrUnsupportedPlatform is returned by Load where vciapi.dll cannot exist.
var ErrUnsupportedPlatform = errors.New("vci: native driver requires windows, running on " + runtime.GOOS)

func Load() (Library, error) {
	return nil, ErrUnsupportedPlatform
}
