package dispatch

import (
	"strings"

	"github.com/xapi-project/xapi-storage-script/storage"
)

// projectVDI is a thin wrapper kept so every call site in this package
// goes through one name, per the round-trip testable property in §8.
func projectVDI(v *storage.Volume) *storage.VDI {
	return storage.ProjectVDI(v)
}

// translateHealth normalizes a backend-declared health tag onto the two
// known enum values; anything else is passed through unchanged so a new
// backend-declared tag is visible rather than silently coerced.
func translateHealth(raw string) storage.SRHealth {
	switch strings.ToLower(raw) {
	case "healthy":
		return storage.Healthy
	case "recovering":
		return storage.Recovering
	default:
		return storage.SRHealth(raw)
	}
}
