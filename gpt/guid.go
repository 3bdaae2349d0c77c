package gpt

import (
	"strings"

	"github.com/google/uuid"
)

// GUIDToUUID converts a GUID as stored on disk into RFC 4122 byte order.
//
// See Intel EFI specification, Appendix A: GUID and Time Formats
// https://www.intel.de/content/dam/doc/product-specification/efi-v1-10-specification.pdf
// The first three fields (TimeLow, TimeMid, TimeHighAndVersion) are stored
// little-endian; the remaining eight bytes are stored as-is.
func GUIDToUUID(b []byte) uuid.UUID {
	var u uuid.UUID
	copy(u[:], b[:16])
	u[0], u[1], u[2], u[3] = u[3], u[2], u[1], u[0]
	u[4], u[5] = u[5], u[4]
	u[6], u[7] = u[7], u[6]
	return u
}

// GUIDFromBytes returns the canonical (upper-case) string representation of
// the specified on-disk GUID.
func GUIDFromBytes(b []byte) string {
	return strings.ToUpper(GUIDToUUID(b).String())
}
