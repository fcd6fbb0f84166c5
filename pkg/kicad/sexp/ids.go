package sexp

import (
	"strings"

	"github.com/google/uuid"
)

// idSpace namespaces identifiers synthesised for elements that carry no uuid
// in the source file.
var idSpace = uuid.MustParse("5f0c6a3e-8d7b-4c1e-9a52-3b1d2e7f9c40")

// StableID derives a deterministic UUID from parts, so parsing the same file
// twice yields identical identifiers.
func StableID(parts ...string) UUID {
	return UUID(uuid.NewSHA1(idSpace, []byte(strings.Join(parts, "\x00"))).String())
}
