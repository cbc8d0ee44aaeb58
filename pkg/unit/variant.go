package unit

import (
	"fmt"
	"strings"

	"github.com/fwctl/fwctl-go/pkg/hal"
	"github.com/fwctl/fwctl-go/pkg/wire"
)

// Variant is a protocol family a session is bound to.
type Variant uint8

const (
	// VariantDICE is the TC Applied Technologies DICE protocol.
	VariantDICE Variant = iota
	// VariantEFW is the Echo Audio Fireworks protocol.
	VariantEFW
	// VariantGeneric serves every unit through plain address-space access
	// and AV/C over FCP.
	VariantGeneric
)

// String returns the variant name.
func (v Variant) String() string {
	switch v {
	case VariantDICE:
		return "DICE"
	case VariantEFW:
		return "EFW"
	case VariantGeneric:
		return "GENERIC"
	default:
		return "UNKNOWN"
	}
}

// ParseVariant parses a variant name, ignoring case.
func ParseVariant(s string) (Variant, error) {
	switch strings.ToLower(s) {
	case "dice":
		return VariantDICE, nil
	case "efw", "fireworks":
		return VariantEFW, nil
	case "generic":
		return VariantGeneric, nil
	default:
		return 0, fmt.Errorf("unknown protocol variant %q", s)
	}
}

// Accepts returns true if a unit of family f can be opened under v. The
// comparison is by value on the ALSA family code.
func (v Variant) Accepts(f wire.Family) bool {
	switch v {
	case VariantDICE:
		return f == wire.FamilyDICE
	case VariantEFW:
		return f == wire.FamilyFireworks
	case VariantGeneric:
		return true
	default:
		return false
	}
}

// Variants lists the variants in probe priority order.
var Variants = []Variant{VariantDICE, VariantEFW, VariantGeneric}

// Opener opens a session on path under one variant.
type Opener func(driver hal.Driver, path string, opts ...Option) (*Session, error)

// OpenDICE opens path as a DICE unit.
func OpenDICE(driver hal.Driver, path string, opts ...Option) (*Session, error) {
	return Open(driver, path, VariantDICE, opts...)
}

// OpenEFW opens path as an Echo Fireworks unit.
func OpenEFW(driver hal.Driver, path string, opts ...Option) (*Session, error) {
	return Open(driver, path, VariantEFW, opts...)
}

// OpenGeneric opens path as a generic unit.
func OpenGeneric(driver hal.Driver, path string, opts ...Option) (*Session, error) {
	return Open(driver, path, VariantGeneric, opts...)
}

// OpenerFor returns the Opener of v.
func OpenerFor(v Variant) Opener {
	switch v {
	case VariantDICE:
		return OpenDICE
	case VariantEFW:
		return OpenEFW
	default:
		return OpenGeneric
	}
}

// Identity describes the unit a session is bound to.
type Identity struct {
	Variant Variant
	Family  wire.Family
	Card    int
	Device  string
	GUID    uint64
}
