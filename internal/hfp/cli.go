package hfp

import "fmt"

// CallingLineIdentity is parsed from +CLIP/+CCWA lines (spec §3). It
// is a plain value type with equality, retained while callsetup ≠ 0.
type CallingLineIdentity struct {
	Number      string
	Type        int
	Subaddress  string
	SubaddrType int
	Alpha       string
	Validity    int
}

// Format renders the identity back into a +CLIP: wire line. Parsing
// the result with parseCLIP recovers an equal value (spec §8
// round-trip law).
func (c CallingLineIdentity) Format() string {
	return fmt.Sprintf(`+CLIP: "%s",%d,"%s",%d,"%s",%d`,
		c.Number, c.Type, c.Subaddress, c.SubaddrType, c.Alpha, c.Validity)
}

// IsZero reports whether no identity has been recorded yet.
func (c CallingLineIdentity) IsZero() bool { return c == CallingLineIdentity{} }
