package radio

import (
	"fmt"
	"math/bits"
	"strings"
)

// AccessMode is a bitmask over the ordinal access generations.
type AccessMode uint32

const (
	ModeGSM  AccessMode = 1 << 0
	ModeUMTS AccessMode = 1 << 1
	ModeLTE  AccessMode = 1 << 2
	ModeNR   AccessMode = 1 << 3

	// ModeAll covers every generation known to the table.
	ModeAll = ModeGSM | ModeUMTS | ModeLTE | ModeNR
)

// modeTable maps each generation to the technologies that grant it.
// Order is ascending by mode.
var modeTable = []struct {
	mode     AccessMode
	name     string
	families AccessFamily
}{
	{ModeGSM, "gsm", FamiliesGSM},
	{ModeUMTS, "umts", FamiliesUMTS},
	{ModeLTE, "lte", FamiliesLTE},
	{ModeNR, "nr", FamiliesNR},
}

// ParseMode resolves "gsm", "umts", "lte" or "nr".
func ParseMode(name string) (AccessMode, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for _, row := range modeTable {
		if row.name == n {
			return row.mode, nil
		}
	}
	return 0, fmt.Errorf("unknown access mode %q", name)
}

// ParseModes ORs together a list of mode names.
func ParseModes(names []string) (AccessMode, error) {
	var m AccessMode
	for _, name := range names {
		v, err := ParseMode(name)
		if err != nil {
			return 0, err
		}
		m |= v
	}
	return m, nil
}

// Highest returns the numerically largest bit set, or zero.
func (m AccessMode) Highest() AccessMode {
	if m == 0 {
		return 0
	}
	return AccessMode(1) << (31 - bits.LeadingZeros32(uint32(m)))
}

// Covers reports whether m includes every bit of req.
func (m AccessMode) Covers(req AccessMode) bool {
	return m&req == req
}

// Families returns the union of technologies that grant the modes in m.
func (m AccessMode) Families() AccessFamily {
	var f AccessFamily
	for _, row := range modeTable {
		if m&row.mode != 0 {
			f |= row.families
		}
	}
	return f
}

// Names lists the modes in ascending order.
func (m AccessMode) Names() []string {
	var out []string
	for _, row := range modeTable {
		if m&row.mode != 0 {
			out = append(out, row.name)
		}
	}
	return out
}

func (m AccessMode) String() string {
	if m == 0 {
		return "none"
	}
	return strings.Join(m.Names(), "|")
}
