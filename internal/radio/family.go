package radio

import (
	"fmt"
	"math/bits"
	"strings"
)

// AccessFamily is a bitmap of radio technologies. Bit n is set when the
// technology with HAL number n is supported.
type AccessFamily uint32

// Radio technology bits.
const (
	FamilyUnknown  AccessFamily = 1 << 0
	FamilyGPRS     AccessFamily = 1 << 1
	FamilyEDGE     AccessFamily = 1 << 2
	FamilyUMTS     AccessFamily = 1 << 3
	FamilyIS95A    AccessFamily = 1 << 4
	FamilyIS95B    AccessFamily = 1 << 5
	Family1xRTT    AccessFamily = 1 << 6
	FamilyEVDO0    AccessFamily = 1 << 7
	FamilyEVDOA    AccessFamily = 1 << 8
	FamilyHSDPA    AccessFamily = 1 << 9
	FamilyHSUPA    AccessFamily = 1 << 10
	FamilyHSPA     AccessFamily = 1 << 11
	FamilyEVDOB    AccessFamily = 1 << 12
	FamilyEHRPD    AccessFamily = 1 << 13
	FamilyLTE      AccessFamily = 1 << 14
	FamilyHSPAP    AccessFamily = 1 << 15
	FamilyGSM      AccessFamily = 1 << 16
	FamilyTDSCDMA  AccessFamily = 1 << 17
	FamilyIWLAN    AccessFamily = 1 << 18
	FamilyLTECA    AccessFamily = 1 << 19
	FamilyNR       AccessFamily = 1 << 20
	familyLastBit               = 20
)

var familyNames = [familyLastBit + 1]string{
	"unknown", "gprs", "edge", "umts", "is95a", "is95b", "1xrtt", "evdo0",
	"evdoa", "hsdpa", "hsupa", "hspa", "evdob", "ehrpd", "lte", "hspap",
	"gsm", "tdscdma", "iwlan", "lteca", "nr",
}

// Convenience groups matching the mode table.
const (
	FamiliesGSM  = FamilyGSM | FamilyGPRS | FamilyEDGE
	FamiliesUMTS = FamilyUMTS | FamilyHSDPA | FamilyHSUPA | FamilyHSPA | FamilyHSPAP | FamilyTDSCDMA
	FamiliesLTE  = FamilyLTE | FamilyLTECA
	FamiliesNR   = FamilyNR
)

// ParseFamily resolves a single lowercase technology name ("lte", "hspap").
// The group names "gsm-all", "umts-all", "lte-all" and "nr-all" expand to the
// matching mode group.
func ParseFamily(name string) (AccessFamily, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	switch n {
	case "gsm-all":
		return FamiliesGSM, nil
	case "umts-all":
		return FamiliesUMTS, nil
	case "lte-all":
		return FamiliesLTE, nil
	case "nr-all":
		return FamiliesNR, nil
	}
	for bit, fn := range familyNames {
		if fn == n {
			return AccessFamily(1) << bit, nil
		}
	}
	return 0, fmt.Errorf("unknown access family %q", name)
}

// ParseFamilies ORs together a list of technology names.
func ParseFamilies(names []string) (AccessFamily, error) {
	var f AccessFamily
	for _, name := range names {
		v, err := ParseFamily(name)
		if err != nil {
			return 0, err
		}
		f |= v
	}
	return f, nil
}

// Names lists the technologies in ascending bit order.
func (f AccessFamily) Names() []string {
	out := make([]string, 0, bits.OnesCount32(uint32(f)))
	for bit := 0; bit <= familyLastBit; bit++ {
		if f&(1<<bit) != 0 {
			out = append(out, familyNames[bit])
		}
	}
	return out
}

func (f AccessFamily) String() string {
	if f == 0 {
		return "none"
	}
	s := strings.Join(f.Names(), "|")
	if extra := f &^ (1<<(familyLastBit+1) - 1); extra != 0 {
		if s != "" {
			s += "|"
		}
		s += fmt.Sprintf("0x%x", uint32(extra))
	}
	return s
}

// Has reports whether every bit of other is set in f.
func (f AccessFamily) Has(other AccessFamily) bool {
	return other != 0 && f&other == other
}

// Modes returns every access mode the bitmap overlaps.
func (f AccessFamily) Modes() AccessMode {
	var m AccessMode
	for _, row := range modeTable {
		if f&row.families != 0 {
			m |= row.mode
		}
	}
	return m
}

// HighestMode returns the largest access mode the bitmap reaches, or zero.
func (f AccessFamily) HighestMode() AccessMode {
	return f.Modes().Highest()
}
