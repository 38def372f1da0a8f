package boundary

import (
	"fmt"
	"strings"
)

// Mode selects how a boundary value is derived from its neighbors. The
// cursor walking the slices picks it; the calculator only executes it.
type Mode uint8

const (
	ModeNone Mode = iota
	ModeRaw
	ModeQualityRaw
	ModeSlopedExtrapolation
	ModeSlopedInterpolation
	ModeSteppedExtrapolation
	ModeSteppedInterpolation
	ModeQualityExtrapolation
	ModeQualityInterpolation
)

var modeNames = [...]string{
	ModeNone:                 "None",
	ModeRaw:                  "Raw",
	ModeQualityRaw:           "QualityRaw",
	ModeSlopedExtrapolation:  "SlopedExtrapolation",
	ModeSlopedInterpolation:  "SlopedInterpolation",
	ModeSteppedExtrapolation: "SteppedExtrapolation",
	ModeSteppedInterpolation: "SteppedInterpolation",
	ModeQualityExtrapolation: "QualityExtrapolation",
	ModeQualityInterpolation: "QualityInterpolation",
}

// Modes lists every mode in declaration order.
func Modes() []Mode {
	out := make([]Mode, len(modeNames))
	for i := range modeNames {
		out[i] = Mode(i)
	}
	return out
}

func (m Mode) String() string {
	if int(m) < len(modeNames) {
		return modeNames[m]
	}
	return fmt.Sprintf("Mode(%d)", uint8(m))
}

// ParseMode accepts mode names case-insensitively, with or without
// separators ("sloped_interpolation", "SlopedInterpolation").
func ParseMode(s string) (Mode, error) {
	key := strings.ToLower(strings.NewReplacer("_", "", "-", "", " ", "").Replace(s))
	for i, name := range modeNames {
		if strings.ToLower(name) == key {
			return Mode(i), nil
		}
	}
	return ModeNone, fmt.Errorf("unknown derivation mode %q", s)
}

// MarshalText lets modes travel in JSON and YAML as names.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Mode) UnmarshalText(b []byte) error {
	parsed, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
