package domain

import (
	"fmt"

	"github.com/gopcua/opcua/ua"
)

// SeverityClass is the two most significant bits of a status code.
type SeverityClass uint8

const (
	SeverityGood SeverityClass = iota
	SeverityUncertain
	SeverityBad
)

func (s SeverityClass) String() string {
	switch s {
	case SeverityGood:
		return "Good"
	case SeverityUncertain:
		return "Uncertain"
	default:
		return "Bad"
	}
}

// Severity classifies a status code. The reserved pattern 11 counts as Bad.
func Severity(code ua.StatusCode) SeverityClass {
	switch uint32(code) >> 30 {
	case 0:
		return SeverityGood
	case 1:
		return SeverityUncertain
	default:
		return SeverityBad
	}
}

// Marker is the aggregate (historian) sub-field of a status code.
type Marker uint8

const (
	MarkerNone Marker = iota
	MarkerRaw
	MarkerCalculated
	MarkerInterpolated
)

func (m Marker) String() string {
	switch m {
	case MarkerRaw:
		return "Raw"
	case MarkerCalculated:
		return "Calculated"
	case MarkerInterpolated:
		return "Interpolated"
	default:
		return "None"
	}
}

const (
	infoTypeMask      uint32 = 0x00000C00
	infoTypeDataValue uint32 = 0x00000400
	historianMask     uint32 = 0x00000003

	historianRaw          uint32 = 0x0
	historianCalculated   uint32 = 0x1
	historianInterpolated uint32 = 0x2
)

// MarkerOf decodes the aggregate marker. Codes whose InfoType is not
// DataValue carry no marker.
func MarkerOf(code ua.StatusCode) Marker {
	c := uint32(code)
	if c&infoTypeMask != infoTypeDataValue {
		return MarkerNone
	}
	switch c & historianMask {
	case historianRaw:
		return MarkerRaw
	case historianCalculated:
		return MarkerCalculated
	case historianInterpolated:
		return MarkerInterpolated
	default:
		return MarkerNone
	}
}

// SetMarker returns code with its aggregate marker replaced. Severity,
// sub-code and the remaining info bits are left untouched.
func SetMarker(code ua.StatusCode, m Marker) ua.StatusCode {
	c := uint32(code) &^ (infoTypeMask | historianMask)
	switch m {
	case MarkerRaw:
		c |= infoTypeDataValue | historianRaw
	case MarkerCalculated:
		c |= infoTypeDataValue | historianCalculated
	case MarkerInterpolated:
		c |= infoTypeDataValue | historianInterpolated
	default:
		// info bits must be zero when InfoType is zero
		c &^= 0x000003FF
	}
	return ua.StatusCode(c)
}

// FormatStatus renders a code as "0x40A40402 Uncertain|Interpolated".
func FormatStatus(code ua.StatusCode) string {
	return fmt.Sprintf("0x%08X %s|%s", uint32(code), Severity(code), MarkerOf(code))
}
