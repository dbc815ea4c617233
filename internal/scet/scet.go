// Package scet models onboard spacecraft elapsed time as a (coarse, fine)
// tick pair. Coarse counts seconds since the mission epoch, fine subdivides
// one second into 1/65536 steps. The float projection is what IDB validity
// intervals and product time columns are compared against; UTC conversion is
// an approximation for operator display, not an ephemeris-grade one.
package scet

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/busoc/timutil"
)

// SCET is one onboard timestamp. The zero value is the mission epoch.
type SCET struct {
	Coarse uint32
	Fine   uint16
}

const fineTicks = 1 << 16

// FromFloat builds the closest representable SCET for a fractional second
// count. Negative inputs clamp to the epoch.
func FromFloat(f float64) SCET {
	if f <= 0 {
		return SCET{}
	}
	coarse := math.Floor(f)
	fine := math.Round((f - coarse) * fineTicks)
	if fine >= fineTicks {
		coarse++
		fine = 0
	}
	if coarse > math.MaxUint32 {
		return SCET{Coarse: math.MaxUint32, Fine: math.MaxUint16}
	}
	return SCET{Coarse: uint32(coarse), Fine: uint16(fine)}
}

// Parse reads the "coarse:fine" form produced by String.
func Parse(s string) (SCET, error) {
	c, f, ok := strings.Cut(s, ":")
	if !ok {
		return SCET{}, fmt.Errorf("malformed SCET %q: want coarse:fine", s)
	}
	coarse, err := strconv.ParseUint(c, 10, 32)
	if err != nil {
		return SCET{}, fmt.Errorf("malformed SCET coarse %q: %w", c, err)
	}
	fine, err := strconv.ParseUint(f, 10, 16)
	if err != nil {
		return SCET{}, fmt.Errorf("malformed SCET fine %q: %w", f, err)
	}
	return SCET{Coarse: uint32(coarse), Fine: uint16(fine)}, nil
}

// AsFloat projects the timestamp onto fractional seconds since the epoch.
func (t SCET) AsFloat() float64 {
	return float64(t.Coarse) + float64(t.Fine)/fineTicks
}

// Compare returns -1, 0 or 1 ordering t against o. The order agrees with
// AsFloat for all representable values.
func (t SCET) Compare(o SCET) int {
	switch {
	case t.Coarse != o.Coarse:
		if t.Coarse < o.Coarse {
			return -1
		}
		return 1
	case t.Fine != o.Fine:
		if t.Fine < o.Fine {
			return -1
		}
		return 1
	}
	return 0
}

// Before reports whether t is strictly earlier than o.
func (t SCET) Before(o SCET) bool { return t.Compare(o) < 0 }

// After reports whether t is strictly later than o.
func (t SCET) After(o SCET) bool { return t.Compare(o) > 0 }

// IsZero reports whether t is the epoch.
func (t SCET) IsZero() bool { return t.Coarse == 0 && t.Fine == 0 }

// UTC converts the tick pair to wall-clock time.
func (t SCET) UTC() time.Time {
	return timutil.Join6(t.Coarse, t.Fine)
}

func (t SCET) String() string {
	return fmt.Sprintf("%d:%d", t.Coarse, t.Fine)
}
