package discovery

import (
	"net/netip"

	"github.com/snowops/discovery-agent/internal/snow"
)

// Range types in the discovery_range table.
const (
	RangeTypeIPRange   = "IP Range"
	RangeTypeIPNetwork = "IP Network"
	RangeTypeIPAddress = "IP Address"
)

// Range is one discovery_range row.
type Range struct {
	SysID      string
	Name       string
	Type       string
	Active     bool
	RangeStart string
	RangeEnd   string
	Include    bool
	Extra      map[string]string
}

// RangeFromRecord normalizes a raw discovery_range record
func RangeFromRecord(rec snow.Record) Range {
	r := newFieldReader(rec)
	return Range{
		SysID:      r.String("sys_id"),
		Name:       r.String("name"),
		Type:       r.String("type"),
		Active:     r.BoolDefault("active", true),
		RangeStart: r.String("range_start"),
		RangeEnd:   r.String("range_end"),
		Include:    r.BoolDefault("include", true),
		Extra:      r.Extra(),
	}
}

// Validate checks the range definition: addresses must parse, an IP Range
// needs both ends in the same family with start <= end, and an IP Network
// needs valid CIDR notation.
func (r Range) Validate() error {
	switch r.Type {
	case RangeTypeIPAddress:
		if _, err := netip.ParseAddr(r.RangeStart); err != nil {
			return snow.InvalidParameter("range %q: invalid IP address %q", r.Name, r.RangeStart)
		}
		return nil

	case RangeTypeIPNetwork:
		if _, err := netip.ParsePrefix(r.RangeStart); err != nil {
			return snow.InvalidParameter("range %q: invalid CIDR network %q", r.Name, r.RangeStart)
		}
		return nil

	case RangeTypeIPRange:
		start, err := netip.ParseAddr(r.RangeStart)
		if err != nil {
			return snow.InvalidParameter("range %q: invalid start address %q", r.Name, r.RangeStart)
		}
		end, err := netip.ParseAddr(r.RangeEnd)
		if err != nil {
			return snow.InvalidParameter("range %q: invalid end address %q", r.Name, r.RangeEnd)
		}
		if start.Is4() != end.Is4() {
			return snow.InvalidParameter("range %q: start and end address families differ", r.Name)
		}
		if end.Less(start) {
			return snow.InvalidParameter("range %q: end address precedes start", r.Name)
		}
		return nil

	default:
		return snow.InvalidParameter("range %q: unknown type %q", r.Name, r.Type)
	}
}

// bounds returns the first and last address the range covers. ok is false
// when the range does not validate.
func (r Range) bounds() (first, last netip.Addr, ok bool) {
	switch r.Type {
	case RangeTypeIPAddress:
		addr, err := netip.ParseAddr(r.RangeStart)
		if err != nil {
			return netip.Addr{}, netip.Addr{}, false
		}
		return addr, addr, true
	case RangeTypeIPNetwork:
		prefix, err := netip.ParsePrefix(r.RangeStart)
		if err != nil {
			return netip.Addr{}, netip.Addr{}, false
		}
		return prefix.Masked().Addr(), lastAddr(prefix), true
	case RangeTypeIPRange:
		start, err1 := netip.ParseAddr(r.RangeStart)
		end, err2 := netip.ParseAddr(r.RangeEnd)
		if err1 != nil || err2 != nil || start.Is4() != end.Is4() || end.Less(start) {
			return netip.Addr{}, netip.Addr{}, false
		}
		return start, end, true
	}
	return netip.Addr{}, netip.Addr{}, false
}

// lastAddr computes the highest address inside a prefix
func lastAddr(prefix netip.Prefix) netip.Addr {
	addr := prefix.Masked().Addr()
	bytes := addr.AsSlice()
	hostBits := len(bytes)*8 - prefix.Bits()
	for i := len(bytes) - 1; i >= 0 && hostBits > 0; i-- {
		take := hostBits
		if take > 8 {
			take = 8
		}
		bytes[i] |= byte(0xff >> (8 - take))
		hostBits -= take
	}
	out, _ := netip.AddrFromSlice(bytes)
	return out
}

// Overlaps reports whether two ranges cover at least one common address.
// Overlap between active include ranges wastes scan time but is not an
// error; callers surface it as a warning.
func Overlaps(a, b Range) bool {
	aFirst, aLast, ok := a.bounds()
	if !ok {
		return false
	}
	bFirst, bLast, ok := b.bounds()
	if !ok {
		return false
	}
	if aFirst.Is4() != bFirst.Is4() {
		return false
	}
	return !aLast.Less(bFirst) && !bLast.Less(aFirst)
}
