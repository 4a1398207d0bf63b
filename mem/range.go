package mem

import (
	log "github.com/sirupsen/logrus"
)

func minVPN(a, b VPN) VPN {
	if a < b {
		return a
	} else {
		return b
	}
}

func maxVPN(a, b VPN) VPN {
	if a > b {
		return a
	} else {
		return b
	}
}

func clampVPN(v, lo, hi VPN) VPN {
	return maxVPN(lo, minVPN(v, hi))
}

// PageRange is a half open interval [Start, End) of virtual page numbers.
// Ranges compare by their bounds only.
type PageRange struct {
	Start, End VPN
}

func NewPageRange(start, end VPN) PageRange {
	if start > end {
		log.WithFields(log.Fields{"start": start, "end": end}).Warning("PageRange with swaped bounds")
		tmp := end
		end = start
		start = tmp
	}
	return PageRange{Start: start, End: end}
}

// PageRangeByLen builds the range of count pages starting at start.
func PageRangeByLen(start VPN, count uint64) PageRange {
	return PageRange{Start: start, End: start + VPN(count)}
}

// PageRangeOf builds the page range spanning the byte range [start, end).
func PageRangeOf(start, end VirtAddr) PageRange {
	return NewPageRange(start.Floor(), end.Ceil())
}

func (s PageRange) Contains(vpn VPN) bool {
	return s.Start <= vpn && vpn < s.End
}

func (s PageRange) Intersects(other PageRange) bool {
	upper := minVPN(s.End, other.End)
	lower := maxVPN(s.Start, other.Start)
	return lower < upper
}

func (s PageRange) IsEmpty() bool {
	return s.End <= s.Start
}

func (s PageRange) Len() uint64 {
	if s.IsEmpty() {
		return 0
	}
	return uint64(s.End - s.Start)
}

// Exclude partitions s around target. left is the part of s strictly below
// target, right the part strictly above it, removed the intersection. When
// target does not overlap s the intersection comes back empty and s survives
// whole as one of the remainders; callers must test removed first.
func (s PageRange) Exclude(target PageRange) (left, right, removed PageRange) {
	left = PageRange{Start: s.Start, End: clampVPN(target.Start, s.Start, s.End)}
	right = PageRange{Start: clampVPN(target.End, s.Start, s.End), End: s.End}
	lower := maxVPN(s.Start, target.Start)
	upper := minVPN(s.End, target.End)
	if lower < upper {
		removed = PageRange{Start: lower, End: upper}
	} else {
		removed = PageRange{Start: lower, End: lower}
	}
	return left, right, removed
}
