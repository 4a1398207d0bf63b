package address_space

import (
	"github.com/ranmrdrakono/vmem/mem"
)

// The managed virtual space spans [0, HighestAddr). The top two pages are the
// critical single page mappings: the trampoline code page and, right below
// it, the trap context page. Both are installed outside the area machinery
// and can never be removed through mmap/munmap.
const (
	HighestAddr mem.VirtAddr = 1 << 38

	Trampoline      mem.VirtAddr = HighestAddr - mem.PageSize
	TrapContextBase mem.VirtAddr = Trampoline - mem.PageSize

	UserStackSize uint64 = 8 * mem.PageSize
	GuardPageSize uint64 = mem.PageSize
)

// IsCritical reports whether vpn belongs to the fixed critical set.
func IsCritical(vpn mem.VPN) bool {
	if vpn == Trampoline.Floor() {
		return true
	}
	if vpn == TrapContextBase.Floor() {
		return true
	}
	return false
}
