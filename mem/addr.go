// Package mem holds the page granular address arithmetic shared by the frame
// allocator, the page table and the address space core.
package mem

const PageShift = 12
const PageSize = 1 << PageShift

// VirtAddr is a byte address in some virtual address space.
type VirtAddr uint64

// PhysAddr is a byte address in physical memory.
type PhysAddr uint64

// VPN is a virtual page number.
type VPN uint64

// PPN is a physical page number, the unit handed out by the frame allocator.
type PPN uint64

func (a VirtAddr) Floor() VPN {
	return VPN(a >> PageShift)
}

func (a VirtAddr) Ceil() VPN {
	if a == 0 {
		return 0
	}
	return VPN((uint64(a) + PageSize - 1) >> PageShift)
}

func (a VirtAddr) PageOffset() uint64 {
	return uint64(a) % PageSize
}

func (a VirtAddr) Aligned() bool {
	return a.PageOffset() == 0
}

func (v VPN) Address() VirtAddr {
	return VirtAddr(uint64(v) << PageShift)
}

func (p PPN) Address() PhysAddr {
	return PhysAddr(uint64(p) << PageShift)
}
