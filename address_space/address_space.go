package address_space

import (
	"sort"

	"github.com/go-errors/errors"
	"github.com/ranmrdrakono/vmem/mem"
	"github.com/ranmrdrakono/vmem/page_table"
	log "github.com/sirupsen/logrus"
)

// AddressSpace owns one page table and a collection of pairwise disjoint
// mapped areas. All mutation happens under the owner's lock; nothing in here
// blocks or retries.
type AddressSpace struct {
	pt     page_table.PageTable
	frames FrameSource
	areas  []*MapArea
}

// NewBare builds an empty address space over pt, taking frames from the
// given source for every framed area it will ever hold.
func NewBare(pt page_table.PageTable, frames FrameSource) *AddressSpace {
	res := new(AddressSpace)
	res.pt = pt
	res.frames = frames
	return res
}

func (s *AddressSpace) Token() uint64 {
	return s.pt.Token()
}

// Activate installs this space's page table as the active one.
func (s *AddressSpace) Activate() {
	s.pt.Activate()
}

// MapTrampoline installs the trampoline code page directly in the page
// table. It is never tracked by an area and never removed.
func (s *AddressSpace) MapTrampoline(code mem.PPN) *errors.Error {
	return s.pt.Map(Trampoline.Floor(), code, mem.R|mem.X)
}

// PushStrict maps area, forces every frame now and copies data if given.
// The area joins the space only on full success; any failure releases every
// frame the area accumulated and leaves the space exactly as before.
func (s *AddressSpace) PushStrict(area *MapArea, data []byte) *errors.Error {
	if err := area.Map(s.pt); err != nil {
		return err
	}
	if err := area.EnsureAll(s.pt, s.frames); err != nil {
		area.Unmap(s.pt, s.frames)
		return err
	}
	if data != nil {
		if err := area.CopyData(s.pt, s.frames, data); err != nil {
			area.Unmap(s.pt, s.frames)
			return err
		}
	}
	s.areas = append(s.areas, area)
	return nil
}

// PushLazy maps area without taking frames; data, if given, forces just the
// pages it touches. Untouched pages stay frameless until first translation.
func (s *AddressSpace) PushLazy(area *MapArea, data []byte) *errors.Error {
	if err := area.Map(s.pt); err != nil {
		return err
	}
	if data != nil {
		if err := area.CopyData(s.pt, s.frames, data); err != nil {
			area.Unmap(s.pt, s.frames)
			return err
		}
	}
	s.areas = append(s.areas, area)
	return nil
}

func (s *AddressSpace) InsertFramedAreaStrict(start, end mem.VirtAddr, perm mem.Perm) *errors.Error {
	return s.PushStrict(NewMapArea(start, end, Framed, perm), nil)
}

func (s *AddressSpace) InsertFramedAreaLazy(start, end mem.VirtAddr, perm mem.Perm) *errors.Error {
	return s.PushLazy(NewMapArea(start, end, Framed, perm), nil)
}

func (s *AddressSpace) findAreaEnsure(vpn mem.VPN) *errors.Error {
	for _, area := range s.areas {
		if area.rng.Contains(vpn) {
			return area.Ensure(s.pt, s.frames, mem.PageRangeByLen(vpn, 1))
		}
	}
	return wrap(ErrRangeNotIncluded)
}

// Translate returns the entry for vpn, forcing a frame in first if the
// owning area is lazy. This is the fault resolution path, not a pure query.
// Critical pages bypass the areas and resolve straight against the page
// table, so a critical page that was never installed fails with the page
// table's ErrNotMapped rather than ErrRangeNotIncluded.
func (s *AddressSpace) Translate(vpn mem.VPN) (page_table.Entry, *errors.Error) {
	if IsCritical(vpn) {
		return s.pt.Translate(vpn)
	}
	if err := s.findAreaEnsure(vpn); err != nil {
		return page_table.Entry{}, err
	}
	return s.pt.Translate(vpn)
}

// ByteBuffer returns the page chunked view of [start, start+length), forcing
// lazy pages in. Used for copies between kernel and user memory.
func (s *AddressSpace) ByteBuffer(start mem.VirtAddr, length uint64) ([][]byte, *errors.Error) {
	var res [][]byte
	va := start
	remaining := length
	for remaining > 0 {
		entry, err := s.Translate(va.Floor())
		if err != nil {
			return nil, err
		}
		page := s.frames.PageBytes(entry.PPN)
		off := va.PageOffset()
		take := mem.PageSize - off
		if take > remaining {
			take = remaining
		}
		res = append(res, page[off:off+take])
		va += mem.VirtAddr(take)
		remaining -= take
	}
	return res, nil
}

// ShrinkTo adjusts the area starting exactly at start down to new_end. Used
// for program break shrinking, where there is always one heap area.
func (s *AddressSpace) ShrinkTo(start, new_end mem.VirtAddr) *errors.Error {
	for _, area := range s.areas {
		if area.rng.Start == start.Floor() {
			return area.ShrinkTo(s.pt, s.frames, new_end.Ceil())
		}
	}
	return wrap(ErrNoMatchingArea)
}

// AppendTo adjusts the area starting exactly at start up to new_end.
func (s *AddressSpace) AppendTo(start, new_end mem.VirtAddr) *errors.Error {
	for _, area := range s.areas {
		if area.rng.Start == start.Floor() {
			return area.AppendTo(s.pt, new_end.Ceil())
		}
	}
	return wrap(ErrNoMatchingArea)
}

// hasMapped reports whether any tracked area intersects target. Critical
// mappings are not areas and not considered.
func (s *AddressSpace) hasMapped(target mem.PageRange) bool {
	for _, area := range s.areas {
		if area.rng.Intersects(target) {
			return true
		}
	}
	return false
}

// hasUnmapped reports whether some page of target is covered by no area.
// Areas never overlap, so summing the intersections counts each covered
// page once.
func (s *AddressSpace) hasUnmapped(target mem.PageRange) bool {
	covered := uint64(0)
	for _, area := range s.areas {
		_, _, removed := area.rng.Exclude(target)
		covered += removed.Len()
	}
	return covered != target.Len()
}

func rangeTouchesCritical(target mem.PageRange) bool {
	for vpn := target.Start; vpn < target.End; vpn++ {
		if IsCritical(vpn) {
			return true
		}
	}
	return false
}

// Mmap lazily maps [start_va, end_va) with perm. Nothing is allocated until
// the range is touched. Both rejections happen before any mutation, so a
// failed call leaves the space unchanged.
func (s *AddressSpace) Mmap(start_va, end_va mem.VirtAddr, perm mem.Perm) *errors.Error {
	area := NewMapArea(start_va, end_va, Framed, perm)
	if rangeTouchesCritical(area.rng) {
		return wrap(ErrCritical)
	}
	if s.hasMapped(area.rng) {
		return wrap(ErrHasMappedPortion)
	}
	log.WithFields(log.Fields{
		"start": hex(uint64(start_va)),
		"end":   hex(uint64(end_va)),
		"perm":  perm,
	}).Debug("Mmap")
	return s.PushLazy(area, nil)
}

// Munmap removes [start_va, end_va) atomically: either every page of the
// range is currently covered by some area or nothing changes. An area hit in
// the middle is split and survives as its two edges.
func (s *AddressSpace) Munmap(start_va, end_va mem.VirtAddr) *errors.Error {
	target := mem.PageRangeOf(start_va, end_va)
	if rangeTouchesCritical(target) {
		return wrap(ErrCritical)
	}
	if s.hasUnmapped(target) {
		return wrap(ErrHasUnmappedPortion)
	}
	log.WithFields(log.Fields{
		"start": hex(uint64(start_va)),
		"end":   hex(uint64(end_va)),
	}).Debug("Munmap")
	old := s.areas
	s.areas = nil
	for _, area := range old {
		left, _, removed := area.rng.Exclude(target)
		if removed.IsEmpty() {
			s.areas = append(s.areas, area)
			continue
		}
		larea, rest := area.Split(left.End)
		marea, rarea := rest.Split(removed.End)
		if !larea.rng.IsEmpty() {
			s.areas = append(s.areas, larea)
		}
		if !rarea.rng.IsEmpty() {
			s.areas = append(s.areas, rarea)
		}
		if err := marea.Unmap(s.pt, s.frames); err != nil {
			return err
		}
	}
	return nil
}

// Destroy releases every frame owned by every area. The page table is
// abandoned with the space afterwards.
func (s *AddressSpace) Destroy() *errors.Error {
	for _, area := range s.areas {
		if err := area.Unmap(s.pt, s.frames); err != nil {
			return err
		}
	}
	s.areas = nil
	return nil
}

// AreaCount reports how many areas the space tracks.
func (s *AddressSpace) AreaCount() int {
	return len(s.areas)
}

// AreaRanges returns the tracked ranges ordered by start page.
func (s *AddressSpace) AreaRanges() []mem.PageRange {
	res := make([]mem.PageRange, 0, len(s.areas))
	for _, area := range s.areas {
		res = append(res, area.rng)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Start < res[j].Start })
	return res
}
