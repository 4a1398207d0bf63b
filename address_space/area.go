// Package address_space tracks which virtual page ranges of a process or the
// kernel are mapped, to what frames and under what permissions, and mediates
// every page table mutation.
package address_space

import (
	"fmt"

	"github.com/go-errors/errors"
	"github.com/ranmrdrakono/vmem/frame_allocator"
	"github.com/ranmrdrakono/vmem/mem"
	"github.com/ranmrdrakono/vmem/page_table"
	log "github.com/sirupsen/logrus"
)

// FrameSource is what a mapped area needs from physical memory: frames and
// their contents. The frame_allocator free list satisfies it.
type FrameSource interface {
	frame_allocator.Allocator
	frame_allocator.Memory
}

type MapType int

const (
	// Identical maps every page to the equal numbered frame. Used for
	// kernel regions that must be addressable before any allocation.
	Identical MapType = iota
	// Framed backs every page with an independently allocated frame,
	// attached lazily on first touch.
	Framed
)

// MapArea owns a page range, the policy backing it and, for framed areas,
// every frame attached so far. Frame ownership is exclusive: whichever path
// discards an area must release its frames through Unmap first.
type MapArea struct {
	rng      mem.PageRange
	map_type MapType
	perm     mem.Perm
	frames   map[mem.VPN]mem.PPN
}

func NewMapArea(start, end mem.VirtAddr, map_type MapType, perm mem.Perm) *MapArea {
	res := new(MapArea)
	res.rng = mem.PageRangeOf(start, end)
	res.map_type = map_type
	res.perm = perm
	res.frames = make(map[mem.VPN]mem.PPN)
	return res
}

func (s *MapArea) Range() mem.PageRange {
	return s.rng
}

func (s *MapArea) Perm() mem.Perm {
	return s.perm
}

func (s *MapArea) Type() MapType {
	return s.map_type
}

// FrameCount reports how many frames the area has attached so far.
func (s *MapArea) FrameCount() int {
	return len(s.frames)
}

// Map installs the area into pt. Identical areas get every entry at once;
// framed areas are recorded only, entries appear page by page through
// Ensure. A failed identical install removes the entries it already made
// before reporting, so the table is left as found.
func (s *MapArea) Map(pt page_table.PageTable) *errors.Error {
	if s.map_type != Identical {
		return nil
	}
	for vpn := s.rng.Start; vpn < s.rng.End; vpn++ {
		if err := pt.Map(vpn, mem.PPN(vpn), s.perm); err != nil {
			for undo := s.rng.Start; undo < vpn; undo++ {
				pt.Unmap(undo)
			}
			return err
		}
	}
	return nil
}

// Ensure attaches a frame and installs the entry for every page of sub that
// lacks one. On allocator exhaustion the pages prepared earlier in the same
// call stay attached and installed; whole area rollback is the caller's move
// (discard the area via Unmap).
func (s *MapArea) Ensure(pt page_table.PageTable, frames FrameSource, sub mem.PageRange) *errors.Error {
	if s.map_type != Framed {
		return nil
	}
	for vpn := sub.Start; vpn < sub.End; vpn++ {
		if !s.rng.Contains(vpn) {
			continue
		}
		if _, ok := s.frames[vpn]; ok {
			continue
		}
		ppn, err := frames.Alloc()
		if err != nil {
			return err
		}
		if err := pt.Map(vpn, ppn, s.perm); err != nil {
			frames.Free(ppn)
			return err
		}
		s.frames[vpn] = ppn
	}
	return nil
}

func (s *MapArea) EnsureAll(pt page_table.PageTable, frames FrameSource) *errors.Error {
	return s.Ensure(pt, frames, s.rng)
}

// CopyData writes data into the area starting at its first page, forcing
// every touched page in, so it works under both eager and lazy policies.
func (s *MapArea) CopyData(pt page_table.PageTable, frames FrameSource, data []byte) *errors.Error {
	if uint64(len(data)) > s.rng.Len()*mem.PageSize {
		return wrap(errors.Errorf("data of %d bytes does not fit area of %d pages", len(data), s.rng.Len()))
	}
	copied := 0
	for vpn := s.rng.Start; copied < len(data); vpn++ {
		if err := s.Ensure(pt, frames, mem.PageRangeByLen(vpn, 1)); err != nil {
			return err
		}
		entry, err := pt.Translate(vpn)
		if err != nil {
			return err
		}
		chunk := data[copied:]
		if len(chunk) > mem.PageSize {
			chunk = chunk[:mem.PageSize]
		}
		copy(frames.PageBytes(entry.PPN), chunk)
		copied += len(chunk)
	}
	return nil
}

// Split divides the area at boundary, partitioning attached frames by page
// number. No frame is copied or freed, ownership just moves; an empty half
// is legal and up to the caller to discard.
func (s *MapArea) Split(boundary mem.VPN) (*MapArea, *MapArea) {
	if boundary < s.rng.Start {
		boundary = s.rng.Start
	}
	if boundary > s.rng.End {
		boundary = s.rng.End
	}
	left := &MapArea{
		rng:      mem.PageRange{Start: s.rng.Start, End: boundary},
		map_type: s.map_type,
		perm:     s.perm,
		frames:   make(map[mem.VPN]mem.PPN),
	}
	right := &MapArea{
		rng:      mem.PageRange{Start: boundary, End: s.rng.End},
		map_type: s.map_type,
		perm:     s.perm,
		frames:   make(map[mem.VPN]mem.PPN),
	}
	for vpn, ppn := range s.frames {
		if vpn < boundary {
			left.frames[vpn] = ppn
		} else {
			right.frames[vpn] = ppn
		}
	}
	return left, right
}

// ShrinkTo lowers the upper bound to new_end, unmapping and freeing whatever
// backed the pages falling outside.
func (s *MapArea) ShrinkTo(pt page_table.PageTable, frames FrameSource, new_end mem.VPN) *errors.Error {
	if new_end < s.rng.Start || new_end > s.rng.End {
		return wrap(errors.Errorf("shrink target %s outside area %s", hex(uint64(new_end)), hex(uint64(s.rng.Start))))
	}
	for vpn := new_end; vpn < s.rng.End; vpn++ {
		switch s.map_type {
		case Identical:
			if err := pt.Unmap(vpn); err != nil {
				return err
			}
		case Framed:
			ppn, ok := s.frames[vpn]
			if !ok {
				continue // never touched, nothing installed
			}
			if err := pt.Unmap(vpn); err != nil {
				return err
			}
			frames.Free(ppn)
			delete(s.frames, vpn)
		}
	}
	s.rng.End = new_end
	return nil
}

// AppendTo raises the upper bound to new_end. Framed growth is lazy, the new
// pages get frames on first touch; identical growth installs entries right
// away since that is the only point identical areas install anything.
func (s *MapArea) AppendTo(pt page_table.PageTable, new_end mem.VPN) *errors.Error {
	if new_end < s.rng.End {
		return wrap(errors.Errorf("append target %s below area end %s", hex(uint64(new_end)), hex(uint64(s.rng.End))))
	}
	if s.map_type == Identical {
		for vpn := s.rng.End; vpn < new_end; vpn++ {
			if err := pt.Map(vpn, mem.PPN(vpn), s.perm); err != nil {
				for undo := s.rng.End; undo < vpn; undo++ {
					pt.Unmap(undo)
				}
				return err
			}
		}
	}
	s.rng.End = new_end
	return nil
}

// Unmap removes every entry this area installed and releases every owned
// frame. It is the single release path, shared by munmap, Destroy and the
// rollback of a failed push.
func (s *MapArea) Unmap(pt page_table.PageTable, frames FrameSource) *errors.Error {
	log.WithFields(log.Fields{
		"start": hex(uint64(s.rng.Start.Address())),
		"end":   hex(uint64(s.rng.End.Address())),
	}).Debug("Unmap Area")
	if s.map_type == Identical {
		for vpn := s.rng.Start; vpn < s.rng.End; vpn++ {
			if err := pt.Unmap(vpn); err != nil {
				return err
			}
		}
		return nil
	}
	for vpn, ppn := range s.frames {
		if err := pt.Unmap(vpn); err != nil {
			return err
		}
		frames.Free(ppn)
		delete(s.frames, vpn)
	}
	return nil
}

func hex(val uint64) string {
	return fmt.Sprintf("0x%x", val)
}
