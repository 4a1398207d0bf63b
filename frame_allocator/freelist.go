package frame_allocator

import (
	"github.com/go-errors/errors"
	"github.com/ranmrdrakono/vmem/mem"
	log "github.com/sirupsen/logrus"
)

const log_frames = false

// FreeList allocates frames out of the window [next, end), recycling freed
// ones in LIFO order. It also owns the simulated physical memory backing the
// window, one zeroed page per frame.
type FreeList struct {
	next     mem.PPN
	end      mem.PPN
	recycled []mem.PPN
	pages    map[mem.PPN][]byte
	in_use   map[mem.PPN]bool
}

func NewFreeList(start, end mem.PPN) *FreeList {
	res := new(FreeList)
	res.next = start
	res.end = end
	res.pages = make(map[mem.PPN][]byte)
	res.in_use = make(map[mem.PPN]bool)
	return res
}

func (s *FreeList) Alloc() (mem.PPN, *errors.Error) {
	var ppn mem.PPN
	if len(s.recycled) > 0 {
		ppn = s.recycled[len(s.recycled)-1]
		s.recycled = s.recycled[:len(s.recycled)-1]
	} else if s.next < s.end {
		ppn = s.next
		s.next += 1
	} else {
		return 0, wrap(ErrNotEnoughMemory)
	}
	s.in_use[ppn] = true
	zero(s.PageBytes(ppn))
	if log_frames {
		log.WithFields(log.Fields{"ppn": ppn, "free": s.FreeCount()}).Debug("Alloc Frame")
	}
	return ppn, nil
}

func (s *FreeList) Free(ppn mem.PPN) {
	if !s.in_use[ppn] {
		log.WithFields(log.Fields{"ppn": ppn}).Warning("Free of frame not handed out")
		return
	}
	delete(s.in_use, ppn)
	s.recycled = append(s.recycled, ppn)
	if log_frames {
		log.WithFields(log.Fields{"ppn": ppn, "free": s.FreeCount()}).Debug("Free Frame")
	}
}

// PageBytes returns the backing page for ppn, creating it on first access.
// Pages outside the allocation window exist too, so identity mapped regions
// can be read and written like any other.
func (s *FreeList) PageBytes(ppn mem.PPN) []byte {
	page, ok := s.pages[ppn]
	if !ok {
		page = make([]byte, mem.PageSize)
		s.pages[ppn] = page
	}
	return page
}

// FreeCount reports how many frames are still available.
func (s *FreeList) FreeCount() uint64 {
	return uint64(s.end-s.next) + uint64(len(s.recycled))
}

// AllocatedCount reports how many frames are currently handed out.
func (s *FreeList) AllocatedCount() int {
	return len(s.in_use)
}

func zero(page []byte) {
	for i := range page {
		page[i] = 0
	}
}

func wrap(err error) *errors.Error {
	if err != nil {
		return errors.Wrap(err, 1)
	}
	return nil
}
