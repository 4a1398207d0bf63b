package emu

import (
	"github.com/go-errors/errors"
	log "github.com/sirupsen/logrus"

	"github.com/ranmrdrakono/vmem/frame_allocator"
	"github.com/ranmrdrakono/vmem/mem"
)

const log_mem = false

// mmu is the slice of the emulator the working set drives: reading a page
// back out before it is dropped, and dropping it.
type mmu interface {
	MemRead(addr, size uint64) ([]byte, error)
	MemUnmap(addr, size uint64) error
}

// WorkingSet bounds how many pages stay resident in the emulator at once.
// When full, the oldest page is written back into its backing frame and
// unmapped from the MMU; its page table entry survives, so a later touch
// faults it back in with the stores it took while resident.
type WorkingSet struct {
	phys     frame_allocator.Memory
	resident []mem.VPN
	frames   map[mem.VPN]mem.PPN
	head     int
	count    int
}

func NewWorkingSet(size int, phys frame_allocator.Memory) *WorkingSet {
	res := new(WorkingSet)
	res.phys = phys
	res.resident = make([]mem.VPN, size)
	res.frames = make(map[mem.VPN]mem.PPN)
	return res
}

func (s *WorkingSet) Resident(vpn mem.VPN) bool {
	_, ok := s.frames[vpn]
	return ok
}

// evict copies the emulator's current page contents into the backing frame,
// then unmaps the page. The frame is canonical memory, shared with every
// reader outside the emulator, so the write back must happen first.
func (s *WorkingSet) evict(vpn mem.VPN, mu mmu) *errors.Error {
	base := uint64(vpn.Address())
	if log_mem {
		log.WithFields(log.Fields{"vpn": vpn}).Debug("evict resident page")
	}
	data, err := mu.MemRead(base, mem.PageSize)
	if err != nil {
		return wrap(err)
	}
	copy(s.phys.PageBytes(s.frames[vpn]), data)
	if err := mu.MemUnmap(base, mem.PageSize); err != nil {
		return wrap(err)
	}
	delete(s.frames, vpn)
	return nil
}

func (s *WorkingSet) Insert(vpn mem.VPN, ppn mem.PPN, mu mmu) *errors.Error {
	if s.Resident(vpn) {
		return nil
	}
	if s.count == len(s.resident) { // write back and unmap the oldest page
		if err := s.evict(s.resident[s.head], mu); err != nil {
			return err
		}
		s.head = (s.head + 1) % len(s.resident)
		s.count -= 1
	}
	s.resident[(s.head+s.count)%len(s.resident)] = vpn
	s.frames[vpn] = ppn
	s.count += 1
	return nil
}

func (s *WorkingSet) Clear(mu mmu) *errors.Error {
	for i := 0; i < s.count; i++ {
		if err := s.evict(s.resident[(s.head+i)%len(s.resident)], mu); err != nil {
			return err
		}
	}
	s.head = 0
	s.count = 0
	return nil
}
