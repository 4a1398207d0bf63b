// Package sys is the syscall boundary over the address space core. Every
// typed error collapses to a negative status here; the kind never crosses to
// user code.
package sys

import (
	"fmt"

	"github.com/go-errors/errors"
	"github.com/ranmrdrakono/vmem/address_space"
	"github.com/ranmrdrakono/vmem/mem"
	log "github.com/sirupsen/logrus"
)

const (
	Success = 0
	Failure = -1
)

// validPerm is the permission policy for user facing mmap: a zero mask is
// rejected, any bit outside R/W/X is rejected, U is implied and added by the
// wrapper itself.
func validPerm(perm mem.Perm) bool {
	if perm == 0 {
		return false
	}
	return perm&^(mem.R|mem.W|mem.X) == 0
}

func status(err *errors.Error) int {
	if err != nil {
		log.WithFields(log.Fields{"error": err}).Debug("syscall failed")
		return Failure
	}
	return Success
}

// Mmap maps [start, end) into space. start and end must be page aligned.
func Mmap(space *address_space.AddressSpace, start, end mem.VirtAddr, perm mem.Perm) int {
	if !start.Aligned() || !end.Aligned() || end < start {
		return Failure
	}
	if !validPerm(perm) {
		log.WithFields(log.Fields{"perm": perm}).Debug("mmap with bad permission bits")
		return Failure
	}
	return status(space.Mmap(start, end, perm|mem.U))
}

// Munmap removes [start, end) from space. start and end must be page aligned.
func Munmap(space *address_space.AddressSpace, start, end mem.VirtAddr) int {
	if !start.Aligned() || !end.Aligned() || end < start {
		return Failure
	}
	return status(space.Munmap(start, end))
}

// Brk moves the program break of the heap area starting at heap_start from
// old_brk to new_brk and returns the new break, or Failure. A break below
// the heap start is rejected; an unchanged break is a no-op by contract of
// the caller, not special cased here.
func Brk(space *address_space.AddressSpace, heap_start, old_brk, new_brk mem.VirtAddr) int64 {
	if new_brk < heap_start {
		return Failure
	}
	var err *errors.Error
	if new_brk < old_brk {
		err = space.ShrinkTo(heap_start, new_brk)
	} else {
		err = space.AppendTo(heap_start, new_brk)
	}
	if err != nil {
		log.WithFields(log.Fields{
			"heap_start": hex(uint64(heap_start)),
			"new_brk":    hex(uint64(new_brk)),
			"error":      err,
		}).Debug("brk failed")
		return Failure
	}
	return int64(new_brk)
}

func hex(val uint64) string {
	return fmt.Sprintf("0x%x", val)
}
