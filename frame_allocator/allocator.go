// Package frame_allocator hands out single physical page frames. Exhaustion
// is an ordinary error outcome, never a panic.
package frame_allocator

import (
	"github.com/go-errors/errors"
	"github.com/ranmrdrakono/vmem/mem"
)

var ErrNotEnoughMemory = errors.Errorf("not enough memory")

type Allocator interface {
	Alloc() (mem.PPN, *errors.Error)
	Free(ppn mem.PPN)
}

// Memory exposes the contents of physical pages. The free list implements it
// for the simulated physical window; data copies into mapped areas go
// through it.
type Memory interface {
	PageBytes(ppn mem.PPN) []byte
}
