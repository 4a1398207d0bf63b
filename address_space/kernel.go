package address_space

import (
	"sync"

	"github.com/go-errors/errors"
	"github.com/ranmrdrakono/vmem/mem"
	"github.com/ranmrdrakono/vmem/page_table"
	log "github.com/sirupsen/logrus"
)

// KernelLayout names the identity mapped kernel regions. The section bounds
// play the role of linker symbols; PhysEnd bounds the identity mapped
// physical window above the sections; TrampolineCode is the frame holding
// the trampoline.
type KernelLayout struct {
	TextStart, TextEnd     mem.VirtAddr
	RodataStart, RodataEnd mem.VirtAddr
	DataStart, DataEnd     mem.VirtAddr
	BssStart, BssEnd       mem.VirtAddr
	PhysEnd                mem.VirtAddr
	TrampolineCode         mem.PPN
}

var kernel_mu sync.Mutex
var kernel_space *AddressSpace
var kernel_layout KernelLayout

// InitKernel builds the kernel's own address space exactly once during
// startup: every section identity mapped with its permissions, the remaining
// physical window identity mapped read write, the trampoline installed as a
// critical page. There is no implicit first use initialization; callers
// reach the space through WithKernel afterwards.
func InitKernel(pt page_table.PageTable, frames FrameSource, layout KernelLayout) *errors.Error {
	kernel_mu.Lock()
	defer kernel_mu.Unlock()
	if kernel_space != nil {
		return wrap(errors.Errorf("kernel space already initialized"))
	}
	space := NewBare(pt, frames)
	if err := space.MapTrampoline(layout.TrampolineCode); err != nil {
		return err
	}
	sections := []struct {
		name       string
		start, end mem.VirtAddr
		perm       mem.Perm
	}{
		{".text", layout.TextStart, layout.TextEnd, mem.R | mem.X},
		{".rodata", layout.RodataStart, layout.RodataEnd, mem.R},
		{".data", layout.DataStart, layout.DataEnd, mem.R | mem.W},
		{".bss", layout.BssStart, layout.BssEnd, mem.R | mem.W},
		{"physical memory", layout.BssEnd, layout.PhysEnd, mem.R | mem.W},
	}
	for _, section := range sections {
		log.WithFields(log.Fields{
			"section": section.name,
			"start":   hex(uint64(section.start)),
			"end":     hex(uint64(section.end)),
		}).Info("mapping kernel section")
		area := NewMapArea(section.start, section.end, Identical, section.perm)
		if err := space.PushLazy(area, nil); err != nil {
			return err
		}
	}
	kernel_space = space
	kernel_layout = layout
	return nil
}

// WithKernel runs fn against the kernel address space under its lock.
func WithKernel(fn func(*AddressSpace) *errors.Error) *errors.Error {
	kernel_mu.Lock()
	defer kernel_mu.Unlock()
	if kernel_space == nil {
		return wrap(errors.Errorf("kernel space not initialized"))
	}
	return fn(kernel_space)
}

// RemapCheck verifies the permission bits of the kernel sections after bring
// up: text is not writable, rodata is not writable, data is not executable.
func RemapCheck() *errors.Error {
	return WithKernel(func(space *AddressSpace) *errors.Error {
		layout := kernel_layout
		mid_text := mem.VirtAddr((uint64(layout.TextStart) + uint64(layout.TextEnd)) / 2)
		mid_rodata := mem.VirtAddr((uint64(layout.RodataStart) + uint64(layout.RodataEnd)) / 2)
		mid_data := mem.VirtAddr((uint64(layout.DataStart) + uint64(layout.DataEnd)) / 2)
		entry, err := space.Translate(mid_text.Floor())
		if err != nil {
			return err
		}
		if entry.Writable() {
			return wrap(errors.Errorf("kernel text is writable"))
		}
		entry, err = space.Translate(mid_rodata.Floor())
		if err != nil {
			return err
		}
		if entry.Writable() {
			return wrap(errors.Errorf("kernel rodata is writable"))
		}
		entry, err = space.Translate(mid_data.Floor())
		if err != nil {
			return err
		}
		if entry.Executable() {
			return wrap(errors.Errorf("kernel data is executable"))
		}
		return nil
	})
}
