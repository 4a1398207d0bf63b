// Package elf populates an address space from an ELF program image: loaded
// segments strictly with their file contents, then guard page, lazy user
// stack, program break area and trap context below the trampoline.
package elf

import (
	"bytes"
	"debug/elf"
	"fmt"
	"io"

	xxhash "github.com/OneOfOne/xxhash"
	"github.com/go-errors/errors"
	log "github.com/sirupsen/logrus"

	"github.com/ranmrdrakono/vmem/address_space"
	"github.com/ranmrdrakono/vmem/mem"
	"github.com/ranmrdrakono/vmem/page_table"
)

// LoadedImage is the populated space plus everything the process setup layer
// needs from the layout pass.
type LoadedImage struct {
	Space        *address_space.AddressSpace
	EntryPoint   mem.VirtAddr
	UserStackTop mem.VirtAddr
	HeapStart    mem.VirtAddr
	ImageID      uint64
}

func elfFlagsToPerm(in elf.ProgFlag) mem.Perm {
	res := mem.Perm(0)
	if in&elf.PF_X != 0 {
		res |= mem.X
	}
	if in&elf.PF_R != 0 {
		res |= mem.R
	}
	if in&elf.PF_W != 0 {
		res |= mem.W
	}
	return res
}

// FromBytes lays out data into a fresh address space over pt. Loaded
// segments are pushed strictly, so a broken or oversized image fails here,
// before first execution, with the space fully released.
func FromBytes(data []byte, pt page_table.PageTable, frames address_space.FrameSource, trampoline_code mem.PPN) (*LoadedImage, *errors.Error) {
	file, parse_err := elf.NewFile(bytes.NewReader(data))
	if parse_err != nil {
		return nil, errors.Wrap(parse_err, 0)
	}
	space := address_space.NewBare(pt, frames)
	if err := space.MapTrampoline(trampoline_code); err != nil {
		return nil, err
	}

	max_end := mem.VPN(0)
	for _, prog := range file.Progs {
		hdr := prog.ProgHeader
		if hdr.Type != elf.PT_LOAD {
			continue
		}
		start := mem.VirtAddr(hdr.Vaddr)
		end := start + mem.VirtAddr(hdr.Memsz)
		perm := elfFlagsToPerm(hdr.Flags) | mem.U
		area := address_space.NewMapArea(start, end, address_space.Framed, perm)
		if area.Range().End > max_end {
			max_end = area.Range().End
		}
		content := make([]byte, hdr.Filesz)
		if _, read_err := io.ReadFull(prog.Open(), content); read_err != nil {
			space.Destroy()
			return nil, errors.Wrap(read_err, 0)
		}
		log.WithFields(log.Fields{
			"start": hex(uint64(start)),
			"end":   hex(uint64(end)),
			"perm":  perm,
		}).Debug("load segment")
		if err := space.PushStrict(area, content); err != nil {
			space.Destroy()
			return nil, err
		}
	}

	// guard page between the image and the user stack
	stack_bottom := max_end.Address() + mem.VirtAddr(address_space.GuardPageSize)
	stack_top := stack_bottom + mem.VirtAddr(address_space.UserStackSize)
	stack := address_space.NewMapArea(stack_bottom, stack_top, address_space.Framed, mem.R|mem.W|mem.U)
	if err := space.PushLazy(stack, nil); err != nil {
		space.Destroy()
		return nil, err
	}

	// zero length heap area right above the stack, grown by the program break
	heap := address_space.NewMapArea(stack_top, stack_top, address_space.Framed, mem.R|mem.W|mem.U)
	if err := space.PushLazy(heap, nil); err != nil {
		space.Destroy()
		return nil, err
	}

	// the trap context must be there before the first trap, never lazily
	trap := address_space.NewMapArea(address_space.TrapContextBase, address_space.Trampoline, address_space.Framed, mem.R|mem.W)
	if err := space.PushStrict(trap, nil); err != nil {
		space.Destroy()
		return nil, err
	}

	res := &LoadedImage{
		Space:        space,
		EntryPoint:   mem.VirtAddr(file.Entry),
		UserStackTop: stack_top,
		HeapStart:    stack_top,
		ImageID:      xxhash.Checksum64(data),
	}
	log.WithFields(log.Fields{
		"entry":     hex(uint64(res.EntryPoint)),
		"stack_top": hex(uint64(res.UserStackTop)),
		"image":     hex(res.ImageID),
	}).Info("image loaded")
	return res, nil
}

func hex(val uint64) string {
	return fmt.Sprintf("0x%x", val)
}
