package main

import (
	"encoding/hex"
	"fmt"
	"strings"

	uc "github.com/unicorn-engine/unicorn/bindings/go/unicorn"

	"github.com/ranmrdrakono/vmem/address_space"
	"github.com/ranmrdrakono/vmem/emu"
	"github.com/ranmrdrakono/vmem/frame_allocator"
	"github.com/ranmrdrakono/vmem/mem"
	"github.com/ranmrdrakono/vmem/page_table"
)

var asm = strings.Join([]string{
	"48c7c02a000000",   // mov rax, 42
	"4889042500400000", // mov [0x4000], rax
	"50",               // push rax
}, "")

func run() error {
	code, err := hex.DecodeString(asm)
	if err != nil {
		return err
	}

	frames := frame_allocator.NewFreeList(0x80000, 0x80400)
	space := address_space.NewBare(page_table.NewTable(), frames)

	code_start := mem.VirtAddr(0x1000)
	code_area := address_space.NewMapArea(code_start, code_start+mem.VirtAddr(len(code)), address_space.Framed, mem.R|mem.X|mem.U)
	if err := space.PushStrict(code_area, code); err != nil {
		return err
	}
	if err := space.InsertFramedAreaLazy(0x7000, 0x9000, mem.R|mem.W|mem.U); err != nil {
		return err
	}
	// the store target, mapped on demand only
	if err := space.Mmap(0x4000, 0x5000, mem.R|mem.W|mem.U); err != nil {
		return err
	}

	runner, err2 := emu.NewRunner(space, frames, emu.Config{
		MaxInstructionCount: 100,
		MaxTime:             0,
		MaxResidentPages:    16,
		Arch:                uc.ARCH_X86,
		Mode:                uc.MODE_64,
	})
	if err2 != nil {
		return err2
	}

	if err := runner.Run(code_start, 0x9000); err != nil {
		fmt.Println("emulation stopped:", err)
	}

	val, err3 := runner.ReadMemory(0x4000, 8)
	if err3 != nil {
		return err3
	}
	fmt.Printf("memory at 0x4000: %x\n", val)

	if err := runner.Close(); err != nil {
		return err
	}
	if err := space.Destroy(); err != nil {
		return err
	}
	return nil
}

func main() {
	if err := run(); err != nil {
		fmt.Println(err)
	}
}
