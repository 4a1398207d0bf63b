// Package emu executes a loaded image under unicorn. The address space is
// the MMU model: every invalid access asks Translate to resolve the page,
// which is exactly the lazy fault in path, then installs the page into the
// emulator and retries the access.
package emu

import (
	"fmt"

	"github.com/go-errors/errors"
	log "github.com/sirupsen/logrus"
	uc "github.com/unicorn-engine/unicorn/bindings/go/unicorn"

	"github.com/ranmrdrakono/vmem/address_space"
	"github.com/ranmrdrakono/vmem/frame_allocator"
	"github.com/ranmrdrakono/vmem/mem"
)

type Config struct {
	MaxInstructionCount uint64
	MaxTime             uint64
	MaxResidentPages    int
	Arch                int
	Mode                int
}

type Runner struct {
	Config Config
	space  *address_space.AddressSpace
	phys   frame_allocator.Memory
	ws     *WorkingSet
	mu     uc.Unicorn
}

func NewRunner(space *address_space.AddressSpace, phys frame_allocator.Memory, conf Config) (*Runner, *errors.Error) {
	if conf.MaxResidentPages <= 0 {
		return nil, errors.Errorf("resident page limit must be positive, got %d", conf.MaxResidentPages)
	}
	res := new(Runner)
	res.Config = conf
	res.space = space
	res.phys = phys
	res.ws = NewWorkingSet(conf.MaxResidentPages, phys)
	mu, err := uc.NewUnicorn(conf.Arch, conf.Mode)
	if err != nil {
		return nil, errors.Wrap(err, 0)
	}
	res.mu = mu
	if err := res.addHooks(); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Runner) Close() *errors.Error {
	mu := s.mu
	s.mu = nil
	return wrap(mu.Close())
}

// pageIn resolves addr through the address space and makes the page
// resident. Returns false when the address belongs to no area, which the
// invalid access hook turns into a stopped emulation.
func (s *Runner) pageIn(addr uint64) bool {
	vpn := mem.VirtAddr(addr).Floor()
	if s.ws.Resident(vpn) {
		return true
	}
	entry, err := s.space.Translate(vpn)
	if err != nil {
		log.WithFields(log.Fields{"addr": hex(addr), "error": err}).Debug("fault on address outside every area")
		return false
	}
	base := uint64(vpn.Address())
	if log_mem {
		log.WithFields(log.Fields{"addr": hex(base), "perm": entry.Perm}).Debug("page in")
	}
	if err2 := s.mu.MemMapProt(base, mem.PageSize, protFor(entry.Perm)); err2 != nil {
		log.WithFields(log.Fields{"addr": hex(base), "error": err2}).Error("emulator refused mapping")
		return false
	}
	if err2 := s.mu.MemWrite(base, s.phys.PageBytes(entry.PPN)); err2 != nil {
		log.WithFields(log.Fields{"addr": hex(base), "error": err2}).Error("emulator refused page content")
		return false
	}
	if err := s.ws.Insert(vpn, entry.PPN, s.mu); err != nil {
		log.WithFields(log.Fields{"addr": hex(base), "error": err}).Error("working set insert failed")
		return false
	}
	return true
}

func protFor(perm mem.Perm) int {
	prot := 0
	if perm.Readable() {
		prot |= uc.PROT_READ
	}
	if perm.Writable() {
		prot |= uc.PROT_WRITE
	}
	if perm.Executable() {
		prot |= uc.PROT_EXEC
	}
	return prot
}

func (s *Runner) addHooks() *errors.Error {
	invalid := uc.HOOK_MEM_READ_INVALID | uc.HOOK_MEM_WRITE_INVALID | uc.HOOK_MEM_FETCH_INVALID
	_, err := s.mu.HookAdd(invalid, func(mu uc.Unicorn, access int, addr uint64, size int, value int64) bool {
		if access == uc.MEM_READ_PROT || access == uc.MEM_WRITE_PROT || access == uc.MEM_FETCH_PROT {
			log.WithFields(log.Fields{"addr": hex(addr), "access": access}).Debug("protection violation")
			return false
		}
		if !s.pageIn(addr) {
			return false
		}
		end := addr + uint64(size)
		base := addr - addr%mem.PageSize
		if end > base+mem.PageSize { //sometimes the access spills into the next page
			return s.pageIn(base + mem.PageSize)
		}
		return true
	})
	if err != nil {
		return wrap(err)
	}
	return nil
}

// Run starts execution at entry with the stack register pointing at
// stack_top. Only x86-64 register setup is wired, matching the single mode
// the demo assembles for.
func (s *Runner) Run(entry, stack_top mem.VirtAddr) *errors.Error {
	if s.Config.Arch != uc.ARCH_X86 || s.Config.Mode != uc.MODE_64 {
		return wrap(errors.Errorf("unsupported arch/mode %d/%d", s.Config.Arch, s.Config.Mode))
	}
	if !s.pageIn(uint64(entry)) {
		return wrap(errors.Errorf("entry point %s is not mapped", hex(uint64(entry))))
	}
	if err := s.mu.RegWrite(uc.X86_REG_RSP, uint64(stack_top)); err != nil {
		return wrap(err)
	}
	log.WithFields(log.Fields{"entry": hex(uint64(entry)), "stack": hex(uint64(stack_top))}).Debug("run image")
	opt := uc.UcOptions{Timeout: s.Config.MaxTime, Count: s.Config.MaxInstructionCount}
	run_err := s.mu.StartWithOptions(uint64(entry), ^uint64(0), &opt)
	return s.handleEmulatorError(run_err)
}

func (s *Runner) handleEmulatorError(err error) *errors.Error {
	if err == nil {
		return nil
	}
	ip, _ := s.mu.RegRead(uc.X86_REG_RIP)
	log.WithFields(log.Fields{"err": err, "ip": hex(ip)}).Debug("emulator stopped")
	return wrap(err)
}

// ReadMemory reads emulator memory, paging the range in first if needed.
func (s *Runner) ReadMemory(addr mem.VirtAddr, size uint64) ([]byte, *errors.Error) {
	for page := addr - mem.VirtAddr(addr.PageOffset()); page < addr+mem.VirtAddr(size); page += mem.PageSize {
		if !s.pageIn(uint64(page)) {
			return nil, wrap(errors.Errorf("address %s is not mapped", hex(uint64(page))))
		}
	}
	res, err := s.mu.MemRead(uint64(addr), size)
	if err != nil {
		return nil, wrap(err)
	}
	return res, nil
}

func wrap(err error) *errors.Error {
	if err != nil {
		return errors.Wrap(err, 1)
	}
	return nil
}

func hex(val uint64) string {
	return fmt.Sprintf("0x%x", val)
}
