// Package page_table is the per address space translation structure. The
// address space core drives it through the PageTable interface; Table is the
// in-process implementation, the emulator runner programs a real MMU from
// the entries it reports.
package page_table

import (
	"github.com/go-errors/errors"
	"github.com/ranmrdrakono/vmem/mem"
)

var ErrMapped = errors.Errorf("page already mapped")
var ErrUnMapped = errors.Errorf("unmap of page without entry")
var ErrNotMapped = errors.Errorf("translate of page without entry")

// Entry is an installed translation for a single virtual page.
type Entry struct {
	PPN  mem.PPN
	Perm mem.Perm
}

func (e Entry) Readable() bool {
	return e.Perm.Readable()
}

func (e Entry) Writable() bool {
	return e.Perm.Writable()
}

func (e Entry) Executable() bool {
	return e.Perm.Executable()
}

func (e Entry) UserAccessible() bool {
	return e.Perm.UserAccessible()
}

type PageTable interface {
	Map(vpn mem.VPN, ppn mem.PPN, perm mem.Perm) *errors.Error
	Unmap(vpn mem.VPN) *errors.Error
	Translate(vpn mem.VPN) (Entry, *errors.Error)
	// Token identifies this table for activation, the analogue of an
	// address translation control register value.
	Token() uint64
	Activate()
}
