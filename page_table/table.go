package page_table

import (
	"sync"
	"sync/atomic"

	"github.com/go-errors/errors"
	"github.com/ranmrdrakono/vmem/mem"
	log "github.com/sirupsen/logrus"
)

const log_entries = false

var next_token uint64

var (
	active_mu sync.Mutex
	active    *Table
)

// Table is a flat page table: one entry per mapped virtual page. Map and
// Unmap report the distinct consistency failures the address space core
// relies on to detect bookkeeping bugs.
type Table struct {
	token   uint64
	entries map[mem.VPN]Entry
}

func NewTable() *Table {
	res := new(Table)
	res.token = atomic.AddUint64(&next_token, 1)
	res.entries = make(map[mem.VPN]Entry)
	return res
}

func (s *Table) Map(vpn mem.VPN, ppn mem.PPN, perm mem.Perm) *errors.Error {
	if _, ok := s.entries[vpn]; ok {
		return wrap(ErrMapped)
	}
	if log_entries {
		log.WithFields(log.Fields{"vpn": vpn, "ppn": ppn, "perm": perm}).Debug("Map Page")
	}
	s.entries[vpn] = Entry{PPN: ppn, Perm: perm}
	return nil
}

func (s *Table) Unmap(vpn mem.VPN) *errors.Error {
	if _, ok := s.entries[vpn]; !ok {
		return wrap(ErrUnMapped)
	}
	if log_entries {
		log.WithFields(log.Fields{"vpn": vpn}).Debug("Unmap Page")
	}
	delete(s.entries, vpn)
	return nil
}

func (s *Table) Translate(vpn mem.VPN) (Entry, *errors.Error) {
	entry, ok := s.entries[vpn]
	if !ok {
		return Entry{}, wrap(ErrNotMapped)
	}
	return entry, nil
}

func (s *Table) Token() uint64 {
	return s.token
}

// Activate makes this table the process wide active one, the stand in for
// writing the translation control register.
func (s *Table) Activate() {
	active_mu.Lock()
	active = s
	active_mu.Unlock()
	log.WithFields(log.Fields{"token": s.token}).Debug("Activate Page Table")
}

// Active returns the currently activated table, nil before any activation.
func Active() *Table {
	active_mu.Lock()
	defer active_mu.Unlock()
	return active
}

// EntryCount reports how many pages currently have installed entries.
func (s *Table) EntryCount() int {
	return len(s.entries)
}

func wrap(err error) *errors.Error {
	if err != nil {
		return errors.Wrap(err, 1)
	}
	return nil
}
