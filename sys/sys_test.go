package sys

import (
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/ranmrdrakono/vmem/address_space"
	"github.com/ranmrdrakono/vmem/frame_allocator"
	"github.com/ranmrdrakono/vmem/mem"
	"github.com/ranmrdrakono/vmem/page_table"
)

func init() {
	log.SetLevel(log.ErrorLevel)
}

func newTestSpace() (*address_space.AddressSpace, *frame_allocator.FreeList) {
	list := frame_allocator.NewFreeList(0x1000, 0x1020)
	return address_space.NewBare(page_table.NewTable(), list), list
}

func TestMmapPermPolicy(t *testing.T) {
	space, _ := newTestSpace()

	assert.Equal(t, Failure, Mmap(space, 0x10000, 0x11000, 0))
	assert.Equal(t, Failure, Mmap(space, 0x10000, 0x11000, mem.Perm(16)))
	assert.Equal(t, Failure, Mmap(space, 0x10000, 0x11000, mem.U))
	assert.Equal(t, 0, space.AreaCount())

	assert.Equal(t, Success, Mmap(space, 0x10000, 0x11000, mem.R|mem.W))
	// U is implied for user facing mmap
	entry, err := space.Translate(mem.VirtAddr(0x10000).Floor())
	assert.Nil(t, err)
	assert.True(t, entry.UserAccessible())
}

func TestMmapAlignment(t *testing.T) {
	space, _ := newTestSpace()
	assert.Equal(t, Failure, Mmap(space, 0x10008, 0x11000, mem.R))
	assert.Equal(t, Failure, Mmap(space, 0x10000, 0x11008, mem.R))
	assert.Equal(t, Failure, Mmap(space, 0x11000, 0x10000, mem.R))
}

func TestErrorKindsCollapse(t *testing.T) {
	space, _ := newTestSpace()
	assert.Equal(t, Success, Mmap(space, 0x10000, 0x11000, mem.R))

	// overlap, gap and critical all come back as the same failure code
	assert.Equal(t, Failure, Mmap(space, 0x10000, 0x10800, mem.R))
	assert.Equal(t, Failure, Munmap(space, 0x10000, 0x12000))
	assert.Equal(t, Failure, Munmap(space, address_space.TrapContextBase, address_space.HighestAddr))

	assert.Equal(t, Success, Munmap(space, 0x10000, 0x11000))
}

func TestBrk(t *testing.T) {
	space, list := newTestSpace()
	heap_start := mem.VirtAddr(0x20000)
	assert.Nil(t, space.PushLazy(address_space.NewMapArea(heap_start, heap_start, address_space.Framed, mem.R|mem.W|mem.U), nil))

	grown := Brk(space, heap_start, heap_start, heap_start+0x3000)
	assert.Equal(t, int64(heap_start+0x3000), grown)
	assert.Equal(t, 0, list.AllocatedCount())

	_, err := space.Translate(heap_start.Floor() + 1)
	assert.Nil(t, err)
	assert.Equal(t, 1, list.AllocatedCount())

	shrunk := Brk(space, heap_start, heap_start+0x3000, heap_start+0x1000)
	assert.Equal(t, int64(heap_start+0x1000), shrunk)
	assert.Equal(t, 0, list.AllocatedCount())

	assert.Equal(t, int64(Failure), Brk(space, heap_start, heap_start+0x1000, heap_start-0x1000))
	assert.Equal(t, int64(Failure), Brk(space, 0x50000, 0x50000, 0x51000))
}
