package frame_allocator

import (
	"testing"

	"github.com/go-errors/errors"
	"github.com/ranmrdrakono/vmem/mem"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func init() {
	log.SetLevel(log.ErrorLevel)
}

func TestAllocUntilExhausted(t *testing.T) {
	list := NewFreeList(100, 103)
	assert.Equal(t, uint64(3), list.FreeCount())

	seen := make(map[mem.PPN]bool)
	for i := 0; i < 3; i++ {
		ppn, err := list.Alloc()
		assert.Nil(t, err)
		assert.False(t, seen[ppn])
		seen[ppn] = true
	}
	assert.Equal(t, uint64(0), list.FreeCount())
	assert.Equal(t, 3, list.AllocatedCount())

	_, err := list.Alloc()
	assert.NotNil(t, err)
	assert.True(t, errors.Is(err, ErrNotEnoughMemory))
}

func TestFreeRecycles(t *testing.T) {
	list := NewFreeList(100, 101)
	ppn, err := list.Alloc()
	assert.Nil(t, err)
	list.Free(ppn)
	assert.Equal(t, uint64(1), list.FreeCount())
	again, err := list.Alloc()
	assert.Nil(t, err)
	assert.Equal(t, ppn, again)
}

func TestAllocZeroesRecycledPages(t *testing.T) {
	list := NewFreeList(100, 101)
	ppn, _ := list.Alloc()
	copy(list.PageBytes(ppn), []byte{1, 2, 3})
	list.Free(ppn)
	again, _ := list.Alloc()
	page := list.PageBytes(again)
	assert.Equal(t, []byte{0, 0, 0}, page[:3])
	assert.Equal(t, mem.PageSize, len(page))
}

func TestFreeOfUnknownFrameIsIgnored(t *testing.T) {
	list := NewFreeList(100, 102)
	list.Free(55)
	assert.Equal(t, uint64(2), list.FreeCount())
}

func TestPageBytesOutsideWindow(t *testing.T) {
	// identity mapped regions read and write pages the allocator never
	// handed out
	list := NewFreeList(100, 102)
	page := list.PageBytes(7)
	page[0] = 0xaa
	assert.Equal(t, byte(0xaa), list.PageBytes(7)[0])
}
