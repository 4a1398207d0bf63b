package address_space

import (
	"testing"

	"github.com/go-errors/errors"
	"github.com/ranmrdrakono/vmem/frame_allocator"
	"github.com/ranmrdrakono/vmem/mem"
	"github.com/ranmrdrakono/vmem/page_table"
	"github.com/stretchr/testify/assert"
)

// resetKernelForTest drops the singleton so every test brings it up fresh.
func resetKernelForTest() {
	kernel_mu.Lock()
	kernel_space = nil
	kernel_layout = KernelLayout{}
	kernel_mu.Unlock()
}

func testLayout() KernelLayout {
	return KernelLayout{
		TextStart:      va(0x10),
		TextEnd:        va(0x14),
		RodataStart:    va(0x14),
		RodataEnd:      va(0x16),
		DataStart:      va(0x16),
		DataEnd:        va(0x18),
		BssStart:       va(0x18),
		BssEnd:         va(0x1a),
		PhysEnd:        va(0x20),
		TrampolineCode: 0x12,
	}
}

func TestInitKernelOnce(t *testing.T) {
	resetKernelForTest()
	table := page_table.NewTable()
	list := frame_allocator.NewFreeList(0x100, 0x110)

	assert.Nil(t, InitKernel(table, list, testLayout()))
	err := InitKernel(table, list, testLayout())
	assert.NotNil(t, err)
}

func TestWithKernelRequiresInit(t *testing.T) {
	resetKernelForTest()
	err := WithKernel(func(space *AddressSpace) *errors.Error { return nil })
	assert.NotNil(t, err)
}

func TestKernelIdentityMapping(t *testing.T) {
	resetKernelForTest()
	table := page_table.NewTable()
	list := frame_allocator.NewFreeList(0x100, 0x110)
	assert.Nil(t, InitKernel(table, list, testLayout()))

	err := WithKernel(func(space *AddressSpace) *errors.Error {
		entry, terr := space.Translate(0x11)
		if terr != nil {
			return terr
		}
		assert.Equal(t, mem.PPN(0x11), entry.PPN)
		assert.True(t, entry.Executable())
		return nil
	})
	assert.Nil(t, err)
	// identity mapping takes no frames
	assert.Equal(t, 0, list.AllocatedCount())
}

func TestRemapCheck(t *testing.T) {
	resetKernelForTest()
	table := page_table.NewTable()
	list := frame_allocator.NewFreeList(0x100, 0x110)
	assert.Nil(t, InitKernel(table, list, testLayout()))
	assert.Nil(t, RemapCheck())
}
