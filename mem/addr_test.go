package mem

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFloorCeil(t *testing.T) {
	assert.Equal(t, VPN(0), VirtAddr(0).Floor())
	assert.Equal(t, VPN(0), VirtAddr(0).Ceil())
	assert.Equal(t, VPN(1), VirtAddr(0x1000).Floor())
	assert.Equal(t, VPN(1), VirtAddr(0x1000).Ceil())
	assert.Equal(t, VPN(1), VirtAddr(0x1001).Floor())
	assert.Equal(t, VPN(2), VirtAddr(0x1001).Ceil())
	assert.Equal(t, VPN(1), VirtAddr(0x1fff).Floor())
}

func TestAligned(t *testing.T) {
	assert.True(t, VirtAddr(0x3000).Aligned())
	assert.False(t, VirtAddr(0x3008).Aligned())
	assert.Equal(t, uint64(8), VirtAddr(0x3008).PageOffset())
}

func TestAddressRoundTrip(t *testing.T) {
	assert.Equal(t, VirtAddr(0x5000), VPN(5).Address())
	assert.Equal(t, VPN(5), VPN(5).Address().Floor())
	assert.Equal(t, PhysAddr(0x7000), PPN(7).Address())
}
