package mem

// Perm is the permission bit set carried by a mapped area and stamped on
// every page table entry the area installs.
type Perm uint

const (
	X Perm = 1
	R Perm = 2
	W Perm = 4
	U Perm = 8
)

func (p Perm) Executable() bool {
	return p&X != 0
}

func (p Perm) Readable() bool {
	return p&R != 0
}

func (p Perm) Writable() bool {
	return p&W != 0
}

func (p Perm) UserAccessible() bool {
	return p&U != 0
}

func (p Perm) String() string {
	buf := [4]byte{'-', '-', '-', '-'}
	if p.Readable() {
		buf[0] = 'r'
	}
	if p.Writable() {
		buf[1] = 'w'
	}
	if p.Executable() {
		buf[2] = 'x'
	}
	if p.UserAccessible() {
		buf[3] = 'u'
	}
	return string(buf[:])
}
