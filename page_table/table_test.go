package page_table

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

func TestMapTranslateUnmap(t *testing.T) {
	table := NewTable()
	assert.Nil(t, table.Map(10, 200, mem.R|mem.W))

	entry, err := table.Translate(10)
	assert.Nil(t, err)
	assert.Equal(t, mem.PPN(200), entry.PPN)
	assert.True(t, entry.Readable())
	assert.True(t, entry.Writable())
	assert.False(t, entry.Executable())
	assert.False(t, entry.UserAccessible())

	assert.Nil(t, table.Unmap(10))
	assert.Equal(t, 0, table.EntryCount())
}

func TestDoubleMapFails(t *testing.T) {
	table := NewTable()
	assert.Nil(t, table.Map(10, 200, mem.R))
	err := table.Map(10, 201, mem.R)
	assert.NotNil(t, err)
	assert.True(t, errors.Is(err, ErrMapped))
	// the original entry survives
	entry, terr := table.Translate(10)
	assert.Nil(t, terr)
	assert.Equal(t, mem.PPN(200), entry.PPN)
}

func TestUnmapWithoutEntryFails(t *testing.T) {
	table := NewTable()
	err := table.Unmap(10)
	assert.NotNil(t, err)
	assert.True(t, errors.Is(err, ErrUnMapped))
}

func TestTranslateWithoutEntryFails(t *testing.T) {
	table := NewTable()
	_, err := table.Translate(10)
	assert.NotNil(t, err)
	assert.True(t, errors.Is(err, ErrNotMapped))
}

func TestActivate(t *testing.T) {
	first := NewTable()
	second := NewTable()
	assert.NotEqual(t, first.Token(), second.Token())

	first.Activate()
	assert.Equal(t, first, Active())
	second.Activate()
	assert.Equal(t, second, Active())
}
