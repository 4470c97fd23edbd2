package mem

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPoolDrains(t *testing.T) {
	p := NewPool(3)
	a := p.GetPage()
	b := p.GetPage()
	c := p.GetPage()
	assert.NotNil(t, a)
	assert.NotNil(t, b)
	assert.NotNil(t, c)
	assert.Nil(t, p.GetPage())

	p.FreePage(b)
	assert.Equal(t, b, p.GetPage())
}

func TestRoundDownAndUserVaddr(t *testing.T) {
	assert.Equal(t, uintptr(0xbfffe000), RoundDown(0xbfffeffc))
	assert.Equal(t, uintptr(0x1000), RoundDown(0x1fff))
	assert.True(t, IsUserVaddr(0xbfffffff))
	assert.False(t, IsUserVaddr(UserTop))
}

func TestPagedirMappings(t *testing.T) {
	pd := NewPagedir()
	pg := &Page{Data: make([]byte, 4096)}

	assert.Nil(t, pd.GetPage(0x1000))
	assert.True(t, pd.SetPage(0x1000, pg, true))
	assert.False(t, pd.SetPage(0x1000, pg, true))
	assert.Equal(t, pg, pd.GetPage(0x1000))
	assert.True(t, pd.IsWritable(0x1000))

	// Fresh mappings start accessed and clean.
	assert.True(t, pd.IsAccessed(0x1000))
	assert.False(t, pd.IsDirty(0x1000))

	pd.SetAccessed(0x1000, false)
	assert.False(t, pd.IsAccessed(0x1000))
	pd.SetDirty(0x1000, true)
	assert.True(t, pd.IsDirty(0x1000))

	pd.ClearPage(0x1000)
	assert.Nil(t, pd.GetPage(0x1000))
	assert.False(t, pd.IsDirty(0x1000))
}
