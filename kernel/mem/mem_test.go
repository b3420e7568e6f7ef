package mem

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSizeToPages(t *testing.T) {
	specs := []struct {
		size     Size
		expPages uint32
	}{
		{1023 * Kb, 256},
		{1024 * Kb, 256},
		{1 * Byte, 1},
		{0, 0},
	}

	for specIndex, spec := range specs {
		assert.Equal(t, spec.expPages, spec.size.Pages(), "[spec %d]", specIndex)
	}
}

func TestSizeString(t *testing.T) {
	specs := []struct {
		size Size
		exp  string
	}{
		{0, "0"},
		{12, "12"},
		{4 * Kb, "4K"},
		{1536 * Kb, "1536K"},
		{128 * Mb, "128M"},
		{4 * Gb, "4G"},
	}

	for specIndex, spec := range specs {
		assert.Equal(t, spec.exp, spec.size.String(), "[spec %d]", specIndex)
	}
}

func TestParseSize(t *testing.T) {
	specs := []struct {
		in    string
		exp   Size
		expOK bool
	}{
		{"4096", 4096, true},
		{"512K", 512 * Kb, true},
		{"512k", 512 * Kb, true},
		{" 2M ", 2 * Mb, true},
		{"1G", Gb, true},
		{"", 0, false},
		{"M", 0, false},
		{"-1K", 0, false},
		{"12Q", 0, false},
		{"99999999999999999999G", 0, false},
	}

	for specIndex, spec := range specs {
		got, ok := ParseSize(spec.in)
		assert.Equal(t, spec.expOK, ok, "[spec %d] %q", specIndex, spec.in)
		assert.Equal(t, spec.exp, got, "[spec %d] %q", specIndex, spec.in)
	}
}

func TestAlign(t *testing.T) {
	assert.Equal(t, uintptr(0), AlignUp(0, PageSize))
	assert.Equal(t, uintptr(4096), AlignUp(1, PageSize))
	assert.Equal(t, uintptr(4096), AlignUp(4096, PageSize))
	assert.Equal(t, uintptr(16), AlignUp(9, 8))
	assert.Equal(t, uintptr(4096), AlignDown(8191, PageSize))
	assert.Equal(t, uintptr(0), AlignDown(4095, PageSize))
}

func TestRegionEnd(t *testing.T) {
	r := Region{Base: 0x100000, Length: 0x7ee0000}
	require.Equal(t, uint64(0x7fe0000), r.End())
}
