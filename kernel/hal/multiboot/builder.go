package multiboot

import (
	"encoding/binary"

	"golang.org/x/text/encoding/charmap"
)

// Builder assembles multiboot2 information buffers. It is used to feed
// synthetic boot information to the kernel when running outside a real
// bootloader.
type Builder struct {
	tags [][]byte
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// AddTag appends a tag with an arbitrary type and payload.
func (b *Builder) AddTag(tagType uint32, payload []byte) *Builder {
	tag := make([]byte, tagHeaderSize+len(payload))
	binary.LittleEndian.PutUint32(tag[0:], tagType)
	binary.LittleEndian.PutUint32(tag[4:], uint32(len(tag)))
	copy(tag[tagHeaderSize:], payload)

	b.tags = append(b.tags, tag)
	return b
}

// AddMemoryMap appends a memory map tag containing the supplied entries.
func (b *Builder) AddMemoryMap(entries ...MemoryMapEntry) *Builder {
	payload := make([]byte, mmapHeaderSize+len(entries)*mmapEntrySize)
	binary.LittleEndian.PutUint32(payload[0:], mmapEntrySize)
	binary.LittleEndian.PutUint32(payload[4:], 0)

	for i, entry := range entries {
		e := payload[mmapHeaderSize+i*mmapEntrySize:]
		binary.LittleEndian.PutUint64(e[0:], entry.PhysAddress)
		binary.LittleEndian.PutUint64(e[8:], entry.Length)
		binary.LittleEndian.PutUint32(e[16:], uint32(entry.Type))
	}

	return b.AddTag(uint32(tagMemoryMap), payload)
}

// AddCmdLine appends a boot command line tag.
func (b *Builder) AddCmdLine(cmdLine string) *Builder {
	return b.AddTag(uint32(tagBootCmdLine), encodeString(cmdLine))
}

// AddBootLoaderName appends a boot loader name tag.
func (b *Builder) AddBootLoaderName(name string) *Builder {
	return b.AddTag(uint32(tagBootLoaderName), encodeString(name))
}

// Build returns the encoded information buffer: the {totalSize, reserved}
// header, each tag padded to an 8-byte boundary and a terminating end tag.
func (b *Builder) Build() []byte {
	buf := make([]byte, infoHeaderSize, 256)
	for _, tag := range b.tags {
		buf = append(buf, tag...)
		for len(buf)%8 != 0 {
			buf = append(buf, 0)
		}
	}

	var end [tagHeaderSize]byte
	binary.LittleEndian.PutUint32(end[4:], tagHeaderSize)
	buf = append(buf, end[:]...)

	binary.LittleEndian.PutUint32(buf[0:], uint32(len(buf)))
	return buf
}

// encodeString converts s into a NUL-terminated Latin-1 byte string. Runes
// that cannot be represented in Latin-1 cause the raw UTF-8 bytes to be used.
func encodeString(s string) []byte {
	encoded, err := charmap.ISO8859_1.NewEncoder().Bytes([]byte(s))
	if err != nil {
		encoded = []byte(s)
	}
	return append(encoded, 0)
}
