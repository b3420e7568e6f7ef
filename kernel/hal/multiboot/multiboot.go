// Package multiboot decodes the multiboot2 information structure that the
// bootloader hands over to the kernel.
package multiboot

import (
	"encoding/binary"
	"strings"

	"geeos/kernel/mem"

	"golang.org/x/text/encoding/charmap"
)

type tagType uint32

// nolint
const (
	tagMbSectionEnd tagType = iota
	tagBootCmdLine
	tagBootLoaderName
	tagModules
	tagBasicMemoryInfo
	tagBiosBootDevice
	tagMemoryMap
)

const (
	// infoHeaderSize is the size of the {totalSize, reserved} header that
	// precedes the first tag.
	infoHeaderSize = 8

	// tagHeaderSize is the size of the {type, size} header that precedes
	// each tag payload.
	tagHeaderSize = 8

	// mmapHeaderSize is the size of the {entrySize, entryVersion} header
	// at the start of a memory map tag payload.
	mmapHeaderSize = 8

	// mmapEntrySize is the size of the {address, length, type, reserved}
	// fields of a memory map entry. The bootloader may report a larger
	// entry size; the extra bytes are skipped.
	mmapEntrySize = 24

	// MaxMemoryRegions is the number of usable regions retained by
	// AvailableRegions. Additional regions are dropped.
	MaxMemoryRegions = 32
)

// MemoryEntryType defines the type of a MemoryMapEntry.
type MemoryEntryType uint32

const (
	// MemAvailable indicates that the memory region is available for use.
	MemAvailable MemoryEntryType = iota + 1

	// MemReserved indicates that the memory region is not available for use.
	MemReserved

	// MemAcpiReclaimable indicates a memory region that holds ACPI info that
	// can be reused by the OS.
	MemAcpiReclaimable

	// MemNvs indicates memory that must be preserved when hibernating.
	MemNvs

	// Any value >= memUnknown will be mapped to MemReserved.
	memUnknown
)

// String implements fmt.Stringer for MemoryEntryType.
func (t MemoryEntryType) String() string {
	switch t {
	case MemAvailable:
		return "available"
	case MemReserved:
		return "reserved"
	case MemAcpiReclaimable:
		return "ACPI (reclaimable)"
	case MemNvs:
		return "NVS"
	default:
		return "unknown"
	}
}

// MemoryMapEntry describes a memory region entry, namely its physical address,
// its length and its type.
type MemoryMapEntry struct {
	// The physical address for this memory region.
	PhysAddress uint64

	// The length of the memory region.
	Length uint64

	// The type of this entry.
	Type MemoryEntryType
}

// MemRegionVisitor defines a visitor function that gets invoked by
// VisitMemRegions for each memory region provided by the boot loader. The
// visitor must return true to continue or false to abort the scan.
type MemRegionVisitor func(*MemoryMapEntry) bool

// Info wraps a copy-free view of the multiboot information buffer. The
// buffer is walked with bounds checks; a tag that claims to extend past the
// end of the buffer or that is smaller than its own header terminates the
// walk as if an end tag had been found.
//
// Info is not safe for concurrent use.
type Info struct {
	data      []byte
	cmdLineKV map[string]string
}

// NewInfo returns an Info for the supplied multiboot information buffer.
func NewInfo(data []byte) *Info {
	return &Info{data: data}
}

// ParseMemoryMap returns the usable memory regions described by a multiboot
// information buffer.
func ParseMemoryMap(data []byte) []mem.Region {
	return NewInfo(data).AvailableRegions()
}

// VisitMemRegions will invoke the supplied visitor for each memory region that
// is defined by the multiboot info data that we received from the bootloader.
// Entries with an unknown type are reported as MemReserved.
func (info *Info) VisitMemRegions(visitor MemRegionVisitor) {
	info.visitTags(func(tag tagType, payload []byte) bool {
		if tag != tagMemoryMap || len(payload) < mmapHeaderSize {
			return true
		}

		entrySize := int(binary.LittleEndian.Uint32(payload))
		if entrySize < mmapEntrySize {
			return true
		}

		var entry MemoryMapEntry
		for entries := payload[mmapHeaderSize:]; len(entries) >= mmapEntrySize; {
			entry.PhysAddress = binary.LittleEndian.Uint64(entries[0:])
			entry.Length = binary.LittleEndian.Uint64(entries[8:])
			entry.Type = MemoryEntryType(binary.LittleEndian.Uint32(entries[16:]))

			// Mark unknown entry types as reserved
			if entry.Type == 0 || entry.Type >= memUnknown {
				entry.Type = MemReserved
			}

			if !visitor(&entry) {
				return false
			}

			if entrySize > len(entries) {
				break
			}
			entries = entries[entrySize:]
		}

		return true
	})
}

// AvailableRegions returns the regions flagged as available RAM in the order
// they appear in the memory map. At most MaxMemoryRegions are returned.
func (info *Info) AvailableRegions() []mem.Region {
	regions := make([]mem.Region, 0, MaxMemoryRegions)
	info.VisitMemRegions(func(entry *MemoryMapEntry) bool {
		if entry.Type != MemAvailable {
			return true
		}

		regions = append(regions, mem.Region{Base: entry.PhysAddress, Length: entry.Length})
		return len(regions) < MaxMemoryRegions
	})

	return regions
}

// BootCmdLine returns the command line key-value pairs passed to the
// kernel. Flags without a value (e.g. "nofoo") are stored with themselves as
// the value.
func (info *Info) BootCmdLine() map[string]string {
	if info.cmdLineKV != nil {
		return info.cmdLineKV
	}

	info.cmdLineKV = make(map[string]string)
	if payload := info.findTagByType(tagBootCmdLine); payload != nil {
		for _, pair := range strings.Fields(decodeString(payload)) {
			kv := strings.Split(pair, "=")
			switch len(kv) {
			case 2: // foo=bar
				info.cmdLineKV[kv[0]] = kv[1]
			case 1: // nofoo
				info.cmdLineKV[kv[0]] = kv[0]
			}
		}
	}

	return info.cmdLineKV
}

// BootLoaderName returns the name of the bootloader that started the kernel or
// an empty string if the bootloader did not provide one.
func (info *Info) BootLoaderName() string {
	payload := info.findTagByType(tagBootLoaderName)
	if payload == nil {
		return ""
	}

	return decodeString(payload)
}

// findTagByType returns the payload of the first tag with the requested type
// or nil if the tag is not present.
func (info *Info) findTagByType(wanted tagType) []byte {
	var found []byte
	info.visitTags(func(tag tagType, payload []byte) bool {
		if tag == wanted {
			found = payload
			return false
		}
		return true
	})

	return found
}

// visitTags invokes visitFn with the payload of each tag until the end tag is
// reached or visitFn returns false.
func (info *Info) visitTags(visitFn func(tagType, []byte) bool) {
	for offset := infoHeaderSize; offset+tagHeaderSize <= len(info.data); {
		var (
			tag  = tagType(binary.LittleEndian.Uint32(info.data[offset:]))
			size = int(binary.LittleEndian.Uint32(info.data[offset+4:]))
		)

		if tag == tagMbSectionEnd || size < tagHeaderSize || size > len(info.data)-offset {
			return
		}

		if !visitFn(tag, info.data[offset+tagHeaderSize:offset+size]) {
			return
		}

		// Tags are aligned at 8-byte aligned addresses
		offset += (size + 7) &^ 7
	}
}

// decodeString converts a NUL-terminated bootloader string to UTF-8. The
// multiboot spec does not define an encoding so each byte is treated as a
// Latin-1 code point.
func decodeString(raw []byte) string {
	for i, b := range raw {
		if b == 0 {
			raw = raw[:i]
			break
		}
	}

	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(raw)
	if err != nil {
		return string(raw)
	}
	return string(decoded)
}
