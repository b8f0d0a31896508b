// Package boot stages Linux kernels and EFI payloads for handoff. The
// x86 boot protocol artifacts here are byte-exact: the setup header sits
// at 0x1F1 of the image, boot_params is 4096 bytes, the E820 table lives
// at 0x2D0 with its count at 0x1E8.
package boot

import (
	"encoding/binary"
	"fmt"

	"github.com/superboot/superboot/pkg/storage"
)

// Setup header and boot_params offsets (Linux x86 boot protocol).
const (
	setupHeaderOffset = 0x1F1
	setupHeaderEnd    = 0x268
	// MinKernelSize is the smallest image that can carry a setup header.
	MinKernelSize = 0x260

	offSetupSects     = 0x1F1
	offHeaderMagic    = 0x202
	offVersion        = 0x206
	offTypeOfLoader   = 0x210
	offLoadFlags      = 0x211
	offCode32Start    = 0x214
	offRamdiskImage   = 0x218
	offRamdiskSize    = 0x21C
	offHeapEndPtr     = 0x224
	offCmdLinePtr     = 0x228
	offInitrdAddrMax  = 0x22C
	offRelocatable    = 0x234
	offCmdlineSize    = 0x238
	offPrefAddress    = 0x258
	offInitSize       = 0x260
	offHandoverOffset = 0x264

	offE820Entries = 0x1E8
	offE820Table   = 0x2D0

	headerMagic = 0x53726448 // "HdrS"

	// Protocol 2.11 introduced the EFI handover entry point.
	handoverMinVersion = 0x020B

	typeOfLoaderUndefined = 0xFF
	loadFlagsCanUseHeap   = 0x80
	heapEndDefault        = 0xFE00

	// BootParamsSize is fixed by the protocol.
	BootParamsSize = 4096

	e820EntrySize = 20
	e820MaxInline = 128
)

// SetupHeader is the parsed view of a bzImage's boot protocol header.
// Raw keeps the original bytes so copying into boot_params stays
// bit-identical.
type SetupHeader struct {
	Raw []byte

	SetupSects     uint8
	Version        uint16
	Code32Start    uint32
	InitrdAddrMax  uint32
	Relocatable    bool
	CmdlineSize    uint32
	PrefAddress    uint64
	InitSize       uint32
	HandoverOffset uint32
}

// ParseSetupHeader validates and decodes the header embedded in a kernel
// image. Images smaller than MinKernelSize or without the HdrS magic are
// rejected.
func ParseSetupHeader(image []byte) (*SetupHeader, error) {
	if len(image) < MinKernelSize {
		return nil, fmt.Errorf("kernel image is %d bytes, need at least %#x: %w",
			len(image), MinKernelSize, storage.ErrInvalidParameter)
	}
	if binary.LittleEndian.Uint32(image[offHeaderMagic:]) != headerMagic {
		return nil, fmt.Errorf("kernel image has no HdrS magic: %w", storage.ErrInvalidParameter)
	}
	end := setupHeaderEnd
	if len(image) < end {
		end = len(image)
	}
	h := &SetupHeader{
		Raw:           append([]byte(nil), image[setupHeaderOffset:end]...),
		SetupSects:    image[offSetupSects],
		Version:       binary.LittleEndian.Uint16(image[offVersion:]),
		Code32Start:   binary.LittleEndian.Uint32(image[offCode32Start:]),
		InitrdAddrMax: binary.LittleEndian.Uint32(image[offInitrdAddrMax:]),
		Relocatable:   image[offRelocatable] != 0,
		CmdlineSize:   binary.LittleEndian.Uint32(image[offCmdlineSize:]),
		PrefAddress:   binary.LittleEndian.Uint64(image[offPrefAddress:]),
	}
	if len(image) >= offHandoverOffset+4 {
		h.HandoverOffset = binary.LittleEndian.Uint32(image[offHandoverOffset:])
		h.InitSize = binary.LittleEndian.Uint32(image[offInitSize:])
	}
	return h, nil
}

// SetupSize is the byte length of the real-mode portion; the
// protected-mode kernel starts right after it.
func (h *SetupHeader) SetupSize() int {
	sects := int(h.SetupSects)
	if sects == 0 {
		sects = 4
	}
	return (sects + 1) * 512
}

// SupportsHandover reports whether the image has an EFI handover entry.
func (h *SetupHeader) SupportsHandover() bool {
	return h.Version >= handoverMinVersion && h.HandoverOffset != 0
}

// Destination is where the protected-mode kernel wants to live.
func (h *SetupHeader) Destination() uint64 {
	if h.PrefAddress != 0 {
		return h.PrefAddress
	}
	return 0x100000
}

// BootParams is the zero page handed to the kernel.
type BootParams struct {
	data [BootParamsSize]byte
}

// NewBootParams builds a zeroed boot_params carrying the image's setup
// header plus the loader identification fields.
func NewBootParams(h *SetupHeader) *BootParams {
	p := &BootParams{}
	copy(p.data[setupHeaderOffset:], h.Raw)
	p.data[offTypeOfLoader] = typeOfLoaderUndefined
	p.data[offLoadFlags] |= loadFlagsCanUseHeap
	binary.LittleEndian.PutUint16(p.data[offHeapEndPtr:], heapEndDefault)
	return p
}

// Header returns the setup header region for inspection.
func (p *BootParams) Header() []byte {
	return p.data[setupHeaderOffset:setupHeaderEnd]
}

// SetCmdlinePtr stores the 32-bit physical address of the command line.
func (p *BootParams) SetCmdlinePtr(addr uint32) {
	binary.LittleEndian.PutUint32(p.data[offCmdLinePtr:], addr)
}

// SetRamdisk stores the initrd region.
func (p *BootParams) SetRamdisk(addr, size uint32) {
	binary.LittleEndian.PutUint32(p.data[offRamdiskImage:], addr)
	binary.LittleEndian.PutUint32(p.data[offRamdiskSize:], size)
}

// SetCode32Start records where the protected-mode kernel was placed.
func (p *BootParams) SetCode32Start(addr uint32) {
	binary.LittleEndian.PutUint32(p.data[offCode32Start:], addr)
}

// SetE820 writes the memory map. Entries beyond the inline table
// capacity are refused; callers merge first, which keeps real maps well
// under the cap.
func (p *BootParams) SetE820(entries []E820Entry) error {
	if len(entries) > e820MaxInline {
		return fmt.Errorf("%d E820 entries exceed the inline table: %w",
			len(entries), storage.ErrOutOfResources)
	}
	for i, e := range entries {
		off := offE820Table + i*e820EntrySize
		binary.LittleEndian.PutUint64(p.data[off:], e.Addr)
		binary.LittleEndian.PutUint64(p.data[off+8:], e.Size)
		binary.LittleEndian.PutUint32(p.data[off+16:], uint32(e.Type))
	}
	p.data[offE820Entries] = byte(len(entries))
	return nil
}

// E820Count returns the stored entry count.
func (p *BootParams) E820Count() int {
	return int(p.data[offE820Entries])
}

// Bytes returns the full 4096-byte zero page.
func (p *BootParams) Bytes() []byte {
	return p.data[:]
}
