package boot

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// E820 memory types.
type E820Type uint32

const (
	E820Ram      E820Type = 1
	E820Reserved E820Type = 2
	E820ACPI     E820Type = 3
	E820NVS      E820Type = 4
)

// E820Entry is one range of the legacy BIOS memory map.
type E820Entry struct {
	Addr uint64
	Size uint64
	Type E820Type
}

// MemRange is one firmware memory-map entry. End is inclusive, the way
// the kernel exports it.
type MemRange struct {
	Start uint64
	End   uint64
	Type  string
}

// SysfsMemmapPath is the firmware memory map the kernel exposes.
// Overridable in tests.
var SysfsMemmapPath = "/sys/firmware/memmap"

// ReadFirmwareMap snapshots the firmware memory map. It is read exactly
// once per boot attempt; the caller converts and merges without touching
// the firmware again.
func ReadFirmwareMap() ([]MemRange, error) {
	entries, err := os.ReadDir(SysfsMemmapPath)
	if err != nil {
		return nil, fmt.Errorf("cannot list %s: %w", SysfsMemmapPath, err)
	}
	var ranges []MemRange
	for _, e := range entries {
		dir := filepath.Join(SysfsMemmapPath, e.Name())
		start, err1 := readHex(filepath.Join(dir, "start"))
		end, err2 := readHex(filepath.Join(dir, "end"))
		typ, err3 := os.ReadFile(filepath.Join(dir, "type"))
		if err1 != nil || err2 != nil || err3 != nil {
			continue
		}
		ranges = append(ranges, MemRange{
			Start: start,
			End:   end,
			Type:  strings.TrimSpace(string(typ)),
		})
	}
	sort.SliceStable(ranges, func(i, j int) bool { return ranges[i].Start < ranges[j].Start })
	return ranges, nil
}

func readHex(path string) (uint64, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	s := strings.TrimPrefix(strings.TrimSpace(string(raw)), "0x")
	return strconv.ParseUint(s, 16, 64)
}

// e820TypeFor maps a firmware range type to its E820 class. Both the
// kernel's sysfs names and the EFI memory type names are accepted;
// anything unrecognized is reserved.
func e820TypeFor(name string) E820Type {
	switch name {
	case "System RAM",
		"LoaderCode", "LoaderData",
		"BootServicesCode", "BootServicesData",
		"ConventionalMemory":
		return E820Ram
	case "ACPI Tables", "ACPIReclaimMemory":
		return E820ACPI
	case "ACPI Non-volatile Storage", "ACPIMemoryNVS":
		return E820NVS
	}
	return E820Reserved
}

// E820FromFirmware converts a firmware map snapshot to E820 entries,
// merging an entry into its predecessor when the type matches and the
// ranges are contiguous.
func E820FromFirmware(ranges []MemRange) []E820Entry {
	var out []E820Entry
	for _, r := range ranges {
		if r.End < r.Start {
			continue
		}
		entry := E820Entry{
			Addr: r.Start,
			Size: r.End - r.Start + 1,
			Type: e820TypeFor(r.Type),
		}
		if n := len(out); n > 0 &&
			out[n-1].Type == entry.Type &&
			out[n-1].Addr+out[n-1].Size == entry.Addr {
			out[n-1].Size += entry.Size
			continue
		}
		out = append(out, entry)
	}
	return out
}
