package boot

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestE820ConvertAndMerge(t *testing.T) {
	got := E820FromFirmware([]MemRange{
		{Start: 0x0, End: 0x0FFF, Type: "LoaderCode"},
		{Start: 0x1000, End: 0x1FFF, Type: "ConventionalMemory"},
		{Start: 0x2000, End: 0x2FFF, Type: "ACPIReclaimMemory"},
	})
	require.Equal(t, []E820Entry{
		{Addr: 0x0, Size: 0x2000, Type: E820Ram},
		{Addr: 0x2000, Size: 0x1000, Type: E820ACPI},
	}, got)
}

func TestE820NoMergeAcrossGap(t *testing.T) {
	got := E820FromFirmware([]MemRange{
		{Start: 0x0, End: 0x0FFF, Type: "System RAM"},
		{Start: 0x2000, End: 0x2FFF, Type: "System RAM"},
	})
	require.Len(t, got, 2)
}

func TestE820MergeProperty(t *testing.T) {
	got := E820FromFirmware([]MemRange{
		{Start: 0x0, End: 0x0FFF, Type: "System RAM"},
		{Start: 0x1000, End: 0x1FFF, Type: "System RAM"},
		{Start: 0x2000, End: 0x2FFF, Type: "Reserved"},
		{Start: 0x3000, End: 0x3FFF, Type: "Reserved"},
		{Start: 0x4000, End: 0x4FFF, Type: "System RAM"},
	})
	for i := 1; i < len(got); i++ {
		prev, cur := got[i-1], got[i]
		ok := prev.Type != cur.Type || prev.Addr+prev.Size != cur.Addr
		require.True(t, ok, "entries %d and %d should have been merged", i-1, i)
	}
	require.Len(t, got, 3)
}

func TestE820TypeMapping(t *testing.T) {
	cases := map[string]E820Type{
		"System RAM":                E820Ram,
		"LoaderData":                E820Ram,
		"BootServicesCode":          E820Ram,
		"BootServicesData":          E820Ram,
		"ACPI Tables":               E820ACPI,
		"ACPI Non-volatile Storage": E820NVS,
		"ACPIMemoryNVS":             E820NVS,
		"Reserved":                  E820Reserved,
		"MemoryMappedIO":            E820Reserved,
		"what even is this":         E820Reserved,
	}
	for name, want := range cases {
		require.Equal(t, want, e820TypeFor(name), name)
	}
}

func TestReadFirmwareMap(t *testing.T) {
	dir := t.TempDir()
	write := func(i int, start, end uint64, typ string) {
		sub := filepath.Join(dir, fmt.Sprintf("%d", i))
		require.NoError(t, os.MkdirAll(sub, 0755))
		require.NoError(t, os.WriteFile(filepath.Join(sub, "start"), []byte(fmt.Sprintf("0x%x\n", start)), 0644))
		require.NoError(t, os.WriteFile(filepath.Join(sub, "end"), []byte(fmt.Sprintf("0x%x\n", end)), 0644))
		require.NoError(t, os.WriteFile(filepath.Join(sub, "type"), []byte(typ+"\n"), 0644))
	}
	// Out of address order on purpose; the snapshot sorts.
	write(0, 0x100000, 0x1FFFFF, "System RAM")
	write(1, 0x0, 0xFFF, "Reserved")

	SysfsMemmapPath = dir
	defer func() { SysfsMemmapPath = "/sys/firmware/memmap" }()

	ranges, err := ReadFirmwareMap()
	require.NoError(t, err)
	require.Len(t, ranges, 2)
	require.Equal(t, uint64(0x0), ranges[0].Start)
	require.Equal(t, "Reserved", ranges[0].Type)
	require.Equal(t, uint64(0x100000), ranges[1].Start)
}
