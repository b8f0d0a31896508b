// Package storage enumerates block devices through sysfs and identifies
// the filesystem on a partition by its superblock.
package storage

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Overridable in tests.
var (
	// LinuxMountsPath is the Linux default mounts file
	LinuxMountsPath = "/proc/mounts"
	// SysfsBlockPath is the Linux default block class directory
	SysfsBlockPath = "/sys/class/block"
	// DevDir is where device nodes live
	DevDir = "/dev"
)

// BlockDev is one entry from the block class.
type BlockDev struct {
	// Name is the kernel name, e.g. "sda2".
	Name string
	// Path is the device node, e.g. "/dev/sda2".
	Path string
	// Partition is true for logical partitions, false for whole disks.
	Partition bool
	// Size in bytes. Zero for removable devices with no medium.
	Size uint64
}

// GetBlockDevices lists every device in the block class, in sysfs
// enumeration order. Entries that cannot be stat-ed are skipped, not
// fatal.
func GetBlockDevices() ([]BlockDev, error) {
	entries, err := os.ReadDir(SysfsBlockPath)
	if err != nil {
		return nil, fmt.Errorf("cannot list %s: %w", SysfsBlockPath, err)
	}
	devs := make([]BlockDev, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		sysdir := filepath.Join(SysfsBlockPath, name)
		dev := BlockDev{
			Name: name,
			Path: filepath.Join(DevDir, name),
		}
		if _, err := os.Stat(filepath.Join(sysdir, "partition")); err == nil {
			dev.Partition = true
		}
		if raw, err := os.ReadFile(filepath.Join(sysdir, "size")); err == nil {
			if sectors, err := strconv.ParseUint(strings.TrimSpace(string(raw)), 10, 64); err == nil {
				dev.Size = sectors * 512
			}
		}
		devs = append(devs, dev)
	}
	return devs, nil
}

// GetMountpointByDevice gets the mountpoint of a device
// by parsing the mounts file
func GetMountpointByDevice(devicePath string) (*string, error) {
	file, err := os.Open(LinuxMountsPath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		deviceInfo := strings.Fields(scanner.Text())
		if len(deviceInfo) >= 2 && deviceInfo[0] == devicePath {
			return &deviceInfo[1], nil
		}
	}

	return nil, fmt.Errorf("mountpoint not found for device %s", devicePath)
}
