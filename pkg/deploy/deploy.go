// Package deploy installs the running binary onto the EFI system
// partition and registers it with the firmware boot manager.
package deploy

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	diskfs "github.com/diskfs/go-diskfs"
	"github.com/diskfs/go-diskfs/partition/gpt"
	"github.com/ecks/uefi/efi/efivario"
	"github.com/google/uuid"
	logger "github.com/z46-dev/go-logger"
	"golang.org/x/sys/unix"

	"github.com/superboot/superboot/pkg/efivars"
	"github.com/superboot/superboot/pkg/storage"
)

var log = logger.NewLogger().SetPrefix("[DPLY]", logger.BoldGreen)

// espTypeGUID is the GPT partition type of every EFI system partition.
var espTypeGUID = uuid.MustParse("C12A7328-F81F-11D2-BA4B-00A0C93EC93B")

const (
	// PayloadDir is where the binary lands on the ESP.
	PayloadDir = `\EFI\superboot`
	// PayloadName is the installed binary's file name.
	PayloadName = "superboot.efi"
	// loadOptionTitle names the registered Boot#### entry.
	loadOptionTitle = "SuperBoot"
)

// PayloadPath is the backslash path firmware uses to start the payload.
func PayloadPath() string {
	return PayloadDir + `\` + PayloadName
}

type Options struct {
	// DryRun finds the ESP and reports what would happen, writing
	// nothing.
	DryRun bool
}

// isESP reports whether a GPT partition carries the ESP type GUID.
func isESP(p *gpt.Partition) bool {
	id, err := uuid.Parse(string(p.Type))
	if err != nil {
		return false
	}
	return id == espTypeGUID
}

// findESPIndex returns the 1-based index of the first EFI system
// partition in the table, or 0 when there is none.
func findESPIndex(table *gpt.Table) int {
	for i, p := range table.Partitions {
		if p != nil && isESP(p) {
			return i + 1
		}
	}
	return 0
}

// partitionDevPath maps a whole-disk device path and a 1-based
// partition number to the partition's device node. Disks whose name
// ends in a digit separate the number with "p", the nvme convention.
func partitionDevPath(diskPath string, index int) string {
	name := filepath.Base(diskPath)
	sep := ""
	if len(name) > 0 && name[len(name)-1] >= '0' && name[len(name)-1] <= '9' {
		sep = "p"
	}
	return fmt.Sprintf("%s%s%d", diskPath, sep, index)
}

// FindESP scans every whole disk for a GPT EFI system partition and
// returns the partition's device path.
func FindESP() (string, error) {
	devices, err := storage.GetBlockDevices()
	if err != nil {
		return "", err
	}
	for _, dev := range devices {
		if dev.Partition {
			continue
		}
		disk, err := diskfs.Open(dev.Path, diskfs.WithOpenMode(diskfs.ReadOnly))
		if err != nil {
			log.Warningf("opening %s: %v\n", dev.Path, err)
			continue
		}
		table, err := disk.GetPartitionTable()
		disk.Close()
		if err != nil {
			continue
		}
		gptTable, ok := table.(*gpt.Table)
		if !ok {
			continue
		}
		if idx := findESPIndex(gptTable); idx > 0 {
			return partitionDevPath(dev.Path, idx), nil
		}
	}
	return "", fmt.Errorf("no EFI system partition: %w", storage.ErrNotFound)
}

// Install copies binPath onto the ESP at espDev and registers a
// Boot#### load option first in BootOrder. The ESP is mounted
// read-write for the copy and released before the variables change.
func Install(ctx efivario.Context, binPath, espDev string, opts Options) error {
	if opts.DryRun {
		log.Statusf("dry run: would install %s to %s%s\n", binPath, espDev, PayloadPath())
		return nil
	}
	if err := copyToESP(binPath, espDev); err != nil {
		return err
	}
	if ctx == nil {
		ctx = efivario.NewDefaultContext()
	}
	slot, err := efivars.FreeBootSlot(ctx)
	if err != nil {
		return fmt.Errorf("finding a free load option: %w", err)
	}
	if err := efivars.WriteLoadOption(ctx, slot, loadOptionTitle, PayloadPath()); err != nil {
		return fmt.Errorf("writing %s: %w", efivars.BootVarName(slot), err)
	}
	if err := efivars.PrependBootOrder(ctx, slot); err != nil {
		return fmt.Errorf("updating BootOrder: %w", err)
	}
	log.Statusf("%s installed as %s, first in BootOrder\n", PayloadName, efivars.BootVarName(slot))
	return nil
}

func copyToESP(binPath, espDev string) error {
	mountDir, err := os.MkdirTemp("", "superboot-deploy")
	if err != nil {
		return err
	}
	defer os.Remove(mountDir)
	if err := unix.Mount(espDev, mountDir, "vfat", 0, ""); err != nil {
		return fmt.Errorf("mounting %s: %w", espDev, err)
	}
	defer unix.Unmount(mountDir, 0)

	rel := strings.ReplaceAll(PayloadDir, `\`, "/")
	destDir := filepath.Join(mountDir, rel)
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return err
	}
	src, err := os.Open(binPath)
	if err != nil {
		return err
	}
	defer src.Close()
	dest, err := os.Create(filepath.Join(destDir, PayloadName))
	if err != nil {
		return err
	}
	if _, err := io.Copy(dest, src); err != nil {
		dest.Close()
		return err
	}
	return dest.Close()
}
