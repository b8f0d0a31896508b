package checker

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/superboot/superboot/pkg/storage"
)

// EfivarfsPath and KexecLoadedPath are package variables so tests can
// point them at fixtures.
var (
	EfivarfsPath    = "/sys/firmware/efi/efivars"
	KexecLoadedPath = "/sys/kernel/kexec_loaded"
)

func init() {
	registerCheckFun(SysfsBlockPresent)
	registerCheckFun(EfivarfsWritable)
	registerCheckFun(KexecAvailable)
	registerCheckFun(MountDirUsable)
}

// SysfsBlockPresent verifies block devices can be enumerated at all.
func SysfsBlockPresent(args CheckArgs) error {
	fi, err := os.Stat(storage.SysfsBlockPath)
	if err != nil {
		return fmt.Errorf("%s: %w", storage.SysfsBlockPath, err)
	}
	if !fi.IsDir() {
		return fmt.Errorf("%s is not a directory", storage.SysfsBlockPath)
	}
	return nil
}

// EfivarfsWritable verifies the chain-loader can write boot variables.
func EfivarfsWritable(args CheckArgs) error {
	if err := unix.Access(EfivarfsPath, unix.W_OK); err != nil {
		return fmt.Errorf("%s not writable: %w", EfivarfsPath, err)
	}
	return nil
}

// KexecAvailable verifies the running kernel was built with kexec.
func KexecAvailable(args CheckArgs) error {
	if _, err := os.Stat(KexecLoadedPath); err != nil {
		return fmt.Errorf("%s: %w", KexecLoadedPath, err)
	}
	return nil
}

// MountDirUsable verifies the mount root named by args["dir"] can be
// created and written.
func MountDirUsable(args CheckArgs) error {
	dir := args["dir"]
	if dir == "" {
		return fmt.Errorf("no dir argument")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	probe := filepath.Join(dir, ".probe")
	if err := os.WriteFile(probe, nil, 0644); err != nil {
		return err
	}
	return os.Remove(probe)
}

// BootChecklist is the standard preflight set for the given mount root.
// Only missing sysfs stops the run, the rest degrade single features.
func BootChecklist(mountDir string) []Check {
	return []Check{
		{
			Description:   "block devices visible in sysfs",
			CheckFunName:  "SysfsBlockPresent",
			StopOnFailure: true,
		},
		{
			Description:  "efivarfs writable for chain-loading",
			CheckFunName: "EfivarfsWritable",
		},
		{
			Description:  "kexec available for Linux handoff",
			CheckFunName: "KexecAvailable",
		},
		{
			Description:  "mount root usable",
			CheckFunName: "MountDirUsable",
			CheckFunArgs: CheckArgs{"dir": mountDir},
		},
	}
}
