package vfs

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/superboot/superboot/pkg/storage"
)

// DefaultMountDir is where the native driver creates per-device
// mountpoints.
const DefaultMountDir = "/tmp/superboot"

// Kernel filesystem names per probe result.
var kernelFSNames = map[storage.FSType]string{
	storage.FSTypeVFAT:  "vfat",
	storage.FSTypeExt4:  "ext4",
	storage.FSTypeBtrfs: "btrfs",
	storage.FSTypeXFS:   "xfs",
	storage.FSTypeNTFS:  "ntfs3",
}

// NativeDriver mounts partitions read-only through the kernel. It is
// tried first because the kernel's drivers beat the built-in ones
// wherever they are available.
type NativeDriver struct {
	mountDir string
}

func NewNativeDriver(mountDir string) *NativeDriver {
	return &NativeDriver{mountDir: mountDir}
}

func (d *NativeDriver) Name() string { return "native" }

func (d *NativeDriver) Mount(dev storage.BlockDev) (FileSystem, error) {
	f, err := os.Open(dev.Path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", dev.Path, err)
	}
	fstype, err := storage.Probe(f)
	f.Close()
	if err != nil {
		return nil, fmt.Errorf("probing %s: %w", dev.Path, err)
	}
	name, ok := kernelFSNames[fstype]
	if !ok {
		return nil, fmt.Errorf("%s has no recognizable filesystem: %w", dev.Path, storage.ErrUnsupported)
	}

	mountpoint := filepath.Join(d.mountDir, dev.Name)
	if err := os.MkdirAll(mountpoint, 0755); err != nil {
		return nil, fmt.Errorf("creating mountpoint: %w", err)
	}
	if err := unix.Mount(dev.Path, mountpoint, name, unix.MS_RDONLY, ""); err != nil {
		return nil, fmt.Errorf("mounting %s as %s: %w", dev.Path, name, err)
	}
	return &nativeFS{mountpoint: mountpoint}, nil
}

// nativeFS resolves paths under a kernel mountpoint.
type nativeFS struct {
	mountpoint string
}

func (fs *nativeFS) hostPath(path string) string {
	return filepath.Join(fs.mountpoint, filepath.FromSlash(Normalize(path)))
}

func (fs *nativeFS) ReadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(fs.hostPath(path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", path, storage.ErrNotFound)
		}
		return nil, err
	}
	return data, nil
}

func (fs *nativeFS) Exists(path string) bool {
	_, err := os.Stat(fs.hostPath(path))
	return err == nil
}

func (fs *nativeFS) ReadDir(path string) ([]string, error) {
	entries, err := os.ReadDir(fs.hostPath(path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", path, storage.ErrNotFound)
		}
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}

func (fs *nativeFS) Unmount() error {
	return unix.Unmount(fs.mountpoint, 0)
}
