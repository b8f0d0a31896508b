// Package vfs gives the scanner and boot engine one way to read files from
// any partition. A partition is claimed by the first driver that can mount
// it: the native driver asks the kernel, the ext4 driver reads the device
// directly when the kernel cannot help.
package vfs

import (
	"fmt"
	"strings"

	logger "github.com/z46-dev/go-logger"

	"github.com/superboot/superboot/pkg/storage"
)

// MaxMounts caps the mount table. Further mounts fail, existing ones stay.
const MaxMounts = 64

var log = logger.NewLogger().SetPrefix("[VFS]", logger.BoldBlue)

// FileSystem is one mounted partition. Paths accept "/" or "\" separators
// and are absolute from the partition root.
type FileSystem interface {
	ReadFile(path string) ([]byte, error)
	Exists(path string) bool
	ReadDir(path string) ([]string, error)
	Unmount() error
}

// Driver mounts a partition it recognizes, or reports that it does not
// claim it with an error wrapping storage.ErrUnsupported.
type Driver interface {
	Name() string
	Mount(dev storage.BlockDev) (FileSystem, error)
}

type mount struct {
	dev    storage.BlockDev
	driver string
	fs     FileSystem
}

// VFS dispatches file reads to per-partition mounts, created lazily and
// retained for the run.
type VFS struct {
	drivers []Driver
	mounts  map[string]*mount
}

// New returns a dispatcher trying drivers in the given order. With no
// drivers, the defaults are the native kernel mount first and the built-in
// ext4 reader second.
func New(drivers ...Driver) *VFS {
	if len(drivers) == 0 {
		drivers = []Driver{NewNativeDriver(DefaultMountDir), NewExt4Driver()}
	}
	return &VFS{
		drivers: drivers,
		mounts:  make(map[string]*mount),
	}
}

// Normalize converts backslash-separated paths to the slash form drivers
// resolve internally.
func Normalize(path string) string {
	path = strings.ReplaceAll(path, `\`, "/")
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return path
}

// OpenDevice mounts the partition if it is not already mounted. Idempotent;
// the first successful driver wins.
func (v *VFS) OpenDevice(dev storage.BlockDev) error {
	if _, ok := v.mounts[dev.Path]; ok {
		return nil
	}
	if len(v.mounts) >= MaxMounts {
		return fmt.Errorf("mount table full at %d entries: %w", MaxMounts, storage.ErrOutOfResources)
	}
	for _, d := range v.drivers {
		fs, err := d.Mount(dev)
		if err != nil {
			log.Basicf("%s: driver %s: %v\n", dev.Path, d.Name(), err)
			continue
		}
		log.Statusf("%s mounted via %s\n", dev.Path, d.Name())
		v.mounts[dev.Path] = &mount{dev: dev, driver: d.Name(), fs: fs}
		return nil
	}
	return fmt.Errorf("no driver claims %s: %w", dev.Path, storage.ErrUnsupported)
}

func (v *VFS) fs(device string) (FileSystem, error) {
	m, ok := v.mounts[device]
	if !ok {
		return nil, fmt.Errorf("%s not mounted: %w", device, storage.ErrNotFound)
	}
	return m.fs, nil
}

// ReadFile returns the full contents of path on the mounted device.
func (v *VFS) ReadFile(device, path string) ([]byte, error) {
	fs, err := v.fs(device)
	if err != nil {
		return nil, err
	}
	return fs.ReadFile(path)
}

// FileExists reports whether path exists on the mounted device. Cheap
// enough for config probing; built-in drivers resolve without reading data.
func (v *VFS) FileExists(device, path string) bool {
	fs, err := v.fs(device)
	if err != nil {
		return false
	}
	return fs.Exists(path)
}

// ReadDir lists the names in a directory on the mounted device.
func (v *VFS) ReadDir(device, path string) ([]string, error) {
	fs, err := v.fs(device)
	if err != nil {
		return nil, err
	}
	return fs.ReadDir(path)
}

// Mounted reports whether device has a live mount.
func (v *VFS) Mounted(device string) bool {
	_, ok := v.mounts[device]
	return ok
}

// Shutdown unmounts everything. Unmount failures are logged, not returned;
// there is nothing a caller can do about them at exit.
func (v *VFS) Shutdown() {
	for path, m := range v.mounts {
		if err := m.fs.Unmount(); err != nil {
			log.Warningf("unmounting %s: %v\n", path, err)
		}
		delete(v.mounts, path)
	}
}
