package vfs

import (
	"fmt"
	"os"

	"github.com/superboot/superboot/pkg/ext4"
	"github.com/superboot/superboot/pkg/storage"
)

// Ext4Driver is the fallback when the kernel mount fails, typically in
// stripped-down initramfs environments without the ext4 module. It keeps
// the device open for the lifetime of the mount.
type Ext4Driver struct{}

func NewExt4Driver() *Ext4Driver { return &Ext4Driver{} }

func (d *Ext4Driver) Name() string { return "ext4" }

func (d *Ext4Driver) Mount(dev storage.BlockDev) (FileSystem, error) {
	f, err := os.Open(dev.Path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", dev.Path, err)
	}
	vol, err := ext4.Mount(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &ext4FS{f: f, vol: vol}, nil
}

type ext4FS struct {
	f   *os.File
	vol *ext4.Volume
}

func (fs *ext4FS) ReadFile(path string) ([]byte, error) { return fs.vol.ReadFile(path) }
func (fs *ext4FS) Exists(path string) bool              { return fs.vol.Exists(path) }
func (fs *ext4FS) ReadDir(path string) ([]string, error) {
	return fs.vol.ReadDir(path)
}
func (fs *ext4FS) Unmount() error { return fs.f.Close() }
