// Package ext4 is a read-only ext2/3/4 reader used when the kernel cannot
// mount a partition for us. It handles rev0/1 superblocks and extent-based
// files. Writes, journal replay, encryption, inline data and multi-level
// extent trees are out of scope and reported as unsupported.
package ext4

import (
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	"github.com/superboot/superboot/pkg/storage"
)

const (
	superblockOffset = 1024
	superblockMagic  = 0xEF53

	// Incompat feature bits the reader refuses. 64-bit group descriptors
	// change the descriptor layout; misreading them silently would resolve
	// inodes from garbage offsets.
	incompat64Bit = 0x0080

	groupDescSize = 32
	rootInode     = 2

	inodeFlagExtents = 0x00080000
	extentMagic      = 0xF30A

	// ee_len values past this mark the extent uninitialized.
	extentInitMax = 32768

	modeDirectory = 0x4000
)

// Volume is a mounted ext4 filesystem over a partition reader.
type Volume struct {
	r              io.ReaderAt
	blockSize      uint64
	inodeSize      uint32
	inodesPerGroup uint32
	firstDataBlock uint32
}

// Mount validates the superblock and returns a Volume ready for path
// resolution. Volumes using 64-bit group descriptors are refused.
func Mount(r io.ReaderAt) (*Volume, error) {
	var sb [1024]byte
	if _, err := r.ReadAt(sb[:], superblockOffset); err != nil {
		return nil, fmt.Errorf("reading superblock: %w", err)
	}
	if binary.LittleEndian.Uint16(sb[56:]) != superblockMagic {
		return nil, fmt.Errorf("superblock magic: %w", storage.ErrUnsupported)
	}
	logBlockSize := binary.LittleEndian.Uint32(sb[24:])
	if logBlockSize > 6 {
		return nil, fmt.Errorf("block size 1024<<%d: %w", logBlockSize, storage.ErrVolumeCorrupted)
	}
	v := &Volume{
		r:              r,
		blockSize:      1024 << logBlockSize,
		inodesPerGroup: binary.LittleEndian.Uint32(sb[40:]),
		firstDataBlock: binary.LittleEndian.Uint32(sb[20:]),
	}
	if v.inodesPerGroup == 0 {
		return nil, fmt.Errorf("zero inodes per group: %w", storage.ErrVolumeCorrupted)
	}
	v.inodeSize = 128
	if rev := binary.LittleEndian.Uint32(sb[76:]); rev >= 1 {
		v.inodeSize = uint32(binary.LittleEndian.Uint16(sb[88:]))
		if v.inodeSize < 128 {
			return nil, fmt.Errorf("inode size %d: %w", v.inodeSize, storage.ErrVolumeCorrupted)
		}
	}
	incompat := binary.LittleEndian.Uint32(sb[96:])
	descSize := binary.LittleEndian.Uint16(sb[254:])
	if incompat&incompat64Bit != 0 || descSize > groupDescSize {
		return nil, fmt.Errorf("64-bit group descriptors: %w", storage.ErrUnsupported)
	}
	return v, nil
}

// inode holds the fields the reader needs; the rest of the on-disk inode
// is ignored.
type inode struct {
	mode  uint16
	size  uint64
	flags uint32
	block [60]byte
}

func (v *Volume) readInode(ino uint32) (*inode, error) {
	if ino == 0 {
		return nil, fmt.Errorf("inode 0: %w", storage.ErrInvalidParameter)
	}
	group := (ino - 1) / v.inodesPerGroup
	index := uint64((ino - 1) % v.inodesPerGroup)

	gdOff := uint64(v.firstDataBlock+1)*v.blockSize + uint64(group)*groupDescSize
	var gd [groupDescSize]byte
	if _, err := v.r.ReadAt(gd[:], int64(gdOff)); err != nil {
		return nil, fmt.Errorf("group descriptor %d: %w", group, err)
	}
	inodeTable := uint64(binary.LittleEndian.Uint32(gd[8:]))

	raw := make([]byte, v.inodeSize)
	inodeOff := inodeTable*v.blockSize + index*uint64(v.inodeSize)
	if _, err := v.r.ReadAt(raw, int64(inodeOff)); err != nil {
		return nil, fmt.Errorf("inode %d: %w", ino, err)
	}
	n := &inode{
		mode:  binary.LittleEndian.Uint16(raw[0:]),
		flags: binary.LittleEndian.Uint32(raw[32:]),
	}
	sizeLo := uint64(binary.LittleEndian.Uint32(raw[4:]))
	sizeHi := uint64(binary.LittleEndian.Uint32(raw[108:]))
	n.size = sizeHi<<32 | sizeLo
	copy(n.block[:], raw[40:100])
	return n, nil
}

// data reads the full contents of an extent-based inode. The extent tree
// must be depth 0 (leaves directly in i_block).
func (v *Volume) data(n *inode) ([]byte, error) {
	if n.flags&inodeFlagExtents == 0 {
		return nil, fmt.Errorf("indirect-block file: %w", storage.ErrUnsupported)
	}
	hdr := n.block[:12]
	if binary.LittleEndian.Uint16(hdr[0:]) != extentMagic {
		return nil, fmt.Errorf("extent header magic: %w", storage.ErrVolumeCorrupted)
	}
	entries := binary.LittleEndian.Uint16(hdr[2:])
	depth := binary.LittleEndian.Uint16(hdr[6:])
	if depth > 0 {
		return nil, fmt.Errorf("extent tree depth %d: %w", depth, storage.ErrUnsupported)
	}
	if int(entries) > 4 {
		return nil, fmt.Errorf("%d extent entries in inode: %w", entries, storage.ErrVolumeCorrupted)
	}

	buf := make([]byte, n.size)
	for i := 0; i < int(entries); i++ {
		ext := n.block[12+i*12 : 12+i*12+12]
		logical := uint64(binary.LittleEndian.Uint32(ext[0:]))
		length := uint64(binary.LittleEndian.Uint16(ext[4:]))
		if length > extentInitMax {
			length -= extentInitMax
		}
		physical := uint64(binary.LittleEndian.Uint16(ext[6:]))<<32 |
			uint64(binary.LittleEndian.Uint32(ext[8:]))

		start := logical * v.blockSize
		if start >= n.size {
			continue
		}
		want := length * v.blockSize
		if start+want > n.size {
			want = n.size - start
		}
		if _, err := v.r.ReadAt(buf[start:start+want], int64(physical*v.blockSize)); err != nil {
			return nil, fmt.Errorf("extent at block %d: %w", physical, err)
		}
	}
	return buf, nil
}

// normalize converts both separator styles to "/" and splits into
// components, dropping empties.
func normalize(path string) []string {
	path = strings.ReplaceAll(path, `\`, "/")
	parts := strings.Split(path, "/")
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// resolve walks path from the root directory and returns the inode number.
func (v *Volume) resolve(path string) (uint32, error) {
	ino := uint32(rootInode)
	for _, component := range normalize(path) {
		n, err := v.readInode(ino)
		if err != nil {
			return 0, err
		}
		if n.mode&0xF000 != modeDirectory {
			return 0, fmt.Errorf("%s: not a directory: %w", component, storage.ErrNotFound)
		}
		next, err := v.lookup(n, component)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", component, err)
		}
		ino = next
	}
	return ino, nil
}

// lookup scans a directory inode's records for name.
func (v *Volume) lookup(dir *inode, name string) (uint32, error) {
	data, err := v.data(dir)
	if err != nil {
		return 0, err
	}
	for off := 0; off+8 <= len(data); {
		ino := binary.LittleEndian.Uint32(data[off:])
		recLen := int(binary.LittleEndian.Uint16(data[off+4:]))
		nameLen := int(data[off+6])
		if recLen < 8 || off+recLen > len(data) || off+8+nameLen > len(data) {
			return 0, fmt.Errorf("directory record at %d: %w", off, storage.ErrVolumeCorrupted)
		}
		if ino != 0 && string(data[off+8:off+8+nameLen]) == name {
			return ino, nil
		}
		off += recLen
	}
	return 0, storage.ErrNotFound
}

// ReadFile resolves path and returns the full file contents. Both "/" and
// "\" separators are accepted.
func (v *Volume) ReadFile(path string) ([]byte, error) {
	ino, err := v.resolve(path)
	if err != nil {
		return nil, err
	}
	n, err := v.readInode(ino)
	if err != nil {
		return nil, err
	}
	if n.mode&0xF000 == modeDirectory {
		return nil, fmt.Errorf("%s is a directory: %w", path, storage.ErrInvalidParameter)
	}
	return v.data(n)
}

// Exists reports whether path resolves to any inode.
func (v *Volume) Exists(path string) bool {
	_, err := v.resolve(path)
	return err == nil
}

// ReadDir returns the entry names of the directory at path, excluding "."
// and "..".
func (v *Volume) ReadDir(path string) ([]string, error) {
	ino, err := v.resolve(path)
	if err != nil {
		return nil, err
	}
	n, err := v.readInode(ino)
	if err != nil {
		return nil, err
	}
	if n.mode&0xF000 != modeDirectory {
		return nil, fmt.Errorf("%s: not a directory: %w", path, storage.ErrInvalidParameter)
	}
	data, err := v.data(n)
	if err != nil {
		return nil, err
	}
	var names []string
	for off := 0; off+8 <= len(data); {
		entryIno := binary.LittleEndian.Uint32(data[off:])
		recLen := int(binary.LittleEndian.Uint16(data[off+4:]))
		nameLen := int(data[off+6])
		if recLen < 8 || off+recLen > len(data) || off+8+nameLen > len(data) {
			return nil, fmt.Errorf("directory record at %d: %w", off, storage.ErrVolumeCorrupted)
		}
		if entryIno != 0 {
			name := string(data[off+8 : off+8+nameLen])
			if name != "." && name != ".." {
				names = append(names, name)
			}
		}
		off += recLen
	}
	return names, nil
}
