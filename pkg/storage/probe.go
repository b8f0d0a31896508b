package storage

import (
	"encoding/binary"
	"errors"
	"io"
)

// FSType is the result of a superblock probe.
type FSType int

// Filesystems the probe can name. Only ext4 has a built-in reader; the
// others are identified so the mount dispatcher can hand them to the
// kernel.
const (
	FSTypeUnknown FSType = iota
	FSTypeExt4
	FSTypeBtrfs
	FSTypeXFS
	FSTypeNTFS
	FSTypeVFAT
)

func (t FSType) String() string {
	switch t {
	case FSTypeExt4:
		return "ext4"
	case FSTypeBtrfs:
		return "btrfs"
	case FSTypeXFS:
		return "xfs"
	case FSTypeNTFS:
		return "ntfs"
	case FSTypeVFAT:
		return "vfat"
	}
	return "unknown"
}

// Superblock locations and magics. Offsets are absolute from the start
// of the partition.
const (
	ext4SuperOffset  = 1024
	ext4MagicOffset  = ext4SuperOffset + 56
	ext4Magic        = 0xEF53
	btrfsSuperOffset = 0x10000
	btrfsMagicOffset = btrfsSuperOffset + 0x40
	btrfsMagic       = 0x4D5F53665248425F // "_BHRfS_M"
	xfsMagic         = 0x58465342         // "XFSB", big-endian on disk
)

// Probe identifies the filesystem on a partition by reading its
// superblock. A partition that is too small for a probe's superblock, or
// whose superblock carries no known magic, yields FSTypeUnknown rather
// than an error; only I/O failures are reported.
func Probe(r io.ReaderAt) (FSType, error) {
	// Cheapest first: everything below 64 KiB before the btrfs probe.
	probes := []func(io.ReaderAt) (bool, error){
		probeExt4,
		probeXFS,
		probeNTFS,
		probeVFAT,
		probeBtrfs,
	}
	types := []FSType{FSTypeExt4, FSTypeXFS, FSTypeNTFS, FSTypeVFAT, FSTypeBtrfs}
	for i, p := range probes {
		ok, err := p(r)
		if err != nil {
			return FSTypeUnknown, err
		}
		if ok {
			return types[i], nil
		}
	}
	return FSTypeUnknown, nil
}

// readAt reads len(buf) bytes at off, treating reads past the end of the
// partition as a failed probe rather than an error.
func readAt(r io.ReaderAt, buf []byte, off int64) (bool, error) {
	_, err := r.ReadAt(buf, off)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func probeExt4(r io.ReaderAt) (bool, error) {
	var buf [2]byte
	ok, err := readAt(r, buf[:], ext4MagicOffset)
	if !ok || err != nil {
		return false, err
	}
	return binary.LittleEndian.Uint16(buf[:]) == ext4Magic, nil
}

func probeBtrfs(r io.ReaderAt) (bool, error) {
	var buf [8]byte
	ok, err := readAt(r, buf[:], btrfsMagicOffset)
	if !ok || err != nil {
		return false, err
	}
	return binary.LittleEndian.Uint64(buf[:]) == btrfsMagic, nil
}

func probeXFS(r io.ReaderAt) (bool, error) {
	var buf [4]byte
	ok, err := readAt(r, buf[:], 0)
	if !ok || err != nil {
		return false, err
	}
	return binary.BigEndian.Uint32(buf[:]) == xfsMagic, nil
}

func probeNTFS(r io.ReaderAt) (bool, error) {
	var buf [8]byte
	ok, err := readAt(r, buf[:], 3)
	if !ok || err != nil {
		return false, err
	}
	return string(buf[:]) == "NTFS    ", nil
}

// probeVFAT checks the boot sector signature and then the FAT32 or
// FAT12/16 type string. The type string alone is not authoritative but
// combined with the signature it is what everyone keys on.
func probeVFAT(r io.ReaderAt) (bool, error) {
	var sector [512]byte
	ok, err := readAt(r, sector[:], 0)
	if !ok || err != nil {
		return false, err
	}
	if sector[510] != 0x55 || sector[511] != 0xAA {
		return false, nil
	}
	if string(sector[82:87]) == "FAT32" {
		return true, nil
	}
	if string(sector[54:58]) == "FAT1" {
		return true, nil
	}
	return false, nil
}
