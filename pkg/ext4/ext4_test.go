package ext4

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/superboot/superboot/pkg/storage"
)

// The test image is a handcrafted 16 KiB volume with 1 KiB blocks:
// superblock in block 1, group descriptors in block 2, inode table in
// block 5, root directory data in block 10, /boot in block 11, and the
// contents of /boot/vmlinuz in blocks 12..13.
const (
	imgBlocks    = 16
	imgBlockSize = 1024

	inoBoot    = 11
	inoVmlinuz = 12
)

func le16(b []byte, off int, v uint16) { binary.LittleEndian.PutUint16(b[off:], v) }
func le32(b []byte, off int, v uint32) { binary.LittleEndian.PutUint32(b[off:], v) }

func putSuperblock(img []byte, incompat uint32) {
	sb := img[1024:]
	le32(sb, 20, 1)       // s_first_data_block
	le32(sb, 24, 0)       // s_log_block_size, 1024 bytes
	le32(sb, 40, 16)      // s_inodes_per_group
	le16(sb, 56, 0xEF53)  // s_magic
	le32(sb, 76, 1)       // s_rev_level
	le16(sb, 88, 128)     // s_inode_size
	le32(sb, 96, incompat)
}

// putInode writes inode ino with a single depth-0 extent run.
func putInode(img []byte, ino uint32, mode uint16, size uint64, startBlock uint32, blocks uint16) {
	raw := img[5*imgBlockSize+(ino-1)*128:]
	le16(raw, 0, mode)
	le32(raw, 4, uint32(size))
	le32(raw, 32, inodeFlagExtents)
	le32(raw, 108, uint32(size>>32))
	eb := raw[40:]
	le16(eb, 0, extentMagic)
	le16(eb, 2, 1) // entries
	le16(eb, 6, 0) // depth
	le32(eb, 12, 0)
	le16(eb, 16, blocks)
	le16(eb, 18, 0)
	le32(eb, 20, startBlock)
}

// putDirent appends one directory record; last stretches rec_len to the
// end of the block.
func putDirent(block []byte, off int, ino uint32, name string, last bool) int {
	recLen := 8 + (len(name)+3)/4*4
	if last {
		recLen = len(block) - off
	}
	le32(block, off, ino)
	le16(block, off+4, uint16(recLen))
	block[off+6] = byte(len(name))
	block[off+7] = 2
	copy(block[off+8:], name)
	return off + recLen
}

func buildImage(t *testing.T) []byte {
	t.Helper()
	img := make([]byte, imgBlocks*imgBlockSize)
	putSuperblock(img, 0x40) // INCOMPAT_EXTENTS only

	// Group descriptor 0: inode table in block 5.
	le32(img[2*imgBlockSize:], 8, 5)

	putInode(img, 2, modeDirectory|0755, imgBlockSize, 10, 1)
	putInode(img, inoBoot, modeDirectory|0755, imgBlockSize, 11, 1)

	root := img[10*imgBlockSize : 11*imgBlockSize]
	off := putDirent(root, 0, 2, ".", false)
	off = putDirent(root, off, 2, "..", false)
	putDirent(root, off, inoBoot, "boot", true)

	boot := img[11*imgBlockSize : 12*imgBlockSize]
	off = putDirent(boot, 0, inoBoot, ".", false)
	off = putDirent(boot, off, 2, "..", false)
	off = putDirent(boot, off, inoVmlinuz, "vmlinuz", false)
	putDirent(boot, off, 0, "deleted", true) // unlinked entry, must be skipped

	// 1500-byte file spanning two blocks; the tail of block 13 is junk the
	// reader must not return.
	content := bytes.Repeat([]byte("kernel-bytes-"), 116)[:1500]
	copy(img[12*imgBlockSize:], content)
	copy(img[12*imgBlockSize+1500:], bytes.Repeat([]byte{0xEE}, 2*imgBlockSize-1500))
	putInode(img, inoVmlinuz, 0x8000|0644, 1500, 12, 2)

	return img
}

func mountImage(t *testing.T) *Volume {
	t.Helper()
	v, err := Mount(bytes.NewReader(buildImage(t)))
	require.NoError(t, err)
	return v
}

func TestMountRejectsBadMagic(t *testing.T) {
	img := buildImage(t)
	le16(img[1024:], 56, 0xBEEF)
	_, err := Mount(bytes.NewReader(img))
	require.ErrorIs(t, err, storage.ErrUnsupported)
}

func TestMountRejects64Bit(t *testing.T) {
	img := buildImage(t)
	putSuperblock(img, 0x40|0x80)
	_, err := Mount(bytes.NewReader(img))
	require.ErrorIs(t, err, storage.ErrUnsupported)
}

func TestReadFile(t *testing.T) {
	v := mountImage(t)
	data, err := v.ReadFile(`\boot\vmlinuz`)
	require.NoError(t, err)
	require.Len(t, data, 1500)
	require.Equal(t, byte('k'), data[0])
	require.NotContains(t, string(data), "\xEE")
}

func TestReadFileForwardSlashes(t *testing.T) {
	v := mountImage(t)
	data, err := v.ReadFile("/boot/vmlinuz")
	require.NoError(t, err)
	require.Len(t, data, 1500)
}

func TestReadFileNotFound(t *testing.T) {
	v := mountImage(t)
	_, err := v.ReadFile(`\boot\nothing`)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestReadFileThroughNonDirectory(t *testing.T) {
	v := mountImage(t)
	_, err := v.ReadFile(`\boot\vmlinuz\deeper`)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestReadFileOnDirectory(t *testing.T) {
	v := mountImage(t)
	_, err := v.ReadFile(`\boot`)
	require.ErrorIs(t, err, storage.ErrInvalidParameter)
}

func TestExists(t *testing.T) {
	v := mountImage(t)
	require.True(t, v.Exists(`\boot\vmlinuz`))
	require.True(t, v.Exists(`\boot`))
	require.False(t, v.Exists(`\etc\fstab`))
}

func TestReadDir(t *testing.T) {
	v := mountImage(t)
	names, err := v.ReadDir(`\boot`)
	require.NoError(t, err)
	require.Equal(t, []string{"vmlinuz"}, names)

	names, err = v.ReadDir(`\`)
	require.NoError(t, err)
	require.Equal(t, []string{"boot"}, names)
}

func TestNonExtentFileUnsupported(t *testing.T) {
	img := buildImage(t)
	// Clear the extents flag on vmlinuz.
	le32(img[5*imgBlockSize+(inoVmlinuz-1)*128:], 32, 0)
	v, err := Mount(bytes.NewReader(img))
	require.NoError(t, err)
	_, err = v.ReadFile(`\boot\vmlinuz`)
	require.ErrorIs(t, err, storage.ErrUnsupported)
}

func TestExtentDepthUnsupported(t *testing.T) {
	img := buildImage(t)
	le16(img[5*imgBlockSize+(inoVmlinuz-1)*128+40:], 6, 1)
	v, err := Mount(bytes.NewReader(img))
	require.NoError(t, err)
	_, err = v.ReadFile(`\boot\vmlinuz`)
	require.ErrorIs(t, err, storage.ErrUnsupported)
}

func TestExtentMagicCorrupted(t *testing.T) {
	img := buildImage(t)
	le16(img[5*imgBlockSize+(inoVmlinuz-1)*128+40:], 0, 0x1234)
	v, err := Mount(bytes.NewReader(img))
	require.NoError(t, err)
	_, err = v.ReadFile(`\boot\vmlinuz`)
	require.ErrorIs(t, err, storage.ErrVolumeCorrupted)
}

func TestUninitializedExtentLength(t *testing.T) {
	img := buildImage(t)
	// Mark the vmlinuz extent uninitialized; effective length is unchanged.
	le16(img[5*imgBlockSize+(inoVmlinuz-1)*128+40+16:], 0, extentInitMax+2)
	v, err := Mount(bytes.NewReader(img))
	require.NoError(t, err)
	data, err := v.ReadFile(`\boot\vmlinuz`)
	require.NoError(t, err)
	require.Len(t, data, 1500)
}
