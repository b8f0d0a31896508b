package boot

import (
	"fmt"
	"os"

	"github.com/u-root/u-root/pkg/kexec"
	logger "github.com/z46-dev/go-logger"

	"github.com/superboot/superboot/pkg/bootconfig"
	"github.com/superboot/superboot/pkg/storage"
)

var log = logger.NewLogger().SetPrefix("[BOOT]", logger.BoldRed)

// Staging addresses for the legacy path. boot_params and the command
// line sit in the traditional real-mode area; the initrd goes high but
// below the 32-bit limit the header fields impose.
const (
	bootParamsAddr = 0x90000
	cmdlineAddr    = 0x90800
	initrdAddr     = 0x8000000
)

// FS is the file access the engine needs; satisfied by *vfs.VFS.
type FS interface {
	ReadFile(device, path string) ([]byte, error)
}

// Options tune the engine.
type Options struct {
	Verbose bool
	// DryRun stages everything but skips the kexec syscalls.
	DryRun bool
	// Measure, when set, receives the kernel image bytes before handoff.
	Measure func(data []byte, name string)
}

// Engine boots Linux targets through kexec.
type Engine struct {
	fs   FS
	opts Options
}

func NewEngine(fs FS, opts Options) *Engine {
	return &Engine{fs: fs, opts: opts}
}

// BootLinux loads the target's kernel and hands control to it. On
// success it does not return. An initrd that fails to read is skipped
// with a warning; the kernel may still come up without it.
func (e *Engine) BootLinux(t *bootconfig.BootTarget) error {
	if t.IsChainload {
		return fmt.Errorf("chain-load target given to the Linux engine: %w", storage.ErrInvalidParameter)
	}
	image, err := e.fs.ReadFile(t.Device, t.KernelPath)
	if err != nil {
		return fmt.Errorf("loading kernel %s: %w", t.KernelPath, err)
	}
	hdr, err := ParseSetupHeader(image)
	if err != nil {
		return err
	}
	initrd := e.loadInitrds(t)
	if e.opts.Measure != nil {
		e.opts.Measure(image, t.KernelPath)
	}

	if hdr.SupportsHandover() {
		if e.opts.Verbose {
			log.Basicf("protocol %#x with handover entry, using kexec_file_load\n", hdr.Version)
		}
		err := e.fileLoad(image, initrd, t.Cmdline)
		if err == nil {
			return e.execute()
		}
		log.Warningf("kexec_file_load failed, falling back to the legacy path: %v\n", err)
	}

	if err := e.legacyLoad(image, hdr, initrd, t.Cmdline); err != nil {
		return err
	}
	return e.execute()
}

// loadInitrds reads every initrd into one contiguous buffer, in order.
// The region length is the sum of the file sizes that could be read.
func (e *Engine) loadInitrds(t *bootconfig.BootTarget) []byte {
	var region []byte
	for _, path := range t.InitrdPaths {
		data, err := e.fs.ReadFile(t.Device, path)
		if err != nil {
			log.Warningf("skipping initrd %s: %v\n", path, err)
			continue
		}
		region = append(region, data...)
	}
	return region
}

// fileLoad stages the kernel through kexec_file_load, where the kernel
// validates and places everything itself.
func (e *Engine) fileLoad(image, initrd []byte, cmdline string) error {
	if e.opts.DryRun {
		log.Statusf("dry run: would kexec_file_load %d byte kernel, %d byte initrd\n", len(image), len(initrd))
		return nil
	}
	kernelFile, err := stageTempFile("superboot-kernel-", image)
	if err != nil {
		return fmt.Errorf("staging kernel: %w", err)
	}
	defer func() {
		kernelFile.Close()
		os.Remove(kernelFile.Name())
	}()
	var initrdFile *os.File
	if len(initrd) > 0 {
		initrdFile, err = stageTempFile("superboot-initrd-", initrd)
		if err != nil {
			return fmt.Errorf("staging initrd: %w", err)
		}
		defer func() {
			initrdFile.Close()
			os.Remove(initrdFile.Name())
		}()
	}
	if err := kexec.FileLoad(kernelFile, initrdFile, cmdline); err != nil {
		return fmt.Errorf("kexec_file_load: %w", err)
	}
	return nil
}

// legacyLoad builds boot_params, synthesizes the E820 map and stages the
// protected-mode kernel with explicit segments.
func (e *Engine) legacyLoad(image []byte, hdr *SetupHeader, initrd []byte, cmdline string) error {
	setupSize := hdr.SetupSize()
	if setupSize >= len(image) {
		return fmt.Errorf("setup portion (%d) swallows the whole image (%d): %w",
			setupSize, len(image), storage.ErrInvalidParameter)
	}

	params := NewBootParams(hdr)
	dest := hdr.Destination()
	params.SetCode32Start(uint32(dest))
	params.SetCmdlinePtr(cmdlineAddr)
	if len(initrd) > 0 {
		params.SetRamdisk(initrdAddr, uint32(len(initrd)))
	}

	ranges, err := ReadFirmwareMap()
	if err != nil {
		return fmt.Errorf("reading firmware memory map: %w", err)
	}
	if err := params.SetE820(E820FromFirmware(ranges)); err != nil {
		return err
	}

	segments := []kexec.Segment{
		kexec.NewSegment(params.Bytes(), kexec.Range{Start: bootParamsAddr, Size: BootParamsSize}),
		kexec.NewSegment(CmdlineBytes(cmdline), kexec.Range{Start: cmdlineAddr, Size: uint(len(cmdline) + 1)}),
		kexec.NewSegment(image[setupSize:], kexec.Range{Start: uintptr(dest), Size: uint(len(image) - setupSize)}),
	}
	if len(initrd) > 0 {
		segments = append(segments,
			kexec.NewSegment(initrd, kexec.Range{Start: initrdAddr, Size: uint(len(initrd))}))
	}

	if e.opts.DryRun {
		log.Statusf("dry run: would kexec_load %d segments, entry %#x\n", len(segments), dest)
		return nil
	}
	if err := kexec.Load(uintptr(dest), segments, 0); err != nil {
		return fmt.Errorf("kexec_load: %w", err)
	}
	return nil
}

// execute pulls the trigger on the staged kernel. Past this point there
// is no failure path back into the menu.
func (e *Engine) execute() error {
	if e.opts.DryRun {
		log.Statusf("dry run: skipping reboot into the staged kernel\n")
		return nil
	}
	if err := kexec.Reboot(); err != nil {
		return fmt.Errorf("kexec reboot: %w", err)
	}
	return fmt.Errorf("returned from kexec reboot: %w", storage.ErrLoadError)
}

// CmdlineBytes renders the command line the way the protocol wants it:
// the bytes plus a terminating NUL, a lone NUL when empty.
func CmdlineBytes(cmdline string) []byte {
	return append([]byte(cmdline), 0)
}

func stageTempFile(prefix string, data []byte) (*os.File, error) {
	f, err := os.CreateTemp("", prefix)
	if err != nil {
		return nil, err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, err
	}
	if _, err := f.Seek(0, 0); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, err
	}
	return f, nil
}
