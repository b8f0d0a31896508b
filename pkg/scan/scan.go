// Package scan walks every partition on the system, feeds each config
// parser from it, and collects the resulting boot targets.
package scan

import (
	"fmt"

	logger "github.com/z46-dev/go-logger"

	"github.com/superboot/superboot/pkg/bootconfig"
	"github.com/superboot/superboot/pkg/config"
	"github.com/superboot/superboot/pkg/storage"
)

var log = logger.NewLogger().SetPrefix("[SCAN]", logger.BoldGreen)

// FS is the mount dispatcher surface the scanner drives. Satisfied by
// *vfs.VFS.
type FS interface {
	OpenDevice(dev storage.BlockDev) error
	ReadFile(device, path string) ([]byte, error)
	FileExists(device, path string) bool
	ReadDir(device, path string) ([]string, error)
}

// Options tune one scan pass.
type Options struct {
	// Verbose logs every probe path, not just hits.
	Verbose bool
	// Measure, when set, receives the raw bytes of every parsed config
	// file, typically to extend them into a TPM PCR.
	Measure func(data []byte, path string)
}

// Scanner drives the parsers across all partitions.
type Scanner struct {
	fs      FS
	parsers []config.Parser
	opts    Options

	// Devices enumerates candidate block devices. Swappable in tests.
	Devices func() ([]storage.BlockDev, error)
}

// New returns a scanner using the registered parsers in declaration
// order, which fixes target order across runs.
func New(fs FS, opts Options) *Scanner {
	return &Scanner{
		fs:      fs,
		parsers: config.Parsers(),
		opts:    opts,
		Devices: storage.GetBlockDevices,
	}
}

// ScanAll enumerates partitions and parses every config it finds, in
// (device order, parser order, in-config order). Whole disks and
// media-less devices are skipped. Partition and parser failures are
// logged and do not stop the scan; only an empty result is an error.
// The returned timeout is the first hint any config carried, or -1.
func (s *Scanner) ScanAll() (*bootconfig.BootTargetList, int, error) {
	devs, err := s.Devices()
	if err != nil {
		return nil, -1, fmt.Errorf("enumerating block devices: %w", err)
	}

	list := &bootconfig.BootTargetList{}
	timeout := -1
	for _, dev := range devs {
		if list.Full() {
			break
		}
		if !dev.Partition || dev.Size == 0 {
			continue
		}
		if err := s.fs.OpenDevice(dev); err != nil {
			log.Basicf("skipping %s: %v\n", dev.Path, err)
			continue
		}
		hint := s.scanPartition(dev, list)
		if timeout < 0 {
			timeout = hint
		}
	}

	if len(list.Entries) == 0 {
		return nil, -1, fmt.Errorf("no boot targets on any partition: %w", storage.ErrNotFound)
	}
	log.Statusf("found %d boot target(s)\n", len(list.Entries))
	return list, timeout, nil
}

// scanPartition runs every parser against dev. A partition contributes at
// most one config file per parser: the first probe path that exists.
func (s *Scanner) scanPartition(dev storage.BlockDev, list *bootconfig.BootTargetList) int {
	timeout := -1
	for _, p := range s.parsers {
		if list.Full() {
			break
		}
		for _, path := range p.ProbePaths() {
			if s.opts.Verbose {
				log.Basicf("%s: probing %s %s\n", dev.Path, p.Name(), path)
			}
			if !s.fs.FileExists(dev.Path, path) {
				continue
			}
			data, err := s.fs.ReadFile(dev.Path, path)
			if err != nil {
				log.Warningf("%s: reading %s: %v\n", dev.Path, path, err)
				break
			}
			if s.opts.Measure != nil {
				s.opts.Measure(data, path)
			}
			res, err := p.Parse(data, s.fs, dev.Path, path, list.Remaining())
			if err != nil {
				log.Warningf("%s: %s parser on %s: %v\n", dev.Path, p.Name(), path, err)
				break
			}
			taken := list.Append(res.Targets...)
			log.Statusf("%s: %s gave %d target(s) from %s\n", dev.Path, p.Name(), taken, path)
			if timeout < 0 {
				timeout = res.Timeout
			}
			break
		}
	}
	return timeout
}
