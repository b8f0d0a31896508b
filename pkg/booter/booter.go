// Package booter wraps boot targets in a uniform Booter interface so
// the menu loop can attempt any entry without caring whether it kexecs
// a kernel or arms the firmware for a chain-load.
package booter

import (
	logger "github.com/z46-dev/go-logger"

	"github.com/superboot/superboot/pkg/boot"
	"github.com/superboot/superboot/pkg/bootconfig"
)

var log = logger.NewLogger().SetPrefix("[MENU]", logger.BoldBlue)

// Booter attempts to hand the machine over to one boot target.
type Booter interface {
	Boot() error
	TypeName() string
}

// LinuxBooter kexecs a Linux kernel target.
type LinuxBooter struct {
	Engine *boot.Engine
	Target *bootconfig.BootTarget
}

func (b *LinuxBooter) TypeName() string { return "linux" }

func (b *LinuxBooter) Boot() error {
	return b.Engine.BootLinux(b.Target)
}

// ChainBooter hands an EFI payload back to the firmware via BootNext.
type ChainBooter struct {
	Loader *boot.ChainLoader
	Target *bootconfig.BootTarget
}

func (b *ChainBooter) TypeName() string { return "chainload" }

func (b *ChainBooter) Boot() error {
	return b.Loader.Chainload(b.Target)
}

// NullBooter does nothing. It stands in for targets nothing can boot.
type NullBooter struct{}

func (*NullBooter) TypeName() string { return "null" }

func (*NullBooter) Boot() error {
	log.Statusf("null booter does nothing\n")
	return nil
}

// For picks the Booter implementation matching the target's kind.
func For(t *bootconfig.BootTarget, engine *boot.Engine, loader *boot.ChainLoader) Booter {
	switch {
	case t == nil:
		return &NullBooter{}
	case t.IsChainload:
		return &ChainBooter{Loader: loader, Target: t}
	case t.KernelPath != "":
		return &LinuxBooter{Engine: engine, Target: t}
	default:
		return &NullBooter{}
	}
}
