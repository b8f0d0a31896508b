package boot

import (
	"fmt"

	"github.com/ecks/uefi/efi/efivario"
	"golang.org/x/sys/unix"

	"github.com/superboot/superboot/pkg/bootconfig"
	"github.com/superboot/superboot/pkg/efivars"
	"github.com/superboot/superboot/pkg/storage"
)

// ChainLoader boots arbitrary EFI payloads by arming the firmware's
// one-shot BootNext and resetting: the firmware itself loads and starts
// the payload on the way back up, with full Secure Boot and TPM
// measurement semantics intact.
type ChainLoader struct {
	ctx  efivario.Context
	opts Options
}

func NewChainLoader(ctx efivario.Context, opts Options) *ChainLoader {
	if ctx == nil {
		ctx = efivario.NewDefaultContext()
	}
	return &ChainLoader{ctx: ctx, opts: opts}
}

// Chainload registers a transient Boot#### option for the target's EFI
// path, points BootNext at it and reboots. Any failure before the reset
// is reported and leaves the system in the menu.
func (c *ChainLoader) Chainload(t *bootconfig.BootTarget) error {
	if !t.IsChainload || t.EFIPath == "" {
		return fmt.Errorf("target has no EFI payload: %w", storage.ErrInvalidParameter)
	}
	slot, err := efivars.FreeBootSlot(c.ctx)
	if err != nil {
		return fmt.Errorf("finding a free load option: %w", err)
	}
	title := t.Title
	if title == "" {
		title = "SuperBoot chainload"
	}
	if err := efivars.WriteLoadOption(c.ctx, slot, title, t.EFIPath); err != nil {
		return fmt.Errorf("writing %s: %w", efivars.BootVarName(slot), err)
	}
	if err := efivars.WriteBootNext(c.ctx, slot); err != nil {
		return fmt.Errorf("writing BootNext: %w", err)
	}
	log.Statusf("BootNext armed for %s (%s)\n", efivars.BootVarName(slot), t.EFIPath)

	if c.opts.DryRun {
		log.Statusf("dry run: skipping reset into the firmware\n")
		return nil
	}
	if err := unix.Reboot(unix.LINUX_REBOOT_CMD_RESTART); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	return fmt.Errorf("returned from reset: %w", storage.ErrLoadError)
}
