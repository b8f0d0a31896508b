package recovery

import (
	"os"
	"time"

	"golang.org/x/sys/unix"
)

const debugPause = 10 * time.Second

// SecureRecoverer power-cycles the machine on failure so an unattended
// box never sits in a menu. Reboot picks restart over poweroff, Sync
// flushes pending writes first, Debug leaves the failure on screen for
// a few seconds before the cycle.
type SecureRecoverer struct {
	Reboot bool
	Sync   bool
	Debug  bool
}

func (sr SecureRecoverer) Recover(message string) error {
	if message != "" {
		log.Errorf("%s\n", message)
	}
	if sr.Sync {
		os.Stdout.Sync()
		os.Stderr.Sync()
		unix.Sync()
	}
	if sr.Debug {
		time.Sleep(debugPause)
	}
	cmd := unix.LINUX_REBOOT_CMD_POWER_OFF
	if sr.Reboot {
		cmd = unix.LINUX_REBOOT_CMD_RESTART
	}
	return unix.Reboot(cmd)
}
