// Package rng tops up the kernel entropy pool from a hardware RNG
// before handoff, so early userspace in the booted system does not
// stall on a cold pool.
package rng

import (
	"fmt"
	"io"
	"os"
	"strings"

	logger "github.com/z46-dev/go-logger"
)

var log = logger.NewLogger().SetPrefix("[RNG]", logger.BoldYellow)

// Sysfs and device paths, package variables so tests can use fixtures.
var (
	HWRandomCurrentPath   = "/sys/class/misc/hw_random/rng_current"
	HWRandomAvailablePath = "/sys/class/misc/hw_random/rng_available"
	HWRandomDevice        = "/dev/hwrng"
	RandomDevice          = "/dev/random"
)

// trusted hardware sources, best first.
var trusted = []string{"tpm-rng", "intel-rng", "amd-rng"}

const seedBytes = 128

// SelectHWRandom points rng_current at the most trusted available
// source. Returns the selected name.
func SelectHWRandom() (string, error) {
	available, err := os.ReadFile(HWRandomAvailablePath)
	if err != nil {
		return "", err
	}
	current, err := os.ReadFile(HWRandomCurrentPath)
	if err != nil {
		return "", err
	}
	names := strings.Fields(string(available))
	for _, want := range trusted {
		for _, name := range names {
			if name != want {
				continue
			}
			if strings.TrimSpace(string(current)) != name {
				if err := os.WriteFile(HWRandomCurrentPath, []byte(name), 0644); err != nil {
					return "", err
				}
			}
			return name, nil
		}
	}
	return "", fmt.Errorf("no trusted hardware RNG among %q", names)
}

// Seed copies a chunk from the hardware RNG into the kernel pool.
func Seed() error {
	src, err := os.Open(HWRandomDevice)
	if err != nil {
		return err
	}
	defer src.Close()
	dst, err := os.OpenFile(RandomDevice, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	defer dst.Close()
	if _, err := io.CopyN(dst, src, seedBytes); err != nil {
		return err
	}
	return nil
}

// TrySeed is the best-effort form the boot path uses. Machines without
// a usable hardware RNG boot unseeded, with a note in the log.
func TrySeed() {
	name, err := SelectHWRandom()
	if err != nil {
		log.Warningf("no hardware RNG: %v\n", err)
		return
	}
	if err := Seed(); err != nil {
		log.Warningf("seeding from %s: %v\n", name, err)
		return
	}
	log.Statusf("entropy pool seeded from %s\n", name)
}
