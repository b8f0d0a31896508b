// Package settings loads the optional superboot.toml configuration file.
// Every field has a default, so a missing file yields a usable Settings.
package settings

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
)

// DefaultPath is where the boot binary looks when no -config flag is given.
const DefaultPath = "/etc/superboot.toml"

type Settings struct {
	// Timeout is the menu countdown in seconds. 0 boots the default
	// target immediately, negative waits forever.
	Timeout int `toml:"timeout" default:"5"`

	// Default selects a boot target by substring match against entry
	// titles, overriding whatever the on-disk configs marked default.
	Default string `toml:"default" default:""`

	Verbose bool `toml:"verbose" default:"false"`

	// DryRun stops short of the actual kexec or reset.
	DryRun bool `toml:"dry_run" default:"false"`

	// MountDir is where kernel-backed filesystems get mounted.
	MountDir string `toml:"mount_dir" default:"/tmp/superboot" validate:"required"`

	// MaxDevices caps how many partitions are scanned.
	MaxDevices int `toml:"max_devices" default:"64" validate:"gt=0"`
}

// Load reads path, applying defaults first so the file only has to name
// what it wants to change. A missing file is not an error.
func Load(path string) (*Settings, error) {
	var s Settings
	if err := defaults.Set(&s); err != nil {
		return nil, fmt.Errorf("set defaults: %w", err)
	}
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &s); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(s); err != nil {
		return nil, fmt.Errorf("validate %s: %w", path, err)
	}
	return &s, nil
}
