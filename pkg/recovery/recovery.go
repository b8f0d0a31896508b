// Package recovery decides what happens when every boot attempt has
// failed: either the operator gets the machine back, or the machine
// power-cycles and tries again from firmware.
package recovery

import (
	logger "github.com/z46-dev/go-logger"
)

var log = logger.NewLogger().SetPrefix("[RCVR]", logger.BoldRed)

// Recoverer handles a fatal boot failure. Implementations may return to
// the caller (permissive) or never return at all (secure).
type Recoverer interface {
	Recover(message string) error
}
