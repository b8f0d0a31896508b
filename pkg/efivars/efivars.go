// Package efivars manipulates the UEFI global boot variables through
// efivarfs: BootNext, BootOrder and Boot#### load options.
package efivars

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ecks/uefi/efi/efiguid"
	"github.com/ecks/uefi/efi/efivario"
	"golang.org/x/text/encoding/unicode"
)

// GlobalVariableGUIDString identifies the firmware's own variable
// namespace.
const GlobalVariableGUIDString = "8be4df61-93ca-11d2-aa0d-00e098032b8c"

// GlobalVariable is the parsed form.
var GlobalVariable = efiguid.MustFromString(GlobalVariableGUIDString)

const defaultAttrs = efivario.BootServiceAccess | efivario.RuntimeAccess | efivario.NonVolatile

// loadOptionActive marks a Boot#### entry the boot manager may pick.
const loadOptionActive = 0x00000001

// UTF16 renders s as UTF-16LE with a terminating NUL, the encoding every
// wide field in a load option uses.
func UTF16(s string) ([]byte, error) {
	encoder := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder()
	out := make([]byte, (len(s)+1)*2)
	n, _, err := encoder.Transform(out, []byte(s), true)
	if err != nil {
		return nil, err
	}
	return append(out[:n], 0, 0), nil
}

// FilePathList encodes a single file-path media device path node plus the
// end-of-path terminator. Firmware resolves the path against the device
// the option's partition match would name; with no hard-drive node it
// falls back to the boot partition, which is where chain-loaded payloads
// live.
func FilePathList(path string) ([]byte, error) {
	wpath, err := UTF16(path)
	if err != nil {
		return nil, err
	}
	node := make([]byte, 4+len(wpath))
	node[0] = 0x04 // media device path
	node[1] = 0x04 // file path subtype
	binary.LittleEndian.PutUint16(node[2:], uint16(len(node)))
	copy(node[4:], wpath)
	end := []byte{0x7F, 0xFF, 0x04, 0x00}
	return append(node, end...), nil
}

// LoadOption encodes an EFI_LOAD_OPTION with the given description and
// backslash-separated payload path.
func LoadOption(description, path string) ([]byte, error) {
	desc, err := UTF16(description)
	if err != nil {
		return nil, err
	}
	fpl, err := FilePathList(path)
	if err != nil {
		return nil, err
	}
	opt := make([]byte, 6, 6+len(desc)+len(fpl))
	binary.LittleEndian.PutUint32(opt[0:], loadOptionActive)
	binary.LittleEndian.PutUint16(opt[4:], uint16(len(fpl)))
	opt = append(opt, desc...)
	opt = append(opt, fpl...)
	return opt, nil
}

// BootVarName formats a Boot#### variable name.
func BootVarName(index uint16) string {
	return fmt.Sprintf("Boot%04X", index)
}

// FreeBootSlot finds the lowest Boot#### index with no variable behind it.
func FreeBootSlot(c efivario.Context) (uint16, error) {
	for i := 0; i <= 0xFFFF; i++ {
		_, _, err := efivario.ReadAll(c, BootVarName(uint16(i)), GlobalVariable)
		if errors.Is(err, efivario.ErrNotFound) {
			return uint16(i), nil
		}
		if err != nil {
			return 0, fmt.Errorf("probing %s: %w", BootVarName(uint16(i)), err)
		}
	}
	return 0, errors.New("no free Boot#### slot")
}

// WriteLoadOption creates or replaces Boot#### at index.
func WriteLoadOption(c efivario.Context, index uint16, description, path string) error {
	opt, err := LoadOption(description, path)
	if err != nil {
		return err
	}
	return c.Set(BootVarName(index), GlobalVariable, defaultAttrs, opt)
}

// WriteBootNext arms a one-shot boot of Boot####.
func WriteBootNext(c efivario.Context, index uint16) error {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], index)
	return c.Set("BootNext", GlobalVariable, defaultAttrs, buf[:])
}

// ReadBootOrder returns the current boot order, empty when unset.
func ReadBootOrder(c efivario.Context) ([]uint16, error) {
	_, data, err := efivario.ReadAll(c, "BootOrder", GlobalVariable)
	if err != nil {
		if errors.Is(err, efivario.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	order := make([]uint16, 0, len(data)/2)
	for i := 0; i+1 < len(data); i += 2 {
		order = append(order, binary.LittleEndian.Uint16(data[i:]))
	}
	return order, nil
}

// WriteBootOrder replaces the boot order.
func WriteBootOrder(c efivario.Context, order []uint16) error {
	buf := make([]byte, len(order)*2)
	for i, idx := range order {
		binary.LittleEndian.PutUint16(buf[i*2:], idx)
	}
	return c.Set("BootOrder", GlobalVariable, defaultAttrs, buf)
}

// PrependBootOrder puts index first in BootOrder, dropping any earlier
// occurrence.
func PrependBootOrder(c efivario.Context, index uint16) error {
	order, err := ReadBootOrder(c)
	if err != nil {
		return err
	}
	next := []uint16{index}
	for _, idx := range order {
		if idx != index {
			next = append(next, idx)
		}
	}
	return WriteBootOrder(c, next)
}
