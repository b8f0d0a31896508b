package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/superboot/superboot/pkg/bootconfig"
)

func parseGrub(t *testing.T, cfg string) *Result {
	t.Helper()
	res, err := NewGrubParser().Parse([]byte(cfg), nil, "/dev/sda2", `\boot\grub\grub.cfg`, bootconfig.MaxTargets)
	require.NoError(t, err)
	return res
}

func TestGrubVariableExpansion(t *testing.T) {
	res := parseGrub(t, `set root=(hd0,1)
set kver=6.6
menuentry 'Linux' {
 linux /vmlinuz-$kver ro quiet
 initrd /initrd-$kver.img
}
`)
	require.Len(t, res.Targets, 1)
	bt := res.Targets[0]
	require.Equal(t, "Linux", bt.Title)
	require.Equal(t, `\vmlinuz-6.6`, bt.KernelPath)
	require.Equal(t, []string{`\initrd-6.6.img`}, bt.InitrdPaths)
	require.Equal(t, "ro quiet", bt.Cmdline)
	require.Equal(t, "/dev/sda2", bt.Device)
	require.Equal(t, bootconfig.ConfigTypeGrub, bt.Type)
}

func TestGrubIfBlockSkipped(t *testing.T) {
	res := parseGrub(t, `if [ -f /foo ]; then menuentry 'A' { linux /a } fi
menuentry 'B' { linux /b }
`)
	require.Len(t, res.Targets, 1)
	require.Equal(t, "B", res.Targets[0].Title)
	require.Equal(t, `\b`, res.Targets[0].KernelPath)
}

func TestGrubNestedControlFlowSkipped(t *testing.T) {
	res := parseGrub(t, `for x in a b; do
  if [ -n "$x" ]; then
    menuentry 'hidden' { linux /hidden }
  fi
done
menuentry 'real' { linux /real }
`)
	require.Len(t, res.Targets, 1)
	require.Equal(t, "real", res.Targets[0].Title)
}

func TestGrubChainloader(t *testing.T) {
	res := parseGrub(t, `menuentry 'Windows' --class windows {
	chainloader /EFI/Microsoft/Boot/bootmgfw.efi
}
`)
	require.Len(t, res.Targets, 1)
	bt := res.Targets[0]
	require.True(t, bt.IsChainload)
	require.Equal(t, `\EFI\Microsoft\Boot\bootmgfw.efi`, bt.EFIPath)
}

func TestGrubEntryWithoutKernelDiscarded(t *testing.T) {
	res := parseGrub(t, `menuentry 'broken' {
	echo hello
}
menuentry 'ok' { linux /vmlinuz }
`)
	require.Len(t, res.Targets, 1)
	require.Equal(t, "ok", res.Targets[0].Title)
}

func TestGrubDevicePrefixStripped(t *testing.T) {
	res := parseGrub(t, `set root=(hd0,gpt2)
menuentry 'x' {
	linux ($root)/boot/vmlinuz root=/dev/sda2
	initrd (hd0,gpt2)/boot/initrd.img
}
`)
	require.Len(t, res.Targets, 1)
	require.Equal(t, `\boot\vmlinuz`, res.Targets[0].KernelPath)
	require.Equal(t, []string{`\boot\initrd.img`}, res.Targets[0].InitrdPaths)
}

func TestGrubSearchSetVariable(t *testing.T) {
	res := parseGrub(t, `search --no-floppy --fs-uuid --set=root 1234-ABCD
menuentry 'x' {
	linux ($root)/vmlinuz
}
`)
	require.Len(t, res.Targets, 1)
	require.Equal(t, `\vmlinuz`, res.Targets[0].KernelPath)
}

func TestGrubDefaultByIndex(t *testing.T) {
	res := parseGrub(t, `set default=1
menuentry 'a' { linux /a }
menuentry 'b' { linux /b }
`)
	require.Len(t, res.Targets, 2)
	require.False(t, res.Targets[0].IsDefault)
	require.True(t, res.Targets[1].IsDefault)
}

func TestGrubDefaultByTitle(t *testing.T) {
	res := parseGrub(t, `set default="b entry"
menuentry 'a' { linux /a }
menuentry 'b entry' { linux /b }
`)
	require.Len(t, res.Targets, 2)
	require.True(t, res.Targets[1].IsDefault)
}

func TestGrubTimeoutHint(t *testing.T) {
	res := parseGrub(t, "set timeout=5\nmenuentry 'a' { linux /a }\n")
	require.Equal(t, 5, res.Timeout)

	res = parseGrub(t, "menuentry 'a' { linux /a }\n")
	require.Equal(t, -1, res.Timeout)
}

func TestGrubCommentsIgnored(t *testing.T) {
	res := parseGrub(t, `# menuentry 'commented' { linux /no }
menuentry 'a' { linux /a } # trailing
`)
	require.Len(t, res.Targets, 1)
	require.Equal(t, "a", res.Targets[0].Title)
}

func TestGrubCapacityRespected(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 10; i++ {
		b.WriteString("menuentry 'e' { linux /v }\n")
	}
	res, err := NewGrubParser().Parse([]byte(b.String()), nil, "/dev/sda1", `\grub\grub.cfg`, 3)
	require.NoError(t, err)
	require.Len(t, res.Targets, 3)
}

func TestGrubLinux16AndEfiVariants(t *testing.T) {
	res := parseGrub(t, `menuentry 'memtest' {
	linux16 /memtest86+.bin
}
menuentry 'efi' {
	linuxefi /vmlinuz-efi quiet
	initrdefi /initrd-efi.img
}
`)
	require.Len(t, res.Targets, 2)
	require.Equal(t, `\memtest86+.bin`, res.Targets[0].KernelPath)
	require.Equal(t, `\vmlinuz-efi`, res.Targets[1].KernelPath)
	require.Equal(t, "quiet", res.Targets[1].Cmdline)
	require.Equal(t, []string{`\initrd-efi.img`}, res.Targets[1].InitrdPaths)
}

func TestVarTableExpand(t *testing.T) {
	var v varTable
	v.Set("a", "one")
	v.Set("b", "two")
	require.Equal(t, "one/two", v.Expand("$a/${b}", 64))
	require.Equal(t, "", v.Expand("$missing", 64))
	require.Equal(t, "x$", v.Expand("x$", 64))
	// No "$" means expansion is the identity.
	require.Equal(t, "/boot/vmlinuz", v.Expand("/boot/vmlinuz", 64))
	require.Equal(t, "/boot/vmlinuz", v.Expand(v.Expand("/boot/vmlinuz", 64), 64))
}

func TestVarTableLatestWriteWins(t *testing.T) {
	var v varTable
	v.Set("x", "first")
	v.Set("x", "second")
	require.Equal(t, "second", v.Get("x"))
}

func TestVarTableBounds(t *testing.T) {
	var v varTable
	v.Set(strings.Repeat("n", 65), "value")
	require.Empty(t, v.vars)
	v.Set("ok", strings.Repeat("v", 513))
	require.Empty(t, v.vars)
	v.Set("ok", "v")
	require.Len(t, v.vars, 1)
}

func TestVarTableExpandBounded(t *testing.T) {
	var v varTable
	v.Set("big", strings.Repeat("a", 400))
	out := v.Expand("$big$big$big", 512)
	require.LessOrEqual(t, len(out), 512)
}
