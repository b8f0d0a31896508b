package booter

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/superboot/superboot/pkg/boot"
	"github.com/superboot/superboot/pkg/bootconfig"
)

func TestForChainload(t *testing.T) {
	b := For(&bootconfig.BootTarget{IsChainload: true, EFIPath: `\EFI\foo.efi`}, nil, boot.NewChainLoader(nil, boot.Options{DryRun: true}))
	require.Equal(t, "chainload", b.TypeName())
}

func TestForLinux(t *testing.T) {
	b := For(&bootconfig.BootTarget{KernelPath: `\vmlinuz`, Device: "/dev/sda1"}, boot.NewEngine(nil, boot.Options{DryRun: true}), nil)
	require.Equal(t, "linux", b.TypeName())
}

func TestForNil(t *testing.T) {
	require.Equal(t, "null", For(nil, nil, nil).TypeName())
}

func TestForEmptyTarget(t *testing.T) {
	b := For(&bootconfig.BootTarget{Title: "broken"}, nil, nil)
	require.Equal(t, "null", b.TypeName())
	require.NoError(t, b.Boot())
}
