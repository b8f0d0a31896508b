package recovery

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPermissiveRecovererReturns(t *testing.T) {
	var r Recoverer = PermissiveRecoverer{}
	require.NoError(t, r.Recover("kernel refused to load"))
	require.NoError(t, r.Recover(""))
}
