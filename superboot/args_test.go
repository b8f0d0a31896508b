package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestJoinArgs(t *testing.T) {
	require.Equal(t, "quiet", joinArgs("quiet", "", ""))
	require.Equal(t, "quiet splash", joinArgs("quiet", "", "splash"))
	require.Equal(t, "a b c", joinArgs("a", "b", "c"))
	require.Equal(t, "", joinArgs("", "", ""))
}
