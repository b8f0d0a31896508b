package checker

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/superboot/superboot/pkg/storage"
)

func AlwaysPasses(args CheckArgs) error {
	return nil
}

func AlwaysFails(args CheckArgs) error {
	return fmt.Errorf("boom")
}

func init() {
	registerCheckFun(AlwaysPasses)
	registerCheckFun(AlwaysFails)
}

func TestRunPass(t *testing.T) {
	result := Check{Description: "d", CheckFunName: "AlwaysPasses"}.Run()
	require.Equal(t, ResultOK, result.Result)
	require.Empty(t, result.Error)
	require.Empty(t, result.RemediationResults)
	require.False(t, result.StoppedOnFailure)
}

func TestRunFail(t *testing.T) {
	result := Check{Description: "d", CheckFunName: "AlwaysFails"}.Run()
	require.Equal(t, ResultError, result.Result)
	require.Equal(t, "boom", result.Error)
}

func TestRunUnknownName(t *testing.T) {
	result := Check{CheckFunName: "NoSuchCheck"}.Run()
	require.Equal(t, ResultError, result.Result)
}

func TestRunRemediation(t *testing.T) {
	result := Check{
		CheckFunName: "AlwaysFails",
		Remediations: []Check{{CheckFunName: "AlwaysPasses"}},
	}.Run()
	require.Equal(t, ResultError, result.Result)
	require.Len(t, result.RemediationResults, 1)
	require.Equal(t, ResultOK, result.RemediationResults[0].Result)
	require.False(t, result.StoppedOnFailure)
}

func TestRunStopOnFailureSkipsRemediations(t *testing.T) {
	result := Check{
		CheckFunName:  "AlwaysFails",
		Remediations:  []Check{{CheckFunName: "AlwaysPasses"}},
		StopOnFailure: true,
	}.Run()
	require.True(t, result.StoppedOnFailure)
	require.Empty(t, result.RemediationResults)
}

func TestRunChecklistCountsErrors(t *testing.T) {
	results, numErrors := Run([]Check{
		{CheckFunName: "AlwaysPasses"},
		{CheckFunName: "AlwaysFails"},
		{CheckFunName: "AlwaysPasses"},
	})
	require.Len(t, results, 3)
	require.Equal(t, 1, numErrors)
}

func TestRunChecklistStopsEarly(t *testing.T) {
	results, numErrors := Run([]Check{
		{CheckFunName: "AlwaysFails", StopOnFailure: true},
		{CheckFunName: "AlwaysPasses"},
	})
	require.Len(t, results, 1)
	require.Equal(t, 1, numErrors)
}

func TestListRegisteredSorted(t *testing.T) {
	names := ListRegistered()
	require.Contains(t, names, "AlwaysPasses")
	require.Contains(t, names, "SysfsBlockPresent")
	require.IsIncreasing(t, names)
}

func TestMountDirUsable(t *testing.T) {
	require.NoError(t, MountDirUsable(CheckArgs{"dir": t.TempDir()}))
	require.Error(t, MountDirUsable(CheckArgs{}))
}

func TestSysfsBlockPresent(t *testing.T) {
	orig := storage.SysfsBlockPath
	defer func() { storage.SysfsBlockPath = orig }()

	storage.SysfsBlockPath = t.TempDir()
	require.NoError(t, SysfsBlockPresent(nil))

	storage.SysfsBlockPath = "/nonexistent/superboot-test"
	require.Error(t, SysfsBlockPresent(nil))
}

func TestKexecAvailable(t *testing.T) {
	orig := KexecLoadedPath
	defer func() { KexecLoadedPath = orig }()

	KexecLoadedPath = "/nonexistent/kexec_loaded"
	require.Error(t, KexecAvailable(nil))
}

func TestBootChecklist(t *testing.T) {
	list := BootChecklist("/tmp/x")
	require.Len(t, list, 4)
	require.True(t, list[0].StopOnFailure)
	require.Equal(t, "/tmp/x", list[3].CheckFunArgs["dir"])
	for _, c := range list {
		require.Contains(t, ListRegistered(), c.CheckFunName)
	}
}
