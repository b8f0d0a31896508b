// Command sbctl is the maintenance companion: inspect what the scanner
// finds, install the boot binary onto the ESP and arm one-shot boots.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/ecks/uefi/efi/efivario"
	logger "github.com/z46-dev/go-logger"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/superboot/superboot/pkg/checker"
	"github.com/superboot/superboot/pkg/deploy"
	"github.com/superboot/superboot/pkg/efivars"
	"github.com/superboot/superboot/pkg/scan"
	"github.com/superboot/superboot/pkg/vfs"
)

var log = logger.NewLogger().SetPrefix("[CTL]", logger.BoldYellow)

var (
	verbose  = kingpin.Flag("verbose", "verbose output").Bool()
	mountDir = kingpin.Flag("mount-dir", "where to mount scanned filesystems").Default(vfs.DefaultMountDir).String()

	listCmd = kingpin.Command("list", "Scan all partitions and list boot targets")

	deployCmd    = kingpin.Command("deploy", "Install the boot binary onto the EFI system partition")
	deployBinary = deployCmd.Arg("binary", "Binary to install, the running one when omitted").String()
	deployESP    = deployCmd.Flag("esp", "ESP device node, autodetected when omitted").String()
	deployDryRun = deployCmd.Flag("dry-run", "report without writing").Bool()

	bootNextCmd  = kingpin.Command("bootnext", "Arm a one-shot boot of an existing Boot#### entry")
	bootNextSlot = bootNextCmd.Arg("index", "Boot#### index, hex").Required().String()

	checkCmd = kingpin.Command("check", "Run the boot preflight checks and print the results")
)

func main() {
	kingpin.CommandLine.Help = "SuperBoot maintenance tool"
	cmd := kingpin.Parse()

	var err error
	switch cmd {
	case "list":
		err = runList()
	case "deploy":
		err = runDeploy()
	case "bootnext":
		err = runBootNext()
	case "check":
		err = runCheck()
	}
	if err != nil {
		log.Errorf("%s: %v\n", cmd, err)
		os.Exit(1)
	}
}

func runList() error {
	fs := vfs.New(vfs.NewNativeDriver(*mountDir), vfs.NewExt4Driver())
	defer fs.Shutdown()
	list, hint, err := scan.New(fs, scan.Options{Verbose: *verbose}).ScanAll()
	if err != nil {
		return err
	}
	for i := range list.Entries {
		t := &list.Entries[i]
		if t.IsChainload {
			log.Basicf("%2d  chain  %-30s %s %s\n", i, t.Title, t.Device, t.EFIPath)
			continue
		}
		log.Basicf("%2d  linux  %-30s %s %s\n", i, t.Title, t.Device, t.KernelPath)
	}
	if hint >= 0 {
		log.Statusf("timeout hint: %ds\n", hint)
	}
	return nil
}

func runDeploy() error {
	binPath := *deployBinary
	if binPath == "" {
		self, err := os.Executable()
		if err != nil {
			return fmt.Errorf("locating the running binary: %w", err)
		}
		binPath = self
	}
	espDev := *deployESP
	if espDev == "" {
		found, err := deploy.FindESP()
		if err != nil {
			return err
		}
		espDev = found
		log.Statusf("EFI system partition: %s\n", espDev)
	}
	return deploy.Install(nil, binPath, espDev, deploy.Options{DryRun: *deployDryRun})
}

func runCheck() error {
	results, numErrors := checker.Run(checker.BootChecklist(*mountDir))
	out, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	if numErrors > 0 {
		return fmt.Errorf("%d check(s) failed", numErrors)
	}
	return nil
}

func runBootNext() error {
	slot, err := strconv.ParseUint(*bootNextSlot, 16, 16)
	if err != nil {
		return fmt.Errorf("index %q: %w", *bootNextSlot, err)
	}
	ctx := efivario.NewDefaultContext()
	if err := efivars.WriteBootNext(ctx, uint16(slot)); err != nil {
		return err
	}
	log.Statusf("BootNext armed for %s\n", efivars.BootVarName(uint16(slot)))
	return nil
}
