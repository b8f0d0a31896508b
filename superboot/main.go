// Command superboot scans every partition for boot configurations,
// presents the merged menu and hands the machine over to the choice.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	logger "github.com/z46-dev/go-logger"

	"github.com/superboot/superboot/pkg/boot"
	"github.com/superboot/superboot/pkg/bootconfig"
	"github.com/superboot/superboot/pkg/booter"
	"github.com/superboot/superboot/pkg/checker"
	"github.com/superboot/superboot/pkg/crypto"
	"github.com/superboot/superboot/pkg/recovery"
	"github.com/superboot/superboot/pkg/rng"
	"github.com/superboot/superboot/pkg/scan"
	"github.com/superboot/superboot/pkg/settings"
	"github.com/superboot/superboot/pkg/storage"
	"github.com/superboot/superboot/pkg/vfs"
)

var log = logger.NewLogger().SetPrefix("[BOOT]", logger.BoldBlue)

var (
	configPath = flag.String("config", settings.DefaultPath, "settings file")
	verbose    = flag.Bool("verbose", false, "verbose output")
	dryRun     = flag.Bool("dry-run", false, "stop short of the actual handoff")
	appendArgs = flag.String("append", "", "extra kernel command line arguments")
	timeout    = flag.Int("timeout", -2, "menu countdown in seconds, overriding config hints")
	secure     = flag.Bool("secure", false, "power-cycle instead of exiting when the scan fails or the menu gives up")
)

func main() {
	flag.Parse()

	cfg, err := settings.Load(*configPath)
	if err != nil {
		log.Errorf("%v\n", err)
		os.Exit(1)
	}
	if *verbose {
		cfg.Verbose = true
	}
	if *dryRun {
		cfg.DryRun = true
	}

	var recoverer recovery.Recoverer = recovery.PermissiveRecoverer{}
	if *secure {
		recoverer = recovery.SecureRecoverer{Reboot: true, Sync: true, Debug: cfg.Verbose}
	}

	if _, numErrors := checker.Run(checker.BootChecklist(cfg.MountDir)); numErrors > 0 {
		log.Warningf("%d preflight check(s) failed\n", numErrors)
	}
	rng.TrySeed()

	fs := vfs.New(vfs.NewNativeDriver(cfg.MountDir), vfs.NewExt4Driver())
	defer fs.Shutdown()

	scanner := scan.New(fs, scan.Options{Verbose: cfg.Verbose, Measure: crypto.MeasureConfig})
	enumerate := scanner.Devices
	scanner.Devices = func() ([]storage.BlockDev, error) {
		devs, err := enumerate()
		kept, parts := devs[:0], 0
		for _, d := range devs {
			if d.Partition {
				if parts >= cfg.MaxDevices {
					continue
				}
				parts++
			}
			kept = append(kept, d)
		}
		return kept, err
	}
	list, hint, err := scanner.ScanAll()
	if err != nil {
		recoverer.Recover(fmt.Sprintf("scan: %v", err))
		os.Exit(1)
	}

	engine := boot.NewEngine(fs, boot.Options{Verbose: cfg.Verbose, DryRun: cfg.DryRun, Measure: crypto.MeasureImage})
	loader := boot.NewChainLoader(nil, boot.Options{Verbose: cfg.Verbose, DryRun: cfg.DryRun})

	if err := menuLoop(list, hint, cfg, engine, loader); err != nil {
		recoverer.Recover(err.Error())
		os.Exit(1)
	}
}

// pickDefault resolves the menu's initial selection: the settings
// pattern wins over whatever the configs marked default.
func pickDefault(list *bootconfig.BootTargetList, pattern string) int {
	if pattern != "" {
		for i := range list.Entries {
			if strings.Contains(list.Entries[i].Title, pattern) {
				return i
			}
		}
	}
	if idx := list.DefaultIndex(); idx >= 0 {
		return idx
	}
	return 0
}

// pickTimeout resolves the countdown: flag over config hint over
// settings file.
func pickTimeout(hint int, cfg *settings.Settings) int {
	if *timeout != -2 {
		return *timeout
	}
	if hint >= 0 {
		return hint
	}
	return cfg.Timeout
}

func printMenu(list *bootconfig.BootTargetList, def int) {
	for i := range list.Entries {
		t := &list.Entries[i]
		marker := " "
		if i == def {
			marker = "*"
		}
		kind := "linux"
		if t.IsChainload {
			kind = "chain"
		}
		log.Basicf("%s %2d) [%s] %s (%s)\n", marker, i, kind, t.Title, t.Device)
	}
}

// menuLoop runs the countdown once, then stays interactive. Every
// failed attempt returns to the prompt; EOF gives up.
func menuLoop(list *bootconfig.BootTargetList, hint int, cfg *settings.Settings, engine *boot.Engine, loader *boot.ChainLoader) error {
	def := pickDefault(list, cfg.Default)
	secs := pickTimeout(hint, cfg)
	printMenu(list, def)

	lines := readLines(os.Stdin)
	first := true
	for {
		line, ok := readChoice(lines, secs, first)
		first = false
		if !ok {
			return fmt.Errorf("no boot target left to try")
		}
		idx, extra := parseChoice(line, def)
		if idx < 0 || idx >= len(list.Entries) {
			log.Warningf("no entry %d\n", idx)
			continue
		}
		target := &list.Entries[idx]
		if args := joinArgs(target.Cmdline, *appendArgs, extra); args != target.Cmdline {
			target.SetCmdline(args)
		}
		b := booter.For(target, engine, loader)
		log.Statusf("booting %q via %s\n", target.Title, b.TypeName())
		if err := b.Boot(); err != nil {
			log.Errorf("booting %q: %v\n", target.Title, err)
			continue
		}
		if cfg.DryRun {
			return nil
		}
	}
}

// readLines owns stdin for the whole menu loop so a countdown that
// expires never leaves a reader behind.
func readLines(r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()
	return lines
}

// readChoice waits for a menu line. With a countdown it returns the
// empty choice when the timer fires first; zero boots immediately.
func readChoice(lines <-chan string, secs int, countdown bool) (string, bool) {
	if countdown && secs == 0 {
		return "", true
	}
	if !countdown || secs < 0 {
		log.Basicf("> ")
		line, ok := <-lines
		return line, ok
	}

	log.Basicf("booting default in %d second(s), any line interrupts\n> ", secs)
	select {
	case line, ok := <-lines:
		return line, ok
	case <-time.After(time.Duration(secs) * time.Second):
		return "", true
	}
}

// joinArgs concatenates command line parts, skipping empty ones.
func joinArgs(parts ...string) string {
	kept := parts[:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " ")
}

// parseChoice splits "3 console=ttyS0" into an entry index and extra
// command line text. An empty line picks the default.
func parseChoice(line string, def int) (int, string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return def, ""
	}
	idx, err := strconv.Atoi(fields[0])
	if err != nil {
		return -1, ""
	}
	return idx, strings.Join(fields[1:], " ")
}
