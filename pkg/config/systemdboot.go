package config

import (
	"sort"
	"strconv"
	"strings"

	"github.com/superboot/superboot/pkg/bootconfig"
)

const sdEntriesDir = `\loader\entries`

// SystemdBootParser reads loader.conf for the default pattern and timeout,
// then enumerates \loader\entries\*.conf on the same partition. Each entry
// file is flat key/value: key is the first token, value the trimmed rest.
type SystemdBootParser struct{}

func NewSystemdBootParser() *SystemdBootParser { return &SystemdBootParser{} }

func (p *SystemdBootParser) Name() string                { return "systemd-boot" }
func (p *SystemdBootParser) Type() bootconfig.ConfigType { return bootconfig.ConfigTypeSystemdBoot }

func (p *SystemdBootParser) ProbePaths() []string {
	return []string{`\loader\loader.conf`}
}

func (p *SystemdBootParser) Parse(data []byte, r Reader, device, configPath string, capacity int) (*Result, error) {
	defaultPattern := ""
	timeout := -1
	for _, line := range strings.Split(string(data), "\n") {
		key, value := sdKeyValue(line)
		switch key {
		case "default":
			defaultPattern = value
		case "timeout":
			if n, err := strconv.Atoi(value); err == nil {
				timeout = n
			}
		}
	}

	names, err := r.ReadDir(device, sdEntriesDir)
	if err != nil {
		// loader.conf alone describes no entries.
		return &Result{Timeout: timeout}, nil
	}
	sort.Strings(names)

	res := &Result{Timeout: timeout}
	for _, name := range names {
		if !strings.HasSuffix(name, ".conf") {
			continue
		}
		if len(res.Targets) >= capacity {
			break
		}
		entryPath := sdEntriesDir + `\` + name
		raw, err := r.ReadFile(device, entryPath)
		if err != nil {
			log.Warningf("%s: %v\n", entryPath, err)
			continue
		}
		t := parseEntry(raw, device, entryPath)
		if t == nil {
			continue
		}
		stem := strings.TrimSuffix(name, ".conf")
		t.IsDefault = matchDefault(stem, defaultPattern)
		res.Targets = append(res.Targets, *t)
	}
	return res, nil
}

func sdKeyValue(line string) (string, string) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", ""
	}
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", ""
	}
	return fields[0], strings.TrimSpace(strings.TrimPrefix(line, fields[0]))
}

func parseEntry(raw []byte, device, entryPath string) *bootconfig.BootTarget {
	t := &bootconfig.BootTarget{
		Type:       bootconfig.ConfigTypeSystemdBoot,
		ConfigPath: entryPath,
		Device:     device,
	}
	for _, line := range strings.Split(string(raw), "\n") {
		key, value := sdKeyValue(line)
		switch key {
		case "title":
			t.Title = truncate(value, bootconfig.MaxTitle)
		case "linux":
			t.KernelPath = normalizePath(value)
		case "initrd":
			t.AddInitrd(normalizePath(value))
		case "options":
			t.SetCmdline(value)
		case "efi":
			t.EFIPath = normalizePath(value)
			t.IsChainload = true
		}
	}
	if !t.IsValid() {
		return nil
	}
	if t.Title == "" {
		t.Title = strings.TrimSuffix(entryPath[strings.LastIndexByte(entryPath, '\\')+1:], ".conf")
	}
	return t
}

// matchDefault matches an entry file stem against the loader.conf default
// pattern. "*" splits the pattern into fragments that must appear in the
// stem, in order; a pattern without "*" matches by substring.
func matchDefault(stem, pattern string) bool {
	if pattern == "" {
		return false
	}
	rest := stem
	for _, frag := range strings.Split(pattern, "*") {
		if frag == "" {
			continue
		}
		idx := strings.Index(rest, frag)
		if idx < 0 {
			return false
		}
		rest = rest[idx+len(frag):]
	}
	return true
}
