package config

import (
	"strconv"
	"strings"

	"github.com/superboot/superboot/pkg/bootconfig"
)

// LimineParser reads limine.cfg. A line starting with "/" opens a section
// whose name is the menu title; indented "key: value" lines inside fill
// the entry. Sections commit on the next header or end-of-file.
type LimineParser struct{}

func NewLimineParser() *LimineParser { return &LimineParser{} }

func (p *LimineParser) Name() string                { return "limine" }
func (p *LimineParser) Type() bootconfig.ConfigType { return bootconfig.ConfigTypeLimine }

func (p *LimineParser) ProbePaths() []string {
	return []string{
		`\limine.cfg`,
		`\boot\limine\limine.cfg`,
		`\EFI\BOOT\limine.cfg`,
	}
}

func (p *LimineParser) Parse(data []byte, _ Reader, device, configPath string, capacity int) (*Result, error) {
	res := &Result{Timeout: -1}
	var cur *bootconfig.BootTarget

	commit := func() {
		if cur == nil {
			return
		}
		if cur.IsValid() && len(res.Targets) < capacity {
			res.Targets = append(res.Targets, *cur)
		}
		cur = nil
	}

	for _, raw := range strings.Split(string(data), "\n") {
		if title, ok := limineHeader(raw); ok {
			commit()
			cur = &bootconfig.BootTarget{
				Title:      truncate(title, bootconfig.MaxTitle),
				Type:       bootconfig.ConfigTypeLimine,
				ConfigPath: configPath,
				Device:     device,
			}
			continue
		}
		key, value, ok := strings.Cut(strings.TrimSpace(raw), ":")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)
		if cur == nil {
			// Top-level keys apply to the whole menu.
			if key == "timeout" {
				if n, err := strconv.Atoi(value); err == nil {
					res.Timeout = n
				}
			}
			continue
		}
		switch key {
		case "kernel_path":
			cur.KernelPath = normalizePath(value)
		case "module_path":
			cur.AddInitrd(normalizePath(value))
		case "kernel_cmdline", "cmdline":
			cur.SetCmdline(value)
		case "protocol":
			if strings.EqualFold(value, "chainload") {
				cur.IsChainload = true
			}
		case "path", "image_path":
			cur.EFIPath = normalizePath(value)
			cur.IsChainload = true
		}
	}
	commit()
	return res, nil
}

// limineHeader reports whether the unindented line opens a section and
// returns its name. Leading slashes beyond the first mark nesting depth
// and are dropped.
func limineHeader(line string) (string, bool) {
	if line == "" || line[0] != '/' {
		return "", false
	}
	return strings.TrimSpace(strings.TrimLeft(line, "/")), true
}
