// Package config lowers foreign bootloader configuration files to
// BootTargets. Each parser is tolerant by construction: malformed lines
// are skipped, and only entries that name a kernel or an EFI payload are
// committed.
package config

import (
	"strings"

	logger "github.com/z46-dev/go-logger"

	"github.com/superboot/superboot/pkg/bootconfig"
)

var log = logger.NewLogger().SetPrefix("[CONF]", logger.BoldYellow)

// Reader is the slice of the VFS parsers need to pull in companion files
// (systemd-boot entries live next to loader.conf, not inside it).
type Reader interface {
	ReadFile(device, path string) ([]byte, error)
	FileExists(device, path string) bool
	ReadDir(device, path string) ([]string, error)
}

// Result is one parser invocation's output. Timeout is a menu hint in
// seconds, -1 when the config does not carry one.
type Result struct {
	Targets []bootconfig.BootTarget
	Timeout int
}

// Parser turns one config file into boot targets. ProbePaths are tried in
// order; the first existing path on a partition is the only one parsed.
type Parser interface {
	Name() string
	Type() bootconfig.ConfigType
	ProbePaths() []string
	Parse(data []byte, r Reader, device, configPath string, capacity int) (*Result, error)
}

// Parsers returns the registered parsers in declaration order, which is
// also scan order.
func Parsers() []Parser {
	return []Parser{
		NewGrubParser(),
		NewSystemdBootParser(),
		NewLimineParser(),
	}
}

// normalizePath lowers a config-file path reference to the canonical
// backslash form: device prefixes like "(hd0,gpt2)", "boot():" and
// "guid(...):" are dropped because the scanned partition is always
// authoritative, and "/" becomes "\".
func normalizePath(p string) string {
	p = strings.TrimSpace(p)
	if strings.HasPrefix(p, "(") {
		depth := 0
		for i := 0; i < len(p); i++ {
			if p[i] == '(' {
				depth++
			} else if p[i] == ')' {
				depth--
				if depth == 0 {
					p = p[i+1:]
					break
				}
			}
		}
	}
	if rest, ok := strings.CutPrefix(p, "boot():"); ok {
		p = rest
	} else if strings.HasPrefix(p, "guid(") {
		if end := strings.Index(p, "):"); end >= 0 {
			p = p[end+2:]
		}
	}
	p = strings.ReplaceAll(p, "/", `\`)
	if p != "" && !strings.HasPrefix(p, `\`) {
		p = `\` + p
	}
	if len(p) > bootconfig.MaxPath {
		return ""
	}
	return p
}

// splitQuoted splits a line on whitespace, keeping single- or
// double-quoted runs together and stripping the quotes.
func splitQuoted(line string) []string {
	var (
		fields  []string
		current strings.Builder
		quote   byte
		started bool
	)
	flush := func() {
		if started {
			fields = append(fields, current.String())
			current.Reset()
			started = false
		}
	}
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			} else {
				current.WriteByte(c)
			}
		case c == '\'' || c == '"':
			quote = c
			started = true
		case c == ' ' || c == '\t':
			flush()
		default:
			current.WriteByte(c)
			started = true
		}
	}
	flush()
	return fields
}

// truncate bounds a title to the menu limit.
func truncate(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}
