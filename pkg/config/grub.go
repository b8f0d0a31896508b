package config

import (
	"strconv"
	"strings"

	"github.com/superboot/superboot/pkg/bootconfig"
)

// GrubParser performs selective extraction over grub.cfg: menuentry
// blocks, path-bearing commands and `set` assignments are recognized,
// shell control flow is skipped wholesale. GRUB-as-a-scripting-language
// is deliberately not interpreted; entries whose paths depend on shell
// output show up in the menu and fail at boot, where the command line
// editor is the recovery path.
type GrubParser struct{}

func NewGrubParser() *GrubParser { return &GrubParser{} }

func (g *GrubParser) Name() string                { return "grub" }
func (g *GrubParser) Type() bootconfig.ConfigType { return bootconfig.ConfigTypeGrub }

func (g *GrubParser) ProbePaths() []string {
	return []string{
		`\boot\grub\grub.cfg`,
		`\grub\grub.cfg`,
		`\grub2\grub.cfg`,
		`\boot\grub2\grub.cfg`,
		`\EFI\grub\grub.cfg`,
	}
}

// closers maps shell control-flow openers to the token that ends them.
var closers = map[string]string{
	"if":    "fi",
	"for":   "done",
	"while": "done",
	"until": "done",
	"case":  "esac",
}

type grubState struct {
	vars       varTable
	targets    []bootconfig.BootTarget
	cur        *bootconfig.BootTarget
	skip       []string
	defaultVal string
	timeout    int
	capacity   int
	device     string
	configPath string
}

func (g *GrubParser) Parse(data []byte, _ Reader, device, configPath string, capacity int) (*Result, error) {
	s := &grubState{
		timeout:    -1,
		capacity:   capacity,
		device:     device,
		configPath: configPath,
	}
	for _, line := range strings.Split(string(data), "\n") {
		s.line(splitQuoted(stripComment(line)))
	}
	// An unterminated menuentry at EOF is still worth committing.
	s.commit()
	s.applyDefault()
	return &Result{Targets: s.targets, Timeout: s.timeout}, nil
}

// stripComment cuts "#" to end-of-line, outside quotes.
func stripComment(line string) string {
	var quote byte
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == '#':
			return line[:i]
		}
	}
	return line
}

func (s *grubState) line(tokens []string) {
	i := 0
	for i < len(tokens) {
		tok := tokens[i]

		if len(s.skip) > 0 {
			switch {
			case closers[tok] != "":
				s.skip = append(s.skip, closers[tok])
			case tok == "{":
				s.skip = append(s.skip, "}")
			case tok == s.skip[len(s.skip)-1]:
				s.skip = s.skip[:len(s.skip)-1]
			}
			i++
			continue
		}

		if closer := closers[tok]; closer != "" {
			s.skip = append(s.skip, closer)
			i++
			continue
		}

		switch tok {
		case "set":
			if i+1 < len(tokens) {
				s.assign(tokens[i+1])
			}
			i += 2
		case "function":
			// The body is skipped up to the "}" matching its own "{".
			for i < len(tokens) && tokens[i] != "{" {
				i++
			}
			if i < len(tokens) {
				i++ // consume "{"
			}
			s.skip = append(s.skip, "}")
		case "search":
			for _, t := range tokens[i+1:] {
				if name, ok := strings.CutPrefix(t, "--set="); ok {
					// Resolved to the scanned partition, which is always
					// the device we boot from.
					s.vars.Set(name, "")
				}
			}
			i = len(tokens)
		case "menuentry", "submenu":
			s.commit()
			s.cur = &bootconfig.BootTarget{
				Type:       bootconfig.ConfigTypeGrub,
				ConfigPath: s.configPath,
				Device:     s.device,
			}
			if i+1 < len(tokens) {
				s.cur.Title = truncate(tokens[i+1], bootconfig.MaxTitle)
			}
			i += 2
			for i < len(tokens) && tokens[i] != "{" {
				i++
			}
			if i < len(tokens) {
				i++ // consume "{"
			}
		case "}":
			s.commit()
			i++
		case "{":
			i++
		default:
			i = s.command(tokens, i)
		}
	}
}

// command handles one body command starting at tokens[i]; returns the
// index to resume at (the trailing "}" if present, else end-of-line).
func (s *grubState) command(tokens []string, i int) int {
	end := len(tokens)
	for j := i; j < len(tokens); j++ {
		if tokens[j] == "}" {
			end = j
			break
		}
	}
	if s.cur == nil {
		return end
	}
	args := tokens[i+1 : end]
	switch tokens[i] {
	case "linux", "linux16", "linuxefi":
		if len(args) > 0 {
			s.cur.KernelPath = normalizePath(s.vars.Expand(args[0], bootconfig.MaxPath))
			cmdline := make([]string, 0, len(args)-1)
			for _, a := range args[1:] {
				cmdline = append(cmdline, s.vars.Expand(a, bootconfig.MaxCmdline))
			}
			s.cur.SetCmdline(strings.Join(cmdline, " "))
		}
	case "initrd", "initrd16", "initrdefi":
		for _, a := range args {
			s.cur.AddInitrd(normalizePath(s.vars.Expand(a, bootconfig.MaxPath)))
		}
	case "chainloader":
		if len(args) > 0 {
			s.cur.EFIPath = normalizePath(s.vars.Expand(args[0], bootconfig.MaxPath))
			s.cur.IsChainload = true
		}
	}
	return end
}

// assign handles the argument of `set`.
func (s *grubState) assign(arg string) {
	name, value, ok := strings.Cut(arg, "=")
	if !ok {
		return
	}
	switch name {
	case "default":
		s.defaultVal = value
	case "timeout":
		if n, err := strconv.Atoi(value); err == nil {
			s.timeout = n
		}
	}
	s.vars.Set(name, value)
}

// commit appends the in-flight entry if it names a kernel or an EFI
// payload; anything else is discarded.
func (s *grubState) commit() {
	if s.cur == nil {
		return
	}
	t := s.cur
	s.cur = nil
	if !t.IsValid() || len(s.targets) >= s.capacity {
		return
	}
	s.targets = append(s.targets, *t)
}

// applyDefault resolves `set default=` against the collected entries,
// as a zero-based index or an exact title.
func (s *grubState) applyDefault() {
	if s.defaultVal == "" {
		return
	}
	if n, err := strconv.Atoi(s.defaultVal); err == nil {
		if n >= 0 && n < len(s.targets) {
			s.targets[n].IsDefault = true
		}
		return
	}
	for i := range s.targets {
		if s.targets[i].Title == s.defaultVal {
			s.targets[i].IsDefault = true
			return
		}
	}
}
