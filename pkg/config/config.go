package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gcodeview/pkg/errors"
)

// Config is a parsed profile. Sections keep their file order.
type Config struct {
	mu       sync.RWMutex
	sections map[string]*Section
	order    []string
	accessed map[string]struct{}
}

// New creates an empty Config.
func New() *Config {
	return &Config{
		sections: make(map[string]*Section),
		accessed: make(map[string]struct{}),
	}
}

// Load reads the profile at path, following [include] sections.
func Load(path string) (*Config, error) {
	c := New()
	if err := c.loadFile(path, make(map[string]bool)); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadString parses a profile held in memory. Includes are resolved
// against the working directory.
func LoadString(data string) (*Config, error) {
	c := New()
	p := &parser{cfg: c, name: "<string>", dir: ".", visited: make(map[string]bool)}
	if err := p.parse(strings.NewReader(data)); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) loadFile(path string, visited map[string]bool) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return errors.Wrap(err, errors.ErrConfigSection, "invalid path "+path)
	}
	if visited[abs] {
		return errors.Newf(errors.ErrConfigSection, "recursive include of %s", path)
	}
	visited[abs] = true
	defer delete(visited, abs)

	f, err := os.Open(abs)
	if err != nil {
		return errors.Wrap(err, errors.ErrConfigSection, "unable to open "+path)
	}
	defer f.Close()

	p := &parser{cfg: c, name: path, dir: filepath.Dir(abs), visited: visited}
	return p.parse(f)
}

// parser holds the state of one file being read.
type parser struct {
	cfg     *Config
	name    string
	dir     string
	visited map[string]bool

	section string
	options map[string]string
}

func (p *parser) flush() {
	if p.section != "" {
		p.cfg.addSection(p.section, p.options)
	}
	p.section, p.options = "", nil
}

func (p *parser) parse(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := stripComment(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			p.flush()
			header := strings.TrimSpace(line[1 : len(line)-1])
			if header == "" {
				return syntaxError(p.name, lineNum, "empty section header")
			}
			if target, ok := strings.CutPrefix(header, "include "); ok {
				if err := p.include(strings.TrimSpace(target), lineNum); err != nil {
					return err
				}
				continue
			}
			p.section = header
			p.options = make(map[string]string)
			continue
		}

		// options before the first section are ignored
		if p.section == "" {
			continue
		}

		key, value, ok := splitOption(line)
		if !ok {
			return syntaxError(p.name, lineNum, fmt.Sprintf("expected 'key: value', got %q", line))
		}
		p.options[key] = value
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrap(err, errors.ErrConfigSection, "error reading "+p.name)
	}
	p.flush()
	return nil
}

func (p *parser) include(spec string, lineNum int) error {
	if spec == "" {
		return syntaxError(p.name, lineNum, "empty include")
	}
	pattern := spec
	if !filepath.IsAbs(pattern) {
		pattern = filepath.Join(p.dir, spec)
	}
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return syntaxError(p.name, lineNum, fmt.Sprintf("invalid include pattern %q", spec))
	}
	if len(matches) == 0 && !strings.ContainsAny(pattern, "*?[") {
		return syntaxError(p.name, lineNum, "include file does not exist: "+pattern)
	}
	sort.Strings(matches)
	for _, m := range matches {
		if err := p.cfg.loadFile(m, p.visited); err != nil {
			return err
		}
	}
	return nil
}

func stripComment(line string) string {
	if idx := strings.IndexAny(line, "#;"); idx >= 0 {
		line = line[:idx]
	}
	return strings.TrimSpace(line)
}

// splitOption accepts "key: value" and "key = value", whichever separator
// comes first.
func splitOption(line string) (key, value string, ok bool) {
	idx := strings.IndexAny(line, ":=")
	if idx <= 0 {
		return "", "", false
	}
	key = strings.ToLower(strings.TrimSpace(line[:idx]))
	if key == "" {
		return "", "", false
	}
	return key, strings.TrimSpace(line[idx+1:]), true
}

// addSection stores options; a repeated section merges into the first,
// later values winning.
func (c *Config) addSection(name string, options map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.sections[name]; ok {
		for k, v := range options {
			existing.options[k] = v
		}
		return
	}
	c.sections[name] = newSection(name, options)
	c.order = append(c.order, name)
}

// Section returns a section or a CONFIG_SECTION error.
func (c *Config) Section(name string) (*Section, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sec, ok := c.sections[name]
	if !ok {
		return nil, missingSection(name)
	}
	c.accessed[name] = struct{}{}
	return sec, nil
}

// SectionOptional returns a section or nil.
func (c *Config) SectionOptional(name string) *Section {
	sec, err := c.Section(name)
	if err != nil {
		return nil
	}
	return sec
}

// HasSection reports whether name was defined.
func (c *Config) HasSection(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.sections[name]
	return ok
}

// SectionNames lists sections in file order.
func (c *Config) SectionNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// PrefixSections returns the sections whose name starts with prefix, in
// file order, marking them accessed.
func (c *Config) PrefixSections(prefix string) []*Section {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []*Section
	for _, name := range c.order {
		if strings.HasPrefix(name, prefix) {
			c.accessed[name] = struct{}{}
			out = append(out, c.sections[name])
		}
	}
	return out
}

// UnusedSections lists sections never looked up, sorted.
func (c *Config) UnusedSections() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []string
	for name := range c.sections {
		if _, ok := c.accessed[name]; !ok {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// UnusedOptions lists "section.option" for every option never read, sorted.
func (c *Config) UnusedOptions() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []string
	for name, sec := range c.sections {
		for _, opt := range sec.UnusedOptions() {
			out = append(out, name+"."+opt)
		}
	}
	sort.Strings(out)
	return out
}
