package config

import (
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Section is one "[name]" block. Getters take an optional fallback; without
// one a missing option is an error.
type Section struct {
	name    string
	options map[string]string

	mu       sync.Mutex
	accessed map[string]struct{}
}

func newSection(name string, options map[string]string) *Section {
	opts := make(map[string]string, len(options))
	for k, v := range options {
		opts[strings.ToLower(k)] = v
	}
	return &Section{name: name, options: opts, accessed: make(map[string]struct{})}
}

// Name returns the section header.
func (s *Section) Name() string { return s.name }

// Has reports whether option is set.
func (s *Section) Has(option string) bool {
	_, ok := s.options[strings.ToLower(option)]
	return ok
}

// UnusedOptions lists options never read, sorted.
func (s *Section) UnusedOptions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for opt := range s.options {
		if _, ok := s.accessed[opt]; !ok {
			out = append(out, opt)
		}
	}
	sort.Strings(out)
	return out
}

// lookup returns the raw value and marks the option read.
func (s *Section) lookup(option string) (string, bool) {
	key := strings.ToLower(option)
	s.mu.Lock()
	s.accessed[key] = struct{}{}
	s.mu.Unlock()
	v, ok := s.options[key]
	return v, ok
}

// value resolves option with parse, falling back when it is unset.
func value[T any](s *Section, option string, fallback []T, expected string, parse func(string) (T, error)) (T, error) {
	var zero T
	raw, ok := s.lookup(option)
	if !ok {
		if len(fallback) > 0 {
			return fallback[0], nil
		}
		return zero, missingOption(s.name, option)
	}
	v, err := parse(strings.TrimSpace(raw))
	if err != nil {
		return zero, invalidValue(s.name, option, raw, expected)
	}
	return v, nil
}

// Get returns a string option.
func (s *Section) Get(option string, fallback ...string) (string, error) {
	return value(s, option, fallback, "string", func(v string) (string, error) { return v, nil })
}

// GetInt returns an integer option.
func (s *Section) GetInt(option string, fallback ...int) (int, error) {
	return value(s, option, fallback, "integer", strconv.Atoi)
}

// GetFloat returns a float option.
func (s *Section) GetFloat(option string, fallback ...float64) (float64, error) {
	return value(s, option, fallback, "float", func(v string) (float64, error) {
		return strconv.ParseFloat(v, 64)
	})
}

// FloatBounds constrains GetFloatWithBounds. Nil fields are unchecked.
type FloatBounds struct {
	MinVal *float64 // >=
	MaxVal *float64 // <=
	Above  *float64 // >
	Below  *float64 // <
}

// Float is a helper for filling FloatBounds.
func Float(v float64) *float64 { return &v }

// GetFloatWithBounds returns a float option and checks it against bounds.
func (s *Section) GetFloatWithBounds(option string, bounds FloatBounds, fallback ...float64) (float64, error) {
	v, err := s.GetFloat(option, fallback...)
	if err != nil {
		return 0, err
	}
	format := func(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
	switch {
	case bounds.MinVal != nil && v < *bounds.MinVal:
		return 0, outOfRange(s.name, option, v, "must have minimum of "+format(*bounds.MinVal))
	case bounds.MaxVal != nil && v > *bounds.MaxVal:
		return 0, outOfRange(s.name, option, v, "must have maximum of "+format(*bounds.MaxVal))
	case bounds.Above != nil && v <= *bounds.Above:
		return 0, outOfRange(s.name, option, v, "must be above "+format(*bounds.Above))
	case bounds.Below != nil && v >= *bounds.Below:
		return 0, outOfRange(s.name, option, v, "must be below "+format(*bounds.Below))
	}
	return v, nil
}

// GetBool accepts 1/true/yes/on and 0/false/no/off.
func (s *Section) GetBool(option string, fallback ...bool) (bool, error) {
	return value(s, option, fallback, "boolean", func(v string) (bool, error) {
		switch strings.ToLower(v) {
		case "1", "true", "yes", "on":
			return true, nil
		case "0", "false", "no", "off":
			return false, nil
		}
		return false, strconv.ErrSyntax
	})
}

// GetChoice returns the choice matching the option case-insensitively.
func (s *Section) GetChoice(option string, choices []string, fallback ...string) (string, error) {
	v, err := s.Get(option, fallback...)
	if err != nil {
		return "", err
	}
	for _, c := range choices {
		if strings.EqualFold(v, c) {
			return c, nil
		}
	}
	return "", invalidChoice(s.name, option, v, choices)
}

// GetFloatList splits a float list on sep, skipping empty entries.
func (s *Section) GetFloatList(option, sep string, fallback ...[]float64) ([]float64, error) {
	return value(s, option, fallback, "float list", func(v string) ([]float64, error) {
		out := []float64{}
		for _, p := range strings.Split(v, sep) {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			f, err := strconv.ParseFloat(p, 64)
			if err != nil {
				return nil, err
			}
			out = append(out, f)
		}
		return out, nil
	})
}
