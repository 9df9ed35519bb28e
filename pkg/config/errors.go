// Package config reads INI-style machine profiles.
//
// Options are written "key: value" or "key = value" under "[section]"
// headers; "#" and ";" start comments and "[include path]" pulls in other
// files relative to the including one. Sections track which options were
// read so unused settings can be reported.
package config

import (
	"fmt"

	"gcodeview/pkg/errors"
)

func missingSection(section string) *errors.HostError {
	return errors.Newf(errors.ErrConfigSection, "section '%s' not found", section).
		SetSection(section)
}

func missingOption(section, option string) *errors.HostError {
	return errors.Newf(errors.ErrConfigOption, "option '%s' in section '%s' must be specified", option, section).
		SetSection(section).
		SetOption(option)
}

func invalidValue(section, option, value, expected string) *errors.HostError {
	return errors.Newf(errors.ErrConfigOption, "option '%s' in section '%s': invalid value '%s', expected %s",
		option, section, value, expected).
		SetSection(section).
		SetOption(option)
}

func outOfRange(section, option string, value float64, constraint string) *errors.HostError {
	return errors.ConfigValidationError(section, option, fmt.Sprintf("value %v %s", value, constraint))
}

func invalidChoice(section, option, value string, choices []string) *errors.HostError {
	return errors.ConfigValidationError(section, option,
		fmt.Sprintf("'%s' is not a valid choice (valid: %v)", value, choices))
}

func syntaxError(path string, line int, msg string) *errors.HostError {
	return errors.Newf(errors.ErrConfigSection, "%s:%d: %s", path, line, msg).
		SetContext("path", path)
}
