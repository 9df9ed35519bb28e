// Typed errors for gcodeview
//
// Copyright (C) 2026  gcodeview authors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode is the category of an error
type ErrorCode string

const (
	// Configuration errors
	ErrConfigSection    ErrorCode = "CONFIG_SECTION"
	ErrConfigOption     ErrorCode = "CONFIG_OPTION"
	ErrConfigValidation ErrorCode = "CONFIG_VALIDATION"

	// G-code interpretation
	ErrGCodeParse ErrorCode = "GCODE_PARSE"
	ErrArcRadius  ErrorCode = "ARC_RADIUS"

	// Slicer metadata
	ErrSlicerHeader ErrorCode = "SLICER_HEADER"

	// File loading
	ErrLoader ErrorCode = "LOADER"

	// Runtime errors
	ErrRuntime ErrorCode = "RUNTIME"
)

// HostError is the error type shared by all gcodeview packages
type HostError struct {
	Code    ErrorCode
	Message string

	// Line is the zero-based G-code line number, -1 when unknown
	Line int

	// Section and Option locate configuration errors
	Section string
	Option  string

	Err     error
	Context map[string]interface{}
}

// Error implements the error interface
func (e *HostError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Line >= 0 {
		msg = fmt.Sprintf("[%s] line %d: %s", e.Code, e.Line, e.Message)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the wrapped error
func (e *HostError) Unwrap() error {
	return e.Err
}

// SetLine records the G-code line number
func (e *HostError) SetLine(line int) *HostError {
	e.Line = line
	return e
}

// SetSection records the config section
func (e *HostError) SetSection(section string) *HostError {
	e.Section = section
	return e
}

// SetOption records the config option
func (e *HostError) SetOption(option string) *HostError {
	e.Option = option
	return e
}

// SetContext attaches a context value
func (e *HostError) SetContext(key string, value interface{}) *HostError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates a HostError
func New(code ErrorCode, message string) *HostError {
	return &HostError{Code: code, Message: message, Line: -1}
}

// Newf creates a HostError with a formatted message
func Newf(code ErrorCode, format string, args ...interface{}) *HostError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap wraps err under code
func Wrap(err error, code ErrorCode, message string) *HostError {
	return &HostError{Code: code, Message: message, Err: err, Line: -1}
}

// ArcRadiusError reports an R-form arc whose radius cannot span its chord
func ArcRadiusError(radius, chord float64) *HostError {
	return Newf(ErrArcRadius, "radius too small (R=%.4f, chord=%.4f)", radius, chord).
		SetContext("radius", radius).
		SetContext("chord", chord)
}

// SlicerHeaderError reports an unreadable metadata entry in a slicer header or footer
func SlicerHeaderError(key, value string, err error) *HostError {
	return Wrap(err, ErrSlicerHeader, fmt.Sprintf("bad %s value %q", key, value)).
		SetOption(key)
}

// LoaderError reports a file that could not be read
func LoaderError(path string, err error) *HostError {
	return Wrap(err, ErrLoader, fmt.Sprintf("unable to load %s", path)).
		SetContext("path", path)
}

// ConfigValidationError reports a config value that parses but is not usable
func ConfigValidationError(section, option, reason string) *HostError {
	return Newf(ErrConfigValidation, "option '%s' in section '%s': %s", option, section, reason).
		SetSection(section).
		SetOption(option)
}

// Is reports whether any error in err's chain is a HostError with code
func Is(err error, code ErrorCode) bool {
	var he *HostError
	for err != nil {
		if stderrors.As(err, &he) {
			if he.Code == code {
				return true
			}
			err = he.Err
			continue
		}
		return false
	}
	return false
}

// IsConfig reports whether err is a configuration error
func IsConfig(err error) bool {
	return Is(err, ErrConfigSection) ||
		Is(err, ErrConfigOption) ||
		Is(err, ErrConfigValidation)
}
