package gcode

import (
	"strconv"
	"strings"
)

// Args holds the parameter words of a command keyed by letter.
type Args map[byte]float64

// Has reports whether letter was given.
func (a Args) Has(letter byte) bool {
	_, ok := a[letter]
	return ok
}

// scanArgs collects letter/number words from an upper-cased line. Spaces
// between words are optional ("G1X10Y5" works). Words without a number and
// the command words themselves are kept like any other letter; later words
// overwrite earlier ones.
func scanArgs(text string) Args {
	args := make(Args, 8)
	for i := 0; i < len(text); {
		c := text[i]
		if c < 'A' || c > 'Z' {
			i++
			continue
		}
		n := numberPrefix(text[i+1:])
		if n > 0 {
			if v, err := strconv.ParseFloat(text[i+1:i+1+n], 64); err == nil {
				args[c] = v
			}
		}
		i += 1 + n
	}
	return args
}

// numberPrefix returns the length of the decimal number at the start of s.
func numberPrefix(s string) int {
	i := 0
	if i < len(s) && (s[i] == '-' || s[i] == '+') {
		i++
	}
	digits := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
		digits++
	}
	if i < len(s) && s[i] == '.' {
		i++
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			i++
			digits++
		}
	}
	if digits == 0 {
		return 0
	}
	return i
}

// parseValue reads the number at the start of s, ignoring surrounding
// whitespace and trailing garbage.
func parseValue(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	n := numberPrefix(s)
	if n == 0 {
		return 0, false
	}
	v, err := strconv.ParseFloat(s[:n], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
