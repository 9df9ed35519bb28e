package slicer

import (
	stderrors "errors"
	"regexp"
	"strconv"
	"strings"

	"gcodeview/pkg/errors"
	"gcodeview/pkg/geom"
)

// HeaderScanLines is how many trailing lines PrusaSlicer's config dump is
// searched in.
const HeaderScanLines = 350

var repeatedSpace = regexp.MustCompile(`\s+`)

// prusaSlicer tolerates renamed features across PrusaSlicer releases and
// reads nozzle diameters from the configuration block at the end of the file.
type prusaSlicer struct {
	*tableClassifier
}

func newPrusaSlicer() *prusaSlicer {
	c := newTableClassifier(PrusaSlicer, prusaSlicerFeatures, Feature{Color: geom.White})
	c.lookup = lookupPrusaFeature
	return &prusaSlicer{c}
}

// normalizeFeature upper-cases, maps '-' and '_' to spaces and collapses runs.
func normalizeFeature(name string) string {
	key := strings.ToUpper(name)
	key = strings.NewReplacer("-", " ", "_", " ").Replace(key)
	return strings.TrimSpace(repeatedSpace.ReplaceAllString(key, " "))
}

func lookupPrusaFeature(name string) (Feature, bool) {
	key := normalizeFeature(name)
	if f, ok := prusaSlicerFeatures[key]; ok {
		return f, true
	}

	has := func(words ...string) bool {
		for _, w := range words {
			if !strings.Contains(key, w) {
				return false
			}
		}
		return true
	}

	var alias string
	switch {
	case has("TOP", "SOLID", "INFILL"):
		alias = "TOP SOLID INFILL"
	case has("SOLID", "INFILL"):
		alias = "SOLID INFILL"
	case has("BRIDGE", "INFILL"):
		alias = "BRIDGE INFILL"
	case has("GAP", "FILL"):
		alias = "GAP FILL"
	case has("EXTERNAL", "PERIMETER"):
		alias = "EXTERNAL PERIMETER"
	case has("INTERNAL", "INFILL"):
		alias = "INTERNAL INFILL"
	case has("SUPPORT", "INTERFACE"):
		alias = "SUPPORT MATERIAL INTERFACE"
	case has("SUPPORT"):
		alias = "SUPPORT MATERIAL"
	case has("SKIRT"), has("BRIM"):
		alias = "SKIRT/BRIM"
	default:
		return Feature{}, false
	}
	return prusaSlicerFeatures[alias], true
}

// ProcessHeader applies "; nozzle_diameter = 0.4,0.6" to the tool table.
// The setting closest to the end of the file wins.
func (p *prusaSlicer) ProcessHeader(lines []string, tools ToolTable) error {
	start := len(lines) - HeaderScanLines
	if start < 0 {
		start = 0
	}

	for idx := len(lines) - 1; idx >= start; idx-- {
		key, value, ok := headerSetting(lines[idx])
		if !ok || key != "nozzle_diameter" {
			continue
		}

		var errs []error
		for tool, raw := range strings.Split(value, ",") {
			raw = strings.TrimSpace(raw)
			d, err := strconv.ParseFloat(raw, 64)
			if err != nil || d <= 0 {
				errs = append(errs, errors.SlicerHeaderError(key, raw, err).SetContext("tool", tool))
				continue
			}
			tools.SetToolDiameter(tool, d)
		}
		return stderrors.Join(errs...)
	}

	p.logger.Debug("no nozzle_diameter in the last %d lines", HeaderScanLines)
	return nil
}

// headerSetting splits a "; key = value" comment.
func headerSetting(line string) (key, value string, ok bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, ";") {
		return "", "", false
	}
	key, value, ok = strings.Cut(strings.TrimLeft(line, "; "), "=")
	if !ok {
		return "", "", false
	}
	return strings.ToLower(strings.TrimSpace(key)), strings.TrimSpace(value), true
}
