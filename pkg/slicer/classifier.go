package slicer

import (
	"strings"

	"github.com/go-gl/mathgl/mgl64"

	"gcodeview/pkg/log"
)

// tableClassifier resolves ";TYPE:" names through a static table.
type tableClassifier struct {
	kind     Kind
	table    map[string]Feature
	fallback Feature

	// lookup overrides the plain table lookup when set
	lookup func(name string) (Feature, bool)

	current Feature

	unknown []string
	seen    map[string]struct{}
	logger  *log.Logger
}

func newTableClassifier(kind Kind, table map[string]Feature, fallback Feature) *tableClassifier {
	return &tableClassifier{
		kind:     kind,
		table:    table,
		fallback: fallback,
		current:  defaultFeature,
		seen:     make(map[string]struct{}),
		logger:   log.GetLogger("slicer"),
	}
}

func (c *tableClassifier) Kind() Kind   { return c.kind }
func (c *tableClassifier) Name() string { return c.kind.String() }

func (c *tableClassifier) ProcessComment(line string) {
	name, ok := featureName(line)
	if !ok {
		return
	}

	var f Feature
	if c.lookup != nil {
		f, ok = c.lookup(name)
	} else {
		f, ok = c.table[strings.ToUpper(name)]
	}
	if !ok {
		c.reportUnknown(name)
		f = c.fallback
	}
	c.current = f
}

func (c *tableClassifier) FeatureColor() mgl64.Vec4 { return c.current.Color }
func (c *tableClassifier) IsPerimeter() bool        { return c.current.Perimeter }
func (c *tableClassifier) IsSupport() bool          { return c.current.Support }

func (c *tableClassifier) ProcessHeader([]string, ToolTable) error { return nil }

func (c *tableClassifier) UnknownFeatures() []string {
	out := make([]string, len(c.unknown))
	copy(out, c.unknown)
	return out
}

// reportUnknown logs each unknown feature name once per classifier.
func (c *tableClassifier) reportUnknown(name string) {
	if _, dup := c.seen[name]; dup {
		return
	}
	c.seen[name] = struct{}{}
	c.unknown = append(c.unknown, name)
	c.logger.WithFields(log.Fields{"slicer": c.Name(), "feature": name}).Warn("unknown slicer feature")
}

// featureName extracts the name from a ";TYPE:" comment, case-insensitively.
func featureName(line string) (string, bool) {
	line = strings.TrimSpace(line)
	if len(line) < len(featurePrefix) || !strings.EqualFold(line[:len(featurePrefix)], featurePrefix) {
		return "", false
	}
	return strings.TrimSpace(line[len(featurePrefix):]), true
}

func feature(r, g, b float64, perimeter, support bool) Feature {
	return Feature{Color: mgl64.Vec4{r, g, b, 1}, Perimeter: perimeter, Support: support}
}

var curaFeatures = map[string]Feature{
	"SKIN":       feature(1, 0.9, 0.3, true, false),
	"WALL-OUTER": feature(1, 0.5, 0.2, true, false),
	"WALL-INNER": feature(0.59, 0.19, 0.16, false, false),
	"FILL":       feature(0.95, 0.25, 0.25, false, false),
	"SKIRT":      feature(0, 0.53, 0.43, false, false),
	"SUPPORT":    feature(0, 0.53, 0.43, false, true),
	"CUSTOM":     feature(0.5, 0.5, 0.5, false, false),
	"UNKNOWN":    feature(0.5, 0.5, 0.5, false, false),
}

var kiriMotoFeatures = map[string]Feature{
	"SHELLS":                     feature(1, 0.9, 0.3, true, false),
	"SPARSE INFILL":              feature(0.59, 0.19, 0.16, false, false),
	"SOLID FILL":                 feature(0.59, 0.19, 0.8, true, false),
	"UNKNOWN":                    feature(0.5, 0.5, 0.5, false, false),
	"SUPPORT MATERIAL":           feature(0.5, 0.5, 0.5, false, true),
	"SUPPORT MATERIAL INTERFACE": feature(0.5, 0.5, 0.5, false, true),
	"OVERHANG PERIMETER":         feature(0.5, 0.5, 0.5, true, false),
	"WIPE TOWER":                 feature(0.5, 0.5, 0.5, true, false),
}

var orcaSlicerFeatures = map[string]Feature{
	"OUTER WALL":            feature(1, 0.9, 0.3, true, false),
	"INNER WALL":            feature(1, 0.49, 0.22, false, false),
	"OVERHANG WALL":         feature(0.15, 0.16, 0.75, false, false),
	"SPARSE INFILL":         feature(0.69, 0.19, 0.16, false, false),
	"INTERNAL SOLID INFILL": feature(0.59, 0.33, 0.8, false, false),
	"TOP SURFACE":           feature(0.7, 0.22, 0.22, true, false),
	"BOTTOM SURFACE":        feature(0.4, 0.36, 0.78, true, false),
	"BRIDGE":                feature(0.3, 0.5, 0.73, false, false),
	"CUSTOM":                feature(0.37, 0.82, 0.58, false, false),
	"SUPPORT":               feature(0, 1, 0, false, true),
	"SUPPORT INTERFACE":     feature(0.12, 0.38, 0.13, false, true),
	"PRIME TOWER":           feature(0.7, 0.89, 0.67, false, false),
}

// prusaFamilyFeatures is shared by PrusaSlicer and SuperSlicer; the two
// differ only in the entries patched in below.
func prusaFamilyFeatures(supportMaterial, wipeTowerPerimeter bool) map[string]Feature {
	return map[string]Feature{
		"PERIMETER":                    feature(1, 0.9, 0.3, false, false),
		"EXTERNAL PERIMETER":           feature(1, 0.5, 0.2, true, false),
		"INTERNAL INFILL":              feature(0.59, 0.19, 0.16, false, false),
		"SOLID INFILL":                 feature(0.59, 0.19, 0.8, false, false),
		"TOP SOLID INFILL":             feature(0.95, 0.25, 0.25, true, false),
		"BRIDGE INFILL":                feature(0.3, 0.5, 0.73, false, false),
		"GAP FILL":                     feature(1, 1, 1, false, false),
		"SKIRT":                        feature(0, 0.53, 0.43, false, false),
		"SKIRT/BRIM":                   feature(0, 0.53, 0.43, false, false),
		"SUPPORTED MATERIAL":           feature(0, 1, 0, false, true),
		"SUPPORTED MATERIAL INTERFACE": feature(0, 0.5, 0, false, true),
		"CUSTOM":                       feature(0.5, 0.5, 0.5, false, false),
		"UNKNOWN":                      feature(0.5, 0.5, 0.5, false, false),
		"SUPPORT MATERIAL":             feature(0.5, 0.5, 0.5, false, supportMaterial),
		"SUPPORT MATERIAL INTERFACE":   feature(0.5, 0.5, 0.5, false, supportMaterial),
		"OVERHANG PERIMETER":           feature(0.5, 0.5, 0.5, true, false),
		"WIPE TOWER":                   feature(0.5, 0.5, 0.5, wipeTowerPerimeter, false),
	}
}

var (
	prusaSlicerFeatures = prusaFamilyFeatures(true, true)
	superSlicerFeatures = prusaFamilyFeatures(false, false)
)
