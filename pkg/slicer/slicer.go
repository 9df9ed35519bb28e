// Package slicer classifies toolpaths by the feature comments slicers embed
// in G-code (";TYPE:WALL-OUTER", ";TYPE:External perimeter", ...).
//
// One Classifier is created per parsed file, chosen by Kind. The interpreter
// feeds it every comment line and reads the current classification when it
// builds a move.
package slicer

import (
	"fmt"
	"strings"

	"github.com/go-gl/mathgl/mgl64"

	"gcodeview/pkg/geom"
)

// featurePrefix marks a feature change in every supported slicer
const featurePrefix = ";TYPE:"

// Feature is the classification of one slicer feature.
type Feature struct {
	Color     mgl64.Vec4
	Perimeter bool
	Support   bool
}

// defaultFeature applies before the first feature comment.
var defaultFeature = Feature{Color: geom.White, Perimeter: true}

// ToolTable is the part of the machine state a header scan may update.
type ToolTable interface {
	NumTools() int
	SetToolDiameter(index int, diameter float64)
}

// Classifier maps feature comments to colors and roles.
type Classifier interface {
	Kind() Kind
	Name() string

	// ProcessComment inspects a comment line for a feature marker
	ProcessComment(line string)

	FeatureColor() mgl64.Vec4
	IsPerimeter() bool
	IsSupport() bool

	// ProcessHeader reads metadata from the head or tail of the file.
	// Errors are informational; valid entries are applied regardless.
	ProcessHeader(lines []string, tools ToolTable) error

	// UnknownFeatures lists unrecognized feature names in first-seen order
	UnknownFeatures() []string
}

// Kind names a supported slicer.
type Kind int

const (
	Generic Kind = iota
	Cura
	PrusaSlicer
	SuperSlicer
	KiriMoto
	OrcaSlicer
)

var kindNames = [...]string{
	Generic:     "generic",
	Cura:        "cura",
	PrusaSlicer: "prusaslicer",
	SuperSlicer: "superslicer",
	KiriMoto:    "kirimoto",
	OrcaSlicer:  "orcaslicer",
}

// String returns the lower-case slicer name
func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// Kinds lists every supported slicer
func Kinds() []Kind {
	return []Kind{Generic, Cura, PrusaSlicer, SuperSlicer, KiriMoto, OrcaSlicer}
}

// ParseKind parses a slicer name; "auto" and "" are not kinds and fail.
func ParseKind(s string) (Kind, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.NewReplacer("-", "", "_", "", " ", "", ":", "").Replace(key)
	switch key {
	case "generic", "unknown", "none":
		return Generic, nil
	case "cura", "ultimakercura":
		return Cura, nil
	case "prusa", "prusaslicer":
		return PrusaSlicer, nil
	case "superslicer":
		return SuperSlicer, nil
	case "kiri", "kirimoto":
		return KiriMoto, nil
	case "orca", "orcaslicer", "bambustudio":
		return OrcaSlicer, nil
	}
	return Generic, fmt.Errorf("unknown slicer %q", s)
}

// New creates a classifier for kind; unknown kinds get the generic one.
func New(kind Kind) Classifier {
	switch kind {
	case Cura:
		return newTableClassifier(Cura, curaFeatures, Feature{Color: geom.White, Perimeter: true})
	case KiriMoto:
		return newTableClassifier(KiriMoto, kiriMotoFeatures, Feature{Color: geom.White, Perimeter: true})
	case OrcaSlicer:
		return newTableClassifier(OrcaSlicer, orcaSlicerFeatures, Feature{Color: geom.White, Perimeter: true})
	case PrusaSlicer:
		return newPrusaSlicer()
	case SuperSlicer:
		return newTableClassifier(SuperSlicer, superSlicerFeatures, Feature{Color: geom.White})
	default:
		return genericClassifier{}
	}
}

// genericClassifier is used when the slicer is unknown: every move is white.
type genericClassifier struct{}

func (genericClassifier) Kind() Kind { return Generic }
func (genericClassifier) Name() string { return Generic.String() }
func (genericClassifier) ProcessComment(string) {}
func (genericClassifier) FeatureColor() mgl64.Vec4 { return defaultFeature.Color }
func (genericClassifier) IsPerimeter() bool { return defaultFeature.Perimeter }
func (genericClassifier) IsSupport() bool { return defaultFeature.Support }
func (genericClassifier) ProcessHeader([]string, ToolTable) error { return nil }
func (genericClassifier) UnknownFeatures() []string { return nil }
