// Package machine holds the mutable state of a machine while a G-code file
// is interpreted: position, coordinate modes, tool table, workplaces, feed
// rate extremes and belt kinematics.
//
// A State belongs to exactly one parse. It is not safe for concurrent use.
package machine

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"gcodeview/pkg/geom"
	"gcodeview/pkg/slicer"
)

const (
	// DefaultFeedRate is the feed rate before any F word, in units/min.
	DefaultFeedRate = 1500.0

	// MinFeedRateUnset is the sentinel MinFeedRate starts at.
	MinFeedRateUnset = 999999999.0

	// DefaultGantryAngle is the belt gantry angle in degrees.
	DefaultGantryAngle = 45.0

	// DefaultLayerHeight is reported until two extruding heights are known.
	DefaultLayerHeight = 0.2
)

// Units is the length unit selected by G20/G21.
type Units int

const (
	Millimeters Units = iota
	Inches
)

func (u Units) String() string {
	switch u {
	case Millimeters:
		return "mm"
	case Inches:
		return "in"
	default:
		return fmt.Sprintf("units(%d)", int(u))
	}
}

// State is the interpreter's view of the machine.
//
// Position is in internal space: X, height, depth. Workplace offsets and arc
// parameters use G-code axis order.
type State struct {
	Position         mgl64.Vec3
	Absolute         bool
	ExtruderAbsolute bool
	Units            Units

	Tools       []*Tool
	CurrentTool int
	ToolChanges int

	CurrentFeedRate float64
	MinFeedRate     float64
	MaxFeedRate     float64

	WorkplaceIdx     int
	Workplaces       [NumWorkplaces]Workplace
	WorkplaceOffset  mgl64.Vec3
	WorkplaceChanges int

	FirmwareRetraction bool

	// Belt printers project Y and Z through the gantry angle
	ZBelt       bool
	GantryAngle float64
	Hyp         float64
	Adj         float64
	CurrentZ    float64

	ArcPlane         geom.Plane
	FixRadius        bool
	CNCMode          bool
	ArcSegmentLength float64

	// Set by the driver before each line
	LineNumber   int
	FilePosition int64

	FirstGCodeByte    int64
	LastGCodeByte     int64
	HasFirstGCodeByte bool

	SpindleSpeed     float64
	SpindleOn        bool
	SpindleClockwise bool
	FanSpeed         float64
	BedTemperature   float64
	BedLeveling      bool

	// StepsPerUnit is the last M92 setting for X, Y, Z, E
	StepsPerUnit [4]float64

	LayerHeight    float64
	PreviousHeight float64
	MinHeight      float64
	MaxHeight      float64
	HasHeight      bool

	Slicer slicer.Classifier
}

// NewState returns a state with the machine defaults and a generic slicer.
func NewState() *State {
	s := &State{
		Absolute:         true,
		ExtruderAbsolute: true,
		Units:            Millimeters,
		Tools:            DefaultTools(),
		CurrentFeedRate:  DefaultFeedRate,
		MinFeedRate:      MinFeedRateUnset,
		ArcPlane:         geom.PlaneXY,
		ArcSegmentLength: geom.DefaultSegmentLength,
		LayerHeight:      DefaultLayerHeight,
		Slicer:           slicer.New(slicer.Generic),
	}
	s.SetGantryAngle(DefaultGantryAngle)
	return s
}

// SetGantryAngle sets the belt gantry angle in degrees and derives the
// projection factors.
func (s *State) SetGantryAngle(degrees float64) {
	s.GantryAngle = degrees * math.Pi / 180
	s.Hyp = math.Cos(s.GantryAngle)
	s.Adj = math.Tan(s.GantryAngle)
}

// SetSlicer replaces the classifier; nil selects the generic one.
func (s *State) SetSlicer(c slicer.Classifier) {
	if c == nil {
		c = slicer.New(slicer.Generic)
	}
	s.Slicer = c
}

// FeedRateApplies reports whether an F word seen so far on a move line is
// recorded. Only moves already flagged as extruding when the F word is
// reached update the feed rate, so "G1 F1200 X10 E1" leaves it untouched.
func FeedRateApplies(extruding bool) bool {
	return extruding
}

// UpdateFeedRate records f as the current feed rate and widens the extremes.
// Zero never lowers MinFeedRate.
func (s *State) UpdateFeedRate(f float64) {
	s.CurrentFeedRate = f
	if f != 0 && f < s.MinFeedRate {
		s.MinFeedRate = f
	}
	if f > s.MaxFeedRate {
		s.MaxFeedRate = f
	}
}

// TrackHeight updates layer height and height extremes after an extruding
// move that ends at height h.
func (s *State) TrackHeight(h float64) {
	if !s.HasHeight {
		s.MinHeight, s.MaxHeight = h, h
		s.HasHeight = true
	} else {
		s.MinHeight = math.Min(s.MinHeight, h)
		s.MaxHeight = math.Max(s.MaxHeight, h)
	}
	if h > s.PreviousHeight {
		if s.PreviousHeight > 0 {
			s.LayerHeight = h - s.PreviousHeight
		}
		s.PreviousHeight = h
	}
}

// MarkGCodeByte records the offset of an extruding move.
func (s *State) MarkGCodeByte(pos int64) {
	if !s.HasFirstGCodeByte {
		s.FirstGCodeByte = pos
		s.HasFirstGCodeByte = true
	}
	s.LastGCodeByte = pos
}

// NumTools implements slicer.ToolTable.
func (s *State) NumTools() int { return len(s.Tools) }

// SetToolDiameter implements slicer.ToolTable, extending the table as needed.
// Indexes outside the table bound are ignored.
func (s *State) SetToolDiameter(index int, diameter float64) {
	if index < 0 || !ValidToolIndex(index) {
		return
	}
	s.ensureTool(index).Diameter = diameter
}

// Tool returns tool index, creating it and any missing lower tools. It
// returns nil for indexes at or above MaxTools.
func (s *State) Tool(index int) *Tool {
	if !ValidToolIndex(index) {
		return nil
	}
	if index < 0 {
		index = 0
	}
	return s.ensureTool(index)
}

// ActiveTool returns the currently selected tool.
func (s *State) ActiveTool() *Tool {
	return s.Tool(s.CurrentTool)
}

// SelectTool makes index the current tool. Negative indexes select T0.
// Indexes at or above MaxTools leave the state unchanged and return nil.
func (s *State) SelectTool(index int) *Tool {
	if !ValidToolIndex(index) {
		return nil
	}
	if index < 0 {
		index = 0
	}
	t := s.ensureTool(index)
	if index != s.CurrentTool {
		s.ToolChanges++
	}
	s.CurrentTool = index
	return t
}

func (s *State) ensureTool(index int) *Tool {
	for len(s.Tools) <= index {
		s.Tools = append(s.Tools, NewTool(len(s.Tools)))
	}
	return s.Tools[index]
}
