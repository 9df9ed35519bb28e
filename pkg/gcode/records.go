// Package gcode interprets G-code one line at a time.
//
// ProcessLine recognizes the command on a line, applies its effect to a
// machine.State and returns exactly one Record describing the line.
package gcode

import (
	"encoding/json"
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
)

// Kind tags the variant of a Record.
type Kind int

const (
	KindComment Kind = iota
	KindCommand
	KindMCode
	KindMove
	KindArc
)

var kindNames = [...]string{
	KindComment: "comment",
	KindCommand: "command",
	KindMCode:   "mcode",
	KindMove:    "move",
	KindArc:     "arc",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) {
	if k < 0 || int(k) >= len(kindNames) {
		return nil, fmt.Errorf("invalid record kind %d", int(k))
	}
	return []byte(kindNames[k]), nil
}

// UnmarshalText parses a kind name.
func (k *Kind) UnmarshalText(b []byte) error {
	for i, name := range kindNames {
		if name == string(b) {
			*k = Kind(i)
			return nil
		}
	}
	return fmt.Errorf("unknown record kind %q", b)
}

// LineType distinguishes extrusion, travel and arc moves.
type LineType byte

const (
	LineExtrude LineType = 'L'
	LineTravel  LineType = 'T'
	LineArc     LineType = 'A'
)

func (t LineType) String() string { return string(rune(t)) }

func (t LineType) MarshalText() ([]byte, error) { return []byte{byte(t)}, nil }

func (t *LineType) UnmarshalText(b []byte) error {
	if len(b) != 1 {
		return fmt.Errorf("invalid line type %q", b)
	}
	*t = LineType(b[0])
	return nil
}

// Header is shared by every record.
type Header struct {
	Line         string `json:"line"`
	LineNumber   int    `json:"line_number"`
	FilePosition int64  `json:"file_position"`
}

// Head returns the header.
func (h *Header) Head() *Header { return h }

// Record is one interpreted line: *Comment, *Command, *MCode, *Move or
// *ArcMove. The set is closed.
type Record interface {
	Kind() Kind
	Head() *Header
	record()
}

// Comment is a blank line, a comment, or a line with no recognized command.
// Annotation describes the line when the interpreter knows what it means.
type Comment struct {
	Header
	Annotation string `json:"annotation,omitempty"`
}

// Command is a G command without geometry.
type Command struct {
	Header
	Code string `json:"code"`
}

// MCode is an M command without geometry.
type MCode struct {
	Header
	Code string `json:"code"`
}

// Move is a straight toolpath segment. Positions are in internal space.
type Move struct {
	Header
	Tool         int        `json:"tool"`
	Start        mgl64.Vec3 `json:"start"`
	End          mgl64.Vec3 `json:"end"`
	Extruding    bool       `json:"extruding"`
	Color        mgl64.Vec4 `json:"color"`
	FeatureColor mgl64.Vec4 `json:"feature_color"`
	FeedRate     float64    `json:"feed_rate"`
	LayerHeight  float64    `json:"layer_height"`
	IsPerimeter  bool       `json:"is_perimeter"`
	IsSupport    bool       `json:"is_support"`
	LineType     LineType   `json:"line_type"`
}

// Length is the distance between Start and End.
func (m *Move) Length() float64 {
	return m.End.Sub(m.Start).Len()
}

// ArcMove is a G2/G3 arc with its polyline decomposition.
type ArcMove struct {
	Move
	Segments []Move `json:"segments"`
}

// Length sums the segment lengths.
func (a *ArcMove) Length() float64 {
	var l float64
	for i := range a.Segments {
		l += a.Segments[i].Length()
	}
	return l
}

func (*Comment) Kind() Kind { return KindComment }
func (*Command) Kind() Kind { return KindCommand }
func (*MCode) Kind() Kind   { return KindMCode }
func (*Move) Kind() Kind    { return KindMove }
func (*ArcMove) Kind() Kind { return KindArc }

func (*Comment) record() {}
func (*Command) record() {}
func (*MCode) record()   {}
func (*Move) record()    {}
func (*ArcMove) record() {}

// Extruding reports whether r deposits material.
func Extruding(r Record) bool {
	switch v := r.(type) {
	case *Move:
		return v.Extruding
	case *ArcMove:
		return v.Extruding
	}
	return false
}

// Envelope carries a record together with its variant tag for JSON.
type Envelope struct {
	Kind   Kind   `json:"kind"`
	Record Record `json:"record"`
}

// Wrap tags r for encoding.
func Wrap(r Record) Envelope {
	return Envelope{Kind: r.Kind(), Record: r}
}

// UnmarshalJSON decodes the record into the variant named by kind.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	var raw struct {
		Kind   Kind            `json:"kind"`
		Record json.RawMessage `json:"record"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var r Record
	switch raw.Kind {
	case KindComment:
		r = &Comment{}
	case KindCommand:
		r = &Command{}
	case KindMCode:
		r = &MCode{}
	case KindMove:
		r = &Move{}
	case KindArc:
		r = &ArcMove{}
	default:
		return fmt.Errorf("unknown record kind %d", int(raw.Kind))
	}
	if err := json.Unmarshal(raw.Record, r); err != nil {
		return fmt.Errorf("decode %s record: %w", raw.Kind, err)
	}
	e.Kind, e.Record = raw.Kind, r
	return nil
}
