package machine

import (
	"image/color"

	"github.com/go-gl/mathgl/mgl64"
	"golang.org/x/image/colornames"

	"gcodeview/pkg/geom"
)

// DefaultToolDiameter is the nozzle diameter of a tool nothing has configured.
const DefaultToolDiameter = 0.4

// TravelTool is the Tool value of a move that never extrudes.
const TravelTool = 255

// MaxTools bounds the tool table; indexes at or above it are rejected.
const MaxTools = TravelTool

// ValidToolIndex reports whether index addresses a tool slot, negative
// indexes included since they select T0.
func ValidToolIndex(index int) bool { return index < MaxTools }

// palette colors tools T0..T4; higher indexes wrap around.
var palette = []color.RGBA{
	colornames.Red,
	colornames.Lime,
	colornames.Blue,
	colornames.Yellow,
	colornames.Magenta,
}

// Tool is one extruder or spindle of the machine.
type Tool struct {
	Index       int
	Color       mgl64.Vec4
	Diameter    float64
	Temperature float64
}

// NewTool creates a tool with the default palette color for index.
func NewTool(index int) *Tool {
	return &Tool{
		Index:    index,
		Color:    geom.RGBA(palette[index%len(palette)]),
		Diameter: DefaultToolDiameter,
	}
}

// DefaultTools returns the initial tool table.
func DefaultTools() []*Tool {
	tools := make([]*Tool, len(palette))
	for i := range tools {
		tools[i] = NewTool(i)
	}
	return tools
}
