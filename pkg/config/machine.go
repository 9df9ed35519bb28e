package config

import (
	"sort"
	"strconv"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
	"golang.org/x/image/colornames"

	"gcodeview/pkg/errors"
	"gcodeview/pkg/geom"
	"gcodeview/pkg/machine"
	"gcodeview/pkg/slicer"
)

// SlicerAuto asks the caller to detect the slicer from the file.
const SlicerAuto = "auto"

// ToolConfig overrides one tool of the default table.
type ToolConfig struct {
	Index    int
	Diameter float64    // 0 keeps the default
	Color    mgl64.Vec4 // zero keeps the palette color
}

// ViewerConfig configures the HTTP/websocket viewer.
type ViewerConfig struct {
	Address   string
	BatchSize int

	MetricsUsername string
	MetricsPassword string
}

// LogConfig configures the default logger.
type LogConfig struct {
	Level  string
	Format string
}

// MachineConfig is a typed machine profile.
type MachineConfig struct {
	CNC              bool
	Belt             bool
	GantryAngle      float64
	FixRadius        bool
	ArcSegmentLength float64
	ArcPlane         geom.Plane

	// Slicer is SlicerAuto or a name accepted by slicer.ParseKind
	Slicer string

	Tools  []ToolConfig
	Viewer ViewerConfig
	Log    LogConfig
}

// DefaultMachineConfig matches the interpreter defaults.
func DefaultMachineConfig() *MachineConfig {
	return &MachineConfig{
		GantryAngle:      machine.DefaultGantryAngle,
		ArcSegmentLength: geom.DefaultSegmentLength,
		ArcPlane:         geom.PlaneXY,
		Slicer:           SlicerAuto,
		Viewer: ViewerConfig{
			Address:   ":7125",
			BatchSize: 1000,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// LoadMachineConfig reads a profile file into a MachineConfig.
func LoadMachineConfig(path string) (*MachineConfig, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	return ParseMachineConfig(c)
}

// ParseMachineConfig reads [machine], [slicer], [tool N], [viewer] and [log].
// Every section is optional.
func ParseMachineConfig(c *Config) (*MachineConfig, error) {
	mc := DefaultMachineConfig()

	if sec := c.SectionOptional("machine"); sec != nil {
		if err := mc.readMachine(sec); err != nil {
			return nil, err
		}
	}

	if sec := c.SectionOptional("slicer"); sec != nil {
		name, err := sec.Get("kind", SlicerAuto)
		if err != nil {
			return nil, err
		}
		if !strings.EqualFold(name, SlicerAuto) {
			if _, err := slicer.ParseKind(name); err != nil {
				return nil, errors.ConfigValidationError("slicer", "kind", err.Error())
			}
		}
		mc.Slicer = strings.ToLower(name)
	}

	for _, sec := range c.PrefixSections("tool") {
		tc, err := readTool(sec)
		if err != nil {
			return nil, err
		}
		mc.Tools = append(mc.Tools, tc)
	}
	sort.Slice(mc.Tools, func(i, j int) bool { return mc.Tools[i].Index < mc.Tools[j].Index })

	if sec := c.SectionOptional("viewer"); sec != nil {
		if err := mc.readViewer(sec); err != nil {
			return nil, err
		}
	}

	if sec := c.SectionOptional("log"); sec != nil {
		var err error
		if mc.Log.Level, err = sec.GetChoice("level", []string{"debug", "info", "warn", "error"}, mc.Log.Level); err != nil {
			return nil, err
		}
		if mc.Log.Format, err = sec.GetChoice("format", []string{"text", "json"}, mc.Log.Format); err != nil {
			return nil, err
		}
	}

	return mc, nil
}

func (mc *MachineConfig) readMachine(sec *Section) error {
	var err error
	if mc.CNC, err = sec.GetBool("cnc", mc.CNC); err != nil {
		return err
	}
	if mc.Belt, err = sec.GetBool("belt", mc.Belt); err != nil {
		return err
	}
	if mc.GantryAngle, err = sec.GetFloatWithBounds("gantry_angle",
		FloatBounds{Above: Float(0), Below: Float(90)}, mc.GantryAngle); err != nil {
		return err
	}
	if mc.FixRadius, err = sec.GetBool("fix_radius", mc.FixRadius); err != nil {
		return err
	}
	if mc.ArcSegmentLength, err = sec.GetFloatWithBounds("arc_segment",
		FloatBounds{Above: Float(0)}, mc.ArcSegmentLength); err != nil {
		return err
	}

	plane, err := sec.GetChoice("arc_plane", []string{"XY", "XZ", "YZ"}, mc.ArcPlane.String())
	if err != nil {
		return err
	}
	mc.ArcPlane, _ = geom.ParsePlane(plane)
	return nil
}

func readTool(sec *Section) (ToolConfig, error) {
	var tc ToolConfig
	idx, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(sec.Name(), "tool")))
	if err != nil || idx < 0 || idx >= machine.MaxTools {
		return tc, errors.Newf(errors.ErrConfigSection, "invalid tool section [%s]", sec.Name()).
			SetSection(sec.Name())
	}
	tc.Index = idx

	if sec.Has("diameter") {
		if tc.Diameter, err = sec.GetFloatWithBounds("diameter", FloatBounds{Above: Float(0)}); err != nil {
			return tc, err
		}
	}

	name, err := sec.Get("color", "")
	if err != nil {
		return tc, err
	}
	if name != "" {
		col, ok := parseColor(name)
		if !ok {
			return tc, errors.ConfigValidationError(sec.Name(), "color",
				"expected a color name or 6 hex digits, got "+strconv.Quote(name))
		}
		tc.Color = col
	}
	return tc, nil
}

func (mc *MachineConfig) readViewer(sec *Section) error {
	var err error
	if mc.Viewer.Address, err = sec.Get("address", mc.Viewer.Address); err != nil {
		return err
	}
	batch, err := sec.GetFloatWithBounds("batch_size", FloatBounds{MinVal: Float(1)}, float64(mc.Viewer.BatchSize))
	if err != nil {
		return err
	}
	mc.Viewer.BatchSize = int(batch)
	if mc.Viewer.MetricsUsername, err = sec.Get("metrics_username", ""); err != nil {
		return err
	}
	if mc.Viewer.MetricsPassword, err = sec.Get("metrics_password", ""); err != nil {
		return err
	}
	return nil
}

// parseColor accepts an SVG color name ("orange") or six hex digits with an
// optional 0x prefix. A leading '#' would start a comment.
func parseColor(s string) (mgl64.Vec4, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if c, ok := colornames.Map[s]; ok {
		return geom.RGBA(c), true
	}
	s = strings.TrimPrefix(s, "0x")
	if len(s) != 6 {
		return mgl64.Vec4{}, false
	}
	n, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return mgl64.Vec4{}, false
	}
	return mgl64.Vec4{
		float64(n>>16&0xff) / 255,
		float64(n>>8&0xff) / 255,
		float64(n&0xff) / 255,
		1,
	}, true
}

// SlicerKind resolves the configured slicer; auto is reported as false.
func (mc *MachineConfig) SlicerKind() (slicer.Kind, bool) {
	if mc.Slicer == "" || strings.EqualFold(mc.Slicer, SlicerAuto) {
		return slicer.Generic, false
	}
	kind, err := slicer.ParseKind(mc.Slicer)
	if err != nil {
		return slicer.Generic, false
	}
	return kind, true
}

// Apply configures st for this machine. It is meant for a fresh state.
func (mc *MachineConfig) Apply(st *machine.State) {
	st.CNCMode = mc.CNC
	st.ZBelt = mc.Belt
	st.SetGantryAngle(mc.GantryAngle)
	st.FixRadius = mc.FixRadius
	st.ArcSegmentLength = mc.ArcSegmentLength
	st.ArcPlane = mc.ArcPlane

	for _, tc := range mc.Tools {
		tool := st.Tool(tc.Index)
		if tc.Diameter > 0 {
			tool.Diameter = tc.Diameter
		}
		if tc.Color != (mgl64.Vec4{}) {
			tool.Color = tc.Color
		}
	}
}
