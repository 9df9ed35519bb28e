package gcode

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gcodeview/pkg/geom"
	"gcodeview/pkg/machine"
	"gcodeview/pkg/slicer"
)

// run feeds lines through ProcessLine the way the driver numbers them.
func run(st *machine.State, lines ...string) []Record {
	out := make([]Record, 0, len(lines))
	for _, ln := range lines {
		out = append(out, ProcessLine(st, ln))
		st.LineNumber++
		st.FilePosition += int64(len(ln)) + 1
	}
	return out
}

func TestAbsoluteRelativeToggle(t *testing.T) {
	st := machine.NewState()
	var xs []float64
	for _, ln := range []string{"G91", "G1 X5", "G90", "G1 X5"} {
		ProcessLine(st, ln)
		xs = append(xs, st.Position[0])
	}
	assert.Equal(t, []float64{0, 5, 5, 5}, xs)
	assert.True(t, st.Absolute)
}

func TestFeedRateExtremes(t *testing.T) {
	st := machine.NewState()
	run(st, "G1 X10 E1 F100", "G1 X20 E2 F50", "G1 X30 E3 F200")
	assert.Equal(t, 50.0, st.MinFeedRate)
	assert.Equal(t, 200.0, st.MaxFeedRate)
	assert.Equal(t, 200.0, st.CurrentFeedRate)
}

// An F word before the E word that makes the move extrude is not recorded.
// Travel moves never record their feed rate either.
func TestFeedRateBeforeExtrusionIgnored(t *testing.T) {
	st := machine.NewState()
	recs := run(st, "G1 F1200 X10 E1", "G0 F6000 X20")

	assert.Equal(t, machine.DefaultFeedRate, st.CurrentFeedRate)
	assert.Equal(t, machine.MinFeedRateUnset, st.MinFeedRate)
	assert.Zero(t, st.MaxFeedRate)
	assert.Equal(t, machine.DefaultFeedRate, recs[0].(*Move).FeedRate)

	run(st, "G1 X30 E2 F1200")
	assert.Equal(t, 1200.0, st.CurrentFeedRate)
}

func TestAxisRemap(t *testing.T) {
	st := machine.NewState()
	rec := ProcessLine(st, "G1 X1 Y2 Z3")

	move := rec.(*Move)
	assert.Equal(t, mgl64.Vec3{1, 3, 2}, move.End)
	assert.Equal(t, mgl64.Vec3{1, 2, 3}, geom.ToGCodeAxes(st.Position))
}

func TestLastCommandWins(t *testing.T) {
	st := machine.NewState()
	run(st, "G90 G91")
	assert.False(t, st.Absolute)
	run(st, "G91 G90")
	assert.True(t, st.Absolute)

	rec := ProcessLine(st, "G1 X10 M84")
	require.IsType(t, &Comment{}, rec)
	assert.Equal(t, "Disable steppers (G1 X10 M84)", rec.(*Comment).Annotation)
	assert.Equal(t, mgl64.Vec3{}, st.Position)
}

func TestCommentsDoNotChangeState(t *testing.T) {
	st := machine.NewState()
	st.SetSlicer(slicer.New(slicer.Cura))
	before := *st

	recs := run(st, "", "   ", ";TYPE:FILL", "  ; G1 X10", ";LAYER:2")
	for _, r := range recs {
		assert.Equal(t, KindComment, r.Kind())
	}

	st.LineNumber, st.FilePosition = before.LineNumber, before.FilePosition
	assert.Equal(t, before, *st)
	assert.Equal(t, mgl64.Vec4{0.95, 0.25, 0.25, 1}, st.Slicer.FeatureColor())
}

func TestTravelAndExtrusion(t *testing.T) {
	st := machine.NewState()
	st.SetSlicer(slicer.New(slicer.Cura))
	recs := run(st, "G0 X10", ";TYPE:WALL-OUTER", "T1", "G1 X20 E1.5")

	travel := recs[0].(*Move)
	assert.Equal(t, LineTravel, travel.LineType)
	assert.Equal(t, machine.TravelTool, travel.Tool)
	assert.Equal(t, geom.White, travel.Color)
	assert.False(t, travel.Extruding)

	move := recs[3].(*Move)
	assert.Equal(t, LineExtrude, move.LineType)
	assert.True(t, move.Extruding)
	assert.Equal(t, 1, move.Tool)
	assert.Equal(t, st.Tools[1].Color, move.Color)
	assert.Equal(t, mgl64.Vec4{1, 0.5, 0.2, 1}, move.FeatureColor)
	assert.True(t, move.IsPerimeter)
	assert.Equal(t, mgl64.Vec3{10, 0, 0}, move.Start)
	assert.Equal(t, mgl64.Vec3{20, 0, 0}, move.End)
	assert.Equal(t, 10.0, move.Length())
	assert.Equal(t, 3, move.LineNumber)
}

func TestCNCModeG1Extrudes(t *testing.T) {
	st := machine.NewState()
	st.CNCMode = true
	recs := run(st, "G1 X10", "G0 X0")
	assert.True(t, recs[0].(*Move).Extruding)
	assert.False(t, recs[1].(*Move).Extruding)
}

func TestCompressedAndCommentedMoves(t *testing.T) {
	st := machine.NewState()
	run(st, "G1X10Y5E1")
	assert.Equal(t, mgl64.Vec3{10, 0, 5}, st.Position)

	run(st, "G1 X20 ; Y50")
	assert.Equal(t, mgl64.Vec3{20, 0, 5}, st.Position)

	run(st, "G1 Xabc Y7")
	assert.Equal(t, mgl64.Vec3{20, 0, 7}, st.Position)
}

func TestG53ForcesAbsolute(t *testing.T) {
	st := machine.NewState()
	run(st, "G91", "G1 X5", "G53 G1 X2", "G1 X1")
	assert.Equal(t, 3.0, st.Position[0])
	assert.False(t, st.Absolute)
}

func TestBeltKinematics(t *testing.T) {
	st := machine.NewState()
	st.ZBelt = true
	run(st, "G1 X5 Y10 Z2")

	y := 10 * math.Cos(math.Pi/4)
	assert.InDelta(t, 5, st.Position[0], 1e-9)
	assert.InDelta(t, y, st.Position[1], 1e-9)
	assert.InDelta(t, -2+y*math.Tan(math.Pi/4), st.Position[2], 1e-9)
	assert.Equal(t, -2.0, st.CurrentZ)
}

func TestLayerHeight(t *testing.T) {
	st := machine.NewState()
	recs := run(st, "G0 Z0.2", "G1 X10 E1", "G0 Z0.45", "G1 X20 E2")

	assert.Equal(t, machine.DefaultLayerHeight, recs[1].(*Move).LayerHeight)
	assert.InDelta(t, 0.25, recs[3].(*Move).LayerHeight, 1e-9)
	assert.Equal(t, 0.2, st.MinHeight)
	assert.Equal(t, 0.45, st.MaxHeight)
}

func TestFullCircleArc(t *testing.T) {
	st := machine.NewState()
	rec := ProcessLine(st, "G2 X0 Y0 I10 J0 E1")

	arc := rec.(*ArcMove)
	require.Len(t, arc.Segments, 126)
	assert.Equal(t, LineArc, arc.LineType)
	assert.True(t, arc.Extruding)

	last := arc.Segments[len(arc.Segments)-1]
	assert.InDelta(t, 0, last.End.Sub(mgl64.Vec3{}).Len(), 1e-9)
	assert.Equal(t, arc.Segments[0].Start, mgl64.Vec3{})
	for i, seg := range arc.Segments {
		assert.Equal(t, LineExtrude, seg.LineType)
		assert.InDelta(t, 0, seg.End[1], 1e-12)
		gc := geom.ToGCodeAxes(seg.End)
		assert.InDelta(t, 10, math.Hypot(gc[0]-10, gc[1]), 1e-9, "segment %d", i)
		if i > 0 {
			assert.Equal(t, arc.Segments[i-1].End, seg.Start)
		}
	}
	assert.InDelta(t, 2*math.Pi*10, arc.Length(), 0.1)
}

func TestArcRadiusTooSmall(t *testing.T) {
	st := machine.NewState()
	rec := ProcessLine(st, "G2 X10 Y0 R2 E1")

	arc := rec.(*ArcMove)
	assert.Empty(t, arc.Segments)
	assert.Equal(t, mgl64.Vec3{10, 0, 0}, st.Position)

	st.FixRadius = true
	arc = ProcessLine(st, "G2 X0 Y0 R2 E1").(*ArcMove)
	assert.NotEmpty(t, arc.Segments)
	assert.InDelta(t, 0, st.Position.Len(), 1e-9)
}

func TestArcFeedRateAndPlane(t *testing.T) {
	st := machine.NewState()
	run(st, "G18", "G3 X10 Z0 K5 I0 F900")
	assert.Equal(t, geom.PlaneXZ, st.ArcPlane)
	assert.Equal(t, machine.DefaultFeedRate, st.CurrentFeedRate)

	run(st, "G17", "G3 X0 Y0 I-5 J0 E1 F900")
	assert.Equal(t, geom.PlaneXY, st.ArcPlane)
	assert.Equal(t, 900.0, st.CurrentFeedRate)
}

func TestTravelArcUsesTravelTool(t *testing.T) {
	st := machine.NewState()
	recs := run(st, "T1", "G2 X10 Y0 I5 J0", "G3 X0 Y0 I-5 J0 E1")

	travel := recs[1].(*ArcMove)
	assert.False(t, travel.Extruding)
	assert.Equal(t, machine.TravelTool, travel.Tool)
	require.NotEmpty(t, travel.Segments)
	for _, seg := range travel.Segments {
		assert.Equal(t, machine.TravelTool, seg.Tool)
		assert.Equal(t, LineTravel, seg.LineType)
	}

	printed := recs[2].(*ArcMove)
	assert.Equal(t, 1, printed.Tool)
	assert.Equal(t, 1, printed.Segments[0].Tool)
	assert.Equal(t, LineExtrude, printed.Segments[0].LineType)
}

func TestToolSelect(t *testing.T) {
	st := machine.NewState()
	recs := run(st, "T2", "T-1")
	assert.Same(t, st.Tools[0], st.ActiveTool())
	assert.Equal(t, "Tool change to T0 (T-1)", recs[1].(*Comment).Annotation)

	rec := ProcessLine(st, "T9")
	assert.Equal(t, 9, st.CurrentTool)
	assert.Len(t, st.Tools, 10)
	assert.Equal(t, "Tool change to T9 (T9)", rec.(*Comment).Annotation)

	rec = ProcessLine(st, "TX")
	assert.Empty(t, rec.(*Comment).Annotation)
	assert.Equal(t, 9, st.CurrentTool)
}

func TestToolIndexOutOfRange(t *testing.T) {
	st := machine.NewState()
	ProcessLine(st, "T1")
	ProcessLine(st, "M104 S210")

	rec := ProcessLine(st, "T2000000000")
	require.IsType(t, &Comment{}, rec)
	assert.Empty(t, rec.(*Comment).Annotation)
	assert.Equal(t, 1, st.CurrentTool)

	rec = ProcessLine(st, "M104 T2000000000 S200")
	assert.Equal(t, "Set hotend temperature to 200°C (M104 T2000000000 S200)", rec.(*Comment).Annotation)
	assert.Equal(t, 200.0, st.Tools[1].Temperature)

	ProcessLine(st, "M104 T-3 S180")
	assert.Equal(t, 180.0, st.Tools[0].Temperature)
	assert.Len(t, st.Tools, 5)
}

func TestWorkplaceSelect(t *testing.T) {
	st := machine.NewState()
	recs := run(st, "G10 L2 P2 X10 Y20", "G55", "G55", "G1 X0 Y0")

	assert.Equal(t, KindCommand, recs[1].Kind())
	assert.Equal(t, 2, st.WorkplaceIdx)
	assert.Equal(t, 1, st.WorkplaceChanges)
	assert.Equal(t, mgl64.Vec3{10, 20, 0}, st.WorkplaceOffset)
	assert.Equal(t, mgl64.Vec3{10, 0, 20}, st.Position)
	assert.False(t, st.FirmwareRetraction)

	run(st, "G59.3")
	assert.Equal(t, 9, st.WorkplaceIdx)
	assert.Equal(t, mgl64.Vec3{}, st.WorkplaceOffset)
}

func TestModalCommands(t *testing.T) {
	st := machine.NewState()
	recs := run(st, "G20", "G10", "M83", "G28 X Y")
	assert.Equal(t, machine.Inches, st.Units)
	assert.True(t, st.FirmwareRetraction)
	assert.False(t, st.ExtruderAbsolute)
	assert.Equal(t, "G28", recs[3].(*Command).Code)

	run(st, "G21", "G11", "M82")
	assert.Equal(t, machine.Millimeters, st.Units)
	assert.False(t, st.FirmwareRetraction)
	assert.True(t, st.ExtruderAbsolute)
}

func TestTemperature(t *testing.T) {
	st := machine.NewState()
	recs := run(st, "M104 S215", "M109 S220.5", "M140 S60", "M190", "M104 T1 S200")

	assert.Equal(t, "Set hotend temperature to 215°C (M104 S215)", recs[0].(*Comment).Annotation)
	assert.Equal(t, "Set hotend temperature to 220.5°C and wait (M109 S220.5)", recs[1].(*Comment).Annotation)
	assert.Equal(t, "Set bed temperature to 60°C (M140 S60)", recs[2].(*Comment).Annotation)
	assert.Equal(t, "Set bed temperature to auto°C and wait (M190)", recs[3].(*Comment).Annotation)

	assert.Equal(t, 220.5, st.Tools[0].Temperature)
	assert.Equal(t, 200.0, st.Tools[1].Temperature)
	assert.Equal(t, 60.0, st.BedTemperature)
}

func TestSpindleAndMCodes(t *testing.T) {
	st := machine.NewState()
	recs := run(st, "M3 S12000", "M5", "M4", "M600", "M567 P0 E0.5:0.5", "M106 S128", "M107")

	assert.Equal(t, "M3", recs[0].(*MCode).Code)
	assert.Equal(t, "Spindle stop (M5)", recs[1].(*Comment).Annotation)
	assert.Equal(t, "M600", recs[3].(*MCode).Code)
	assert.Equal(t, "M567", recs[4].(*MCode).Code)

	assert.True(t, st.SpindleOn)
	assert.False(t, st.SpindleClockwise)
	assert.Zero(t, st.SpindleSpeed)
	assert.Zero(t, st.FanSpeed)

	run(st, "M3 S8000", "M106")
	assert.True(t, st.SpindleClockwise)
	assert.Equal(t, 8000.0, st.SpindleSpeed)
	assert.Equal(t, 255.0, st.FanSpeed)
}

func TestAnnotatedInfo(t *testing.T) {
	st := machine.NewState()
	recs := run(st, "G29", "M17", "M84 S30", "M92 X80 E93")

	assert.Equal(t, "Auto bed leveling probe (G29)", recs[0].(*Comment).Annotation)
	assert.Equal(t, "Enable all stepper motors (M17)", recs[1].(*Comment).Annotation)
	assert.Equal(t, "Disable steppers with timeout (M84 S30)", recs[2].(*Comment).Annotation)
	assert.Equal(t, "Set axis steps per unit (M92 X80 E93)", recs[3].(*Comment).Annotation)
	assert.True(t, st.BedLeveling)
	assert.Equal(t, [4]float64{80, 0, 0, 93}, st.StepsPerUnit)
}

func TestUnknownLines(t *testing.T) {
	st := machine.NewState()
	recs := run(st, "M117 Printing", "HELLO", "G4 P100")
	for _, r := range recs {
		c, ok := r.(*Comment)
		require.True(t, ok, "%T", r)
		assert.Empty(t, c.Annotation)
	}
	assert.Equal(t, "HELLO", recs[1].Head().Line)
	assert.Equal(t, int64(len("M117 Printing")+1), recs[1].Head().FilePosition)
}

func TestRecordsKeepRawLine(t *testing.T) {
	st := machine.NewState()
	rec := ProcessLine(st, "g1 x5 e1 ; lower case")
	move := rec.(*Move)
	assert.Equal(t, "g1 x5 e1 ; lower case", move.Line)
	assert.Equal(t, mgl64.Vec3{5, 0, 0}, move.End)
}

func TestEnvelopeJSON(t *testing.T) {
	st := machine.NewState()
	recs := run(st, "; start", "G90", "M600", "G1 X5 E1", "G2 X5 Y0 I1 J0 E1")

	for _, r := range recs {
		data, err := json.Marshal(Wrap(r))
		require.NoError(t, err)

		var env Envelope
		require.NoError(t, json.Unmarshal(data, &env))
		assert.Equal(t, r.Kind(), env.Kind)
		assert.Equal(t, r, env.Record)
	}

	data, err := json.Marshal(Wrap(recs[3]))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"kind":"move"`)
	assert.Contains(t, string(data), `"line_type":"L"`)

	var env Envelope
	assert.Error(t, json.Unmarshal([]byte(`{"kind":"bogus","record":{}}`), &env))
}
