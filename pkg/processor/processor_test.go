package processor

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gcodeview/pkg/gcode"
	"gcodeview/pkg/machine"
	"gcodeview/pkg/metrics"
	"gcodeview/pkg/slicer"
)

const sample = "; generated by PrusaSlicer\n" +
	"G28\n" +
	";TYPE:External perimeter\n" +
	"G1 X10 Y10 Z0.2 F1200\n" +
	"G1 X20 E1.5 F1200\n" +
	"G2 X30 Y10 I5 J0 E0.5\n" +
	"T1\n" +
	"G1 Z0.4\n" +
	"G1 X10 E2 F600\n"

func TestProcessRecordsPerLine(t *testing.T) {
	res, err := New().Process(context.Background(), sample)
	require.NoError(t, err)

	lines := strings.Split(sample, "\n")
	require.Len(t, res.Records, len(lines))

	var pos int64
	for i, rec := range res.Records {
		h := rec.Head()
		assert.Equal(t, i, h.LineNumber)
		assert.Equal(t, pos, h.FilePosition)
		assert.Equal(t, lines[i], h.Line)
		pos += int64(len(lines[i])) + 1
	}

	last := res.Records[len(res.Records)-1]
	assert.Equal(t, gcode.KindComment, last.Kind())
}

func TestProcessSummary(t *testing.T) {
	res, err := New(WithSlicer(slicer.PrusaSlicer)).Process(context.Background(), sample)
	require.NoError(t, err)

	s := res.Summary
	assert.Equal(t, 10, s.Lines)
	assert.Equal(t, 4, s.Moves)
	assert.Equal(t, 1, s.Arcs)
	assert.Equal(t, 3, s.Extrusions)
	assert.Positive(t, s.ArcSegments)
	assert.Equal(t, 1, s.Counts["arc"])
	assert.Equal(t, 4, s.Counts["move"])
	assert.Equal(t, "prusaslicer", s.Slicer)
	assert.Equal(t, 1, s.ToolChanges)

	assert.Equal(t, 600.0, s.MinFeedRate)
	assert.Equal(t, 1200.0, s.MaxFeedRate)
	assert.InDelta(t, 0.2, s.MinHeight, 1e-9)
	assert.InDelta(t, 0.4, s.MaxHeight, 1e-9)
	assert.InDelta(t, 0.2, s.LayerHeight, 1e-9)

	// first extruding line is "G1 X20 E1.5"
	assert.Equal(t, int64(strings.Index(sample, "G1 X20")), s.FirstGCodeByte)
	assert.Equal(t, int64(strings.Index(sample, "G1 X10 E2")), s.LastGCodeByte)

	ext, ok := res.Records[4].(*gcode.Move)
	require.True(t, ok)
	assert.True(t, ext.IsPerimeter)
}

func TestProcessNoExtrusion(t *testing.T) {
	res, err := New().Process(context.Background(), "G28\nG1 X5\n")
	require.NoError(t, err)
	assert.Zero(t, res.Summary.MinFeedRate)
	assert.Zero(t, res.Summary.FirstGCodeByte)
	assert.Zero(t, res.Summary.MaxHeight)
	assert.Equal(t, "generic", res.Summary.Slicer)
}

func TestProcessEmpty(t *testing.T) {
	res, err := New().Process(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, gcode.KindComment, res.Records[0].Kind())
}

func TestProcessIsIdempotent(t *testing.T) {
	p := New(WithSlicer(slicer.Cura))
	a, err := p.Process(context.Background(), sample)
	require.NoError(t, err)
	b, err := p.ProcessBytes(context.Background(), []byte(sample))
	require.NoError(t, err)

	require.Len(t, b.Records, len(a.Records))
	for i := range a.Records {
		assert.Equal(t, a.Records[i], b.Records[i], "line %d", i)
	}
	a.Summary.Duration, b.Summary.Duration = 0, 0
	assert.Equal(t, a.Summary, b.Summary)
}

func TestProcessCarriesState(t *testing.T) {
	st := machine.NewState()
	p := New(WithState(st))

	_, err := p.Process(context.Background(), "G91\nG1 X5")
	require.NoError(t, err)
	_, err = p.Process(context.Background(), "G1 X5")
	require.NoError(t, err)
	assert.Equal(t, 10.0, st.Position[0])
}

func TestProcessSetup(t *testing.T) {
	p := New(WithSetup(func(st *machine.State) { st.CNCMode = true }))
	res, err := p.Process(context.Background(), "G1 X5")
	require.NoError(t, err)
	assert.True(t, gcode.Extruding(res.Records[0]))
}

func TestProcessCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	content := strings.Repeat("G1 X1 E1\n", 100)

	calls := 0
	p := New(
		WithCheckInterval(10),
		WithProgress(func(done, total int) {
			calls++
			if done >= 30 {
				cancel()
			}
		}),
	)
	res, err := p.Process(ctx, content)
	assert.Nil(t, res)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 3, calls)
}

func TestProcessProgress(t *testing.T) {
	var seen [][2]int
	p := New(
		WithCheckInterval(2),
		WithProgress(func(done, total int) { seen = append(seen, [2]int{done, total}) }),
	)
	_, err := p.Process(context.Background(), "G28\nG1 X1\nG1 X2\nG1 X3")
	require.NoError(t, err)
	assert.Equal(t, [][2]int{{2, 4}, {4, 4}}, seen)
}

func TestProcessHeaderScan(t *testing.T) {
	content := "G28\nG1 X1 E1\n; nozzle_diameter = 0.6,0.25,0.8\n"
	res, err := New(WithSlicer(slicer.PrusaSlicer)).Process(context.Background(), content)
	require.NoError(t, err)

	require.Len(t, res.State.Tools, 5)
	assert.Equal(t, 0.6, res.State.Tools[0].Diameter)
	assert.Equal(t, 0.25, res.State.Tools[1].Diameter)
	assert.Equal(t, 0.8, res.State.Tools[2].Diameter)

	// garbled headers are logged and the parse continues
	res, err = New(WithSlicer(slicer.PrusaSlicer)).Process(context.Background(), "; nozzle_diameter = x")
	require.NoError(t, err)
	assert.Len(t, res.Records, 1)
}

func TestProcessSink(t *testing.T) {
	var kinds []gcode.Kind
	p := New(WithRecordSink(func(r gcode.Record) error {
		kinds = append(kinds, r.Kind())
		return nil
	}))
	res, err := p.Process(context.Background(), "G28\nG1 X1")
	require.NoError(t, err)
	assert.Nil(t, res.Records)
	assert.Equal(t, []gcode.Kind{gcode.KindCommand, gcode.KindMove}, kinds)

	boom := errors.New("client gone")
	_, err = New(WithRecordSink(func(gcode.Record) error { return boom })).Process(context.Background(), "G28")
	assert.ErrorIs(t, err, boom)
}

func TestProcessMetrics(t *testing.T) {
	pm := metrics.NewParseMetrics()
	p := New(WithMetrics(pm), WithSlicer(slicer.Cura))

	_, err := p.Process(context.Background(), "G28\nG1 X1 E1\n;TYPE:MYSTERY")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = New(WithMetrics(pm), WithCheckInterval(1)).Process(ctx, "G28\nG28")
	require.Error(t, err)

	assert.Equal(t, 1.0, pm.Parses.Get(metrics.Labels{"slicer": "cura", "status": metrics.StatusOK}))
	assert.Equal(t, 1.0, pm.Parses.Get(metrics.Labels{"slicer": "generic", "status": metrics.StatusCanceled}))
	assert.Equal(t, 3.0, pm.Lines.Get(nil))
	assert.Equal(t, 1.0, pm.Records.Get(metrics.Labels{"kind": "move"}))
	assert.Equal(t, 1.0, pm.UnknownFeatures.Get(metrics.Labels{"slicer": "cura"}))
	assert.Zero(t, pm.InFlight.Get(nil))
}

func TestTailLines(t *testing.T) {
	assert.Equal(t, []string{"c", ""}, tailLines("a\nb\nc\n", 2))
	assert.Equal(t, []string{"a", "b"}, tailLines([]byte("a\nb"), 5))
	assert.Equal(t, []string{""}, tailLines("", 3))
	assert.Equal(t, 3, countLines("a\nb\n"))
}
