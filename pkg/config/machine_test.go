package config

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"gcodeview/pkg/errors"
	"gcodeview/pkg/geom"
	"gcodeview/pkg/machine"
	"gcodeview/pkg/slicer"
)

const profile = `
[machine]
cnc: false
belt: true
gantry_angle: 30
fix_radius: yes
arc_segment: 0.25
arc_plane: YZ

[slicer]
kind: PrusaSlicer

[tool 6]
diameter: 0.8
color: orange

[tool 0]
color: 0x00ff00

[viewer]
address: 127.0.0.1:8080
batch_size: 250
metrics_username: admin
metrics_password: secret

[log]
level: DEBUG
format: json
`

func TestParseMachineConfig(t *testing.T) {
	cfg, err := LoadString(profile)
	if err != nil {
		t.Fatalf("LoadString failed: %v", err)
	}
	mc, err := ParseMachineConfig(cfg)
	if err != nil {
		t.Fatalf("ParseMachineConfig failed: %v", err)
	}

	if mc.CNC || !mc.Belt || !mc.FixRadius {
		t.Errorf("unexpected flags %+v", mc)
	}
	if mc.GantryAngle != 30 || mc.ArcSegmentLength != 0.25 || mc.ArcPlane != geom.PlaneYZ {
		t.Errorf("unexpected machine values %+v", mc)
	}
	if kind, ok := mc.SlicerKind(); !ok || kind != slicer.PrusaSlicer {
		t.Errorf("expected prusaslicer, got %v %v", kind, ok)
	}

	if len(mc.Tools) != 2 || mc.Tools[0].Index != 0 || mc.Tools[1].Index != 6 {
		t.Fatalf("tools should be sorted by index: %+v", mc.Tools)
	}
	if mc.Tools[0].Color != (mgl64.Vec4{0, 1, 0, 1}) || mc.Tools[0].Diameter != 0 {
		t.Errorf("unexpected tool 0 %+v", mc.Tools[0])
	}
	if mc.Tools[1].Diameter != 0.8 || mc.Tools[1].Color == (mgl64.Vec4{}) {
		t.Errorf("unexpected tool 6 %+v", mc.Tools[1])
	}

	if mc.Viewer.Address != "127.0.0.1:8080" || mc.Viewer.BatchSize != 250 {
		t.Errorf("unexpected viewer %+v", mc.Viewer)
	}
	if mc.Viewer.MetricsUsername != "admin" || mc.Viewer.MetricsPassword != "secret" {
		t.Errorf("unexpected metrics auth %+v", mc.Viewer)
	}
	if mc.Log.Level != "debug" || mc.Log.Format != "json" {
		t.Errorf("unexpected log %+v", mc.Log)
	}
	if unused := cfg.UnusedOptions(); len(unused) != 0 {
		t.Errorf("every option should be read, unused: %v", unused)
	}
}

func TestDefaultMachineConfig(t *testing.T) {
	cfg, _ := LoadString("")
	mc, err := ParseMachineConfig(cfg)
	if err != nil {
		t.Fatalf("ParseMachineConfig failed: %v", err)
	}
	if mc.Slicer != SlicerAuto || mc.GantryAngle != machine.DefaultGantryAngle {
		t.Errorf("unexpected defaults %+v", mc)
	}
	if _, ok := mc.SlicerKind(); ok {
		t.Error("auto should not resolve to a kind")
	}
	if mc.Viewer.BatchSize != 1000 || mc.ArcSegmentLength != geom.DefaultSegmentLength {
		t.Errorf("unexpected defaults %+v", mc)
	}
}

func TestMachineConfigErrors(t *testing.T) {
	tests := map[string]string{
		"gantry":   "[machine]\ngantry_angle: 90\n",
		"segment":  "[machine]\narc_segment: 0\n",
		"plane":    "[machine]\narc_plane: XW\n",
		"slicer":   "[slicer]\nkind: simplify3d\n",
		"tool":     "[tool x]\n",
		"color":    "[tool 1]\ncolor: not-a-color\n",
		"diameter": "[tool 1]\ndiameter: -1\n",
		"batch":    "[viewer]\nbatch_size: 0\n",
		"level":    "[log]\nlevel: loud\n",
	}
	for name, data := range tests {
		cfg, err := LoadString(data)
		if err != nil {
			t.Fatalf("%s: LoadString failed: %v", name, err)
		}
		if _, err := ParseMachineConfig(cfg); !errors.IsConfig(err) {
			t.Errorf("%s: expected config error, got %v", name, err)
		}
	}
}

func TestApply(t *testing.T) {
	cfg, _ := LoadString(profile)
	mc, err := ParseMachineConfig(cfg)
	if err != nil {
		t.Fatalf("ParseMachineConfig failed: %v", err)
	}

	st := machine.NewState()
	mc.Apply(st)

	if !st.ZBelt || st.CNCMode || !st.FixRadius {
		t.Errorf("flags not applied")
	}
	if st.ArcSegmentLength != 0.25 || st.ArcPlane != geom.PlaneYZ || math.Abs(st.GantryAngle-math.Pi/6) > 1e-12 {
		t.Errorf("arc settings not applied")
	}
	if len(st.Tools) != 7 {
		t.Fatalf("expected the table extended to 7 tools, got %d", len(st.Tools))
	}
	if st.Tools[0].Color != (mgl64.Vec4{0, 1, 0, 1}) || st.Tools[0].Diameter != machine.DefaultToolDiameter {
		t.Errorf("unexpected tool 0 %+v", st.Tools[0])
	}
	if st.Tools[6].Diameter != 0.8 || st.Tools[6].Color != mc.Tools[1].Color {
		t.Errorf("unexpected tool 6 %+v", st.Tools[6])
	}
}

func TestParseColor(t *testing.T) {
	c, ok := parseColor("FF0000")
	if !ok || c != (mgl64.Vec4{1, 0, 0, 1}) {
		t.Errorf("unexpected %v %v", c, ok)
	}
	if c, ok := parseColor("White"); !ok || c != geom.White {
		t.Errorf("unexpected %v %v", c, ok)
	}
	for _, bad := range []string{"", "0x12345", "zzzzzz", "chartreusey"} {
		if _, ok := parseColor(bad); ok {
			t.Errorf("%q should not parse", bad)
		}
	}
}
