package config

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"gcodeview/pkg/errors"
)

func writeFile(t *testing.T, dir, name, data string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadString(t *testing.T) {
	data := `
# machine profile
stray: ignored

[machine]
cnc: yes
gantry_angle = 30   ; inline comment
arc_plane: xz

[tool 1]
diameter: 0.6
`
	cfg, err := LoadString(data)
	if err != nil {
		t.Fatalf("LoadString failed: %v", err)
	}

	if got := cfg.SectionNames(); !reflect.DeepEqual(got, []string{"machine", "tool 1"}) {
		t.Errorf("unexpected sections %v", got)
	}

	sec, err := cfg.Section("machine")
	if err != nil {
		t.Fatalf("Section(machine) failed: %v", err)
	}
	if sec.Name() != "machine" {
		t.Errorf("expected name 'machine', got %q", sec.Name())
	}

	cnc, err := sec.GetBool("cnc")
	if err != nil || !cnc {
		t.Errorf("expected cnc=true, got %v (%v)", cnc, err)
	}
	angle, err := sec.GetFloat("gantry_angle")
	if err != nil || angle != 30 {
		t.Errorf("expected gantry_angle=30, got %v (%v)", angle, err)
	}
	plane, err := sec.GetChoice("arc_plane", []string{"XY", "XZ", "YZ"})
	if err != nil || plane != "XZ" {
		t.Errorf("expected arc_plane=XZ, got %q (%v)", plane, err)
	}
}

func TestSectionGetters(t *testing.T) {
	cfg, err := LoadString(`
[test]
String_Val: hello
int_val: 42
float_val: 3.14
bool_false: off
list_val: 0.4, 0.6,,0.8
bad_int: 4x
`)
	if err != nil {
		t.Fatalf("LoadString failed: %v", err)
	}
	sec, _ := cfg.Section("test")

	if v, _ := sec.Get("string_val"); v != "hello" {
		t.Errorf("keys are case-insensitive, got %q", v)
	}
	if v, _ := sec.Get("missing", "default"); v != "default" {
		t.Errorf("expected fallback, got %q", v)
	}
	if v, _ := sec.GetInt("int_val"); v != 42 {
		t.Errorf("expected 42, got %d", v)
	}
	if v, _ := sec.GetInt("missing", 99); v != 99 {
		t.Errorf("expected 99, got %d", v)
	}
	if v, _ := sec.GetFloat("float_val"); v != 3.14 {
		t.Errorf("expected 3.14, got %v", v)
	}
	if v, err := sec.GetBool("bool_false"); err != nil || v {
		t.Errorf("expected false, got %v (%v)", v, err)
	}
	if v, _ := sec.GetFloatList("list_val", ","); !reflect.DeepEqual(v, []float64{0.4, 0.6, 0.8}) {
		t.Errorf("unexpected list %v", v)
	}

	_, err = sec.GetInt("bad_int")
	if !errors.Is(err, errors.ErrConfigOption) {
		t.Errorf("expected CONFIG_OPTION error, got %v", err)
	}
}

func TestMissingOptionError(t *testing.T) {
	cfg, _ := LoadString("[test]\nexists: value\n")
	sec, _ := cfg.Section("test")

	_, err := sec.Get("missing")
	var he *errors.HostError
	if !stderrors.As(err, &he) {
		t.Fatalf("expected *errors.HostError, got %T", err)
	}
	if he.Code != errors.ErrConfigOption || he.Section != "test" || he.Option != "missing" {
		t.Errorf("unexpected error fields %+v", he)
	}

	if _, err := cfg.Section("nope"); !errors.Is(err, errors.ErrConfigSection) {
		t.Errorf("expected CONFIG_SECTION error, got %v", err)
	}
	if cfg.SectionOptional("nope") != nil {
		t.Error("expected nil optional section")
	}
}

func TestBoundsChecking(t *testing.T) {
	cfg, _ := LoadString("[test]\nangle: 90\nzero: 0\n")
	sec, _ := cfg.Section("test")

	if _, err := sec.GetFloatWithBounds("angle", FloatBounds{Below: Float(90)}); !errors.Is(err, errors.ErrConfigValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
	if _, err := sec.GetFloatWithBounds("zero", FloatBounds{Above: Float(0)}); err == nil {
		t.Error("expected error for value not above 0")
	}
	if v, err := sec.GetFloatWithBounds("angle", FloatBounds{MinVal: Float(0), MaxVal: Float(90)}); err != nil || v != 90 {
		t.Errorf("expected 90 within inclusive bounds, got %v (%v)", v, err)
	}
	if _, err := sec.GetChoice("angle", []string{"a", "b"}); !errors.IsConfig(err) {
		t.Errorf("expected config error for bad choice, got %v", err)
	}
}

func TestAccessTracking(t *testing.T) {
	cfg, _ := LoadString(`
[used]
a: 1
b: 2
c: 3

[unused]
key: value

[tool 0]
[tool 1]
`)
	sec, _ := cfg.Section("used")
	sec.Get("a")
	sec.Get("c")

	if got := sec.UnusedOptions(); !reflect.DeepEqual(got, []string{"b"}) {
		t.Errorf("unexpected unused options %v", got)
	}
	if got := len(cfg.PrefixSections("tool")); got != 2 {
		t.Errorf("expected 2 tool sections, got %d", got)
	}
	if got := cfg.UnusedSections(); !reflect.DeepEqual(got, []string{"unused"}) {
		t.Errorf("unexpected unused sections %v", got)
	}
	if got := cfg.UnusedOptions(); !reflect.DeepEqual(got, []string{"unused.key", "used.b"}) {
		t.Errorf("unexpected unused options %v", got)
	}
}

func TestRepeatedSectionsMerge(t *testing.T) {
	cfg, _ := LoadString("[machine]\ncnc: no\nbelt: no\n[machine]\ncnc: yes\n")
	sec, _ := cfg.Section("machine")
	if v, _ := sec.GetBool("cnc"); !v {
		t.Error("later value should win")
	}
	if v, err := sec.GetBool("belt"); err != nil || v {
		t.Errorf("earlier option should survive, got %v (%v)", v, err)
	}
}

func TestSyntaxErrors(t *testing.T) {
	for _, data := range []string{"[]\n", "[machine]\njust some words\n", "[machine]\n: value\n"} {
		if _, err := LoadString(data); !errors.Is(err, errors.ErrConfigSection) {
			t.Errorf("%q: expected CONFIG_SECTION error, got %v", data, err)
		}
	}
}

func TestInclude(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "tools-a.cfg", "[tool 0]\ndiameter: 0.6\n")
	writeFile(t, dir, "tools-b.cfg", "[tool 1]\ndiameter: 0.8\n")
	main := writeFile(t, dir, "machine.cfg", "[include tools-*.cfg]\n[machine]\nbelt: true\n")

	cfg, err := Load(main)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	want := []string{"tool 0", "tool 1", "machine"}
	if got := cfg.SectionNames(); !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}

	missing := writeFile(t, dir, "missing.cfg", "[include nothere.cfg]\n")
	if _, err := Load(missing); err == nil {
		t.Error("expected error for missing include")
	}
}

func TestRecursiveInclude(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.cfg", "[include b.cfg]\n")
	writeFile(t, dir, "b.cfg", "[include a.cfg]\n")

	if _, err := Load(filepath.Join(dir, "a.cfg")); err == nil {
		t.Error("expected error for recursive include")
	}
}
