package gcode

import (
	"regexp"
	"strconv"

	"github.com/go-gl/mathgl/mgl64"

	"gcodeview/pkg/geom"
	"gcodeview/pkg/machine"
)

var (
	toolNumber = regexp.MustCompile(`^T(-?\d+)`)
	sValue     = regexp.MustCompile(`S(\d+\.?\d*)`)
)

func command(st *machine.State, l *line) Record {
	return &Command{Header: l.header(st), Code: l.code}
}

func mcode(st *machine.State, l *line) Record {
	return &MCode{Header: l.header(st), Code: l.code}
}

func annotated(st *machine.State, l *line, what string) Record {
	return &Comment{Header: l.header(st), Annotation: l.describe(what)}
}

func positioning(st *machine.State, l *line) Record {
	st.Absolute = l.code == "G90"
	return command(st, l)
}

func units(st *machine.State, l *line) Record {
	if l.code == "G20" {
		st.Units = machine.Inches
	} else {
		st.Units = machine.Millimeters
	}
	return command(st, l)
}

func arcPlane(st *machine.State, l *line) Record {
	if p, ok := geom.ParsePlane(l.code); ok {
		st.ArcPlane = p
	}
	return command(st, l)
}

// firmwareRetract handles G10. With L2 it sets a workplace offset instead:
// "G10 L2 P2 X10" records X for G55, P0 meaning the active workplace.
func firmwareRetract(st *machine.State, l *line) Record {
	args := scanArgs(l.text)
	if args.Has('L') && args['L'] == 2 {
		var offset mgl64.Vec3
		var axes [3]bool
		for i, letter := range [3]byte{'X', 'Y', 'Z'} {
			offset[i], axes[i] = args[letter], args.Has(letter)
		}
		st.RecordWorkplace(int(args['P']), offset, axes)
		return command(st, l)
	}
	st.FirmwareRetraction = true
	return command(st, l)
}

func firmwareUnretract(st *machine.State, l *line) Record {
	st.FirmwareRetraction = false
	return command(st, l)
}

func bedLeveling(st *machine.State, l *line) Record {
	st.BedLeveling = true
	return annotated(st, l, "Auto bed leveling probe")
}

func selectWorkplace(st *machine.State, l *line) Record {
	if idx, ok := machine.WorkplaceIndex(l.code); ok {
		st.SelectWorkplace(idx)
	}
	return command(st, l)
}

// selectTool handles "T<n>". Negative tools select T0; tools beyond the
// table bound leave a plain Comment.
func selectTool(st *machine.State, l *line) Record {
	m := toolNumber.FindStringSubmatch(l.text)
	if m == nil {
		return &Comment{Header: l.header(st)}
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return &Comment{Header: l.header(st)}
	}
	t := st.SelectTool(n)
	if t == nil {
		return &Comment{Header: l.header(st)}
	}
	return annotated(st, l, "Tool change to T"+strconv.Itoa(t.Index))
}

// temperature handles M104/M109 (hotend) and M140/M190 (bed). A T word on
// a hotend command addresses that tool instead of the current one.
func temperature(st *machine.State, l *line) Record {
	temp, ok := 0.0, false
	if m := sValue.FindStringSubmatch(l.text); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			temp, ok = v, true
		}
	}

	target := "auto"
	if ok {
		target = strconv.FormatFloat(temp, 'f', -1, 64)
	}

	var what string
	switch l.code {
	case "M104", "M109":
		if ok {
			tool := st.ActiveTool()
			if args := scanArgs(l.text); args.Has('T') && args['T'] < machine.MaxTools {
				idx := 0
				if args['T'] > 0 {
					idx = int(args['T'])
				}
				tool = st.Tool(idx)
			}
			tool.Temperature = temp
		}
		what = "Set hotend temperature to " + target + "°C"
	default:
		if ok {
			st.BedTemperature = temp
		}
		what = "Set bed temperature to " + target + "°C"
	}
	if l.code == "M109" || l.code == "M190" {
		what += " and wait"
	}
	return annotated(st, l, what)
}

func spindleOn(st *machine.State, l *line) Record {
	args := scanArgs(l.text)
	st.SpindleOn = true
	st.SpindleClockwise = l.code == "M3" || l.code == "M03"
	if args.Has('S') {
		st.SpindleSpeed = args['S']
	}
	return mcode(st, l)
}

func spindleStop(st *machine.State, l *line) Record {
	st.SpindleOn = false
	st.SpindleSpeed = 0
	return annotated(st, l, "Spindle stop")
}

// fan handles M106 S<0-255> and M107.
func fan(st *machine.State, l *line) Record {
	if l.code == "M107" {
		st.FanSpeed = 0
		return mcode(st, l)
	}
	st.FanSpeed = 255
	if args := scanArgs(l.text); args.Has('S') {
		st.FanSpeed = args['S']
	}
	return mcode(st, l)
}

func stepperInfo(st *machine.State, l *line) Record {
	var what string
	switch l.code {
	case "M17":
		what = "Enable all stepper motors"
	case "M82":
		st.ExtruderAbsolute = true
		what = "Set extruder to absolute mode"
	case "M83":
		st.ExtruderAbsolute = false
		what = "Set extruder to relative mode"
	case "M84":
		what = "Disable steppers"
		if scanArgs(l.text).Has('S') {
			what += " with timeout"
		}
	case "M92":
		args := scanArgs(l.text)
		for i, letter := range [4]byte{'X', 'Y', 'Z', 'E'} {
			if args.Has(letter) {
				st.StepsPerUnit[i] = args[letter]
			}
		}
		what = "Set axis steps per unit"
	}
	return annotated(st, l, what)
}
