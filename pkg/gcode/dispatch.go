package gcode

import (
	"regexp"
	"strings"

	"gcodeview/pkg/machine"
)

// commandToken finds G, M and T words. The last one on a line selects the
// handler.
var commandToken = regexp.MustCompile(`[GMT]\d+(\.\d+)?`)

// handler applies one command to the state and builds its record.
type handler func(st *machine.State, l *line) Record

var handlers map[string]handler

func init() {
	handlers = map[string]handler{
		"G0": linearMove, "G00": linearMove, "G1": linearMove, "G01": linearMove,
		"G2": arcMove, "G02": arcMove, "G3": arcMove, "G03": arcMove,

		"G10": firmwareRetract, "G11": firmwareUnretract,
		"G17": arcPlane, "G18": arcPlane, "G19": arcPlane,
		"G20": units, "G21": units,
		"G28": command,
		"G29": bedLeveling,
		"G90": positioning, "G91": positioning,

		"M3": spindleOn, "M03": spindleOn, "M4": spindleOn, "M04": spindleOn,
		"M5": spindleStop, "M05": spindleStop,
		"M17": stepperInfo, "M82": stepperInfo, "M83": stepperInfo, "M84": stepperInfo, "M92": stepperInfo,
		"M104": temperature, "M109": temperature, "M140": temperature, "M190": temperature,
		"M106": fan, "M107": fan,
		"M567": mcode,
		"M600": mcode,
	}
	for idx := 1; idx < machine.NumWorkplaces; idx++ {
		handlers[machine.WorkplaceCode(idx)] = selectWorkplace
	}
}

// line is the input of a handler.
type line struct {
	raw  string
	text string // upper-cased with any trailing comment removed
	code string // the dispatching word
}

func (l *line) header(st *machine.State) Header {
	return Header{Line: l.raw, LineNumber: st.LineNumber, FilePosition: st.FilePosition}
}

// describe formats an annotation with the line it came from.
func (l *line) describe(what string) string {
	return what + " (" + strings.TrimSpace(l.raw) + ")"
}

// ProcessLine interprets one line of G-code against st and returns its
// record. st.LineNumber and st.FilePosition must already describe the line.
//
// Comments and blank lines are offered to the slicer classifier and change
// nothing else.
func ProcessLine(st *machine.State, raw string) Record {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || trimmed[0] == ';' {
		st.Slicer.ProcessComment(raw)
		return &Comment{Header: Header{Line: raw, LineNumber: st.LineNumber, FilePosition: st.FilePosition}}
	}

	text := strings.ToUpper(stripComment(trimmed))
	l := &line{raw: raw, text: text, code: lastCommand(text)}

	if h, ok := handlers[l.code]; ok {
		return h(st, l)
	}
	if text != "" && text[0] == 'T' {
		return selectTool(st, l)
	}
	return &Comment{Header: l.header(st)}
}

// lastCommand returns the final G or M word of text. A T word counts only
// when it starts the line, elsewhere it is a parameter as in "M104 T1 S200".
func lastCommand(text string) string {
	locs := commandToken.FindAllStringIndex(text, -1)
	for i := len(locs) - 1; i >= 0; i-- {
		start, end := locs[i][0], locs[i][1]
		if text[start] == 'T' && start != 0 {
			continue
		}
		return text[start:end]
	}
	return ""
}

// stripComment removes a trailing ';' comment.
func stripComment(s string) string {
	if idx := strings.IndexByte(s, ';'); idx >= 0 {
		return strings.TrimSpace(s[:idx])
	}
	return s
}
