package gcode

import (
	"gcodeview/pkg/geom"
	"gcodeview/pkg/machine"
	"gcodeview/pkg/pool"
)

// splitMoveTokens splits text before every G X Y Z E F U V A B letter,
// appending the pieces to dst.
func splitMoveTokens(dst []string, text string) []string {
	start := 0
	for i := 1; i < len(text); i++ {
		switch text[i] {
		case 'G', 'X', 'Y', 'Z', 'E', 'F', 'U', 'V', 'A', 'B':
			dst = append(dst, text[start:i])
			start = i
		}
	}
	if start < len(text) {
		dst = append(dst, text[start:])
	}
	return dst
}

// linearMove handles G0 and G1.
//
// Tokens are applied in order, which matters twice: an F word is recorded
// only once the move is already extruding (see machine.FeedRateApplies), and
// belt machines apply the words in reverse.
func linearMove(st *machine.State, l *line) Record {
	tool := st.ActiveTool()
	m := &Move{
		Header:      l.header(st),
		Tool:        st.CurrentTool,
		Start:       st.Position,
		Color:       geom.White,
		LayerHeight: st.LayerHeight,
	}

	tokens := pool.GetStringSlice()
	defer pool.PutStringSlice(tokens)
	*tokens = splitMoveTokens(*tokens, l.text)
	if st.ZBelt {
		reverse(*tokens)
	}

	forceAbsolute := false
	for _, tok := range *tokens {
		tok = trimToken(tok)
		if tok == "" {
			continue
		}

		if tok[0] == 'G' {
			switch tok {
			case "G53":
				forceAbsolute = true
			case "G1", "G01":
				m.Color = tool.Color
				if st.CNCMode {
					m.Extruding = true
				}
			}
			continue
		}

		v, ok := parseValue(tok[1:])
		if !ok {
			continue
		}
		absolute := st.Absolute || forceAbsolute

		switch tok[0] {
		case 'X':
			switch {
			case st.ZBelt:
				st.Position[0] = v
			case absolute:
				st.Position[0] = v + st.WorkplaceOffset[0]
			default:
				st.Position[0] += v
			}
		case 'Y':
			switch {
			case st.ZBelt:
				st.Position[1] = v * st.Hyp
				st.Position[2] = st.CurrentZ + st.Position[1]*st.Adj
			case absolute:
				st.Position[2] = v + st.WorkplaceOffset[1]
			default:
				st.Position[2] += v
			}
		case 'Z':
			switch {
			case st.ZBelt:
				st.CurrentZ = -v
				st.Position[2] = st.CurrentZ + st.Position[1]*st.Adj
			case absolute:
				st.Position[1] = v + st.WorkplaceOffset[2]
			default:
				st.Position[1] += v
			}
		case 'E':
			if v > 0 {
				m.Extruding = true
			}
		case 'F':
			if machine.FeedRateApplies(m.Extruding) {
				st.UpdateFeedRate(v)
			}
		}
	}

	m.End = st.Position
	m.FeedRate = st.CurrentFeedRate
	classify(st, m)
	return m
}

// classify copies the slicer feature onto m and finishes its line type.
func classify(st *machine.State, m *Move) {
	m.FeatureColor = st.Slicer.FeatureColor()
	m.IsPerimeter = st.Slicer.IsPerimeter()
	m.IsSupport = st.Slicer.IsSupport()

	if !m.Extruding {
		m.LineType = LineTravel
		m.Tool = machine.TravelTool
		return
	}
	m.LineType = LineExtrude
	st.TrackHeight(m.End[1])
	m.LayerHeight = st.LayerHeight
}

func trimToken(tok string) string {
	for len(tok) > 0 && (tok[len(tok)-1] == ' ' || tok[len(tok)-1] == '\t') {
		tok = tok[:len(tok)-1]
	}
	return tok
}

func reverse(s []string) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
