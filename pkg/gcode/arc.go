package gcode

import (
	"gcodeview/pkg/geom"
	"gcodeview/pkg/log"
	"gcodeview/pkg/machine"
	"gcodeview/pkg/pool"
)

// arcMove handles G2 (clockwise) and G3 (counter-clockwise).
//
// The arc is classified once and every segment inherits that. A failed arc
// produces no segments and leaves the position on the arc's target.
func arcMove(st *machine.State, l *line) Record {
	args := scanArgs(l.text)
	tool := st.ActiveTool()

	extruding := st.CNCMode || args['E'] > 0
	if f, ok := args['F']; ok && machine.FeedRateApplies(extruding) {
		st.UpdateFeedRate(f)
	}

	toolIdx := st.CurrentTool
	if !extruding {
		toolIdx = machine.TravelTool
	}
	a := &ArcMove{Move: Move{
		Header:      l.header(st),
		Tool:        toolIdx,
		Start:       st.Position,
		Extruding:   extruding,
		Color:       tool.Color,
		FeedRate:    st.CurrentFeedRate,
		LayerHeight: st.LayerHeight,
	}}
	a.FeatureColor = st.Slicer.FeatureColor()
	a.IsPerimeter = st.Slicer.IsPerimeter()
	a.IsSupport = st.Slicer.IsSupport()

	points := pool.GetPointSlice()
	defer pool.PutPointSlice(points)

	res, err := geom.DoArcInto((*points)[:0], geom.ArcParams{
		Args:          args,
		Position:      geom.ToGCodeAxes(st.Position),
		Relative:      !st.Absolute,
		Clockwise:     l.code == "G2" || l.code == "G02",
		SegmentLength: st.ArcSegmentLength,
		FixRadius:     st.FixRadius,
		Plane:         st.ArcPlane,
		Workplace:     st.WorkplaceOffset,
	})
	*points = res.Points
	if err != nil {
		log.GetLogger("gcode").WithError(err).WithFields(log.Fields{
			"line":  st.LineNumber,
			"plane": st.ArcPlane.String(),
		}).Warn("arc skipped")
	}

	segType := LineTravel
	if extruding {
		segType = LineExtrude
	}
	cur := st.Position
	a.Segments = make([]Move, len(res.Points))
	for i, p := range res.Points {
		end := geom.FromGCodeAxes(p)
		seg := a.Move
		seg.Start, seg.End, seg.LineType = cur, end, segType
		a.Segments[i] = seg
		cur = end
	}

	st.Position = geom.FromGCodeAxes(res.Position)
	a.End = st.Position
	a.LineType = LineArc
	if extruding {
		st.TrackHeight(a.End[1])
		a.LayerHeight = st.LayerHeight
		for i := range a.Segments {
			a.Segments[i].LayerHeight = a.LayerHeight
		}
	}
	return a
}
