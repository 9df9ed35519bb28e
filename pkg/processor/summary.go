package processor

import (
	"time"

	"gcodeview/pkg/gcode"
	"gcodeview/pkg/machine"
	"gcodeview/pkg/metrics"
)

// Summary aggregates a parse for display and metrics.
type Summary struct {
	Lines       int            `json:"lines"`
	Counts      map[string]int `json:"counts"`
	Moves       int            `json:"moves"`
	Extrusions  int            `json:"extrusions"`
	Arcs        int            `json:"arcs"`
	ArcSegments int            `json:"arc_segments"`
	Distance    float64        `json:"distance"`

	MinFeedRate float64 `json:"min_feed_rate"`
	MaxFeedRate float64 `json:"max_feed_rate"`

	MinHeight   float64 `json:"min_height"`
	MaxHeight   float64 `json:"max_height"`
	LayerHeight float64 `json:"layer_height"`

	FirstGCodeByte int64 `json:"first_gcode_byte"`
	LastGCodeByte  int64 `json:"last_gcode_byte"`

	Tools            int `json:"tools"`
	ToolChanges      int `json:"tool_changes"`
	WorkplaceChanges int `json:"workplace_changes"`

	Slicer          string        `json:"slicer"`
	UnknownFeatures []string      `json:"unknown_features,omitempty"`
	Duration        time.Duration `json:"duration_ns"`
}

func newSummary(st *machine.State) *Summary {
	return &Summary{
		Counts: make(map[string]int),
		Slicer: st.Slicer.Name(),
	}
}

func (s *Summary) add(rec gcode.Record) {
	s.Lines++
	s.Counts[rec.Kind().String()]++

	switch r := rec.(type) {
	case *gcode.Move:
		s.Moves++
		if r.Extruding {
			s.Extrusions++
		}
		s.Distance += r.Length()
	case *gcode.ArcMove:
		s.Arcs++
		s.ArcSegments += len(r.Segments)
		if r.Extruding {
			s.Extrusions++
		}
		s.Distance += r.Length()
	}
}

func (s *Summary) finish(st *machine.State, d time.Duration) {
	if st.MinFeedRate != machine.MinFeedRateUnset {
		s.MinFeedRate = st.MinFeedRate
	}
	s.MaxFeedRate = st.MaxFeedRate
	if st.HasHeight {
		s.MinHeight = st.MinHeight
		s.MaxHeight = st.MaxHeight
		s.LayerHeight = st.LayerHeight
	}
	if st.HasFirstGCodeByte {
		s.FirstGCodeByte = st.FirstGCodeByte
		s.LastGCodeByte = st.LastGCodeByte
	}
	s.Tools = st.NumTools()
	s.ToolChanges = st.ToolChanges
	s.WorkplaceChanges = st.WorkplaceChanges
	s.UnknownFeatures = st.Slicer.UnknownFeatures()
	s.Duration = d
}

// observation converts the summary for metrics. A failed parse has not
// called finish, so only the counters gathered so far are reported.
func (s *Summary) observation(d time.Duration, err error) metrics.ParseObservation {
	return metrics.ParseObservation{
		Slicer:          s.Slicer,
		Lines:           s.Lines,
		Records:         s.Counts,
		ArcSegments:     s.ArcSegments,
		UnknownFeatures: len(s.UnknownFeatures),
		Duration:        d,
		Err:             err,
	}
}
