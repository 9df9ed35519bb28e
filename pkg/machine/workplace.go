package machine

import (
	"strconv"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
)

// NumWorkplaces covers machine coordinates plus G54..G59.3.
const NumWorkplaces = 10

// Workplace is a recorded work coordinate offset in G-code axis order.
type Workplace struct {
	Offset   mgl64.Vec3
	Recorded bool
}

var workplaceCodes = map[string]int{
	"G54":   1,
	"G55":   2,
	"G56":   3,
	"G57":   4,
	"G58":   5,
	"G59":   6,
	"G59.1": 7,
	"G59.2": 8,
	"G59.3": 9,
}

// WorkplaceIndex maps G54..G59.3 to 1..9.
func WorkplaceIndex(code string) (int, bool) {
	idx, ok := workplaceCodes[strings.ToUpper(code)]
	return idx, ok
}

// WorkplaceCode is the inverse of WorkplaceIndex; index 0 is "G53".
func WorkplaceCode(idx int) string {
	switch {
	case idx <= 0:
		return "G53"
	case idx <= 6:
		return "G" + strconv.Itoa(53+idx)
	default:
		return "G59." + strconv.Itoa(idx-6)
	}
}

// SelectWorkplace activates workplace idx. Selecting the active workplace
// again does nothing and reports false.
func (s *State) SelectWorkplace(idx int) bool {
	if idx < 0 || idx >= NumWorkplaces || idx == s.WorkplaceIdx {
		return false
	}
	s.WorkplaceIdx = idx
	s.WorkplaceOffset = s.Workplaces[idx].Offset
	s.WorkplaceChanges++
	return true
}

// RecordWorkplace stores an offset for slot idx; 0 means the active slot.
// Only the axes present in axes are written.
func (s *State) RecordWorkplace(idx int, offset mgl64.Vec3, axes [3]bool) bool {
	if idx == 0 {
		idx = s.WorkplaceIdx
	}
	if idx < 0 || idx >= NumWorkplaces {
		return false
	}
	wp := &s.Workplaces[idx]
	for i, set := range axes {
		if set {
			wp.Offset[i] = offset[i]
		}
	}
	wp.Recorded = true
	if idx == s.WorkplaceIdx {
		s.WorkplaceOffset = wp.Offset
	}
	return true
}
