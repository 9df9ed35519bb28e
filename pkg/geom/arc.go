package geom

import (
	"math"
	"strings"

	"github.com/go-gl/mathgl/mgl64"

	"gcodeview/pkg/errors"
)

// DefaultSegmentLength is the chord length arcs are tessellated to, in mm.
const DefaultSegmentLength = 0.5

// radiusTolerance is how far below zero h² may fall, as a fraction of R²,
// before an R-form arc is rejected.
const radiusTolerance = 0.02

// fullCircleEpsilon decides when start and end of an arc coincide.
const fullCircleEpsilon = 1e-9

// MaxSegments caps the points of one arc. Longer arcs get longer chords.
const MaxSegments = 100000

// Plane selects the arc interpolation plane (G17/G18/G19).
type Plane int

const (
	PlaneXY Plane = iota
	PlaneXZ
	PlaneYZ
)

// String returns the plane name
func (p Plane) String() string {
	switch p {
	case PlaneXZ:
		return "XZ"
	case PlaneYZ:
		return "YZ"
	default:
		return "XY"
	}
}

// ParsePlane parses "XY", "XZ" or "YZ" (any case).
func ParsePlane(s string) (Plane, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "XY", "G17":
		return PlaneXY, true
	case "XZ", "G18":
		return PlaneXZ, true
	case "YZ", "G19":
		return PlaneYZ, true
	}
	return PlaneXY, false
}

// planeLayout lists the two planar axes, the linear third axis and the
// letters holding the center offsets along the planar axes. XZ runs Z then X
// so that G2 stays clockwise when viewed from the positive Y side.
type planeLayout struct {
	axis0, axis1, axis2 int
	off0, off1          byte
}

var planeLayouts = [...]planeLayout{
	PlaneXY: {0, 1, 2, 'I', 'J'},
	PlaneXZ: {2, 0, 1, 'K', 'I'},
	PlaneYZ: {1, 2, 0, 'J', 'K'},
}

// ArcParams describes one G2/G3 command. Positions are in G-code axis order.
type ArcParams struct {
	// Args maps parameter letters (X Y Z I J K R) to values; presence matters
	Args map[byte]float64

	Position      mgl64.Vec3
	Relative      bool
	Clockwise     bool
	SegmentLength float64
	FixRadius     bool
	Plane         Plane

	// Workplace is added to explicit axis values in absolute mode
	Workplace mgl64.Vec3
}

// ArcResult is the tessellated arc. Points exclude the start position and end
// on the target. An aborted arc has no points.
type ArcResult struct {
	Position mgl64.Vec3
	Points   []mgl64.Vec3
	Center   mgl64.Vec3
	Radius   float64
	Sweep    float64
}

// DoArc decomposes an arc into a polyline.
func DoArc(p ArcParams) (ArcResult, error) {
	return DoArcInto(nil, p)
}

// DoArcInto is DoArc appending the points to dst.
//
// Degenerate arcs (zero chord in R form, zero I/J offsets) leave the position
// unchanged. An R-form radius too small for its chord fails with
// errors.ErrArcRadius unless FixRadius is set; the returned position is then
// the target so callers can continue from it.
func DoArcInto(dst []mgl64.Vec3, p ArcParams) (ArcResult, error) {
	layout := planeLayouts[PlaneXY]
	if p.Plane >= PlaneXY && p.Plane <= PlaneYZ {
		layout = planeLayouts[p.Plane]
	}
	a0, a1, a2 := layout.axis0, layout.axis1, layout.axis2

	target := p.Position
	for axis, letter := range [3]byte{'X', 'Y', 'Z'} {
		v, ok := p.Args[letter]
		if !ok {
			continue
		}
		if p.Relative {
			target[axis] = p.Position[axis] + v
		} else {
			target[axis] = v + p.Workplace[axis]
		}
	}

	res := ArcResult{Position: p.Position, Points: dst}
	segLen := p.SegmentLength
	if segLen <= 0 {
		segLen = DefaultSegmentLength
	}

	i := p.Args[layout.off0]
	j := p.Args[layout.off1]
	if r, ok := p.Args['R']; ok {
		d0 := target[a0] - p.Position[a0]
		d1 := target[a1] - p.Position[a1]
		dSquared := d0*d0 + d1*d1
		if dSquared == 0 {
			return res, nil
		}

		hSquared := r*r - dSquared/4
		hDivD := 0.0
		switch {
		case hSquared >= 0:
			hDivD = math.Sqrt(hSquared / dSquared)
		case hSquared < -radiusTolerance*r*r && !p.FixRadius:
			res.Position = target
			return res, errors.ArcRadiusError(r, math.Sqrt(dSquared))
		}
		// Within tolerance, or fixed up to the smallest radius spanning
		// the chord: the center sits on the chord midpoint.

		if (p.Clockwise && r < 0) || (!p.Clockwise && r > 0) {
			hDivD = -hDivD
		}
		i = d0/2 + d1*hDivD
		j = d1/2 - d0*hDivD
	} else if i == 0 && j == 0 {
		return res, nil
	}

	c0 := p.Position[a0] + i
	c1 := p.Position[a1] + j
	radius := math.Hypot(i, j)
	startAngle := math.Atan2(-j, -i)

	var sweep float64
	if math.Abs(p.Position[a0]-target[a0]) < fullCircleEpsilon &&
		math.Abs(p.Position[a1]-target[a1]) < fullCircleEpsilon {
		sweep = 2 * math.Pi
	} else {
		endAngle := math.Atan2(target[a1]-c1, target[a0]-c0)
		if p.Clockwise {
			sweep = startAngle - endAngle
		} else {
			sweep = endAngle - startAngle
		}
		if sweep < 0 {
			sweep += 2 * math.Pi
		}
	}

	count := math.Ceil(radius * sweep / segLen)
	if !(count <= MaxSegments) {
		count = MaxSegments
	}
	segments := int(count)
	if segments < 1 {
		segments = 1
	}

	step := sweep / float64(segments)
	if p.Clockwise {
		step = -step
	}
	linear := (target[a2] - p.Position[a2]) / float64(segments)
	for k := 1; k < segments; k++ {
		angle := startAngle + step*float64(k)
		var pt mgl64.Vec3
		pt[a0] = c0 + radius*math.Cos(angle)
		pt[a1] = c1 + radius*math.Sin(angle)
		pt[a2] = p.Position[a2] + linear*float64(k)
		res.Points = append(res.Points, pt)
	}
	res.Points = append(res.Points, target)

	res.Position = target
	res.Center[a0] = c0
	res.Center[a1] = c1
	res.Center[a2] = p.Position[a2]
	res.Radius = radius
	res.Sweep = sweep
	return res, nil
}
