// Package geom holds the numeric helpers of the interpreter: RGBA colors,
// 24-bit pick-id packing, axis-order conversion and arc decomposition.
package geom

import (
	"image/color"

	"github.com/go-gl/mathgl/mgl64"
)

// Colors used when no classification applies.
var (
	White = mgl64.Vec4{1, 1, 1, 1}
	Gray  = mgl64.Vec4{0.5, 0.5, 0.5, 1}
)

// RGBA converts any image color into a normalized RGBA vector.
func RGBA(c color.Color) mgl64.Vec4 {
	r, g, b, a := c.RGBA()
	return mgl64.Vec4{
		float64(r) / 0xffff,
		float64(g) / 0xffff,
		float64(b) / 0xffff,
		float64(a) / 0xffff,
	}
}

// NumToColor unpacks a 24-bit id into its red, green and blue bytes.
// Renderers encode record indices this way for GPU picking.
func NumToColor(n int) [3]uint8 {
	return [3]uint8{
		uint8((n >> 16) & 0xff),
		uint8((n >> 8) & 0xff),
		uint8(n & 0xff),
	}
}

// ColorToNum packs three color bytes back into the 24-bit id.
func ColorToNum(c [3]uint8) int {
	return int(c[0])<<16 | int(c[1])<<8 | int(c[2])
}

// PickColor returns the normalized RGBA vector encoding id n.
func PickColor(n int) mgl64.Vec4 {
	c := NumToColor(n)
	return mgl64.Vec4{float64(c[0]) / 255, float64(c[1]) / 255, float64(c[2]) / 255, 1}
}

// ToGCodeAxes converts an internal position (Y up) into G-code axis order.
func ToGCodeAxes(p mgl64.Vec3) mgl64.Vec3 {
	return mgl64.Vec3{p[0], p[2], p[1]}
}

// FromGCodeAxes converts a G-code ordered position into internal axes.
func FromGCodeAxes(p mgl64.Vec3) mgl64.Vec3 {
	return mgl64.Vec3{p[0], p[2], p[1]}
}
