package geom

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"golang.org/x/image/colornames"
)

func TestColorPacking(t *testing.T) {
	for _, n := range []int{0, 1, 255, 256, 0x123456, 0xffffff} {
		c := NumToColor(n)
		assert.Equal(t, n, ColorToNum(c), "round trip of %#x", n)
	}
	assert.Equal(t, [3]uint8{0x12, 0x34, 0x56}, NumToColor(0x123456))
	// Ids wider than 24 bits wrap
	assert.Equal(t, NumToColor(1), NumToColor(0x1000001))
}

func TestPickColor(t *testing.T) {
	assert.Equal(t, mgl64.Vec4{1, 0, 0, 1}, PickColor(0xff0000))
}

func TestRGBA(t *testing.T) {
	assert.Equal(t, mgl64.Vec4{1, 0, 0, 1}, RGBA(colornames.Red))
	assert.Equal(t, mgl64.Vec4{1, 1, 0, 1}, RGBA(colornames.Yellow))
}

func TestAxisOrder(t *testing.T) {
	internal := mgl64.Vec3{1, 2, 3}
	gc := ToGCodeAxes(internal)
	assert.Equal(t, mgl64.Vec3{1, 3, 2}, gc)
	assert.Equal(t, internal, FromGCodeAxes(gc))
}
