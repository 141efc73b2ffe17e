// Package encoder plans and runs the ffmpeg process that muxes the HUD
// stream between the two source videos.
package encoder

import "fmt"

// minSideWidth is the narrowest video column accepted on either side.
const minSideWidth = 10

// Geometry is the layout of the output canvas: the reference video on the
// left, the HUD column in the middle and the comparison video on the right.
type Geometry struct {
	Width  int
	Height int
	HUD    int
	LeftW  int
	RightW int
}

// NewGeometry splits a width x height canvas around a hud pixel wide column.
func NewGeometry(width, height, hud int) (Geometry, error) {
	if width <= 0 || height <= 0 {
		return Geometry{}, fmt.Errorf("invalid output size %dx%d", width, height)
	}
	if hud <= 0 || hud >= width-2 {
		return Geometry{}, fmt.Errorf("hud width %d does not fit output width %d", hud, width)
	}
	left := (width - hud) / 2
	right := width - hud - left
	if left <= minSideWidth || right <= minSideWidth {
		return Geometry{}, fmt.Errorf("video columns %d/%d px are too narrow for hud width %d", left, right, hud)
	}
	return Geometry{Width: width, Height: height, HUD: hud, LeftW: left, RightW: right}, nil
}

// HUDX is the x offset of the HUD column.
func (g Geometry) HUDX() int { return g.LeftW }

// FastX is the x offset of the comparison video.
func (g Geometry) FastX() int { return g.LeftW + g.HUD }
