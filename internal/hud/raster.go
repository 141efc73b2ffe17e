package hud

import (
	"image"
	"image/color"
)

// Palette shared by all widgets.
var (
	colSlowDark   = color.RGBA{234, 0, 0, 255}
	colSlowBright = color.RGBA{255, 137, 117, 255}
	colFastDark   = color.RGBA{36, 0, 250, 255}
	colFastBright = color.RGBA{1, 253, 255, 255}
	colWhite      = color.RGBA{255, 255, 255, 255}

	colBackground = color.NRGBA{0, 0, 0, 110}
	colGrid       = color.NRGBA{255, 255, 255, 40}
	colZero       = color.NRGBA{255, 255, 255, 110}
	colMarker     = color.NRGBA{255, 255, 255, 230}
	colLabel      = color.NRGBA{220, 220, 220, 255}
	colShadow     = color.NRGBA{0, 0, 0, 200}
)

// newLayer allocates a transparent w x h raster at the origin.
func newLayer(w, h int) *image.RGBA {
	return image.NewRGBA(image.Rect(0, 0, w, h))
}

// clearAll makes every pixel transparent.
func clearAll(img *image.RGBA) {
	clear(img.Pix)
}

// clearColumn makes column x transparent.
func clearColumn(img *image.RGBA, x int) {
	b := img.Rect
	if x < b.Min.X || x >= b.Max.X {
		return
	}
	off := img.PixOffset(x, b.Min.Y)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		img.Pix[off+0] = 0
		img.Pix[off+1] = 0
		img.Pix[off+2] = 0
		img.Pix[off+3] = 0
		off += img.Stride
	}
}

// vrun sets the pixels of column x between y0 and y1 inclusive to an
// opaque colour, clipped to the raster.
func vrun(img *image.RGBA, x, y0, y1 int, c color.RGBA) {
	b := img.Rect
	if x < b.Min.X || x >= b.Max.X {
		return
	}
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	y0 = max(y0, b.Min.Y)
	y1 = min(y1, b.Max.Y-1)
	if y0 > y1 {
		return
	}
	off := img.PixOffset(x, y0)
	for y := y0; y <= y1; y++ {
		img.Pix[off+0] = c.R
		img.Pix[off+1] = c.G
		img.Pix[off+2] = c.B
		img.Pix[off+3] = c.A
		off += img.Stride
	}
}

// shiftInto copies src into dst moved left by shift columns. The exposed
// right-hand columns of dst are left untouched. Both rasters share geometry.
func shiftInto(dst, src *image.RGBA, shift int) {
	w := src.Rect.Dx()
	h := src.Rect.Dy()
	if shift < 0 {
		shift = 0
	}
	if shift >= w {
		return
	}
	n := (w - shift) * 4
	for y := 0; y < h; y++ {
		row := y * src.Stride
		copy(dst.Pix[row:row+n], src.Pix[row+shift*4:row+shift*4+n])
	}
}

// fillRect fills r with c using source-over.
func fillRect(img *image.RGBA, r image.Rectangle, c color.Color) {
	r = r.Intersect(img.Rect)
	if r.Empty() {
		return
	}
	cr, cg, cb, ca := c.RGBA()
	if ca == 0 {
		return
	}
	inv := 0xffff - ca
	for y := r.Min.Y; y < r.Max.Y; y++ {
		off := img.PixOffset(r.Min.X, y)
		for x := r.Min.X; x < r.Max.X; x++ {
			p := img.Pix[off : off+4 : off+4]
			p[0] = uint8((uint32(p[0])*0x101*inv/0xffff + cr) >> 8)
			p[1] = uint8((uint32(p[1])*0x101*inv/0xffff + cg) >> 8)
			p[2] = uint8((uint32(p[2])*0x101*inv/0xffff + cb) >> 8)
			p[3] = uint8((uint32(p[3])*0x101*inv/0xffff + ca) >> 8)
			off += 4
		}
	}
}
