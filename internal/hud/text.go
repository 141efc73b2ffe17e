package hud

import (
	"image"
	"image/color"
	"image/draw"
	"math"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

var (
	fontOnce sync.Once
	fontTTF  *opentype.Font
	fontErr  error
)

func parsedFont() (*opentype.Font, error) {
	fontOnce.Do(func() {
		fontTTF, fontErr = opentype.Parse(gomono.TTF)
	})
	return fontTTF, fontErr
}

// faceCache holds font faces per pixel size. Faces are not safe for
// concurrent use, so every Compositor owns its own cache.
type faceCache struct {
	faces map[int]font.Face
}

func (fc *faceCache) face(size int) font.Face {
	if f, ok := fc.faces[size]; ok {
		return f
	}
	if fc.faces == nil {
		fc.faces = make(map[int]font.Face)
	}
	ttf, err := parsedFont()
	var f font.Face
	if err == nil {
		f, err = opentype.NewFace(ttf, &opentype.FaceOptions{
			Size:    float64(size),
			DPI:     72,
			Hinting: font.HintingFull,
		})
	}
	if err != nil {
		f = basicfont.Face7x13
	}
	fc.faces[size] = f
	return f
}

func (fc *faceCache) close() {
	for _, f := range fc.faces {
		_ = f.Close()
	}
	fc.faces = nil
}

// fontSizeFor scales text with the widget height.
func fontSizeFor(h int) int {
	s := int(math.Round(float64(h) * 0.13))
	return max(10, min(18, s))
}

// topPad is the band reserved for the widget title.
func topPad(fontSize int) int {
	return max(14, fontSize+8)
}

func textWidth(f font.Face, s string) int {
	return font.MeasureString(f, s).Ceil()
}

// drawText draws s with its baseline at (x, y) and a one pixel drop shadow.
func drawText(dst draw.Image, f font.Face, x, y int, s string, c color.Color) {
	d := font.Drawer{Dst: dst, Face: f}
	d.Src = image.NewUniform(colShadow)
	d.Dot = fixed.P(x+1, y+1)
	d.DrawString(s)
	d.Src = image.NewUniform(c)
	d.Dot = fixed.P(x, y)
	d.DrawString(s)
}
