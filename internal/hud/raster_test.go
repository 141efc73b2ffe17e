package hud

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVRunClipsToRaster(t *testing.T) {
	img := newLayer(4, 5)
	red := color.RGBA{255, 0, 0, 255}
	vrun(img, 1, 3, -2, red)
	for y := 0; y < 5; y++ {
		want := color.RGBA{}
		if y <= 3 {
			want = red
		}
		assert.Equal(t, want, img.RGBAAt(1, y), "y=%d", y)
	}
	vrun(img, 9, 0, 4, red)
	assert.Equal(t, color.RGBA{}, img.RGBAAt(3, 0))
}

func TestShiftInto(t *testing.T) {
	src := newLayer(5, 2)
	for x := 0; x < 5; x++ {
		src.SetRGBA(x, 1, color.RGBA{uint8(x + 1), 0, 0, 255})
	}
	dst := newLayer(5, 2)
	shiftInto(dst, src, 2)
	for x := 0; x < 3; x++ {
		assert.Equal(t, uint8(x+3), dst.RGBAAt(x, 1).R)
	}
	assert.Equal(t, color.RGBA{}, dst.RGBAAt(3, 1))

	clearColumn(dst, 0)
	assert.Equal(t, color.RGBA{}, dst.RGBAAt(0, 1))
	assert.Equal(t, uint8(4), dst.RGBAAt(1, 1).R)
}

func TestFillRectBlendsOver(t *testing.T) {
	img := newLayer(2, 2)
	fillRect(img, image.Rect(0, 0, 2, 2), colBackground)
	assert.Equal(t, color.RGBA{0, 0, 0, 110}, img.RGBAAt(1, 1))

	fillRect(img, image.Rect(0, 0, 1, 1), color.RGBA{255, 255, 255, 255})
	assert.Equal(t, color.RGBA{255, 255, 255, 255}, img.RGBAAt(0, 0))
	assert.Equal(t, color.RGBA{0, 0, 0, 110}, img.RGBAAt(1, 0))
}

func TestRenderGridSize(t *testing.T) {
	img, err := renderGrid(120, 60, gridSpec{
		xMin: -30, xMax: 30, yMin: -1, yMax: 1,
		xTicks: secondTicks(30, 30), yTicks: symmetricTicks(1),
	})
	assert.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 120, 60), img.Rect)

	var lit int
	for i := 3; i < len(img.Pix); i += 4 {
		if img.Pix[i] != 0 {
			lit++
		}
	}
	assert.NotZero(t, lit)
}

func TestSecondTicks(t *testing.T) {
	assert.Equal(t, []float64{0, 30, -30, 60, -60}, secondTicks(60, 30))
	assert.Nil(t, secondTicks(0, 30))
}

func TestFontSize(t *testing.T) {
	assert.Equal(t, 10, fontSizeFor(40))
	assert.Equal(t, 13, fontSizeFor(100))
	assert.Equal(t, 18, fontSizeFor(400))
	assert.Equal(t, 14, topPad(6))
	assert.Equal(t, 26, topPad(18))
}
