package hud

import (
	"errors"
	"fmt"
	"image"
	"image/draw"
	"math"
)

// State is the lifecycle state of one widget inside a Compositor.
type State int

const (
	StateUninitialized State = iota
	StateSteady
	StateReinitializing
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateSteady:
		return "steady"
	case StateReinitializing:
		return "reinitializing"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Layout places one widget on the HUD canvas.
type Layout struct {
	Name string
	Rect image.Rectangle
}

// widgetState is everything the Compositor keeps for one widget between
// frames.
type widgetState struct {
	name string
	w    widget
	rect image.Rectangle

	state   State
	prev    int
	dirty   bool
	reinits int

	fontSize int
	plotTop  int
	axis     axisSpec
	scrolls  bool

	// win is the frame count of each half window, scale the pixels per
	// frame and offset the whole columns scrolled at frame prev.
	win    int
	scale  float64
	offset int

	static    *image.RGBA
	staticWin int

	// ring holds the two dynamic rasters; ring[cur] is the live one.
	ring [2]*image.RGBA
	cur  int
}

// Compositor renders full HUD frames. It is not safe for concurrent use;
// concurrent exports use one Compositor each.
type Compositor struct {
	ctx     *Context
	canvas  *image.RGBA
	widgets []*widgetState
	beforeS float64
	afterS  float64
	faces   faceCache
}

// New creates a Compositor drawing onto a w x h canvas.
func New(ctx *Context, w, h int, layout []Layout, beforeS, afterS float64) (*Compositor, error) {
	if ctx == nil || ctx.Corr == nil {
		return nil, errors.New("hud: engine context without correspondence")
	}
	if !(ctx.FPS > 0) {
		return nil, fmt.Errorf("hud: invalid frame rate %v", ctx.FPS)
	}
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("hud: invalid canvas %dx%d", w, h)
	}
	c := &Compositor{
		ctx:     ctx,
		canvas:  newLayer(w, h),
		beforeS: beforeS,
		afterS:  afterS,
	}
	if err := c.SetLayout(layout); err != nil {
		return nil, err
	}
	return c, nil
}

// SetLayout replaces the widget placement. Widgets whose rectangle changed
// are reinitialized on the next frame; unchanged widgets keep their state.
func (c *Compositor) SetLayout(layout []Layout) error {
	old := make(map[string]*widgetState, len(c.widgets))
	for _, ws := range c.widgets {
		old[ws.name] = ws
	}
	bounds := c.canvas.Rect
	next := make([]*widgetState, 0, len(layout))
	seen := make(map[string]bool, len(layout))
	for _, l := range layout {
		if seen[l.Name] {
			return fmt.Errorf("hud: widget %q placed twice", l.Name)
		}
		seen[l.Name] = true
		r := l.Rect.Intersect(bounds)
		if r.Dx() < 2 || r.Dy() < 2 {
			continue
		}
		if ws, ok := old[l.Name]; ok {
			if ws.rect != r {
				ws.rect = r
				ws.dirty = true
				ws.static = nil
			}
			next = append(next, ws)
			continue
		}
		w := newWidget(l.Name)
		if w == nil {
			return fmt.Errorf("hud: unknown widget %q", l.Name)
		}
		next = append(next, &widgetState{name: l.Name, w: w, rect: r})
	}
	c.widgets = next
	return nil
}

// SetWindow changes the scroll window. Scrolling widgets reinitialize on
// the next frame if the frame count of the window changed.
func (c *Compositor) SetWindow(beforeS, afterS float64) {
	c.beforeS, c.afterS = beforeS, afterS
}

// windowFrames is the frame count of each half window. Both halves use the
// larger of the two configured windows.
func (c *Compositor) windowFrames() int {
	b := int(math.Round(math.Max(0, c.beforeS) * c.ctx.FPS))
	a := int(math.Round(math.Max(0, c.afterS) * c.ctx.FPS))
	return max(1, b, a)
}

// Render draws reference frame i and returns the canvas. The returned image
// is reused and only valid until the next call.
func (c *Compositor) Render(i int) (*image.RGBA, error) {
	clearAll(c.canvas)
	win := c.windowFrames()
	for _, ws := range c.widgets {
		if err := c.step(ws, i, win); err != nil {
			return nil, fmt.Errorf("render %s at frame %d: %w", ws.name, i, err)
		}
		c.compose(ws, i)
	}
	return c.canvas, nil
}

// Close releases the font faces.
func (c *Compositor) Close() {
	c.faces.close()
}

// State returns the lifecycle state of the named widget.
func (c *Compositor) State(name string) State {
	for _, ws := range c.widgets {
		if ws.name == name {
			return ws.state
		}
	}
	return StateUninitialized
}

func (c *Compositor) step(ws *widgetState, i, win int) error {
	if ws.state == StateUninitialized || ws.dirty || ws.win != win || i != ws.prev+1 {
		if ws.state != StateUninitialized {
			ws.state = StateReinitializing
		}
		if err := c.reinit(ws, i, win); err != nil {
			return err
		}
	} else if ws.scrolls {
		c.advance(ws, i)
	}
	ws.prev = i
	ws.dirty = false
	ws.state = StateSteady
	return nil
}

func (c *Compositor) reinit(ws *widgetState, i, win int) error {
	w, h := ws.rect.Dx(), ws.rect.Dy()
	ws.reinits++
	ws.w.prepare(c.ctx)
	ws.axis, ws.scrolls = ws.w.axis(c.ctx)
	ws.fontSize = fontSizeFor(h)
	ws.plotTop = min(topPad(ws.fontSize), h-1)
	ws.win = win
	ws.scale = float64(w) / float64(2*win)

	if ws.static == nil || ws.staticWin != win {
		if err := c.buildStatic(ws); err != nil {
			return err
		}
		ws.staticWin = win
	}
	if !ws.scrolls {
		return nil
	}
	for k := range ws.ring {
		if ws.ring[k] == nil || ws.ring[k].Rect.Dx() != w || ws.ring[k].Rect.Dy() != h {
			ws.ring[k] = newLayer(w, h)
		}
	}
	ws.cur = 0
	ws.offset = scrollOffset(i, ws.scale)
	dyn := ws.ring[ws.cur]
	for x := 0; x < w; x++ {
		c.renderColumn(ws, dyn, x, ws.offset+x)
	}
	return nil
}

// advance scrolls the dynamic layer by the whole columns due since the
// previous frame and renders only the exposed columns into the other ring
// slot. Without a visible scroll the rightmost column is still recomputed.
func (c *Compositor) advance(ws *widgetState, i int) {
	w := ws.rect.Dx()
	off := scrollOffset(i, ws.scale)
	shift := off - ws.offset
	src, dst := ws.ring[ws.cur], ws.ring[1-ws.cur]

	from := 0
	switch {
	case shift >= w:
	case shift == 0:
		shiftInto(dst, src, 0)
		from = w - 1
	default:
		shiftInto(dst, src, shift)
		from = w - shift
	}
	for x := from; x < w; x++ {
		c.renderColumn(ws, dst, x, off+x)
	}
	ws.cur = 1 - ws.cur
	ws.offset = off
}

func scrollOffset(i int, scale float64) int {
	return int(math.Floor(float64(i) * scale))
}

// frameAt maps an absolute column to a fractional reference frame. Because
// it does not depend on the current frame, a column renders the same pixels
// whether it was exposed by scrolling or by a full redraw.
func (ws *widgetState) frameAt(abs int) float64 {
	return float64(abs-ws.rect.Dx()/2) / ws.scale
}

func (ws *widgetState) yOf(v float64) int {
	h := ws.rect.Dy()
	ph := h - ws.plotTop
	span := ws.axis.hi - ws.axis.lo
	if ph <= 1 || !(span > 0) {
		return ws.plotTop
	}
	f := (ws.axis.hi - v) / span
	y := ws.plotTop + int(math.Round(f*float64(ph-1)))
	return max(ws.plotTop, min(h-1, y))
}

// renderColumn redraws column x of a dynamic layer for absolute column abs.
func (c *Compositor) renderColumn(ws *widgetState, dyn *image.RGBA, x, abs int) {
	clearColumn(dyn, x)
	g1 := ws.frameAt(abs)
	g0 := ws.frameAt(abs - 1)
	ph := ws.rect.Dy() - ws.plotTop
	for _, t := range ws.w.tracks() {
		v1, ok := t.sample(c.ctx, g1)
		if !ok {
			continue
		}
		switch t.style {
		case styleBand:
			if v1 >= 0.5 {
				y0 := ws.plotTop + int(math.Round(t.bandTop*float64(ph)))
				y1 := ws.plotTop + int(math.Round(t.bandBottom*float64(ph))) - 1
				vrun(dyn, x, y0, max(y0, y1), t.col)
			}
		default:
			y1 := ws.yOf(v1)
			y0 := y1
			if v0, ok := t.sample(c.ctx, g0); ok {
				y0 = ws.yOf(v0)
			}
			width := max(1, t.width)
			lo := min(y0, y1) - (width-1)/2
			hi := max(y0, y1) + width/2
			vrun(dyn, x, max(lo, ws.plotTop), hi, t.col)
		}
	}
}

func (c *Compositor) buildStatic(ws *widgetState) error {
	w, h := ws.rect.Dx(), ws.rect.Dy()
	if ws.static == nil || ws.static.Rect.Dx() != w || ws.static.Rect.Dy() != h {
		ws.static = newLayer(w, h)
	}
	img := ws.static
	clearAll(img)
	fillRect(img, img.Rect, colBackground)

	face := c.faces.face(ws.fontSize)
	base := ws.plotTop - 5
	drawText(img, face, 4, base, ws.w.title(), colLabel)

	if !ws.scrolls {
		if hd, ok := ws.w.(headed); ok {
			drawText(img, face, 4, base+ws.fontSize+2, hd.header(c.ctx), colLabel)
		}
		return nil
	}

	ph := h - ws.plotTop
	grid, err := renderGrid(w, ph, gridSpec{
		xMin:   -float64(ws.win),
		xMax:   float64(ws.win),
		yMin:   ws.axis.lo,
		yMax:   ws.axis.hi,
		xTicks: secondTicks(ws.win, c.ctx.FPS),
		yTicks: ws.axis.ticks,
	})
	if err != nil {
		return fmt.Errorf("static layer: %w", err)
	}
	draw.Draw(img, image.Rect(0, ws.plotTop, w, h), grid, image.Point{}, draw.Over)

	if ws.axis.zero && ws.axis.lo < 0 && ws.axis.hi > 0 {
		y := ws.yOf(0)
		fillRect(img, image.Rect(0, y, w, y+1), colZero)
	}
	cx := w / 2
	fillRect(img, image.Rect(cx, ws.plotTop, cx+1, h), colMarker)

	if ws.axis.topLabel != "" {
		drawText(img, face, 4, ws.plotTop+ws.fontSize, ws.axis.topLabel, colLabel)
	}
	if ws.axis.bottomLabel != "" {
		drawText(img, face, 4, h-4, ws.axis.bottomLabel, colLabel)
	}
	return nil
}

// compose layers static, dynamic and current values of one widget onto the
// canvas.
func (c *Compositor) compose(ws *widgetState, i int) {
	r := ws.rect
	draw.Draw(c.canvas, r, ws.static, image.Point{}, draw.Over)
	if ws.scrolls {
		draw.Draw(c.canvas, r, ws.ring[ws.cur], image.Point{}, draw.Over)
	}

	dst, ok := c.canvas.SubImage(r).(*image.RGBA)
	if !ok {
		return
	}
	face := c.faces.face(ws.fontSize)
	step := ws.fontSize + 2
	base := r.Min.Y + ws.plotTop - 5
	for k, ln := range ws.w.values(c.ctx, i) {
		if ws.scrolls {
			x := r.Max.X - 4 - textWidth(face, ln.text)
			drawText(dst, face, x, base+k*step, ln.text, ln.col)
		} else {
			drawText(dst, face, r.Min.X+4, base+(k+2)*step, ln.text, ln.col)
		}
	}
}
