package hud

import "image"

// tableHeight is the stacked height of a table widget.
const tableHeight = 64

// isTable reports whether the named widget has no scrolling plot.
func isTable(name string) bool {
	w := newWidget(name)
	if w == nil {
		return false
	}
	_, scrolls := w.axis(&Context{})
	return !scrolls
}

// StackLayout places widgets in the HUD column of size w x h. Widgets with
// an entry in placed keep that rectangle; the others are stacked top to
// bottom in the given order, tables at a fixed height and scrolling widgets
// sharing the remaining height equally.
func StackLayout(names []string, placed map[string]image.Rectangle, w, h int) []Layout {
	var tables, scrollers int
	for _, n := range names {
		if _, ok := placed[n]; ok {
			continue
		}
		if isTable(n) {
			tables++
		} else {
			scrollers++
		}
	}
	share := 0
	if scrollers > 0 {
		share = max(0, h-tables*tableHeight) / scrollers
	}

	out := make([]Layout, 0, len(names))
	y := 0
	for _, n := range names {
		if r, ok := placed[n]; ok {
			out = append(out, Layout{Name: n, Rect: r})
			continue
		}
		hh := share
		if isTable(n) {
			hh = tableHeight
		}
		out = append(out, Layout{Name: n, Rect: image.Rect(0, y, w, min(h, y+hh))})
		y += hh
	}
	return out
}
