package export

import (
	"image"

	"github.com/banshee-data/lapsync/internal/config"
	"github.com/banshee-data/lapsync/internal/hud"
)

// widgetLayout places the enabled widgets in a w x h HUD column. Widgets
// with full geometry in the config keep it; the rest are stacked.
func widgetLayout(cfg *config.ExportConfig, w, h int) []hud.Layout {
	var names []string
	placed := make(map[string]image.Rectangle)
	for _, name := range config.KnownWidgets {
		if !cfg.WidgetEnabled(name) {
			continue
		}
		names = append(names, name)
		if wc, ok := cfg.Widgets[name]; ok && wc.HasGeometry() {
			placed[name] = image.Rect(*wc.X, *wc.Y, *wc.X+*wc.W, *wc.Y+*wc.H)
		}
	}
	return hud.StackLayout(names, placed, w, h)
}
