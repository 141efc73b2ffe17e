package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/banshee-data/lapsync/internal/units"
)

// Widget names of the fixed HUD set.
const (
	WidgetThrottleBrake  = "throttle_brake"
	WidgetSteering       = "steering"
	WidgetDelta          = "delta"
	WidgetLineDelta      = "line_delta"
	WidgetUnderOversteer = "under_oversteer"
	WidgetSpeed          = "speed"
	WidgetGearRPM        = "gear_rpm"
)

// KnownWidgets lists every widget in default stacking order.
var KnownWidgets = []string{
	WidgetSpeed,
	WidgetGearRPM,
	WidgetThrottleBrake,
	WidgetSteering,
	WidgetDelta,
	WidgetLineDelta,
	WidgetUnderOversteer,
}

// Pedal sampling modes.
const (
	PedalModeTime   = "time"
	PedalModeLegacy = "legacy"
)

// WidgetConfig enables and places one widget inside the HUD column. A widget
// without geometry is stacked below the previous one.
type WidgetConfig struct {
	Enabled *bool `json:"enabled,omitempty"`
	X       *int  `json:"x,omitempty"`
	Y       *int  `json:"y,omitempty"`
	W       *int  `json:"w,omitempty"`
	H       *int  `json:"h,omitempty"`
}

// HasGeometry reports whether all four geometry fields are set.
func (w WidgetConfig) HasGeometry() bool {
	return w.X != nil && w.Y != nil && w.W != nil && w.H != nil
}

// ExportConfig represents the root configuration of one comparison export.
// Every field is optional; the Get* methods supply defaults.
type ExportConfig struct {
	// Output canvas
	OutputPreset *string `json:"output_preset,omitempty"` // "1920x1080"
	HUDWidth     *int    `json:"hud_width_px,omitempty"`

	// Widgets keyed by widget name
	Widgets map[string]WidgetConfig `json:"widgets,omitempty"`

	// Scroll window
	BeforeSeconds *float64 `json:"before_s,omitempty"`
	AfterSeconds  *float64 `json:"after_s,omitempty"`

	// Readouts
	SpeedUnit          *string  `json:"speed_unit,omitempty"`
	SpeedUpdateHz      *float64 `json:"speed_update_hz,omitempty"`
	GearRPMUpdateHz    *float64 `json:"gear_rpm_update_hz,omitempty"`
	MinSpeedThreshold  *float64 `json:"min_speed_threshold,omitempty"` // display units
	MinSpeedLookaheadS *float64 `json:"min_speed_lookahead_s,omitempty"`

	// Pedals
	PedalSampleMode     *string  `json:"pedal_sample_mode,omitempty"`
	ABSDebounceMS       *float64 `json:"abs_debounce_ms,omitempty"`
	PedalHeadroom       *float64 `json:"pedal_headroom,omitempty"`
	MaxBrakeDelayDist   *float64 `json:"max_brake_delay_dist,omitempty"` // lap fraction
	MaxBrakeOverridePct *float64 `json:"max_brake_override_pct,omitempty"`

	// Scaling
	SteeringHeadroom         *float64 `json:"steering_headroom,omitempty"`
	UndersteerCurveCenterPct *float64 `json:"under_oversteer_curve_center_pct,omitempty"`

	// Encoder
	VideoCodec        *string  `json:"video_codec,omitempty"`
	PixelFormat       *string  `json:"pixel_format,omitempty"`
	EncoderArgs       []string `json:"encoder_args,omitempty"`
	SyncSegmentFrames *int     `json:"sync_segment_frames,omitempty"`

	// Orchestration
	ProgressInterval *int    `json:"progress_interval_frames,omitempty"`
	CachePath        *string `json:"cache_path,omitempty"`
	DiagnosticsDir   *string `json:"diagnostics_dir,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyExportConfig returns an ExportConfig with all fields unset.
func EmptyExportConfig() *ExportConfig {
	return &ExportConfig{}
}

// DefaultExportConfig returns a config with every default filled in
// explicitly, all widgets enabled.
func DefaultExportConfig() *ExportConfig {
	c := EmptyExportConfig()
	c.OutputPreset = ptrString(c.GetOutputPreset())
	c.HUDWidth = ptrInt(c.GetHUDWidth())
	c.Widgets = make(map[string]WidgetConfig, len(KnownWidgets))
	for _, name := range KnownWidgets {
		c.Widgets[name] = WidgetConfig{Enabled: ptrBool(true)}
	}
	c.BeforeSeconds = ptrFloat64(c.GetBeforeSeconds())
	c.AfterSeconds = ptrFloat64(c.GetAfterSeconds())
	c.SpeedUnit = ptrString(c.GetSpeedUnit())
	c.SpeedUpdateHz = ptrFloat64(c.GetSpeedUpdateHz())
	c.GearRPMUpdateHz = ptrFloat64(c.GetGearRPMUpdateHz())
	c.MinSpeedThreshold = ptrFloat64(c.GetMinSpeedThreshold())
	c.MinSpeedLookaheadS = ptrFloat64(c.GetMinSpeedLookaheadS())
	c.PedalSampleMode = ptrString(c.GetPedalSampleMode())
	c.ABSDebounceMS = ptrFloat64(c.GetABSDebounceMS())
	c.PedalHeadroom = ptrFloat64(c.GetPedalHeadroom())
	c.MaxBrakeDelayDist = ptrFloat64(c.GetMaxBrakeDelayDist())
	c.MaxBrakeOverridePct = ptrFloat64(c.GetMaxBrakeOverridePct())
	c.SteeringHeadroom = ptrFloat64(c.GetSteeringHeadroom())
	c.UndersteerCurveCenterPct = ptrFloat64(c.GetUndersteerCurveCenterPct())
	c.VideoCodec = ptrString(c.GetVideoCodec())
	c.PixelFormat = ptrString(c.GetPixelFormat())
	c.SyncSegmentFrames = ptrInt(c.GetSyncSegmentFrames())
	c.ProgressInterval = ptrInt(c.GetProgressInterval())
	return c
}

// LoadExportConfig loads an ExportConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file fall back to defaults through the Get*
// methods, so partial configs are safe.
func LoadExportConfig(path string) (*ExportConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyExportConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// ParsePreset splits a "WxH" preset.
func ParsePreset(s string) (w, h int, err error) {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(s)), "x")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("output preset %q is not WxH", s)
	}
	w, err1 := strconv.Atoi(parts[0])
	h, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || w <= 0 || h <= 0 {
		return 0, 0, fmt.Errorf("output preset %q is not WxH", s)
	}
	return w, h, nil
}

// Validate checks that the configuration values are valid.
func (c *ExportConfig) Validate() error {
	if c.OutputPreset != nil {
		if _, _, err := ParsePreset(*c.OutputPreset); err != nil {
			return err
		}
	}

	if c.HUDWidth != nil && *c.HUDWidth < 0 {
		return fmt.Errorf("hud_width_px must be non-negative, got %d", *c.HUDWidth)
	}

	for name, w := range c.Widgets {
		known := false
		for _, k := range KnownWidgets {
			if k == name {
				known = true
				break
			}
		}
		if !known {
			return fmt.Errorf("unknown widget %q", name)
		}
		if w.W != nil && *w.W <= 0 {
			return fmt.Errorf("widget %s: width must be positive, got %d", name, *w.W)
		}
		if w.H != nil && *w.H <= 0 {
			return fmt.Errorf("widget %s: height must be positive, got %d", name, *w.H)
		}
	}

	if c.BeforeSeconds != nil && *c.BeforeSeconds <= 0 {
		return fmt.Errorf("before_s must be positive, got %f", *c.BeforeSeconds)
	}
	if c.AfterSeconds != nil && *c.AfterSeconds <= 0 {
		return fmt.Errorf("after_s must be positive, got %f", *c.AfterSeconds)
	}

	if c.SpeedUnit != nil && !units.IsValid(*c.SpeedUnit) {
		return fmt.Errorf("speed_unit must be one of %s, got %q", units.GetValidUnitsString(), *c.SpeedUnit)
	}

	if c.PedalSampleMode != nil {
		switch strings.ToLower(*c.PedalSampleMode) {
		case PedalModeTime, PedalModeLegacy:
		default:
			return fmt.Errorf("pedal_sample_mode must be %q or %q, got %q", PedalModeTime, PedalModeLegacy, *c.PedalSampleMode)
		}
	}

	if c.MaxBrakeOverridePct != nil && (*c.MaxBrakeOverridePct < 0 || *c.MaxBrakeOverridePct > 100) {
		return fmt.Errorf("max_brake_override_pct must be between 0 and 100, got %f", *c.MaxBrakeOverridePct)
	}
	if c.MaxBrakeDelayDist != nil && *c.MaxBrakeDelayDist < 0 {
		return fmt.Errorf("max_brake_delay_dist must be non-negative, got %f", *c.MaxBrakeDelayDist)
	}

	if c.SyncSegmentFrames != nil && *c.SyncSegmentFrames < 1 {
		return fmt.Errorf("sync_segment_frames must be at least 1, got %d", *c.SyncSegmentFrames)
	}

	return nil
}

// GetOutputPreset returns the output canvas preset or the default.
func (c *ExportConfig) GetOutputPreset() string {
	if c.OutputPreset == nil || *c.OutputPreset == "" {
		return "1920x1080"
	}
	return *c.OutputPreset
}

// GetHUDWidth returns the HUD column width or the default.
func (c *ExportConfig) GetHUDWidth() int {
	if c.HUDWidth == nil {
		return 320
	}
	return *c.HUDWidth
}

// WidgetEnabled reports whether a widget is drawn. Widgets missing from the
// map are enabled when the map is empty and disabled otherwise.
func (c *ExportConfig) WidgetEnabled(name string) bool {
	if len(c.Widgets) == 0 {
		return true
	}
	w, ok := c.Widgets[name]
	if !ok {
		return false
	}
	return w.Enabled == nil || *w.Enabled
}

// GetBeforeSeconds returns the scroll window left of "now" or the default.
func (c *ExportConfig) GetBeforeSeconds() float64 {
	if c.BeforeSeconds == nil {
		return 5.0
	}
	return *c.BeforeSeconds
}

// GetAfterSeconds returns the scroll window right of "now" or the default.
func (c *ExportConfig) GetAfterSeconds() float64 {
	if c.AfterSeconds == nil {
		return 5.0
	}
	return *c.AfterSeconds
}

// GetSpeedUnit returns the normalised speed unit or the default.
func (c *ExportConfig) GetSpeedUnit() string {
	if c.SpeedUnit == nil || !units.IsValid(*c.SpeedUnit) {
		return units.KMH
	}
	return units.Normalize(*c.SpeedUnit)
}

// GetSpeedUpdateHz returns the speed readout refresh rate or the default.
func (c *ExportConfig) GetSpeedUpdateHz() float64 {
	if c.SpeedUpdateHz == nil {
		return 60
	}
	return *c.SpeedUpdateHz
}

// GetGearRPMUpdateHz returns the gear/RPM readout refresh rate or the default.
func (c *ExportConfig) GetGearRPMUpdateHz() float64 {
	if c.GearRPMUpdateHz == nil {
		return 60
	}
	return *c.GearRPMUpdateHz
}

// GetMinSpeedThreshold returns the rise needed to confirm a speed extreme,
// in display units.
func (c *ExportConfig) GetMinSpeedThreshold() float64 {
	if c.MinSpeedThreshold == nil {
		return 5.0
	}
	return *c.MinSpeedThreshold
}

// GetMinSpeedLookaheadS returns the confirmation lookahead in seconds.
func (c *ExportConfig) GetMinSpeedLookaheadS() float64 {
	if c.MinSpeedLookaheadS == nil {
		return 5.0
	}
	return *c.MinSpeedLookaheadS
}

// GetPedalSampleMode returns the pedal sampling mode or the default.
func (c *ExportConfig) GetPedalSampleMode() string {
	if c.PedalSampleMode == nil {
		return PedalModeTime
	}
	if strings.ToLower(*c.PedalSampleMode) == PedalModeLegacy {
		return PedalModeLegacy
	}
	return PedalModeTime
}

// GetABSDebounceMS returns the ABS debounce window or the default.
func (c *ExportConfig) GetABSDebounceMS() float64 {
	if c.ABSDebounceMS == nil {
		return 60
	}
	return *c.ABSDebounceMS
}

// GetPedalHeadroom returns the pedal plot headroom clamped to [1, 2].
func (c *ExportConfig) GetPedalHeadroom() float64 {
	v := 1.12
	if c.PedalHeadroom != nil {
		v = *c.PedalHeadroom
	}
	if v < 1 {
		return 1
	}
	if v > 2 {
		return 2
	}
	return v
}

// GetMaxBrakeDelayDist returns the max-brake restart delay in lap fraction.
func (c *ExportConfig) GetMaxBrakeDelayDist() float64 {
	if c.MaxBrakeDelayDist == nil {
		return 0.003
	}
	return *c.MaxBrakeDelayDist
}

// GetMaxBrakeOverridePct returns the pressure that bypasses the delay.
func (c *ExportConfig) GetMaxBrakeOverridePct() float64 {
	if c.MaxBrakeOverridePct == nil {
		return 35
	}
	return *c.MaxBrakeOverridePct
}

// GetSteeringHeadroom returns the steering scale headroom or the default.
func (c *ExportConfig) GetSteeringHeadroom() float64 {
	if c.SteeringHeadroom == nil {
		return 1.20
	}
	return *c.SteeringHeadroom
}

// GetUndersteerCurveCenterPct returns the under/oversteer curve offset.
func (c *ExportConfig) GetUndersteerCurveCenterPct() float64 {
	if c.UndersteerCurveCenterPct == nil {
		return 0
	}
	return *c.UndersteerCurveCenterPct
}

// GetVideoCodec returns the output codec or the default.
func (c *ExportConfig) GetVideoCodec() string {
	if c.VideoCodec == nil || *c.VideoCodec == "" {
		return "libx264"
	}
	return *c.VideoCodec
}

// GetPixelFormat returns the output pixel format or the default.
func (c *ExportConfig) GetPixelFormat() string {
	if c.PixelFormat == nil || *c.PixelFormat == "" {
		return "yuv420p"
	}
	return *c.PixelFormat
}

// GetSyncSegmentFrames returns the keyframe stride of the time warp.
func (c *ExportConfig) GetSyncSegmentFrames() int {
	if c.SyncSegmentFrames == nil {
		return 30
	}
	return *c.SyncSegmentFrames
}

// GetProgressInterval returns how many frames pass between progress logs.
func (c *ExportConfig) GetProgressInterval() int {
	if c.ProgressInterval == nil || *c.ProgressInterval < 1 {
		return 300
	}
	return *c.ProgressInterval
}

// GetCachePath returns the session cache path, "" when caching is off.
func (c *ExportConfig) GetCachePath() string {
	if c.CachePath == nil {
		return ""
	}
	return *c.CachePath
}

// GetDiagnosticsDir returns the sync report directory, "" when disabled.
func (c *ExportConfig) GetDiagnosticsDir() string {
	if c.DiagnosticsDir == nil {
		return ""
	}
	return *c.DiagnosticsDir
}
