package derived

import "math"

const maxDebounceFrames = 64

// DebounceCount converts an ABS debounce window into the number of
// consecutive frames a raw state must persist. windowMS is clamped to
// [0, 500]; the count is at least 1 and at most 64.
func DebounceCount(windowMS, fps float64) int {
	ms := clamp(windowMS, 0, 500)
	if !finite(ms) {
		ms = 0
	}
	n := int(math.Ceil(ms/1000*fps - 1e-9))
	if n < 1 {
		n = 1
	}
	if n > maxDebounceFrames {
		n = maxDebounceFrames
	}
	return n
}

// Debouncer toggles only after a raw state has held for a number of
// consecutive updates.
type Debouncer struct {
	need int
	run  int
	on   bool
}

// NewDebouncer returns a debouncer that starts off.
func NewDebouncer(count int) *Debouncer {
	if count < 1 {
		count = 1
	}
	return &Debouncer{need: count}
}

// Update feeds one raw sample and returns the debounced state.
func (d *Debouncer) Update(raw bool) bool {
	if raw == d.on {
		d.run = 0
		return d.on
	}
	d.run++
	if d.run >= d.need {
		d.on = raw
		d.run = 0
	}
	return d.on
}

// DebounceTrack runs a fresh Debouncer over a raw 0/1 track.
func DebounceTrack(raw []float64, count int) []bool {
	d := NewDebouncer(count)
	out := make([]bool, len(raw))
	for i, v := range raw {
		out[i] = d.Update(v >= 0.5)
	}
	return out
}

// MaxBrake tracks braking phases and commits the peak pressure of each.
// A phase starts when brake pressure leaves zero and commits when it
// returns to exactly zero. After a commit a new phase may only start once
// the lap distance has advanced by the delay, unless pressure reaches the
// override threshold, the driver has been at full throttle for 0.3 s, or
// the wheel has been held on the opposite side for 0.3 s.
type MaxBrake struct {
	delay    float64
	override float64

	inPhase       bool
	armed         bool
	wasZero       bool
	peak          float64
	committed     float64
	lastZero      float64
	hasZero       bool
	throttleTimer float64

	steerLast  int
	steerOpp   int
	steerTimer float64
}

const (
	// rearmHold is how long full throttle or opposite lock must be held.
	rearmHold = 0.3
	// steerDeadzone is the wheel angle in degrees treated as straight.
	steerDeadzone = 1.0
)

// NewMaxBrake creates a tracker. delay is in lap fraction, overridePct in
// percent of full pressure.
func NewMaxBrake(delay, overridePct float64) *MaxBrake {
	if !finite(delay) || delay < 0 {
		delay = 0
	}
	if !finite(overridePct) {
		overridePct = 35
	}
	return &MaxBrake{delay: delay, override: clamp(overridePct, 0, 100) / 100}
}

// Committed returns the last committed peak in whole percent.
func (m *MaxBrake) Committed() float64 { return m.committed }

// Update feeds one frame. steering is the wheel angle in degrees. It
// reports true when a phase committed on this frame.
func (m *MaxBrake) Update(brake, lapDist, throttle, steering, dt float64) bool {
	b := clamp(brake, 0, 1)
	if !finite(b) {
		b = 0
	}
	if !finite(lapDist) {
		lapDist = 0
	}

	if finite(throttle) && throttle >= 0.999 && dt > 0 {
		m.throttleTimer += dt
	} else {
		m.throttleTimer = 0
	}
	rearm := m.throttleTimer >= rearmHold
	if m.updateSteering(steering, dt) {
		rearm = true
	}
	if rearm {
		m.armed = true
	}

	if b == 0 {
		committed := false
		if m.inPhase {
			m.committed = math.Round(clamp(m.peak, 0, 1) * 100)
			m.inPhase = false
			m.peak = 0
			m.lastZero = lapDist
			m.hasZero = true
			m.armed = false
			committed = true
		} else if !m.wasZero && !rearm {
			m.armed = false
		}
		m.wasZero = true
		return committed
	}
	m.wasZero = false

	if m.inPhase {
		m.peak = math.Max(m.peak, b)
		return false
	}
	if !m.armed && m.delay > 0 && m.hasZero {
		if forwardDelta(m.lastZero, lapDist) < m.delay && b < m.override {
			return false
		}
	}
	m.inPhase = true
	m.armed = true
	m.peak = b
	return false
}

// updateSteering advances the opposite-lock timer and reports whether the
// wheel has now been held past the deadzone on the side opposite to the
// last one for rearmHold. The held side then becomes the reference side.
func (m *MaxBrake) updateSteering(steering, dt float64) bool {
	if !finite(dt) || dt < 0 {
		dt = 0
	}
	sign := 0
	if finite(steering) && math.Abs(steering) >= steerDeadzone {
		sign = 1
		if steering < 0 {
			sign = -1
		}
	}
	switch {
	case sign == 0:
		m.steerTimer = 0
		m.steerOpp = 0
	case m.steerOpp != 0:
		if sign == m.steerOpp && m.steerLast != 0 && sign != m.steerLast {
			m.steerTimer += dt
		} else {
			m.steerTimer = 0
			m.steerOpp = 0
			if m.steerLast == 0 {
				m.steerLast = sign
			}
		}
	case m.steerLast == 0:
		m.steerLast = sign
		m.steerTimer = 0
	case sign == m.steerLast:
		m.steerTimer = 0
	default:
		m.steerOpp = sign
		m.steerTimer = dt
	}

	if m.steerTimer >= rearmHold && sign != 0 {
		m.steerLast = sign
		m.steerOpp = 0
		m.steerTimer = 0
		return true
	}
	return false
}

// forwardDelta is the lap distance travelled from a to b, across the line
// when b < a.
func forwardDelta(a, b float64) float64 {
	d := b - a
	if d >= 0 {
		return d
	}
	return math.Mod(d, 1) + 1
}

// MaxBrakeTrack runs a fresh tracker over a whole stream and returns the
// committed value shown at every frame.
func MaxBrakeTrack(brake, lapDist, throttle, steering []float64, fps, delay, overridePct float64) []float64 {
	m := NewMaxBrake(delay, overridePct)
	out := make([]float64, len(brake))
	dt := 0.0
	if fps > 0 {
		dt = 1 / fps
	}
	for i, b := range brake {
		ld, thr, st := 0.0, 0.0, 0.0
		if i < len(lapDist) {
			ld = lapDist[i]
		}
		if i < len(throttle) {
			thr = throttle[i]
		}
		if i < len(steering) {
			st = steering[i]
		}
		m.Update(b, ld, thr, st, dt)
		out[i] = m.Committed()
	}
	return out
}
