// Package telemetry exposes a recorded lap log as named numeric columns.
//
// Every column is aligned to the raw sample index of its own recording. The
// rest of the exporter only asks whether a column exists and reads it as a
// float64 slice; unparseable cells are stored as NaN and dealt with by the
// interpolators.
package telemetry

// Column names as written by the lap logger.
const (
	ColTime     = "Time_s"
	ColLapDist  = "LapDistPct"
	ColSpeed    = "Speed" // m/s
	ColThrottle = "Throttle"
	ColBrake    = "Brake"
	ColABS      = "ABSActive"
	ColSteering = "SteeringWheelAngle" // radians
	ColGear     = "Gear"
	ColRPM      = "RPM"
	ColLat      = "Lat"
	ColLon      = "Lon"
	ColYaw      = "Yaw" // radians
)

// Provider is a read-only column source for one recording.
type Provider interface {
	// Len returns the number of raw samples.
	Len() int
	// HasColumn reports whether the named column is present.
	HasColumn(name string) bool
	// Column returns the named column. ok is false when it is absent.
	Column(name string) (values []float64, ok bool)
}

// Table is an in-memory Provider.
type Table struct {
	n    int
	cols map[string][]float64
}

// NewTable returns an empty table with n rows.
func NewTable(n int) *Table {
	return &Table{n: n, cols: make(map[string][]float64)}
}

// Set stores a column. Short columns are padded with NaN, long ones truncated.
func (t *Table) Set(name string, values []float64) {
	col := make([]float64, t.n)
	for i := range col {
		if i < len(values) {
			col[i] = values[i]
		} else {
			col[i] = nan
		}
	}
	t.cols[name] = col
}

// Len implements Provider.
func (t *Table) Len() int { return t.n }

// HasColumn implements Provider.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.cols[name]
	return ok
}

// Column implements Provider. The returned slice must not be modified.
func (t *Table) Column(name string) ([]float64, bool) {
	c, ok := t.cols[name]
	return c, ok
}

// Columns returns the column names present in the table.
func (t *Table) Columns() []string {
	out := make([]string, 0, len(t.cols))
	for k := range t.cols {
		out = append(out, k)
	}
	return out
}
