package quota

import "time"

// ServiceDay maps instants to the calendar date used for counter resets.
// Dates are returned as midnight UTC of the local calendar date in the
// configured zone, which is how DATE columns round-trip through lib/pq.
type ServiceDay struct {
	loc *time.Location
	now func() time.Time
}

// NewServiceDay creates a service day in loc. A nil now uses time.Now.
func NewServiceDay(loc *time.Location, now func() time.Time) *ServiceDay {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &ServiceDay{loc: loc, now: now}
}

// Today returns the current service day.
func (d *ServiceDay) Today() time.Time {
	return d.DateOf(d.now())
}

// DateOf returns the service day containing t.
func (d *ServiceDay) DateOf(t time.Time) time.Time {
	y, m, day := t.In(d.loc).Date()
	return time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
}

// Location returns the configured zone.
func (d *ServiceDay) Location() *time.Location { return d.loc }
