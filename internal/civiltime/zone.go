package civiltime

import "time"

// Zone resolves UTC offsets for one civil time zone. Implementations must be
// pure: the same inputs always yield the same offsets.
type Zone interface {
	// Name is a label for logs and config (e.g. "US/Eastern").
	Name() string
	// CivilOffset returns the abbreviation and UTC offset (seconds east) in
	// effect for a wall-clock time in this zone.
	CivilOffset(year int, month time.Month, day, hour, min int) (string, int)
	// InstantOffset returns the abbreviation and offset in effect at t.
	InstantOffset(t time.Time) (string, int)
}

const (
	estOffset = -5 * 60 * 60
	edtOffset = -4 * 60 * 60
)

// Eastern is the built-in US Eastern policy. It computes DST directly
// instead of consulting the platform tz database, so results do not depend
// on the host's zoneinfo.
var Eastern Zone = easternZone{}

type easternZone struct{}

func (easternZone) Name() string { return "US/Eastern" }

// DSTBounds returns the wall-clock start and end of daylight saving time in
// year: 02:00 on the second Sunday of March and 02:00 on the first Sunday of
// November. Both are expressed as civil times (UTC-labelled, not instants).
func DSTBounds(year int) (start, end time.Time) {
	marchFirstSunday := firstSunday(year, time.March)
	// Second Sunday is the first Sunday plus seven days.
	start = time.Date(year, time.March, marchFirstSunday+7, 2, 0, 0, 0, time.UTC)
	end = time.Date(year, time.November, firstSunday(year, time.November), 2, 0, 0, 0, time.UTC)
	return start, end
}

func firstSunday(year int, month time.Month) int {
	wd := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).Weekday()
	return 1 + (7-int(wd))%7
}

func (easternZone) CivilOffset(year int, month time.Month, day, hour, min int) (string, int) {
	civil := time.Date(year, month, day, hour, min, 0, 0, time.UTC)
	start, end := DSTBounds(civil.Year())
	if !civil.Before(start) && civil.Before(end) {
		return "EDT", edtOffset
	}
	return "EST", estOffset
}

func (easternZone) InstantOffset(t time.Time) (string, int) {
	t = t.UTC()
	start, end := DSTBounds(t.Year())
	// Transitions happen at 02:00 local standard time (07:00 UTC) in March
	// and 02:00 local daylight time (06:00 UTC) in November.
	startUTC := start.Add(-time.Duration(estOffset) * time.Second)
	endUTC := end.Add(-time.Duration(edtOffset) * time.Second)
	if !t.Before(startUTC) && t.Before(endUTC) {
		return "EDT", edtOffset
	}
	return "EST", estOffset
}

// LocationZone adapts a tz-database location to the Zone interface.
func LocationZone(loc *time.Location) Zone {
	if loc == nil {
		loc = time.UTC
	}
	return locationZone{loc: loc}
}

type locationZone struct {
	loc *time.Location
}

func (z locationZone) Name() string { return z.loc.String() }

func (z locationZone) CivilOffset(year int, month time.Month, day, hour, min int) (string, int) {
	return time.Date(year, month, day, hour, min, 0, 0, z.loc).Zone()
}

func (z locationZone) InstantOffset(t time.Time) (string, int) {
	return t.In(z.loc).Zone()
}

// ResolveZone maps a config value to a Zone. Empty, "US/Eastern" and
// "America/New_York" select the built-in Eastern rule; other names are
// loaded from the tz database.
func ResolveZone(name string) (Zone, error) {
	switch name {
	case "", "US/Eastern", "America/New_York", "eastern":
		return Eastern, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, err
	}
	return LocationZone(loc), nil
}

// In returns t expressed in the civil time of z.
func In(t time.Time, z Zone) time.Time {
	name, off := z.InstantOffset(t)
	return t.In(time.FixedZone(name, off))
}
