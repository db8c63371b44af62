package model

import (
	"errors"
	"math"
	"strconv"
	"strings"
)

// UnknownLocationText is the text form of the zero LocationKey.
const UnknownLocationText = "unknown"

// coordScale rounds coordinates to 7 decimal places (about 1cm), which
// absorbs float formatting noise between the events and locations feeds.
const coordScale = 1e7

// LocationKey identifies a lat/lng pair. It is comparable and usable as a
// map key; the zero value is the "unknown location" sentinel.
type LocationKey struct {
	lat, lng int64
	known    bool
}

// NewLocationKey builds a key from coordinates. NaN or infinite inputs
// produce the unknown key.
func NewLocationKey(lat, lng float64) LocationKey {
	if !finite(lat) || !finite(lng) {
		return LocationKey{}
	}
	return LocationKey{
		lat:   int64(math.Round(lat * coordScale)),
		lng:   int64(math.Round(lng * coordScale)),
		known: true,
	}
}

// ParseLocationKey parses the "{lat},{lng}" text form.
func ParseLocationKey(s string) (LocationKey, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == UnknownLocationText {
		return LocationKey{}, nil
	}
	latStr, lngStr, ok := strings.Cut(s, ",")
	if !ok {
		return LocationKey{}, errors.New("location key: missing comma")
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
	if err != nil {
		return LocationKey{}, err
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(lngStr), 64)
	if err != nil {
		return LocationKey{}, err
	}
	return NewLocationKey(lat, lng), nil
}

func (k LocationKey) Known() bool  { return k.known }
func (k LocationKey) Lat() float64 { return float64(k.lat) / coordScale }
func (k LocationKey) Lng() float64 { return float64(k.lng) / coordScale }

func (k LocationKey) String() string {
	if !k.known {
		return UnknownLocationText
	}
	return strconv.FormatFloat(k.Lat(), 'f', -1, 64) + "," + strconv.FormatFloat(k.Lng(), 'f', -1, 64)
}

// Less orders keys by latitude then longitude; unknown sorts first.
func (k LocationKey) Less(o LocationKey) bool {
	if k.known != o.known {
		return !k.known
	}
	if k.lat != o.lat {
		return k.lat < o.lat
	}
	return k.lng < o.lng
}

func (k LocationKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *LocationKey) UnmarshalText(b []byte) error {
	parsed, err := ParseLocationKey(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
