package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocationKey(t *testing.T) {
	a := NewLocationKey(40.7, -73.9)
	b, err := ParseLocationKey("40.70000000001, -73.9")
	require.NoError(t, err)

	assert.Equal(t, a, b, "formatting noise must not break joins")
	assert.Equal(t, "40.7,-73.9", a.String())
	assert.True(t, a.Known())

	var zero LocationKey
	assert.False(t, zero.Known())
	assert.Equal(t, UnknownLocationText, zero.String())

	unknown, err := ParseLocationKey("unknown")
	require.NoError(t, err)
	assert.Equal(t, zero, unknown)

	_, err = ParseLocationKey("40.7")
	assert.Error(t, err)

	assert.True(t, zero.Less(a))
	assert.True(t, NewLocationKey(40.6, 0).Less(a))
}

func TestLocationKeyAsJSONMapKey(t *testing.T) {
	in := map[LocationKey]int{NewLocationKey(40.7, -73.9): 2}
	b, err := json.Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"40.7,-73.9":2}`, string(b))

	var out map[LocationKey]int
	require.NoError(t, json.Unmarshal(b, &out))
	assert.Equal(t, in, out)
}

func TestColorJSON(t *testing.T) {
	var cfg TagConfig
	raw := `{
		"exclude": ["NYC"],
		"rewrite": {"livemusic": "LiveMusic"},
		"colors": {"Jazz": "#123456", "Art": ["#ff0000", "#00ff00"]},
		"markerColors": {"🎷": "#abcdef"}
	}`
	require.NoError(t, json.Unmarshal([]byte(raw), &cfg))

	assert.Equal(t, Solid("#123456"), cfg.Colors["Jazz"])
	assert.Equal(t, Gradient("#ff0000", "#00ff00"), cfg.Colors["Art"])
	assert.True(t, cfg.Colors["Art"].IsGradient())
	assert.Equal(t, "linear-gradient(to bottom, #ff0000, #00ff00)", cfg.Colors["Art"].CSS())
	assert.Equal(t, Solid("#abcdef"), cfg.MarkerColors["🎷"])

	b, err := json.Marshal(cfg.Colors["Art"])
	require.NoError(t, err)
	assert.JSONEq(t, `["#ff0000","#00ff00"]`, string(b))

	var bad Color
	assert.Error(t, json.Unmarshal([]byte(`["a","b","c"]`), &bad))
}

func TestRawEventRecordDecoding(t *testing.T) {
	raw := `[
		{"name": "Jazz Night", "lat": 40.7, "lng": "-73.9", "hashtags": "#Jazz, #Outdoor",
		 "occurrences": "[[\"2025-09-01\",\"7:00 PM\",\"\",\"\"]]"},
		{"name": "Alt spelling", "latitude": "40.8", "longitude": -73.95, "hashtags": ["#Art", "#Free"],
		 "occurrences": [["2025-09-02","","",""]]},
		{"name": "No coords", "lat": "", "lng": null, "hashtags": null}
	]`
	var recs []RawEventRecord
	require.NoError(t, json.Unmarshal([]byte(raw), &recs))
	require.Len(t, recs, 3)

	assert.Equal(t, Coord{Value: 40.7, Valid: true}, recs[0].Lat)
	assert.Equal(t, Coord{Value: -73.9, Valid: true}, recs[0].Lng)
	assert.Equal(t, "#Jazz, #Outdoor", recs[0].Hashtags)

	assert.Equal(t, 40.8, recs[1].Lat.Value)
	assert.Equal(t, -73.95, recs[1].Lng.Value)
	assert.Equal(t, "#Art #Free", recs[1].Hashtags)
	assert.JSONEq(t, `[["2025-09-02","","",""]]`, string(recs[1].Occurrences))

	assert.False(t, recs[2].Lat.Valid)
	assert.False(t, recs[2].Lng.Valid)
	assert.Empty(t, recs[2].Hashtags)
}

func TestRawLocationAlternateNames(t *testing.T) {
	raw := `[
		{"lat": 40.7, "lng": -73.9, "location": "Blue Room", "alternateNames": "\"The Blue Room\", \"Blue Rm\""},
		{"lat": 40.8, "lng": -73.8, "location": "Hall", "alternateNames": ["Main Hall", " "]}
	]`
	var locs []RawLocation
	require.NoError(t, json.Unmarshal([]byte(raw), &locs))

	assert.Equal(t, NameList{"The Blue Room", "Blue Rm"}, locs[0].AlternateNames)
	assert.Equal(t, NameList{"Main Hall"}, locs[1].AlternateNames)
}

func TestEventHelpers(t *testing.T) {
	start := time.Date(2025, 9, 1, 23, 0, 0, 0, time.UTC)
	ev := &Event{
		Hashtags: []string{"Jazz", "Outdoor"},
		Occurrences: []Occurrence{
			{Start: start, End: start.Add(2 * time.Hour), OriginalStartTime: "7:00 PM"},
		},
	}

	assert.True(t, ev.HasTag("Jazz"))
	assert.False(t, ev.HasTag("jazz"))
	assert.Equal(t, start, ev.FirstStart())
	assert.True(t, ev.Occurrences[0].HasStartTime())
	assert.False(t, ev.Occurrences[0].HasEndTime())

	assert.True(t, ev.Overlaps(start.Add(time.Hour), start.Add(5*time.Hour)))
	assert.True(t, ev.Overlaps(start.Add(2*time.Hour), start.Add(5*time.Hour)), "touching end counts")
	assert.False(t, ev.Overlaps(start.Add(3*time.Hour), start.Add(5*time.Hour)))
	assert.False(t, (&Event{}).Overlaps(start, start))
}
