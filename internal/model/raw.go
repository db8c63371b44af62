package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Coord is a latitude or longitude as it appears in the feeds: a number, a
// numeric string, an empty string or null. Valid is false unless a finite
// number was read.
type Coord struct {
	Value float64
	Valid bool
}

func (c *Coord) UnmarshalJSON(b []byte) error {
	*c = Coord{}
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}

	text := string(b)
	if b[0] == '"' {
		if err := json.Unmarshal(b, &text); err != nil {
			return err
		}
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	f, err := strconv.ParseFloat(text, 64)
	if err != nil || !finite(f) {
		// Junk coordinates behave like missing ones; the record is rejected
		// downstream rather than failing the whole feed.
		return nil
	}
	*c = Coord{Value: f, Valid: true}
	return nil
}

func (c Coord) MarshalJSON() ([]byte, error) {
	if !c.Valid {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatFloat(c.Value, 'f', -1, 64)), nil
}

// RawEventRecord is one row of events.json as produced by the scraping
// pipeline. Fields are kept verbatim; EventIngestor does all cleanup.
type RawEventRecord struct {
	Name        string
	Location    string
	Sublocation string
	URL         string
	Description string
	Emoji       string
	// Hashtags is free text such as "#Jazz, #LiveMusic #Outdoor".
	Hashtags string
	// Occurrences holds the raw JSON: either a string containing a JSON list
	// of [start_date, start_time, end_date, end_time] tuples, or the list
	// itself.
	Occurrences json.RawMessage
	Lat         Coord
	Lng         Coord
}

type rawEventJSON struct {
	Name        string          `json:"name"`
	Location    string          `json:"location"`
	Sublocation string          `json:"sublocation"`
	URL         string          `json:"url"`
	Description string          `json:"description"`
	Emoji       string          `json:"emoji"`
	Hashtags    json.RawMessage `json:"hashtags"`
	Occurrences json.RawMessage `json:"occurrences"`
	Lat         Coord           `json:"lat"`
	Lng         Coord           `json:"lng"`
	Latitude    Coord           `json:"latitude"`
	Longitude   Coord           `json:"longitude"`
}

// UnmarshalJSON accepts both lat/lng and latitude/longitude spellings and
// hashtags given as a string or a list of strings.
func (r *RawEventRecord) UnmarshalJSON(b []byte) error {
	var aux rawEventJSON
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}

	*r = RawEventRecord{
		Name:        aux.Name,
		Location:    aux.Location,
		Sublocation: aux.Sublocation,
		URL:         aux.URL,
		Description: aux.Description,
		Emoji:       aux.Emoji,
		Occurrences: aux.Occurrences,
		Lat:         aux.Lat,
		Lng:         aux.Lng,
	}
	if !r.Lat.Valid {
		r.Lat = aux.Latitude
	}
	if !r.Lng.Valid {
		r.Lng = aux.Longitude
	}

	tags, err := decodeStringOrList(aux.Hashtags, " ")
	if err != nil {
		return fmt.Errorf("hashtags: %w", err)
	}
	r.Hashtags = tags
	return nil
}

func (r RawEventRecord) MarshalJSON() ([]byte, error) {
	occ := r.Occurrences
	if len(occ) == 0 {
		occ = json.RawMessage(`""`)
	}
	return json.Marshal(struct {
		Name        string          `json:"name"`
		Location    string          `json:"location"`
		Sublocation string          `json:"sublocation"`
		URL         string          `json:"url"`
		Description string          `json:"description"`
		Emoji       string          `json:"emoji"`
		Hashtags    string          `json:"hashtags"`
		Occurrences json.RawMessage `json:"occurrences"`
		Lat         Coord           `json:"lat"`
		Lng         Coord           `json:"lng"`
	}{r.Name, r.Location, r.Sublocation, r.URL, r.Description, r.Emoji, r.Hashtags, occ, r.Lat, r.Lng})
}

// RawLocation is one row of locations.json.
type RawLocation struct {
	Lat      Coord  `json:"lat"`
	Lng      Coord  `json:"lng"`
	Location string `json:"location"`
	Address  string `json:"address"`
	Emoji    string `json:"emoji"`
	// AlternateNames is either a list or the spreadsheet's string form with
	// each name in double quotes.
	AlternateNames NameList `json:"alternateNames,omitempty"`
	MarkerColor    *Color   `json:"markerColor,omitempty"`
}

// NameList decodes a JSON list of names or a string of quoted names.
type NameList []string

var quotedName = regexp.MustCompile(`"([^"]*)"`)

func (n *NameList) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*n = nil
		return nil
	}
	if b[0] == '[' {
		var list []string
		if err := json.Unmarshal(b, &list); err != nil {
			return err
		}
		*n = cleanNames(list)
		return nil
	}

	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	var names []string
	for _, m := range quotedName.FindAllStringSubmatch(s, -1) {
		names = append(names, m[1])
	}
	if len(names) == 0 && strings.TrimSpace(s) != "" {
		names = strings.Split(s, ",")
	}
	*n = cleanNames(names)
	return nil
}

func cleanNames(in []string) NameList {
	out := make(NameList, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func decodeStringOrList(b json.RawMessage, sep string) (string, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return "", nil
	}
	if b[0] == '[' {
		var list []string
		if err := json.Unmarshal(b, &list); err != nil {
			return "", err
		}
		return strings.Join(list, sep), nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return "", err
	}
	return s, nil
}
