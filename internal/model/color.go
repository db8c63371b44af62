package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Color is a solid CSS color or a two-stop vertical gradient. In JSON it is
// either "#rrggbb" or ["#top", "#bottom"].
type Color struct {
	Primary   string
	Secondary string
}

// Solid returns a single-color Color.
func Solid(c string) Color { return Color{Primary: c} }

// Gradient returns a two-stop Color.
func Gradient(top, bottom string) Color { return Color{Primary: top, Secondary: bottom} }

func (c Color) IsZero() bool     { return c.Primary == "" && c.Secondary == "" }
func (c Color) IsGradient() bool { return c.Secondary != "" }

// CSS renders the color as a CSS background value.
func (c Color) CSS() string {
	if c.IsGradient() {
		return fmt.Sprintf("linear-gradient(to bottom, %s, %s)", c.Primary, c.Secondary)
	}
	return c.Primary
}

func (c Color) MarshalJSON() ([]byte, error) {
	if c.IsGradient() {
		return json.Marshal([2]string{c.Primary, c.Secondary})
	}
	return json.Marshal(c.Primary)
}

func (c *Color) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*c = Color{}
		return nil
	}

	if b[0] == '[' {
		var stops []string
		if err := json.Unmarshal(b, &stops); err != nil {
			return fmt.Errorf("color: %w", err)
		}
		switch len(stops) {
		case 0:
			*c = Color{}
		case 1:
			*c = Solid(stops[0])
		case 2:
			*c = Gradient(stops[0], stops[1])
		default:
			return errors.New("color: gradient takes at most two stops")
		}
		return nil
	}

	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("color: %w", err)
	}
	*c = Solid(s)
	return nil
}

// UnmarshalYAML lets palettes and defaults in the YAML config use the same
// string-or-pair shape as the JSON feeds.
func (c *Color) UnmarshalYAML(unmarshal func(any) error) error {
	var stops []string
	if err := unmarshal(&stops); err == nil {
		switch len(stops) {
		case 0:
			*c = Color{}
		case 1:
			*c = Solid(stops[0])
		case 2:
			*c = Gradient(stops[0], stops[1])
		default:
			return errors.New("color: gradient takes at most two stops")
		}
		return nil
	}
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	*c = Solid(s)
	return nil
}

func (c Color) MarshalYAML() (any, error) {
	if c.IsGradient() {
		return []string{c.Primary, c.Secondary}, nil
	}
	return c.Primary, nil
}
