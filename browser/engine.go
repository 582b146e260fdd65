package browser

import (
	"fmt"
	"strings"
)

// Engine selects the rendering engine family a driver launches.
type Engine string

const (
	Chromium Engine = "chromium"
	Chrome   Engine = "chrome"
	Edge     Engine = "edge"
	Firefox  Engine = "firefox"
	WebKit   Engine = "webkit"
)

var engines = []Engine{Chromium, Chrome, Edge, Firefox, WebKit}

// ParseEngine maps a config string to an Engine. Matching is case-insensitive
// and an empty string selects Chromium.
func ParseEngine(s string) (Engine, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return Chromium, nil
	}
	for _, e := range engines {
		if string(e) == s {
			return e, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedEngine, s)
}

// Chromium reports whether the engine belongs to the Chromium family and can
// therefore be driven over CDP.
func (e Engine) Chromium() bool {
	return e == Chromium || e == Chrome || e == Edge
}

func (e Engine) String() string { return string(e) }
