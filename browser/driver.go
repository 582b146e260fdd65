// Package browser defines the driver boundary used by the fetch helper: an
// engine process owns isolated contexts, a context owns pages. Two drivers are
// provided, one over rod (Chromium family, CDP) and one over playwright-go.
package browser

import (
	"errors"
	"time"
)

var (
	// ErrUnsupportedEngine is returned by Driver.Launch for an engine the
	// driver cannot start.
	ErrUnsupportedEngine = errors.New("browser: unsupported engine")

	// ErrIdleTimeout is returned by Page.WaitNetworkIdle when the page did
	// not reach network idle within the timeout.
	ErrIdleTimeout = errors.New("browser: network idle wait timed out")

	// ErrNotFound is returned by Page.Click and Page.Fill when no element
	// matches the selector.
	ErrNotFound = errors.New("browser: element not found")
)

// Driver launches engine processes.
type Driver interface {
	// Name returns the driver identifier ("rod", "playwright", ...).
	Name() string

	// Launch starts a new engine process. Each call owns its own process.
	Launch(engine Engine, headless bool) (Process, error)
}

// Process is a running engine process.
type Process interface {
	// NewContext opens an isolated browsing context (own cookies, storage,
	// user agent and proxy).
	NewContext(opts ContextOptions) (Context, error)
	Close() error
}

// Context is an isolated browsing context inside a Process.
type Context interface {
	NewPage() (Page, error)
	Close() error
}

// Page is a single tab. Extraction callbacks receive a Page; drivers expose
// their native handle through a concrete type (see RodPage, PlaywrightPage).
type Page interface {
	// SetExtraHeaders sends h with every request the page makes.
	SetExtraHeaders(h Headers) error

	// AddInitScript evaluates js in every new document before page scripts run.
	AddInitScript(js string) error

	// Goto navigates to url and waits for the load event.
	Goto(url string) error
	Reload() error

	// WaitNetworkIdle blocks until the page has no in-flight requests for a
	// short window, or returns ErrIdleTimeout once timeout elapses.
	WaitNetworkIdle(timeout time.Duration) error

	// Content serializes the current document.
	Content() (string, error)
	Title() (string, error)
	URL() string

	// Has reports whether an element matches selector right now, without
	// waiting.
	Has(selector string) (bool, error)
	Click(selector string) error
	Fill(selector, value string) error
	Press(key string) error

	// Eval runs a JS function expression such as `() => document.title` and
	// returns its result rendered as a string.
	Eval(js string) (string, error)

	Close() error
}

// ContextOptions configures a browsing context.
type ContextOptions struct {
	UserAgent string
	Proxy     *Proxy
}

// Proxy is an upstream proxy for a browsing context.
type Proxy struct {
	Server   string
	Username string
	Password string
	Bypass   string
}

// Keys accepted by Page.Press.
const (
	KeyTab   = "Tab"
	KeySpace = "Space"
	KeyEnter = "Enter"
)
