package fetch

import (
	"time"

	"github.com/use-agent/browserfetch/browser"
)

// Options are the per-call session settings.
type Options struct {
	// Cookies is sent verbatim as the cookie header of every request.
	Cookies   string
	UserAgent string
	Proxy     *browser.Proxy
	Headless  bool

	// Timeout bounds the network-idle wait.
	Timeout time.Duration
	Headers browser.Headers
}

// Option sets a per-call Options field.
type Option func(*Options)

func WithCookies(cookies string) Option {
	return func(o *Options) { o.Cookies = cookies }
}

func WithUserAgent(ua string) Option {
	return func(o *Options) { o.UserAgent = ua }
}

// WithProxy routes the call's context through p. A nil or empty proxy is
// ignored.
func WithProxy(p *browser.Proxy) Option {
	return func(o *Options) {
		if p != nil && p.Server != "" {
			o.Proxy = p
		}
	}
}

func WithHeadless(headless bool) Option {
	return func(o *Options) { o.Headless = headless }
}

// WithTimeout overrides the helper's idle-wait timeout. Non-positive values
// are ignored.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) {
		if d > 0 {
			o.Timeout = d
		}
	}
}

// WithHeaders adds extra request headers. A cookie set with WithCookies wins
// over a cookie header given here.
func WithHeaders(h browser.Headers) Option {
	return func(o *Options) { o.Headers = h }
}
