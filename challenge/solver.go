// Package challenge navigates a page past anti-bot interstitials
// (Cloudflare JS and Turnstile challenges, DDoS-Guard, simple image captchas)
// with a bounded detect-and-solve loop.
package challenge

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/use-agent/browserfetch/browser"
)

// Kind classifies what Detect saw on the page.
type Kind int

const (
	KindNone Kind = iota
	KindJavaScript
	KindTurnstile
	KindAccessDenied
	KindImageCaptcha
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindJavaScript:
		return "javascript"
	case KindTurnstile:
		return "turnstile"
	case KindAccessDenied:
		return "access_denied"
	case KindImageCaptcha:
		return "image_captcha"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Outcome is the result of one Solve call. Kind is the last challenge seen,
// KindNone when the page was never gated. Passed=false does not mean
// navigation failed.
type Outcome struct {
	Passed   bool
	Attempts int
	Kind     Kind
}

// Config bounds the solving loop. Zero fields take the defaults.
type Config struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	PollInterval time.Duration `yaml:"poll_interval"`
	ReloadEvery  int           `yaml:"reload_every"`
	TabPresses   int           `yaml:"tab_presses"`
	Captcha      CaptchaConfig `yaml:"captcha"`
}

const (
	DefaultMaxAttempts  = 10
	DefaultPollInterval = time.Second
	DefaultReloadEvery  = 4
	DefaultTabPresses   = 10
)

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.ReloadEvery < 0 {
		c.ReloadEvery = 0
	} else if c.ReloadEvery == 0 {
		c.ReloadEvery = DefaultReloadEvery
	}
	if c.TabPresses <= 0 {
		c.TabPresses = DefaultTabPresses
	}
	if c.Captcha.Timeout <= 0 {
		c.Captcha.Timeout = DefaultCaptchaTimeout
	}
	return c
}

// Option customizes a Solver.
type Option func(*Solver)

// WithSleeper replaces time.Sleep, mainly for tests.
func WithSleeper(sleep func(time.Duration)) Option {
	return func(s *Solver) { s.sleep = sleep }
}

// WithRecognizer enables the image captcha step.
func WithRecognizer(r Recognizer) Option {
	return func(s *Solver) { s.recognizer = r }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Solver) { s.logger = l }
}

// Solver runs the detect-and-solve loop. It holds no per-call state and is
// safe for concurrent use.
type Solver struct {
	cfg        Config
	sleep      func(time.Duration)
	recognizer Recognizer
	logger     *slog.Logger
}

// New creates a Solver.
func New(cfg Config, opts ...Option) *Solver {
	s := &Solver{
		cfg:    cfg.withDefaults(),
		sleep:  time.Sleep,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Config returns the effective configuration.
func (s *Solver) Config() Config { return s.cfg }

// Solve applies stealth, navigates to url and loops until the page is free
// of challenge markers, the page is a hard block, or MaxAttempts is spent.
//
// Only a navigation failure is returned as an error. Everything inside the
// loop is logged and retried on the next attempt.
func (s *Solver) Solve(page browser.Page, url string) (Outcome, error) {
	if err := ApplyStealth(page); err != nil {
		s.logger.Warn("stealth injection failed, proceeding without stealth", "url", url, "error", err)
	}

	if err := page.Goto(url); err != nil {
		return Outcome{}, fmt.Errorf("navigate %s: %w", url, err)
	}

	var out Outcome
	acted := false
	for out.Attempts < s.cfg.MaxAttempts {
		out.Attempts++
		acted = false

		kind, err := s.Detect(page)
		switch {
		case err != nil:
			s.logger.Debug("challenge detection failed", "url", url, "attempt", out.Attempts, "error", err)
		case kind == KindNone:
			out.Passed = true
			s.logger.Debug("no challenge present", "url", url, "attempt", out.Attempts, "last", out.Kind)
			return out, nil
		case kind == KindAccessDenied:
			out.Kind = kind
			s.logger.Warn("access denied by challenge provider", "url", url, "attempt", out.Attempts)
			return out, nil
		default:
			out.Kind = kind
			s.logger.Debug("challenge detected", "url", url, "attempt", out.Attempts, "kind", kind)
			acted = s.act(page, kind)
		}

		if out.Attempts == s.cfg.MaxAttempts {
			break
		}
		s.sleep(s.cfg.PollInterval)
		if s.cfg.ReloadEvery > 0 && out.Attempts%s.cfg.ReloadEvery == 0 {
			if err := page.Reload(); err != nil {
				s.logger.Debug("challenge reload failed", "url", url, "error", err)
			}
		}
	}

	// The last interaction may have cleared the challenge.
	if acted {
		if kind, err := s.Detect(page); err == nil && kind == KindNone {
			out.Passed = true
			s.logger.Debug("challenge cleared by final interaction", "url", url, "attempts", out.Attempts, "kind", out.Kind)
			return out, nil
		}
	}

	s.logger.Debug("challenge attempts exhausted", "url", url, "attempts", out.Attempts, "kind", out.Kind)
	return out, nil
}

// act interacts with the page for kinds that need it and reports whether it
// did.
func (s *Solver) act(page browser.Page, kind Kind) bool {
	var err error
	switch kind {
	case KindTurnstile:
		err = s.solveTurnstile(page)
	case KindImageCaptcha:
		err = s.solveImageCaptcha(page)
	default:
		return false
	}
	if err != nil {
		s.logger.Debug("challenge interaction failed", "kind", kind, "error", err)
	}
	return true
}
