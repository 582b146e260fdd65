// Package fetch renders a page in a throwaway browser session, gets it past
// bot challenges and hands it to an extraction callback.
//
// Every call owns its own engine process, context and page, and tears all
// three down before returning. The public entry points never panic and never
// return an error: they yield a value and true, or the zero value and false
// with the cause logged.
package fetch

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/use-agent/browserfetch/browser"
	"github.com/use-agent/browserfetch/challenge"
	"github.com/use-agent/browserfetch/metrics"
	"github.com/use-agent/browserfetch/models"
	"github.com/use-agent/browserfetch/session"
)

const (
	DefaultRunTimeout  = 30 * time.Second
	DefaultHTMLTimeout = 20 * time.Second
)

// Operation names used in logs and metrics.
const (
	opRun       = "run"
	opFetchHTML = "fetch_html"
)

// Config is fixed for the life of a Helper.
type Config struct {
	Engine browser.Engine

	// Headless is the default for calls that do not pass WithHeadless.
	Headless bool

	// RunTimeout and HTMLTimeout bound the network-idle wait of Run and
	// FetchHTML respectively.
	RunTimeout  time.Duration
	HTMLTimeout time.Duration

	// MaxConcurrent caps simultaneous sessions; 0 means unbounded.
	MaxConcurrent int

	Challenge challenge.Config
}

// Solver gets a page past bot challenges. *challenge.Solver implements it.
type Solver interface {
	Solve(page browser.Page, url string) (challenge.Outcome, error)
}

// HelperOption customizes a Helper.
type HelperOption func(*helperOptions)

type helperOptions struct {
	logger     *slog.Logger
	solver     Solver
	recognizer challenge.Recognizer
}

func WithLogger(l *slog.Logger) HelperOption {
	return func(o *helperOptions) { o.logger = l }
}

// WithSolver replaces the challenge solver built from Config.Challenge.
func WithSolver(s Solver) HelperOption {
	return func(o *helperOptions) { o.solver = s }
}

// WithRecognizer enables the image captcha step of the default solver.
func WithRecognizer(r challenge.Recognizer) HelperOption {
	return func(o *helperOptions) { o.recognizer = r }
}

// Helper runs fetches on one driver and engine.
type Helper struct {
	cfg      Config
	driver   string
	sessions *session.Manager
	solver   Solver
	sem      *semaphore.Weighted
	logger   *slog.Logger
	inFlight atomic.Int64
}

// New creates a Helper. The engine is not launched until the first call.
func New(driver browser.Driver, cfg Config, opts ...HelperOption) *Helper {
	if cfg.Engine == "" {
		cfg.Engine = browser.Chromium
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = DefaultRunTimeout
	}
	if cfg.HTMLTimeout <= 0 {
		cfg.HTMLTimeout = DefaultHTMLTimeout
	}

	ho := helperOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&ho)
	}
	if ho.solver == nil {
		solverOpts := []challenge.Option{challenge.WithLogger(ho.logger)}
		if ho.recognizer != nil {
			solverOpts = append(solverOpts, challenge.WithRecognizer(ho.recognizer))
		}
		ho.solver = challenge.New(cfg.Challenge, solverOpts...)
	}

	h := &Helper{
		cfg:      cfg,
		driver:   driver.Name(),
		sessions: session.NewManager(driver, cfg.Engine, ho.logger),
		solver:   ho.solver,
		logger:   ho.logger,
	}
	if cfg.MaxConcurrent > 0 {
		h.sem = semaphore.NewWeighted(int64(cfg.MaxConcurrent))
	}
	return h
}

func (h *Helper) Engine() browser.Engine { return h.cfg.Engine }

func (h *Helper) DriverName() string { return h.driver }

func (h *Helper) MaxConcurrent() int { return h.cfg.MaxConcurrent }

// InFlight returns the number of calls currently holding a session.
func (h *Helper) InFlight() int64 { return h.inFlight.Load() }

// FetchHTML returns the rendered document of url.
func (h *Helper) FetchHTML(ctx context.Context, url string, opts ...Option) (string, bool) {
	return h.SubmitHTML(ctx, url, opts...).Wait(ctx)
}

// SubmitHTML is FetchHTML without the wait.
func (h *Helper) SubmitHTML(ctx context.Context, url string, opts ...Option) *Future[string] {
	return submit(ctx, h, opFetchHTML, h.cfg.HTMLTimeout, url, HTML, opts)
}

// Run fetches url and returns what extract produced from the page.
func Run[T any](ctx context.Context, h *Helper, url string, extract func(browser.Page) (T, error), opts ...Option) (T, bool) {
	return Submit(ctx, h, url, extract, opts...).Wait(ctx)
}

// Submit starts Run on its own goroutine and returns immediately.
func Submit[T any](ctx context.Context, h *Helper, url string, extract func(browser.Page) (T, error), opts ...Option) *Future[T] {
	return submit(ctx, h, opRun, h.cfg.RunTimeout, url, extract, opts)
}

func submit[T any](ctx context.Context, h *Helper, op string, timeout time.Duration, url string, extract func(browser.Page) (T, error), opts []Option) *Future[T] {
	o := Options{Headless: h.cfg.Headless, Timeout: timeout}
	for _, opt := range opts {
		opt(&o)
	}

	f := newFuture[T](h.logger, op, url)
	go func() {
		defer close(f.done)
		f.value, f.ok = execute(ctx, h, op, url, o, extract)
	}()
	return f
}

// execute gates the call on ctx and the concurrency bound, then runs the
// session with panics contained.
func execute[T any](ctx context.Context, h *Helper, op, url string, o Options, extract func(browser.Page) (T, error)) (value T, ok bool) {
	start := time.Now()
	defer func() { metrics.RecordFetch(op, ok, time.Since(start)) }()

	if err := ctx.Err(); err != nil {
		h.logger.Warn("fetch cancelled before start", "op", op, "url", url, "error", err)
		return value, false
	}
	if h.sem != nil {
		if err := h.sem.Acquire(ctx, 1); err != nil {
			h.logger.Warn("fetch cancelled while waiting for a session slot", "op", op, "url", url, "error", err)
			return value, false
		}
		defer h.sem.Release(1)
	}

	h.inFlight.Add(1)
	defer h.inFlight.Add(-1)
	defer metrics.TrackInFlight()()

	err := contain(h.logger, op, url, func() error {
		v, err := runSession(h, op, url, o, extract)
		if err != nil {
			return err
		}
		value = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, false
	}
	return value, true
}

// runSession is the fetch pipeline proper: open, inject headers, solve,
// wait for idle, extract. The session is closed on every path out.
func runSession[T any](h *Helper, op, url string, o Options, extract func(browser.Page) (T, error)) (T, error) {
	var zero T

	s, err := h.sessions.Open(session.Config{
		Headless: o.Headless,
		Context:  browser.ContextOptions{UserAgent: o.UserAgent, Proxy: o.Proxy},
	})
	if err != nil {
		return zero, err
	}
	defer func() {
		if err := s.Close(); err != nil {
			h.logger.Warn("session teardown incomplete", "op", op, "url", url, "error", err)
		}
	}()
	page := s.Page()

	if headers := o.Headers.WithCookie(o.Cookies); headers.Len() > 0 {
		if err := page.SetExtraHeaders(headers); err != nil {
			return zero, models.NewFetchError(models.ErrCodeNavigation, "set extra headers", err)
		}
	}

	outcome, err := h.solver.Solve(page, url)
	s.Mark(session.ChallengeAttempted)
	if err != nil {
		metrics.RecordChallenge("error")
		return zero, models.NewFetchError(models.ErrCodeNavigation, "navigate", err)
	}
	if outcome.Passed {
		metrics.RecordChallenge("passed")
		h.logger.Debug("challenge passed", "op", op, "url", url, "attempts", outcome.Attempts, "kind", outcome.Kind)
	} else {
		metrics.RecordChallenge("failed")
		h.logger.Warn("challenge not passed, continuing with current page",
			"op", op, "url", url, "attempts", outcome.Attempts, "kind", outcome.Kind)
	}

	switch err := page.WaitNetworkIdle(o.Timeout); {
	case errors.Is(err, browser.ErrIdleTimeout):
		metrics.RecordIdleTimeout()
		s.Mark(session.TimedOut)
		h.logger.Warn("network idle wait timed out, extracting current state",
			"op", op, "url", url, "timeout", o.Timeout)
	case err != nil:
		return zero, models.NewFetchError(models.ErrCodeNavigation, "wait for network idle", err)
	default:
		s.Mark(session.Navigated)
	}

	v, err := extract(page)
	if err != nil {
		return zero, models.NewFetchError(models.ErrCodeExtraction, "extract", err)
	}
	s.Mark(session.Extracted)
	return v, nil
}
