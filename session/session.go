// Package session scopes one browser process, context and page to a single
// fetch call.
//
// Every resource is pushed onto a cleanup stack the moment it exists. Close
// unwinds the stack innermost first, runs every guard even when an earlier one
// fails, and is safe to call more than once. A failed Open unwinds whatever it
// had already built before returning.
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/use-agent/browserfetch/browser"
	"github.com/use-agent/browserfetch/metrics"
	"github.com/use-agent/browserfetch/models"
)

// State is the lifecycle position of a Session.
type State int

const (
	Init State = iota
	EngineAcquired
	ContextOpen
	PageOpen
	ChallengeAttempted
	Navigated
	TimedOut
	Extracted
	TornDown
)

var stateNames = [...]string{
	Init:               "INIT",
	EngineAcquired:     "ENGINE_ACQUIRED",
	ContextOpen:        "CONTEXT_OPEN",
	PageOpen:           "PAGE_OPEN",
	ChallengeAttempted: "CHALLENGE_ATTEMPTED",
	Navigated:          "NAVIGATED",
	TimedOut:           "TIMED_OUT",
	Extracted:          "EXTRACTED",
	TornDown:           "TORN_DOWN",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// Config is the per-session browser configuration.
type Config struct {
	Headless bool
	Context  browser.ContextOptions
}

// Manager opens sessions on a fixed driver and engine.
type Manager struct {
	driver browser.Driver
	engine browser.Engine
	logger *slog.Logger
}

// NewManager creates a Manager. A nil logger uses slog.Default().
func NewManager(driver browser.Driver, engine browser.Engine, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{driver: driver, engine: engine, logger: logger}
}

// Engine returns the engine every session is launched with.
func (m *Manager) Engine() browser.Engine { return m.engine }

// Open acquires an engine process, a context and a page, in that order.
// On failure the resources already acquired are closed and a *models.FetchError
// with code DRIVER_INIT_FAILED is returned.
func (m *Manager) Open(cfg Config) (s *Session, err error) {
	s = &Session{logger: m.logger}

	// A panicking driver must not leak the resources built so far.
	defer func() {
		if r := recover(); r != nil {
			_ = s.Close()
			panic(r)
		}
	}()

	proc, err := m.driver.Launch(m.engine, cfg.Headless)
	if err != nil {
		return nil, s.abort(fmt.Sprintf("launch %s", m.engine), err)
	}
	s.push("process", proc.Close)
	s.Mark(EngineAcquired)

	bctx, err := proc.NewContext(cfg.Context)
	if err != nil {
		return nil, s.abort("open browser context", err)
	}
	s.push("context", bctx.Close)
	s.Mark(ContextOpen)

	page, err := bctx.NewPage()
	if err != nil {
		return nil, s.abort("open page", err)
	}
	s.page = page
	s.push("page", page.Close)
	s.Mark(PageOpen)

	return s, nil
}

// guard closes one resource.
type guard struct {
	resource string
	close    func() error
}

// Session owns at most one process, context and page.
type Session struct {
	logger *slog.Logger
	page   browser.Page

	mu     sync.Mutex
	state  State
	guards []guard
	closed bool
}

// Page returns the session's page, or nil before PAGE_OPEN.
func (s *Session) Page() browser.Page { return s.page }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Mark records a lifecycle transition. Marks after Close are ignored.
func (s *Session) Mark(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.state = st
	}
}

func (s *Session) push(resource string, close func() error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.guards = append(s.guards, guard{resource: resource, close: close})
}

func (s *Session) abort(step string, err error) error {
	_ = s.Close()
	return models.NewFetchError(models.ErrCodeDriverInit, step, err)
}

// Close releases page, context and process in that order. Every guard runs
// regardless of earlier failures; failures are logged per resource and joined
// into the returned *models.FetchError. Calls after the first return nil.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	guards := s.guards
	s.guards = nil
	s.mu.Unlock()

	var errs []error
	for i := len(guards) - 1; i >= 0; i-- {
		g := guards[i]
		if err := runGuard(g); err != nil {
			s.logger.Warn("teardown failed", "resource", g.resource, "error", err)
			metrics.RecordTeardownError(g.resource)
			errs = append(errs, fmt.Errorf("close %s: %w", g.resource, err))
		}
	}

	s.mu.Lock()
	s.state = TornDown
	s.mu.Unlock()

	if len(errs) > 0 {
		return models.NewFetchError(models.ErrCodeTeardown, "session teardown", errors.Join(errs...))
	}
	return nil
}

func runGuard(g guard) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return g.close()
}
