package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"
)

// idleWindow is how long the page must stay without in-flight requests to
// count as network idle (same window playwright uses for "networkidle").
const idleWindow = 500 * time.Millisecond

// Executable names searched on PATH for the branded Chromium engines.
var engineBins = map[Engine][]string{
	Chrome: {"google-chrome", "google-chrome-stable", "chrome"},
	Edge:   {"microsoft-edge", "microsoft-edge-stable", "msedge"},
}

// RodOptions configures the rod driver.
type RodOptions struct {
	// BrowserBin overrides the browser binary for every engine.
	BrowserBin string

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool

	Logger *slog.Logger
}

// RodDriver launches Chromium-family engines over CDP with go-rod.
// Each Launch starts a dedicated browser process.
type RodDriver struct {
	opts   RodOptions
	logger *slog.Logger
}

// NewRodDriver creates a RodDriver.
func NewRodDriver(opts RodOptions) *RodDriver {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &RodDriver{opts: opts, logger: logger}
}

func (d *RodDriver) Name() string { return "rod" }

// Launch starts a browser process with the automation-revealing switches
// removed.
func (d *RodDriver) Launch(engine Engine, headless bool) (Process, error) {
	if !engine.Chromium() {
		return nil, fmt.Errorf("%w: rod drives Chromium-family engines only, got %q", ErrUnsupportedEngine, engine)
	}
	bin, err := d.resolveBin(engine)
	if err != nil {
		return nil, err
	}

	l := launcher.New().
		Headless(headless).
		NoSandbox(d.opts.NoSandbox)
	if bin != "" {
		l = l.Bin(bin)
	}

	// ── Stealth flags ────────────────────────────────────────────────
	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-features"), "AudioServiceOutOfProcess,TranslateUI")
	l.Set(flags.Flag("disable-ipc-flooding-protection"))
	l.Set(flags.Flag("disable-popup-blocking"))
	l.Set(flags.Flag("disable-renderer-backgrounding"))
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-backgrounding-occluded-windows"))
	l.Set(flags.Flag("disable-component-update"))
	l.Set(flags.Flag("disable-default-apps"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("no-first-run"))

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("rod: launch %s: %w", engine, err)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Kill()
		l.Cleanup()
		return nil, fmt.Errorf("rod: connect to %s: %w", engine, err)
	}
	d.logger.Debug("browser launched", "engine", engine, "headless", headless, "controlURL", controlURL)

	return &rodProcess{browser: b, launcher: l, logger: d.logger}, nil
}

// resolveBin picks the executable for engine. An empty result lets the
// launcher find (or download) a Chromium build.
func (d *RodDriver) resolveBin(engine Engine) (string, error) {
	if d.opts.BrowserBin != "" {
		return d.opts.BrowserBin, nil
	}
	names, branded := engineBins[engine]
	if !branded {
		return "", nil
	}
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: no %s executable found on PATH", ErrUnsupportedEngine, engine)
}

type rodProcess struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	logger   *slog.Logger
}

// NewContext creates a CDP browser context. Chrome applies the proxy per
// context, so concurrent sessions never share one.
func (p *rodProcess) NewContext(opts ContextOptions) (Context, error) {
	req := proto.TargetCreateBrowserContext{DisposeOnDetach: true}
	if opts.Proxy != nil && opts.Proxy.Server != "" {
		req.ProxyServer = opts.Proxy.Server
		req.ProxyBypassList = opts.Proxy.Bypass
	}
	res, err := req.Call(p.browser)
	if err != nil {
		return nil, fmt.Errorf("rod: create browser context: %w", err)
	}

	scoped := *p.browser
	scoped.BrowserContextID = res.BrowserContextID

	c := &rodContext{
		parent:    p.browser,
		browser:   &scoped,
		id:        res.BrowserContextID,
		userAgent: opts.UserAgent,
		logger:    p.logger,
	}
	if opts.Proxy != nil && opts.Proxy.Username != "" {
		c.auth = newProxyAuth(opts.Proxy.Username, opts.Proxy.Password)
	}
	return c, nil
}

func (p *rodProcess) Close() error {
	err := p.browser.Close()
	if err != nil {
		p.launcher.Kill()
	}
	p.launcher.Cleanup()
	return err
}

type rodContext struct {
	parent    *rod.Browser
	browser   *rod.Browser
	id        proto.BrowserBrowserContextID
	userAgent string
	auth      *proxyAuth
	logger    *slog.Logger
}

func (c *rodContext) NewPage() (Page, error) {
	page, err := c.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("rod: create page: %w", err)
	}
	if c.userAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: c.userAgent}); err != nil {
			_ = page.Close()
			return nil, fmt.Errorf("rod: set user agent: %w", err)
		}
	}
	if c.auth != nil {
		if err := c.auth.attach(page, c.logger); err != nil {
			_ = page.Close()
			return nil, fmt.Errorf("rod: proxy auth: %w", err)
		}
	}
	return &RodPage{page: page}, nil
}

func (c *rodContext) Close() error {
	if c.auth != nil {
		c.auth.stop()
	}
	return proto.TargetDisposeBrowserContext{BrowserContextID: c.id}.Call(c.parent)
}

// proxyAuth answers every proxy auth challenge raised by the pages of one
// browser context until stop is called.
type proxyAuth struct {
	ctx      context.Context
	cancel   context.CancelFunc
	username string
	password string
}

func newProxyAuth(username, password string) *proxyAuth {
	ctx, cancel := context.WithCancel(context.Background())
	return &proxyAuth{ctx: ctx, cancel: cancel, username: username, password: password}
}

// response is the credential reply sent for each Fetch.authRequired event.
func (a *proxyAuth) response() *proto.FetchAuthChallengeResponse {
	return &proto.FetchAuthChallengeResponse{
		Response: proto.FetchAuthChallengeResponseResponseProvideCredentials,
		Username: a.username,
		Password: a.password,
	}
}

// attach subscribes before enabling interception so no paused request is
// missed. Paused requests are resumed untouched.
func (a *proxyAuth) attach(page *rod.Page, logger *slog.Logger) error {
	p := page.Context(a.ctx)
	wait := p.EachEvent(
		func(e *proto.FetchRequestPaused) {
			if err := (proto.FetchContinueRequest{RequestID: e.RequestID}).Call(p); err != nil {
				logger.Debug("continue paused request failed", "error", err)
			}
		},
		func(e *proto.FetchAuthRequired) {
			err := proto.FetchContinueWithAuth{
				RequestID:             e.RequestID,
				AuthChallengeResponse: a.response(),
			}.Call(p)
			if err != nil {
				logger.Debug("answer proxy auth failed", "error", err)
			}
		},
	)
	if err := (proto.FetchEnable{HandleAuthRequests: true}).Call(p); err != nil {
		return err
	}
	go wait()
	return nil
}

func (a *proxyAuth) stop() { a.cancel() }

// RodPage is the rod implementation of Page. Extraction callbacks can
// type-assert to *RodPage and use Native for anything the Page interface
// does not cover.
type RodPage struct {
	page *rod.Page
}

// Native returns the underlying rod page.
func (p *RodPage) Native() *rod.Page { return p.page }

func (p *RodPage) SetExtraHeaders(h Headers) error {
	if h.Len() == 0 {
		return nil
	}
	if err := (proto.NetworkEnable{}).Call(p.page); err != nil {
		return fmt.Errorf("rod: enable network: %w", err)
	}
	return proto.NetworkSetExtraHTTPHeaders{Headers: toHeadersMap(h)}.Call(p.page)
}

func (p *RodPage) AddInitScript(js string) error {
	_, err := p.page.EvalOnNewDocument(js)
	return err
}

func (p *RodPage) Goto(url string) error {
	if err := p.page.Navigate(url); err != nil {
		return err
	}
	return p.page.WaitLoad()
}

func (p *RodPage) Reload() error {
	if err := p.page.Reload(); err != nil {
		return err
	}
	return p.page.WaitLoad()
}

// WaitNetworkIdle waits on a page bound to a timeout context, so the CDP
// event listener is released when the deadline passes.
func (p *RodPage) WaitNetworkIdle(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(p.page.GetContext(), timeout)
	defer cancel()

	wait := p.page.Context(ctx).WaitRequestIdle(idleWindow, nil, nil, nil)
	wait()

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrIdleTimeout
	}
	return nil
}

func (p *RodPage) Content() (string, error) {
	return p.page.HTML()
}

func (p *RodPage) Title() (string, error) {
	info, err := p.page.Info()
	if err != nil {
		return "", err
	}
	return info.Title, nil
}

func (p *RodPage) URL() string {
	info, err := p.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

func (p *RodPage) Has(selector string) (bool, error) {
	has, _, err := p.page.Has(selector)
	return has, err
}

func (p *RodPage) Click(selector string) error {
	has, el, err := p.page.Has(selector)
	if err != nil {
		return err
	}
	if !has {
		return fmt.Errorf("%w: %s", ErrNotFound, selector)
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

func (p *RodPage) Fill(selector, value string) error {
	has, el, err := p.page.Has(selector)
	if err != nil {
		return err
	}
	if !has {
		return fmt.Errorf("%w: %s", ErrNotFound, selector)
	}
	return el.Input(value)
}

var rodKeys = map[string]input.Key{
	KeyTab:   input.Tab,
	KeySpace: input.Space,
	KeyEnter: input.Enter,
}

func (p *RodPage) Press(key string) error {
	k, ok := rodKeys[key]
	if !ok {
		return fmt.Errorf("rod: unsupported key %q", key)
	}
	return p.page.Keyboard.Press(k)
}

func (p *RodPage) Eval(js string) (string, error) {
	res, err := p.page.Eval(js)
	if err != nil {
		return "", err
	}
	return res.Value.Str(), nil
}

func (p *RodPage) Close() error {
	return p.page.Close()
}

// toHeadersMap converts Headers to the proto.NetworkHeaders type
// (map[string]gson.JSON) required by NetworkSetExtraHTTPHeaders.
func toHeadersMap(h Headers) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, h.Len())
	for k, v := range h.m {
		m[k] = gson.New(v)
	}
	return m
}
