package browser

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/playwright-community/playwright-go"
)

// PlaywrightOptions configures the playwright driver.
type PlaywrightOptions struct {
	// Install downloads the driver and browsers on first launch.
	Install bool

	Logger *slog.Logger
}

// PlaywrightDriver launches every Engine through playwright-go. Firefox and
// WebKit are only reachable through this driver.
type PlaywrightDriver struct {
	opts   PlaywrightOptions
	logger *slog.Logger
}

// NewPlaywrightDriver creates a PlaywrightDriver.
func NewPlaywrightDriver(opts PlaywrightOptions) *PlaywrightDriver {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &PlaywrightDriver{opts: opts, logger: logger}
}

func (d *PlaywrightDriver) Name() string { return "playwright" }

// Launch starts a playwright runtime and one browser on it. Both are owned by
// the returned Process.
func (d *PlaywrightDriver) Launch(engine Engine, headless bool) (Process, error) {
	runOpts := &playwright.RunOptions{
		Verbose: false,
		Stdout:  io.Discard,
		Stderr:  io.Discard,
	}
	if d.opts.Install {
		if err := playwright.Install(runOpts); err != nil {
			return nil, fmt.Errorf("playwright: install: %w", err)
		}
	}

	pw, err := playwright.Run(runOpts)
	if err != nil {
		return nil, fmt.Errorf("playwright: start: %w", err)
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{Headless: playwright.Bool(headless)}
	var bt playwright.BrowserType
	switch engine {
	case Chromium:
		bt = pw.Chromium
	case Chrome:
		bt = pw.Chromium
		launchOpts.Channel = playwright.String("chrome")
	case Edge:
		bt = pw.Chromium
		launchOpts.Channel = playwright.String("msedge")
	case Firefox:
		bt = pw.Firefox
	case WebKit:
		bt = pw.WebKit
	default:
		_ = pw.Stop()
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedEngine, engine)
	}

	b, err := bt.Launch(launchOpts)
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("playwright: launch %s: %w", engine, err)
	}
	d.logger.Debug("browser launched", "engine", engine, "headless", headless, "version", b.Version())

	return &pwProcess{pw: pw, browser: b}, nil
}

type pwProcess struct {
	pw      *playwright.Playwright
	browser playwright.Browser
}

func (p *pwProcess) NewContext(opts ContextOptions) (Context, error) {
	ctxOpts := playwright.BrowserNewContextOptions{}
	if opts.UserAgent != "" {
		ctxOpts.UserAgent = playwright.String(opts.UserAgent)
	}
	if opts.Proxy != nil && opts.Proxy.Server != "" {
		proxy := &playwright.Proxy{Server: opts.Proxy.Server}
		if opts.Proxy.Username != "" {
			proxy.Username = playwright.String(opts.Proxy.Username)
			proxy.Password = playwright.String(opts.Proxy.Password)
		}
		if opts.Proxy.Bypass != "" {
			proxy.Bypass = playwright.String(opts.Proxy.Bypass)
		}
		ctxOpts.Proxy = proxy
	}

	bc, err := p.browser.NewContext(ctxOpts)
	if err != nil {
		return nil, fmt.Errorf("playwright: create context: %w", err)
	}
	return &pwContext{ctx: bc}, nil
}

// Close closes the browser, then stops the runtime even if that failed.
func (p *pwProcess) Close() error {
	return errors.Join(p.browser.Close(), p.pw.Stop())
}

type pwContext struct {
	ctx playwright.BrowserContext
}

func (c *pwContext) NewPage() (Page, error) {
	page, err := c.ctx.NewPage()
	if err != nil {
		return nil, fmt.Errorf("playwright: create page: %w", err)
	}
	return &PlaywrightPage{page: page}, nil
}

func (c *pwContext) Close() error {
	return c.ctx.Close()
}

// PlaywrightPage is the playwright implementation of Page.
type PlaywrightPage struct {
	page playwright.Page
}

// Native returns the underlying playwright page.
func (p *PlaywrightPage) Native() playwright.Page { return p.page }

func (p *PlaywrightPage) SetExtraHeaders(h Headers) error {
	if h.Len() == 0 {
		return nil
	}
	return p.page.SetExtraHTTPHeaders(h.Map())
}

func (p *PlaywrightPage) AddInitScript(js string) error {
	return p.page.AddInitScript(playwright.Script{Content: playwright.String(js)})
}

func (p *PlaywrightPage) Goto(url string) error {
	_, err := p.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateLoad,
	})
	return err
}

func (p *PlaywrightPage) Reload() error {
	_, err := p.page.Reload(playwright.PageReloadOptions{
		WaitUntil: playwright.WaitUntilStateLoad,
	})
	return err
}

func (p *PlaywrightPage) WaitNetworkIdle(timeout time.Duration) error {
	err := p.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateNetworkidle,
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
	if errors.Is(err, playwright.ErrTimeout) {
		return ErrIdleTimeout
	}
	return err
}

func (p *PlaywrightPage) Content() (string, error) {
	return p.page.Content()
}

func (p *PlaywrightPage) Title() (string, error) {
	return p.page.Title()
}

func (p *PlaywrightPage) URL() string {
	return p.page.URL()
}

func (p *PlaywrightPage) Has(selector string) (bool, error) {
	el, err := p.page.QuerySelector(selector)
	if err != nil {
		return false, err
	}
	return el != nil, nil
}

func (p *PlaywrightPage) Click(selector string) error {
	has, err := p.Has(selector)
	if err != nil {
		return err
	}
	if !has {
		return fmt.Errorf("%w: %s", ErrNotFound, selector)
	}
	return p.page.Locator(selector).First().Click()
}

func (p *PlaywrightPage) Fill(selector, value string) error {
	has, err := p.Has(selector)
	if err != nil {
		return err
	}
	if !has {
		return fmt.Errorf("%w: %s", ErrNotFound, selector)
	}
	return p.page.Locator(selector).First().Fill(value)
}

func (p *PlaywrightPage) Press(key string) error {
	return p.page.Keyboard().Press(key)
}

func (p *PlaywrightPage) Eval(js string) (string, error) {
	v, err := p.page.Evaluate(js)
	if err != nil {
		return "", err
	}
	switch s := v.(type) {
	case nil:
		return "", nil
	case string:
		return s, nil
	default:
		return fmt.Sprint(s), nil
	}
}

func (p *PlaywrightPage) Close() error {
	return p.page.Close()
}
