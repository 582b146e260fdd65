// Package browsertest provides an in-memory browser.Driver that records every
// call and lets tests inject failures, panics and scripted page state at any
// step.
package browsertest

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/use-agent/browserfetch/browser"
)

// Step names a driver operation. The recorded call log uses these names.
type Step string

const (
	StepLaunch       Step = "process.launch"
	StepNewContext   Step = "context.new"
	StepNewPage      Step = "page.new"
	StepSetHeaders   Step = "page.headers"
	StepInitScript   Step = "page.initscript"
	StepGoto         Step = "page.goto"
	StepReload       Step = "page.reload"
	StepWaitIdle     Step = "page.idle"
	StepContent      Step = "page.content"
	StepTitle        Step = "page.title"
	StepHas          Step = "page.has"
	StepClick        Step = "page.click"
	StepFill         Step = "page.fill"
	StepPress        Step = "page.press"
	StepEval         Step = "page.eval"
	StepClosePage    Step = "page.close"
	StepCloseContext Step = "context.close"
	StepCloseProcess Step = "process.close"
)

// Hook runs after a page step succeeds. Tests use it to change the page
// (for example clear a challenge once Space was pressed).
type Hook func(step Step, arg string, p *Page)

// Driver is a fake browser.Driver. Configure it before handing it to the code
// under test; it is safe for concurrent use afterwards.
type Driver struct {
	// Page state copied into every new page.
	Titles    []string
	Selectors []string
	HTML      string
	Evals     map[string]string
	Hook      Hook

	mu       sync.Mutex
	fail     map[Step]error
	panics   map[Step]any
	gates    map[Step]chan struct{}
	calls    []string
	launches []Launch
	contexts []browser.ContextOptions
	headers  []browser.Headers
}

// Launch records one Driver.Launch call.
type Launch struct {
	Engine   browser.Engine
	Headless bool
}

// New returns a Driver whose pages serve html with the given title.
func New(title, html string) *Driver {
	return &Driver{Titles: []string{title}, HTML: html}
}

// Fail makes step return err.
func (d *Driver) Fail(step Step, err error) *Driver {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail == nil {
		d.fail = make(map[Step]error)
	}
	d.fail[step] = err
	return d
}

// Panic makes step panic with v.
func (d *Driver) Panic(step Step, v any) *Driver {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.panics == nil {
		d.panics = make(map[Step]any)
	}
	d.panics[step] = v
	return d
}

// Gate blocks step until the returned channel is closed.
func (d *Driver) Gate(step Step) chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.gates == nil {
		d.gates = make(map[Step]chan struct{})
	}
	ch := make(chan struct{})
	d.gates[step] = ch
	return ch
}

func (d *Driver) Name() string { return "fake" }

func (d *Driver) Launch(engine browser.Engine, headless bool) (browser.Process, error) {
	if err := d.enter(StepLaunch, string(engine)); err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.launches = append(d.launches, Launch{Engine: engine, Headless: headless})
	d.mu.Unlock()
	return &Process{d: d}, nil
}

// enter records step, waits on its gate, then applies injected panics and
// failures.
func (d *Driver) enter(step Step, arg string) error {
	d.mu.Lock()
	entry := string(step)
	if arg != "" {
		entry += " " + arg
	}
	d.calls = append(d.calls, entry)
	gate := d.gates[step]
	p, doPanic := d.panics[step]
	err := d.fail[step]
	d.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if doPanic {
		panic(p)
	}
	return err
}

// Calls returns the call log in order.
func (d *Driver) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

// Closes returns only the teardown calls, in order.
func (d *Driver) Closes() []string {
	var out []string
	for _, c := range d.Calls() {
		if strings.HasSuffix(c, ".close") {
			out = append(out, c)
		}
	}
	return out
}

// Count returns how many times step was called.
func (d *Driver) Count(step Step) int {
	n := 0
	for _, c := range d.Calls() {
		if c == string(step) || strings.HasPrefix(c, string(step)+" ") {
			n++
		}
	}
	return n
}

// Launches returns the recorded Launch calls.
func (d *Driver) Launches() []Launch {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Launch(nil), d.launches...)
}

// Contexts returns the options of every context created.
func (d *Driver) Contexts() []browser.ContextOptions {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]browser.ContextOptions(nil), d.contexts...)
}

// Headers returns every header set passed to SetExtraHeaders.
func (d *Driver) Headers() []browser.Headers {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]browser.Headers(nil), d.headers...)
}

// Process is the fake browser.Process.
type Process struct {
	d *Driver
}

func (p *Process) NewContext(opts browser.ContextOptions) (browser.Context, error) {
	if err := p.d.enter(StepNewContext, ""); err != nil {
		return nil, err
	}
	p.d.mu.Lock()
	p.d.contexts = append(p.d.contexts, opts)
	p.d.mu.Unlock()
	return &Context{d: p.d}, nil
}

func (p *Process) Close() error { return p.d.enter(StepCloseProcess, "") }

// Context is the fake browser.Context.
type Context struct {
	d *Driver
}

func (c *Context) NewPage() (browser.Page, error) {
	if err := c.d.enter(StepNewPage, ""); err != nil {
		return nil, err
	}
	c.d.mu.Lock()
	defer c.d.mu.Unlock()
	p := &Page{
		d:         c.d,
		titles:    append([]string(nil), c.d.Titles...),
		selectors: make(map[string]bool, len(c.d.Selectors)),
		html:      c.d.HTML,
		evals:     make(map[string]string, len(c.d.Evals)),
	}
	for _, s := range c.d.Selectors {
		p.selectors[s] = true
	}
	for k, v := range c.d.Evals {
		p.evals[k] = v
	}
	return p, nil
}

func (c *Context) Close() error { return c.d.enter(StepCloseContext, "") }

// Page is the fake browser.Page. Titles are consumed one per Title call; the
// last one sticks.
type Page struct {
	d *Driver

	mu        sync.Mutex
	titles    []string
	selectors map[string]bool
	html      string
	url       string
	evals     map[string]string
}

// SetTitles replaces the remaining title script.
func (p *Page) SetTitles(titles ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.titles = titles
}

// SetSelector marks selector as present or absent.
func (p *Page) SetSelector(selector string, present bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.selectors[selector] = present
}

// SetHTML replaces the document.
func (p *Page) SetHTML(html string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.html = html
}

func (p *Page) step(step Step, arg string) error {
	if err := p.d.enter(step, arg); err != nil {
		return err
	}
	if p.d.Hook != nil {
		p.d.Hook(step, arg, p)
	}
	return nil
}

func (p *Page) SetExtraHeaders(h browser.Headers) error {
	if err := p.step(StepSetHeaders, ""); err != nil {
		return err
	}
	p.d.mu.Lock()
	p.d.headers = append(p.d.headers, h)
	p.d.mu.Unlock()
	return nil
}

func (p *Page) AddInitScript(string) error { return p.step(StepInitScript, "") }

func (p *Page) Goto(url string) error {
	if err := p.step(StepGoto, url); err != nil {
		return err
	}
	p.mu.Lock()
	p.url = url
	p.mu.Unlock()
	return nil
}

func (p *Page) Reload() error { return p.step(StepReload, "") }

func (p *Page) WaitNetworkIdle(timeout time.Duration) error {
	return p.step(StepWaitIdle, timeout.String())
}

func (p *Page) Content() (string, error) {
	if err := p.step(StepContent, ""); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.html, nil
}

func (p *Page) Title() (string, error) {
	if err := p.step(StepTitle, ""); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.titles) == 0 {
		return "", nil
	}
	t := p.titles[0]
	if len(p.titles) > 1 {
		p.titles = p.titles[1:]
	}
	return t, nil
}

func (p *Page) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

func (p *Page) Has(selector string) (bool, error) {
	if err := p.d.enter(StepHas, selector); err != nil {
		return false, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.selectors[selector], nil
}

func (p *Page) Click(selector string) error {
	p.mu.Lock()
	present := p.selectors[selector]
	p.mu.Unlock()
	if !present {
		_ = p.d.enter(StepClick, selector)
		return fmt.Errorf("%w: %s", browser.ErrNotFound, selector)
	}
	return p.step(StepClick, selector)
}

func (p *Page) Fill(selector, value string) error {
	p.mu.Lock()
	present := p.selectors[selector]
	p.mu.Unlock()
	if !present {
		_ = p.d.enter(StepFill, selector)
		return fmt.Errorf("%w: %s", browser.ErrNotFound, selector)
	}
	return p.step(StepFill, selector+"="+value)
}

func (p *Page) Press(key string) error { return p.step(StepPress, key) }

func (p *Page) Eval(js string) (string, error) {
	if err := p.step(StepEval, ""); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.evals[js], nil
}

func (p *Page) Close() error { return p.d.enter(StepClosePage, "") }
