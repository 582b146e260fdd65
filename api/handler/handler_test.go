package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/browserfetch/browser"
	"github.com/use-agent/browserfetch/browser/browsertest"
	"github.com/use-agent/browserfetch/cache"
	"github.com/use-agent/browserfetch/cleaner"
	"github.com/use-agent/browserfetch/fetch"
	"github.com/use-agent/browserfetch/models"
	"github.com/use-agent/browserfetch/webhook"
)

const testPage = `<html lang="en"><head><title>Example Domain</title>
<meta name="description" content="An example page"></head>
<body><div id="main"><h1>Example</h1><p>Hello from the example page.</p></div><footer>foot</footer></body></html>`

type server struct {
	driver *browsertest.Driver
	engine *gin.Engine
	cache  *cache.Cache
	jobs   *JobStore
}

func newServer(t *testing.T, s Settings) *server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	d := browsertest.New("Example Domain", testPage)
	f := fetch.New(d, fetch.Config{MaxConcurrent: 5},
		fetch.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	cl := cleaner.NewCleaner()
	cc := cache.New(10)
	jobs := NewJobStore()
	t.Cleanup(cc.Close)
	t.Cleanup(jobs.Close)

	r := gin.New()
	r.GET("/health", Health(f, time.Now()))
	r.POST("/fetch", Fetch(f, cl, cc, s))
	r.POST("/fetch/async", PostFetchAsync(f, cl, jobs, s))
	r.GET("/fetch/:id", GetFetchJob(jobs))
	return &server{driver: d, engine: r, cache: cc, jobs: jobs}
}

func (s *server) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func TestFetch_HTML(t *testing.T) {
	s := newServer(t, Settings{})

	w := s.do(http.MethodPost, "/fetch", map[string]any{"url": "https://example.com"})
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[models.FetchResponse](t, w)
	assert.True(t, resp.Success)
	assert.Equal(t, testPage, resp.Content)
	assert.Equal(t, "Example Domain", resp.Metadata.Title)
	assert.Equal(t, "An example page", resp.Metadata.Description)
	assert.Equal(t, "en", resp.Metadata.Language)
	assert.Equal(t, "https://example.com", resp.Metadata.SourceURL)
	assert.Empty(t, resp.CacheStatus)
}

func TestFetch_SelectorAndFormats(t *testing.T) {
	s := newServer(t, Settings{})

	w := s.do(http.MethodPost, "/fetch", map[string]any{
		"url": "https://example.com", "css_selector": "#main", "output_format": "text",
	})
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[models.FetchResponse](t, w)
	assert.Contains(t, resp.Content, "Hello from the example page.")
	assert.NotContains(t, resp.Content, "foot")

	w = s.do(http.MethodPost, "/fetch", map[string]any{"url": "https://example.com", "output_format": "markdown"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, decode[models.FetchResponse](t, w).Content, "Example")
}

func TestFetch_BadBody(t *testing.T) {
	s := newServer(t, Settings{})

	tests := []struct {
		name string
		body any
	}{
		{"missing url", map[string]any{}},
		{"bad url", map[string]any{"url": "not a url"}},
		{"bad format", map[string]any{"url": "https://example.com", "output_format": "pdf"}},
		{"timeout too large", map[string]any{"url": "https://example.com", "timeout": 500}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(http.MethodPost, "/fetch", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			resp := decode[models.FetchResponse](t, w)
			require.NotNil(t, resp.Error)
			assert.Equal(t, models.ErrCodeInvalidInput, resp.Error.Code)
		})
	}
	assert.Empty(t, s.driver.Launches())
}

func TestFetch_InvalidSelector(t *testing.T) {
	s := newServer(t, Settings{})
	w := s.do(http.MethodPost, "/fetch", map[string]any{"url": "https://example.com", "css_selector": "div["})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestFetch_AbsentIsBadGateway(t *testing.T) {
	s := newServer(t, Settings{})
	s.driver.Fail(browsertest.StepGoto, errors.New("net::ERR_NAME_NOT_RESOLVED"))

	w := s.do(http.MethodPost, "/fetch", map[string]any{"url": "https://nowhere.invalid"})
	assert.Equal(t, http.StatusBadGateway, w.Code)
	resp := decode[models.FetchResponse](t, w)
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, models.ErrCodeFetchFailed, resp.Error.Code)
}

func TestFetch_Cache(t *testing.T) {
	s := newServer(t, Settings{})
	body := map[string]any{"url": "https://example.com", "max_age": 60_000}

	first := decode[models.FetchResponse](t, s.do(http.MethodPost, "/fetch", body))
	assert.Equal(t, "miss", first.CacheStatus)

	second := decode[models.FetchResponse](t, s.do(http.MethodPost, "/fetch", body))
	assert.Equal(t, "hit", second.CacheStatus)
	assert.Equal(t, first.Content, second.Content)
	assert.Len(t, s.driver.Launches(), 1)

	cached, ok := s.cache.Get(responseKey(&models.FetchRequest{URL: "https://example.com", OutputFormat: "html"}, Settings{}), 60_000)
	require.True(t, ok)
	assert.Empty(t, cached.CacheStatus)
}

// cookieEcho renders the Cookie header it was given into the page.
type cookieEcho struct {
	Fetcher
	calls int
}

func (c *cookieEcho) FetchHTML(_ context.Context, _ string, opts ...fetch.Option) (string, bool) {
	c.calls++
	var o fetch.Options
	for _, opt := range opts {
		opt(&o)
	}
	return "<html><body>account of " + o.Cookies + "</body></html>", true
}

func TestFetch_CacheIsPerIdentity(t *testing.T) {
	gin.SetMode(gin.TestMode)
	echo := &cookieEcho{}
	cc := cache.New(10)
	t.Cleanup(cc.Close)
	r := gin.New()
	r.POST("/fetch", Fetch(echo, cleaner.NewCleaner(), cc, Settings{}))
	s := &server{engine: r}

	post := func(body map[string]any) models.FetchResponse {
		return decode[models.FetchResponse](t, s.do(http.MethodPost, "/fetch", body))
	}
	base := map[string]any{"url": "https://example.com/account", "max_age": 60_000}
	with := func(k string, v any) map[string]any {
		m := map[string]any{k: v}
		for bk, bv := range base {
			m[bk] = bv
		}
		return m
	}

	alice := post(with("cookies", "sid=alice"))
	bob := post(with("cookies", "sid=bob"))
	assert.Equal(t, "miss", bob.CacheStatus)
	assert.Contains(t, alice.Content, "sid=alice")
	assert.Contains(t, bob.Content, "sid=bob")
	assert.NotContains(t, bob.Content, "sid=alice")

	again := post(with("cookies", "sid=alice"))
	assert.Equal(t, "hit", again.CacheStatus)
	assert.Contains(t, again.Content, "sid=alice")

	assert.Equal(t, "miss", post(with("user_agent", "agent/2")).CacheStatus)
	assert.Equal(t, "miss", post(with("proxy", map[string]any{"server": "http://p:1", "username": "u"})).CacheStatus)
	assert.Equal(t, 4, echo.calls)
}

func TestFetch_RequestOptionsReachBrowser(t *testing.T) {
	s := newServer(t, Settings{DefaultProxy: "http://proxy:3128", MaxTimeout: 60 * time.Second})

	w := s.do(http.MethodPost, "/fetch", map[string]any{
		"url": "https://example.com", "cookies": "sid=1", "user_agent": "agent/1",
		"headless": false, "timeout": 90,
	})
	require.Equal(t, http.StatusOK, w.Code)

	require.Len(t, s.driver.Contexts(), 1)
	ctxOpts := s.driver.Contexts()[0]
	assert.Equal(t, "agent/1", ctxOpts.UserAgent)
	require.NotNil(t, ctxOpts.Proxy)
	assert.Equal(t, "http://proxy:3128", ctxOpts.Proxy.Server)
	assert.Equal(t, []browsertest.Launch{{Engine: browser.Chromium, Headless: false}}, s.driver.Launches())
	assert.Contains(t, s.driver.Calls(), "page.idle 1m0s")
	require.Len(t, s.driver.Headers(), 1)
	assert.Equal(t, "sid=1", s.driver.Headers()[0].Get("Cookie"))
}

func TestFetch_RequestProxyOverridesDefault(t *testing.T) {
	s := newServer(t, Settings{DefaultProxy: "http://proxy:3128"})

	w := s.do(http.MethodPost, "/fetch", map[string]any{
		"url":   "https://example.com",
		"proxy": map[string]any{"server": "socks5://10.0.0.1:1080", "username": "u", "password": "p"},
	})
	require.Equal(t, http.StatusOK, w.Code)
	p := s.driver.Contexts()[0].Proxy
	require.NotNil(t, p)
	assert.Equal(t, browser.Proxy{Server: "socks5://10.0.0.1:1080", Username: "u", Password: "p"}, *p)
}

func TestFetchAsync_CompletesAndNotifies(t *testing.T) {
	events := make(chan webhook.Event, 1)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var ev webhook.Event
		_ = json.NewDecoder(r.Body).Decode(&ev)
		events <- ev
	}))
	defer hook.Close()

	s := newServer(t, Settings{})
	w := s.do(http.MethodPost, "/fetch/async", map[string]any{
		"url": "https://example.com", "output_format": "text", "webhook_url": hook.URL,
	})
	require.Equal(t, http.StatusAccepted, w.Code)
	accepted := decode[models.AsyncFetchResponse](t, w)
	assert.NotEmpty(t, accepted.ID)
	assert.Equal(t, models.JobProcessing, accepted.Status)

	var job models.AsyncFetchResponse
	require.Eventually(t, func() bool {
		job = decode[models.AsyncFetchResponse](t, s.do(http.MethodGet, "/fetch/"+accepted.ID, nil))
		return job.Status != models.JobProcessing
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, models.JobCompleted, job.Status)
	require.NotNil(t, job.Result)
	assert.Contains(t, job.Result.Content, "Hello from the example page.")

	select {
	case ev := <-events:
		assert.Equal(t, webhook.EventFetchCompleted, ev.Type)
		assert.Equal(t, accepted.ID, ev.JobID)
	case <-time.After(5 * time.Second):
		t.Fatal("webhook not delivered")
	}
}

func TestFetchAsync_Failure(t *testing.T) {
	s := newServer(t, Settings{})
	s.driver.Fail(browsertest.StepLaunch, errors.New("no browser"))

	accepted := decode[models.AsyncFetchResponse](t, s.do(http.MethodPost, "/fetch/async", map[string]any{"url": "https://example.com"}))

	var job models.AsyncFetchResponse
	require.Eventually(t, func() bool {
		var ok bool
		job, ok = s.jobs.Get(accepted.ID)
		return ok && job.Status != models.JobProcessing
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, models.JobFailed, job.Status)
	require.NotNil(t, job.Error)
	assert.Equal(t, models.ErrCodeFetchFailed, job.Error.Code)
}

func TestGetFetchJob_NotFound(t *testing.T) {
	s := newServer(t, Settings{})
	w := s.do(http.MethodGet, "/fetch/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealth(t *testing.T) {
	s := newServer(t, Settings{})
	w := s.do(http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[models.HealthResponse](t, w)
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, Version, resp.Version)
	assert.Equal(t, models.BrowserInfo{Driver: "fake", Engine: "chromium", MaxConcurrent: 5}, resp.Browser)
}
