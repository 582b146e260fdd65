package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/browserfetch/browser"
	"github.com/use-agent/browserfetch/cache"
	"github.com/use-agent/browserfetch/cleaner"
	"github.com/use-agent/browserfetch/fetch"
	"github.com/use-agent/browserfetch/models"
)

// Fetcher renders pages. *fetch.Helper implements it.
type Fetcher interface {
	FetchHTML(ctx context.Context, url string, opts ...fetch.Option) (string, bool)
	SubmitHTML(ctx context.Context, url string, opts ...fetch.Option) *fetch.Future[string]
	Engine() browser.Engine
	DriverName() string
	InFlight() int64
	MaxConcurrent() int
}

// Settings are server-wide request defaults.
type Settings struct {
	// DefaultProxy is used when a request names no proxy.
	DefaultProxy string

	// MaxTimeout caps the per-request idle timeout.
	MaxTimeout time.Duration
}

// Fetch returns a handler for POST /api/v1/fetch.
//
// Flow:
//  1. Parse & validate request, apply defaults.
//  2. Cache lookup when max_age is set.
//  3. Fetcher.FetchHTML  (records fetch_ms)
//  4. Cleaner.Clean      (records format_ms)
//  5. Cache store, fill Timing, return 200.
func Fetch(f Fetcher, cl *cleaner.Cleaner, cc *cache.Cache, s Settings) gin.HandlerFunc {
	return func(c *gin.Context) {
		totalStart := time.Now()

		var req models.FetchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, models.NewFetchError(models.ErrCodeInvalidInput, err.Error(), err), models.TimingInfo{})
			return
		}
		req.Defaults()

		cacheKey := responseKey(&req, s)
		if cc != nil && req.MaxAge > 0 {
			if cached, hit := cc.Get(cacheKey, req.MaxAge); hit {
				resp := *cached
				resp.CacheStatus = "hit"
				resp.Timing = models.TimingInfo{TotalMs: time.Since(totalStart).Milliseconds()}
				c.JSON(http.StatusOK, &resp)
				return
			}
		}

		resp, err := render(c.Request.Context(), f, cl, &req, s)
		if err != nil {
			respondError(c, err, models.TimingInfo{TotalMs: time.Since(totalStart).Milliseconds()})
			return
		}
		resp.Timing.TotalMs = time.Since(totalStart).Milliseconds()

		if cc != nil && req.MaxAge > 0 {
			cc.Set(cacheKey, resp)
			stored := *resp
			stored.CacheStatus = "miss"
			resp = &stored
		}

		c.JSON(http.StatusOK, resp)
	}
}

// responseKey covers every request field that changes what the browser
// sees, so a logged-in page fetched with one caller's cookies is never served
// to another.
func responseKey(req *models.FetchRequest, s Settings) string {
	proxyServer, proxyUser := s.DefaultProxy, ""
	if req.Proxy != nil {
		proxyServer, proxyUser = req.Proxy.Server, req.Proxy.Username
	}
	return cache.Key(req.URL, req.OutputFormat, req.CSSSelector,
		req.Cookies, req.UserAgent, proxyServer, proxyUser)
}

// render fetches req.URL and formats it. An absent fetch becomes
// FETCH_FAILED.
func render(ctx context.Context, f Fetcher, cl *cleaner.Cleaner, req *models.FetchRequest, s Settings) (*models.FetchResponse, error) {
	fetchStart := time.Now()
	html, ok := f.FetchHTML(ctx, req.URL, fetchOptions(req, s)...)
	fetchMs := time.Since(fetchStart).Milliseconds()
	if !ok {
		return nil, models.NewFetchError(models.ErrCodeFetchFailed, "could not fetch "+req.URL, nil)
	}
	return format(cl, html, req, fetchMs)
}

func format(cl *cleaner.Cleaner, html string, req *models.FetchRequest, fetchMs int64) (*models.FetchResponse, error) {
	formatStart := time.Now()
	content, meta, err := cl.Clean(html, req.URL, req.OutputFormat, req.CSSSelector)
	if err != nil {
		return nil, err
	}
	if meta.Title == "" {
		meta.Title = fetch.TitleFromHTML(html)
	}
	return &models.FetchResponse{
		Success:  true,
		Content:  content,
		Metadata: meta,
		Timing: models.TimingInfo{
			FetchMs:  fetchMs,
			FormatMs: time.Since(formatStart).Milliseconds(),
		},
	}, nil
}

// fetchOptions translates request fields into fetch options.
func fetchOptions(req *models.FetchRequest, s Settings) []fetch.Option {
	opts := []fetch.Option{
		fetch.WithCookies(req.Cookies),
		fetch.WithUserAgent(req.UserAgent),
	}

	switch {
	case req.Proxy != nil:
		opts = append(opts, fetch.WithProxy(&browser.Proxy{
			Server:   req.Proxy.Server,
			Username: req.Proxy.Username,
			Password: req.Proxy.Password,
			Bypass:   req.Proxy.Bypass,
		}))
	case s.DefaultProxy != "":
		opts = append(opts, fetch.WithProxy(&browser.Proxy{Server: s.DefaultProxy}))
	}

	if req.Headless != nil {
		opts = append(opts, fetch.WithHeadless(*req.Headless))
	}
	if req.Timeout > 0 {
		timeout := time.Duration(req.Timeout) * time.Second
		if s.MaxTimeout > 0 && timeout > s.MaxTimeout {
			timeout = s.MaxTimeout
		}
		opts = append(opts, fetch.WithTimeout(timeout))
	}
	return opts
}

// respondError maps a FetchError to the correct HTTP status code and writes
// a structured JSON error response.
func respondError(c *gin.Context, err error, timing models.TimingInfo) {
	var fetchErr *models.FetchError
	if !errors.As(err, &fetchErr) {
		fetchErr = models.NewFetchError(models.ErrCodeInternal, err.Error(), err)
	}

	c.JSON(statusFor(fetchErr), models.FetchResponse{
		Success: false,
		Error:   fetchErr.ToDetail(),
		Timing:  timing,
	})
}

// statusFor translates error codes to HTTP status codes.
func statusFor(e *models.FetchError) int {
	switch e.Code {
	case models.ErrCodeFetchFailed, models.ErrCodeNavigation:
		return http.StatusBadGateway // 502
	case models.ErrCodeNavigationTimeout:
		return http.StatusGatewayTimeout // 504
	case models.ErrCodeInvalidInput:
		return http.StatusBadRequest // 400
	case models.ErrCodeNotFound:
		return http.StatusNotFound // 404
	case models.ErrCodeRateLimited:
		return http.StatusTooManyRequests // 429
	case models.ErrCodeUnauthorized:
		return http.StatusUnauthorized // 401
	default:
		return http.StatusInternalServerError // 500
	}
}
