package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/use-agent/browserfetch/api"
	"github.com/use-agent/browserfetch/api/handler"
	"github.com/use-agent/browserfetch/browser"
	"github.com/use-agent/browserfetch/cache"
	"github.com/use-agent/browserfetch/challenge"
	"github.com/use-agent/browserfetch/cleaner"
	"github.com/use-agent/browserfetch/config"
	"github.com/use-agent/browserfetch/fetch"
	"github.com/use-agent/browserfetch/ocr"
)

func main() {
	// ── 1. Load configuration ───────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// ── 2. Initialise structured logging ────────────────────────────
	initLogger(cfg.Log)
	slog.Info("browserfetch starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"driver", cfg.Browser.Driver,
		"engine", cfg.Browser.Engine,
		"maxConcurrent", cfg.Fetch.MaxConcurrent,
	)

	// ── 3. Browser driver and fetch helper ──────────────────────────
	driver, err := newDriver(cfg.Browser)
	if err != nil {
		slog.Error("failed to select browser driver", "error", err)
		os.Exit(1)
	}
	fetchCfg, err := fetchConfig(cfg)
	if err != nil {
		slog.Error("invalid fetch configuration", "error", err)
		os.Exit(1)
	}

	var opts []fetch.HelperOption
	if cfg.OCR.Host != "" {
		opts = append(opts, fetch.WithRecognizer(ocr.New(cfg.OCR.Host, ocr.WithTimeout(cfg.OCR.Timeout))))
		slog.Info("captcha OCR enabled", "host", cfg.OCR.Host)
	}
	helper := fetch.New(driver, fetchCfg, opts...)

	// ── 4. Cleaner, cache, job store ────────────────────────────────
	cl := cleaner.NewCleaner()
	cc := cache.New(cfg.Cache.MaxEntries)
	defer cc.Close()
	jobs := handler.NewJobStore()
	defer jobs.Close()

	// ── 5. Setup router ─────────────────────────────────────────────
	router := api.NewRouter(helper, cl, cc, jobs, cfg, time.Now())

	// ── 6. Start HTTP server ────────────────────────────────────────
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// ── 7. Graceful shutdown ────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig.String())

	// In-flight fetches hold their own browser; give them the idle budget.
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Fetch.MaxTimeout+5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}
	slog.Info("browserfetch stopped")
}

// newDriver picks the browser automation backend.
func newDriver(cfg config.BrowserConfig) (browser.Driver, error) {
	switch cfg.Driver {
	case "rod", "":
		return browser.NewRodDriver(browser.RodOptions{
			BrowserBin: cfg.BrowserBin,
			NoSandbox:  cfg.NoSandbox,
		}), nil
	case "playwright":
		return browser.NewPlaywrightDriver(browser.PlaywrightOptions{
			Install: cfg.InstallPlaywright,
		}), nil
	default:
		return nil, fmt.Errorf("unknown browser driver %q (want rod or playwright)", cfg.Driver)
	}
}

// fetchConfig maps the file/env configuration onto the helper's.
func fetchConfig(cfg *config.Config) (fetch.Config, error) {
	engine, err := browser.ParseEngine(cfg.Browser.Engine)
	if err != nil {
		return fetch.Config{}, err
	}
	return fetch.Config{
		Engine:        engine,
		Headless:      cfg.Browser.Headless,
		RunTimeout:    cfg.Fetch.RunTimeout,
		HTMLTimeout:   cfg.Fetch.HTMLTimeout,
		MaxConcurrent: cfg.Fetch.MaxConcurrent,
		Challenge: challenge.Config{
			MaxAttempts:  cfg.Challenge.MaxAttempts,
			PollInterval: cfg.Challenge.PollInterval,
			ReloadEvery:  cfg.Challenge.ReloadEvery,
			TabPresses:   cfg.Challenge.TabPresses,
			Captcha: challenge.CaptchaConfig{
				ImageSelector:  cfg.Challenge.CaptchaImage,
				InputSelector:  cfg.Challenge.CaptchaInput,
				SubmitSelector: cfg.Challenge.CaptchaSubmit,
				Timeout:        cfg.OCR.Timeout,
			},
		},
	}, nil
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	if cfg.Format == "text" {
		h = slog.NewTextHandler(os.Stdout, opts)
	} else {
		h = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(h))
}
