// Package ocr is a client for an OCR service that reads simple text captchas.
// The service accepts {"base64_img": ...} on POST /captcha/base64 and answers
// {"result": "..."}.
package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/use-agent/browserfetch/models"
)

// ErrNoImage is returned when a Request carries neither an image URL nor
// base64 data.
var ErrNoImage = errors.New("ocr: no image given")

const (
	captchaPath   = "/captcha/base64"
	maxImageBytes = 5 << 20
)

// Request describes a captcha image. ImageURL wins over ImageB64; Cookie and
// UserAgent are sent with the image download.
type Request struct {
	ImageURL  string
	ImageB64  string
	Cookie    string
	UserAgent string
}

// Client talks to the OCR service.
type Client struct {
	host   string
	api    *http.Client
	images *http.Client
	logger *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the client used for the OCR service itself.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.api = hc }
}

// WithImageClient sets the client used to download captcha images.
func WithImageClient(hc *http.Client) Option {
	return func(c *Client) { c.images = hc }
}

// WithTimeout sets the per-request timeout of both default clients.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.api.Timeout = d
		c.images.Timeout = d
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a Client for the service at host (e.g. "http://ocr:9300").
func New(host string, opts ...Option) *Client {
	images := &http.Client{Timeout: 10 * time.Second}
	c := &Client{
		host:   strings.TrimRight(host, "/"),
		api:    &http.Client{Timeout: 10 * time.Second},
		images: images,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.images == images {
		images.Transport = newImageTransport(&chromeH1Spec, chromeSpecErr, c.logger)
	}
	return c
}

// CaptchaText downloads the image when req.ImageURL is set, then asks the
// service to read it. An empty download yields "" without an error.
func (c *Client) CaptchaText(ctx context.Context, req Request) (string, error) {
	b64 := req.ImageB64
	if req.ImageURL != "" {
		img, err := c.download(ctx, req)
		if err != nil {
			return "", models.NewFetchError(models.ErrCodeOCR, "download captcha image", err)
		}
		if len(img) == 0 {
			c.logger.Debug("captcha image empty", "url", req.ImageURL)
			return "", nil
		}
		b64 = base64.StdEncoding.EncodeToString(img)
	}
	if b64 == "" {
		return "", ErrNoImage
	}

	text, err := c.recognize(ctx, b64)
	if err != nil {
		return "", models.NewFetchError(models.ErrCodeOCR, "recognize captcha", err)
	}
	return text, nil
}

func (c *Client) download(ctx context.Context, req Request) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.ImageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Accept", "image/avif,image/webp,image/apng,image/*,*/*;q=0.8")
	if req.UserAgent != "" {
		httpReq.Header.Set("User-Agent", req.UserAgent)
	}
	if req.Cookie != "" {
		httpReq.Header.Set("Cookie", req.Cookie)
	}

	resp, err := c.images.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("image status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
}

func (c *Client) recognize(ctx context.Context, b64 string) (string, error) {
	body, err := json.Marshal(map[string]string{"base64_img": b64})
	if err != nil {
		return "", err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+captchaPath, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.api.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("ocr service status %d", resp.StatusCode)
	}

	var out struct {
		Result string `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return out.Result, nil
}
