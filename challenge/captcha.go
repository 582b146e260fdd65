package challenge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/use-agent/browserfetch/browser"
	"github.com/use-agent/browserfetch/ocr"
)

const DefaultCaptchaTimeout = 15 * time.Second

// CaptchaConfig locates a site's image captcha form. The step is off unless
// ImageSelector and InputSelector are both set and a Recognizer is given.
type CaptchaConfig struct {
	ImageSelector  string        `yaml:"image_selector"`
	InputSelector  string        `yaml:"input_selector"`
	SubmitSelector string        `yaml:"submit_selector"` // empty: press Enter in the input
	Timeout        time.Duration `yaml:"timeout"`
}

// Recognizer turns a captcha image into text. *ocr.Client implements it.
type Recognizer interface {
	CaptchaText(ctx context.Context, req ocr.Request) (string, error)
}

func (s *Solver) captchaEnabled() bool {
	c := s.cfg.Captcha
	return s.recognizer != nil && c.ImageSelector != "" && c.InputSelector != ""
}

func (s *Solver) solveImageCaptcha(page browser.Page) error {
	c := s.cfg.Captcha

	src, err := page.Eval(imageSourceJS(c.ImageSelector))
	if err != nil {
		return fmt.Errorf("read captcha image: %w", err)
	}
	if src == "" {
		return errors.New("captcha image has no source")
	}

	var req ocr.Request
	if b64, ok := dataURLPayload(src); ok {
		req.ImageB64 = b64
	} else {
		// The image is usually bound to the session cookie.
		req.ImageURL = src
		req.Cookie, _ = page.Eval(`() => document.cookie`)
		req.UserAgent, _ = page.Eval(`() => navigator.userAgent`)
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.Timeout)
	defer cancel()
	text, err := s.recognizer.CaptchaText(ctx, req)
	if err != nil {
		return fmt.Errorf("recognize captcha: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return errors.New("captcha not recognized")
	}

	if err := page.Fill(c.InputSelector, text); err != nil {
		return fmt.Errorf("fill captcha: %w", err)
	}
	if c.SubmitSelector != "" {
		return page.Click(c.SubmitSelector)
	}
	return page.Press(browser.KeyEnter)
}

// imageSourceJS returns the image URL of the element matching selector, or a
// data URL for a canvas.
func imageSourceJS(selector string) string {
	quoted, _ := json.Marshal(selector)
	return fmt.Sprintf(`() => {
	const el = document.querySelector(%s);
	if (!el) return "";
	if (el.tagName === "CANVAS") return el.toDataURL("image/png");
	return el.currentSrc || el.src || "";
}`, quoted)
}

// dataURLPayload extracts the base64 payload of a data: URL.
func dataURLPayload(src string) (string, bool) {
	if !strings.HasPrefix(src, "data:") {
		return "", false
	}
	_, payload, ok := strings.Cut(src, ";base64,")
	return payload, ok
}
