package challenge

import (
	"strings"

	"github.com/use-agent/browserfetch/browser"
)

// Title fragments (lower-case) shown while an interstitial is running.
var challengeTitles = []string{
	"just a moment",
	"checking your browser",
	"ddos-guard",
	"please wait",
	"attention required",
}

// Elements present only on interstitial pages.
var challengeSelectors = []string{
	"#cf-challenge-running",
	".ray_id",
	"#turnstile-wrapper",
	"#cf-wrapper",
	"#challenge-running",
	"#challenge-stage",
	"#cf-spinner-please-wait",
	"#cf-spinner-redirecting",
}

// Body fragments of a hard block. Matched together with "cloudflare".
var accessDeniedMarkers = []string{
	"access denied",
	"error code: 1020",
	"you have been blocked",
	"sorry, you have been blocked",
}

const turnstileSelector = "#turnstile-wrapper"

// Detect classifies the current page. The title is checked first, then the
// selector list; a page showing either is inspected further for a block page
// or a Turnstile widget. Image captchas are reported only when a Recognizer
// and captcha selectors are configured.
func (s *Solver) Detect(page browser.Page) (Kind, error) {
	title, err := page.Title()
	if err != nil {
		return KindNone, err
	}
	inTitle := titleIsChallenge(title)

	selector, err := firstPresent(page, challengeSelectors)
	if err != nil {
		return KindNone, err
	}

	if inTitle || selector != "" {
		html, err := page.Content()
		if err != nil {
			s.logger.Debug("challenge page content unreadable, skipping block-page check", "error", err)
		}
		lower := strings.ToLower(html)
		if isAccessDenied(lower) {
			return KindAccessDenied, nil
		}
		if selector == turnstileSelector || strings.Contains(lower, "cf-turnstile") {
			return KindTurnstile, nil
		}
		return KindJavaScript, nil
	}

	if s.captchaEnabled() {
		has, err := page.Has(s.cfg.Captcha.ImageSelector)
		if err != nil {
			return KindNone, err
		}
		if has {
			return KindImageCaptcha, nil
		}
	}
	return KindNone, nil
}

func titleIsChallenge(title string) bool {
	lower := strings.ToLower(title)
	for _, t := range challengeTitles {
		if strings.Contains(lower, t) {
			return true
		}
	}
	return false
}

func isAccessDenied(lowerHTML string) bool {
	if !strings.Contains(lowerHTML, "cloudflare") {
		return false
	}
	for _, m := range accessDeniedMarkers {
		if strings.Contains(lowerHTML, m) {
			return true
		}
	}
	return false
}

func firstPresent(page browser.Page, selectors []string) (string, error) {
	for _, sel := range selectors {
		has, err := page.Has(sel)
		if err != nil {
			return "", err
		}
		if has {
			return sel, nil
		}
	}
	return "", nil
}
