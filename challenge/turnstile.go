package challenge

import (
	"fmt"
	"time"

	"github.com/use-agent/browserfetch/browser"
)

const (
	tabDelay    = 200 * time.Millisecond
	settleDelay = time.Second
)

// clickVerifyJS clicks the first button whose text mentions "Verify".
// Selector engines differ between drivers, so the lookup runs in the page.
const clickVerifyJS = `() => {
	const btn = Array.from(document.querySelectorAll("button"))
		.find(b => (b.textContent || "").includes("Verify"));
	if (!btn) return "";
	btn.click();
	return "clicked";
}`

// solveTurnstile focuses the widget checkbox by tabbing through the page and
// toggles it with Space, which does not require reaching into the
// cross-origin iframe.
func (s *Solver) solveTurnstile(page browser.Page) error {
	for i := 0; i < s.cfg.TabPresses; i++ {
		if err := page.Press(browser.KeyTab); err != nil {
			s.logger.Debug("tab press failed", "tab", i, "error", err)
			continue
		}
		s.sleep(tabDelay)
	}
	if err := page.Press(browser.KeySpace); err != nil {
		return fmt.Errorf("press space: %w", err)
	}
	s.sleep(settleDelay)

	if res, err := page.Eval(clickVerifyJS); err != nil {
		s.logger.Debug("verify button lookup failed", "error", err)
	} else if res != "" {
		s.logger.Debug("clicked verify button")
	}
	return nil
}
