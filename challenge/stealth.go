package challenge

import (
	"fmt"

	"github.com/go-rod/stealth"

	"github.com/use-agent/browserfetch/browser"
)

// patchJS covers fingerprint surfaces checked by Cloudflare and DDoS-Guard
// that the stealth bundle leaves to the browser. It runs after stealth.JS.
const patchJS = `(() => {
	try {
		Object.defineProperty(navigator, "webdriver", { get: () => undefined, configurable: true });
		if (!navigator.languages || navigator.languages.length === 0) {
			Object.defineProperty(navigator, "languages", { get: () => ["en-US", "en"], configurable: true });
		}
		if (navigator.plugins && navigator.plugins.length === 0) {
			Object.defineProperty(navigator, "plugins", { get: () => [1, 2, 3, 4, 5], configurable: true });
		}
		if (!window.chrome) {
			window.chrome = { runtime: {}, app: { isInstalled: false } };
		}
	} catch (e) {}
})();`

// ApplyStealth registers the evasion scripts on page so they run before any
// page script on every navigation.
func ApplyStealth(page browser.Page) error {
	if err := page.AddInitScript(stealth.JS); err != nil {
		return fmt.Errorf("stealth script: %w", err)
	}
	if err := page.AddInitScript(patchJS); err != nil {
		return fmt.Errorf("stealth patch: %w", err)
	}
	return nil
}
