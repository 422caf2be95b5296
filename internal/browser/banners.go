package browser

import "github.com/go-rod/rod"

// consentSelectors match the containers of widespread consent managers.
var consentSelectors = []string{
	"#onetrust-banner-sdk",
	"#onetrust-consent-sdk",
	"#CybotCookiebotDialog",
	"#didomi-host",
	"#usercentrics-root",
	"#truste-consent-track",
	".qc-cmp2-container",
	".fc-consent-root",
	".cc-window",
	".cookie-banner",
	"#cookie-banner",
	"#cookie-notice",
	"[aria-label*='cookie' i]",
	"[id*='cookie' i][class*='banner' i]",
}

const hideBannersJS = `(selectors) => {
	let hidden = 0;
	for (const sel of selectors) {
		let nodes = [];
		try { nodes = document.querySelectorAll(sel); } catch (e) { continue; }
		nodes.forEach((el) => {
			el.style.setProperty('display', 'none', 'important');
			hidden++;
		});
	}
	for (const el of [document.documentElement, document.body]) {
		if (el) { el.style.removeProperty('overflow'); }
	}
	return hidden;
}`

// HideCookieBanners hides consent dialogs and restores page scrolling. It is
// best effort: unknown banners stay visible.
func HideCookieBanners(page *rod.Page) error {
	_, err := page.Eval(hideBannersJS, consentSelectors)
	return err
}
