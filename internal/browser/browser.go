package browser

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/oasis4/Crawly/internal/ratelimit"
)

type Options struct {
	Headless        bool
	UserAgent       string
	ViewportWidth   int
	ViewportHeight  int
	AcceptLanguage  string
	TimezoneID      string
	Locale          string
	ProxyServer     string
	WaitTimeout     time.Duration
	PageLoadTimeout time.Duration
	ScrollPause     time.Duration
	MinDelay        time.Duration
	MaxDelay        time.Duration
}

func DefaultOptions() *Options {
	return &Options{
		Headless:        true,
		UserAgent:       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		ViewportWidth:   1920,
		ViewportHeight:  1080,
		AcceptLanguage:  "de-DE,de;q=0.9,en;q=0.8",
		TimezoneID:      "Europe/Berlin",
		Locale:          "de-DE",
		WaitTimeout:     30 * time.Second,
		PageLoadTimeout: 60 * time.Second,
		ScrollPause:     2 * time.Second,
		MinDelay:        1 * time.Second,
		MaxDelay:        3 * time.Second,
	}
}

// Navigator owns one browser session: a playwright driver, a Chromium
// instance, one context and one page. Sessions are single-use; every
// Open must be paired with Close on all exit paths.
type Navigator struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	page    playwright.Page
	limiter ratelimit.RateLimiter
	opts    *Options
	logger  *slog.Logger
}

// Open launches the browser with a realistic viewport and user agent and
// disables the automation fingerprints Chromium exposes by default.
func Open(opts *Options) (*Navigator, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: &opts.Headless,
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--disable-gpu",
			"--no-sandbox",
		},
	}

	if opts.ProxyServer != "" {
		launchOpts.Proxy = &playwright.Proxy{
			Server: opts.ProxyServer,
		}
	}

	browser, err := pw.Chromium.Launch(launchOpts)
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	contextOpts := playwright.BrowserNewContextOptions{
		UserAgent:         &opts.UserAgent,
		AcceptDownloads:   playwright.Bool(false),
		JavaScriptEnabled: playwright.Bool(true),
		Locale:            &opts.Locale,
		TimezoneId:        &opts.TimezoneID,
		Viewport: &playwright.Size{
			Width:  opts.ViewportWidth,
			Height: opts.ViewportHeight,
		},
	}

	if opts.AcceptLanguage != "" {
		contextOpts.ExtraHttpHeaders = map[string]string{
			"Accept-Language": opts.AcceptLanguage,
		}
	}

	context, err := browser.NewContext(contextOpts)
	if err != nil {
		browser.Close()
		pw.Stop()
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	page, err := context.NewPage()
	if err != nil {
		context.Close()
		browser.Close()
		pw.Stop()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	page.SetDefaultTimeout(float64(opts.WaitTimeout.Milliseconds()))

	return &Navigator{
		pw:      pw,
		browser: browser,
		context: context,
		page:    page,
		limiter: ratelimit.NewSimpleRateLimiter(opts.MinDelay, opts.MaxDelay),
		opts:    opts,
		logger:  slog.Default().With("component", "browser"),
	}, nil
}

// Navigate loads the target URL. Readiness is layered: minimal DOM first,
// then the full load event, then bare connection commit, each with its own
// timeout; navigation fails only if all three layers fail. Afterwards the
// consent banner is dismissed if one is present.
func (n *Navigator) Navigate(target string) error {
	n.logger.Info("navigating", "url", target)

	n.presetConsentCookie(target)

	timeout := playwright.Float(float64(n.opts.PageLoadTimeout.Milliseconds()))
	states := []*playwright.WaitUntilState{
		playwright.WaitUntilStateDomcontentloaded,
		playwright.WaitUntilStateLoad,
		playwright.WaitUntilStateCommit,
	}

	var lastErr error
	for _, state := range states {
		_, err := n.page.Goto(target, playwright.PageGotoOptions{
			WaitUntil: state,
			Timeout:   timeout,
		})
		if err == nil {
			lastErr = nil
			break
		}
		n.logger.Warn("navigation layer failed", "wait_until", *state, "error", err)
		lastErr = err
	}
	if lastErr != nil {
		return fmt.Errorf("navigation failed for %s: %w", target, lastErr)
	}

	// Let late scripts settle before poking at the consent layer.
	time.Sleep(3 * time.Second)

	n.handleCookieConsent()

	n.logger.Info("navigation successful", "url", target)
	return nil
}

// presetConsentCookie marks the OneTrust banner as already answered so it
// never renders. Failure here is harmless; the click fallback still runs.
func (n *Navigator) presetConsentCookie(target string) {
	parsed, err := url.Parse(target)
	if err != nil || parsed.Host == "" {
		return
	}

	now := time.Now()
	expires := float64(now.AddDate(1, 0, 0).Unix())

	err = n.context.AddCookies([]playwright.OptionalCookie{{
		Name:    "OptanonAlertBoxClosed",
		Value:   now.UTC().Format(time.RFC3339),
		Domain:  playwright.String(parsed.Host),
		Path:    playwright.String("/"),
		Expires: playwright.Float(expires),
	}})
	if err != nil {
		n.logger.Debug("could not pre-set consent cookie", "error", err)
	}
}

// handleCookieConsent tries the known consent controls in order: accept via
// direct DOM click, reject via direct DOM click, then a simulated UI click.
// No banner found means nothing to do.
func (n *Navigator) handleCookieConsent() {
	time.Sleep(1 * time.Second)

	methods := []func() bool{
		func() bool { return n.evaluateClick("#onetrust-accept-btn-handler") },
		func() bool { return n.evaluateClick("#onetrust-reject-all-handler") },
		func() bool { return n.tryClickSelector("#onetrust-accept-btn-handler") },
	}

	for _, method := range methods {
		if method() {
			n.logger.Info("cookie consent dismissed")
			time.Sleep(2 * time.Second)
			return
		}
	}

	n.logger.Debug("no cookie consent banner found")
}

func (n *Navigator) evaluateClick(selector string) bool {
	result, err := n.page.Evaluate(fmt.Sprintf(`() => {
		const btn = document.querySelector('%s');
		if (btn) { btn.click(); return true; }
		return false;
	}`, selector))
	if err != nil {
		return false
	}
	clicked, ok := result.(bool)
	return ok && clicked
}

func (n *Navigator) tryClickSelector(selector string) bool {
	element, err := n.page.QuerySelector(selector)
	if err != nil || element == nil {
		return false
	}
	visible, err := element.IsVisible()
	if err != nil || !visible {
		return false
	}
	return element.Click() == nil
}

// ScrollToBottom steps down the page in fixed increments to trigger
// lazy-loaded content, then returns to the top.
func (n *Navigator) ScrollToBottom() error {
	heightRaw, err := n.page.Evaluate("document.body.scrollHeight")
	if err != nil {
		return fmt.Errorf("failed to read page height: %w", err)
	}

	height := 0
	switch v := heightRaw.(type) {
	case int:
		height = v
	case float64:
		height = int(v)
	}

	const scrollStep = 500
	for position := 0; position < height; position += scrollStep {
		if _, err := n.page.Evaluate(fmt.Sprintf("window.scrollTo(0, %d)", position)); err != nil {
			return fmt.Errorf("failed to scroll: %w", err)
		}
		time.Sleep(500 * time.Millisecond)
	}

	if _, err := n.page.Evaluate("window.scrollTo(0, 0)"); err != nil {
		return fmt.Errorf("failed to scroll back to top: %w", err)
	}
	time.Sleep(n.opts.ScrollPause)

	n.logger.Debug("page scrolled")
	return nil
}

// Click attempts a direct click on selector. When the element exists but is
// not interactable, the nearest clickable ancestor is resolved in-page and
// clicked instead.
func (n *Navigator) Click(selector string) error {
	element, err := n.page.QuerySelector(selector)
	if err != nil {
		return fmt.Errorf("failed to query %s: %w", selector, err)
	}
	if element == nil {
		return fmt.Errorf("element not found: %s", selector)
	}

	visible, err := element.IsVisible()
	if err == nil && !visible {
		result, err := n.page.Evaluate(fmt.Sprintf(`() => {
			const el = document.querySelector('%s');
			if (!el) return false;
			const clickable = el.closest('a, button, [role=button], .clickable');
			if (clickable) {
				clickable.click();
				return true;
			}
			el.click();
			return true;
		}`, selector))
		if err != nil {
			return fmt.Errorf("failed to click %s via script: %w", selector, err)
		}
		if clicked, ok := result.(bool); !ok || !clicked {
			return fmt.Errorf("element not clickable: %s", selector)
		}
		return nil
	}

	if err := element.Click(); err != nil {
		return fmt.Errorf("failed to click %s: %w", selector, err)
	}

	n.logger.Debug("clicked", "selector", selector)
	return nil
}

// HasNext reports whether selector currently matches anything on the page.
func (n *Navigator) HasNext(selector string) bool {
	element, err := n.page.QuerySelector(selector)
	return err == nil && element != nil
}

// Content returns the current page markup.
func (n *Navigator) Content() (string, error) {
	content, err := n.page.Content()
	if err != nil {
		return "", fmt.Errorf("failed to read page content: %w", err)
	}
	return content, nil
}

// Throttle sleeps a uniformly-random duration within the configured
// [min, max] interval.
func (n *Navigator) Throttle(ctx context.Context) error {
	return n.limiter.Wait(ctx)
}

// Close releases page, context, browser and driver. Safe to call once on
// any exit path.
func (n *Navigator) Close() error {
	var errs []error

	if n.page != nil {
		if err := n.page.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close page: %w", err))
		}
	}

	if n.context != nil {
		if err := n.context.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close context: %w", err))
		}
	}

	if n.browser != nil {
		if err := n.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
		}
	}

	if n.pw != nil {
		if err := n.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during close: %v", errs)
	}

	n.logger.Info("browser session closed")
	return nil
}
