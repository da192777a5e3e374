// File: internal/browser/chrome.go
package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/kzhdev5/tbank-bridge/internal/config"
)

// ChromeDriver drives a local Chrome instance over CDP. It maintains two
// nested lifetimes: the browser process (allocator + browser context) and a
// single page (tab) within it.
type ChromeDriver struct {
	cfg    config.BrowserConfig
	logger *zap.Logger

	mu            sync.Mutex
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	pageCtx       context.Context
	pageCancel    context.CancelFunc
}

var _ Driver = (*ChromeDriver)(nil)

func NewChromeDriver(cfg config.BrowserConfig, logger *zap.Logger) *ChromeDriver {
	return &ChromeDriver{cfg: cfg, logger: logger.Named("chrome")}
}

// execOptions translates the browser config into chromedp allocator options.
func (d *ChromeDriver) execOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent(d.cfg.UserAgent),
		chromedp.UserDataDir(d.cfg.ProfileDir),
	)
	if d.cfg.Headless {
		opts = append(opts, chromedp.Headless)
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	for _, arg := range d.cfg.Args {
		if !strings.Contains(arg, "=") {
			if !strings.HasPrefix(arg, "--") {
				arg = "--" + arg
			}
			opts = append(opts, chromedp.Flag(strings.TrimPrefix(arg, "--"), true))
			continue
		}
		parts := strings.SplitN(strings.TrimPrefix(arg, "--"), "=", 2)
		opts = append(opts, chromedp.Flag(parts[0], parts[1]))
	}
	return opts
}

// Launch starts the Chrome process. It is a no-op while the browser is
// already connected.
func (d *ChromeDriver) Launch(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.browserCtx != nil && d.browserCtx.Err() == nil {
		return nil
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), d.execOptions()...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// The first Run starts the process and attaches to the initial tab.
	launchCtx, cancel := CombineContext(browserCtx, ctx)
	err := chromedp.Run(launchCtx)
	cancel()
	if err != nil {
		browserCancel()
		allocCancel()
		return fmt.Errorf("failed to launch chrome: %w", err)
	}

	d.allocCancel = allocCancel
	d.browserCtx = browserCtx
	d.browserCancel = browserCancel
	d.logger.Info("Chrome launched.",
		zap.Bool("headless", d.cfg.Headless),
		zap.String("profile_dir", d.cfg.ProfileDir))
	return nil
}

func (d *ChromeDriver) Connected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.browserCtx != nil && d.browserCtx.Err() == nil
}

func (d *ChromeDriver) PageOpen() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pageCtx != nil && d.pageCtx.Err() == nil
}

// NewPage opens a tab in the running browser, routes downloads into the
// configured directory and restores cookies from the given state.
func (d *ChromeDriver) NewPage(ctx context.Context, state *StorageState) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.browserCtx == nil || d.browserCtx.Err() != nil {
		return fmt.Errorf("cannot open page: browser is not running")
	}
	if d.pageCtx != nil && d.pageCtx.Err() == nil {
		return nil
	}

	pageCtx, pageCancel := chromedp.NewContext(d.browserCtx)

	tasks := chromedp.Tasks{
		cdpbrowser.SetDownloadBehavior(cdpbrowser.SetDownloadBehaviorBehaviorAllow).
			WithDownloadPath(d.cfg.DownloadDir).
			WithEventsEnabled(true),
	}
	if state != nil && len(state.Cookies) > 0 {
		tasks = append(tasks, restoreCookiesAction(state.Cookies))
	}

	runCtx, cancel := CombineContext(pageCtx, ctx)
	err := chromedp.Run(runCtx, tasks)
	cancel()
	if err != nil {
		pageCancel()
		return fmt.Errorf("failed to open page: %w", err)
	}

	d.pageCtx = pageCtx
	d.pageCancel = pageCancel
	d.logger.Debug("Page opened.", zap.Bool("restored_state", state != nil))
	return nil
}

func restoreCookiesAction(cookies []Cookie) chromedp.Action {
	return chromedp.ActionFunc(func(c context.Context) error {
		params := make([]*network.CookieParam, 0, len(cookies))
		for _, ck := range cookies {
			p := &network.CookieParam{
				Name:     ck.Name,
				Value:    ck.Value,
				Domain:   ck.Domain,
				Path:     ck.Path,
				HTTPOnly: ck.HTTPOnly,
				Secure:   ck.Secure,
			}
			if ck.Expires > 0 {
				exp := cdp.TimeSinceEpoch(time.Unix(int64(ck.Expires), 0))
				p.Expires = &exp
			}
			if ck.SameSite != "" {
				p.SameSite = network.CookieSameSite(ck.SameSite)
			}
			params = append(params, p)
		}
		return network.SetCookies(params).Do(c)
	})
}

// CaptureStorage snapshots cookies via CDP and localStorage via JS evaluation.
func (d *ChromeDriver) CaptureStorage(ctx context.Context) (*StorageState, error) {
	state := &StorageState{LocalStorage: map[string]string{}}

	err := d.runActions(ctx, chromedp.ActionFunc(func(c context.Context) error {
		cookies, err := network.GetCookies().Do(c)
		if err != nil {
			return fmt.Errorf("failed to get cookies: %w", err)
		}
		for _, ck := range cookies {
			state.Cookies = append(state.Cookies, Cookie{
				Name:     ck.Name,
				Value:    ck.Value,
				Domain:   ck.Domain,
				Path:     ck.Path,
				Expires:  ck.Expires,
				HTTPOnly: ck.HTTPOnly,
				Secure:   ck.Secure,
				SameSite: ck.SameSite.String(),
			})
		}
		return nil
	}), chromedp.Evaluate(`(function() {
        let items = {};
        try {
            for (let i = 0; i < localStorage.length; i++) {
                const k = localStorage.key(i);
                if (k) { items[k] = localStorage.getItem(k); }
            }
        } catch (e) { /* storage disabled */ }
        return items;
    })()`, &state.LocalStorage))
	if err != nil {
		return nil, err
	}
	return state, nil
}

// ClosePage closes the tab, leaving the browser process running.
func (d *ChromeDriver) ClosePage(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.pageCancel != nil {
		d.pageCancel()
		d.pageCtx = nil
		d.pageCancel = nil
		d.logger.Debug("Page closed.")
	}
	return nil
}

// Shutdown tears down the page, the browser process and the allocator.
func (d *ChromeDriver) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.pageCancel != nil {
		d.pageCancel()
		d.pageCtx = nil
		d.pageCancel = nil
	}
	if d.browserCancel != nil {
		d.browserCancel()
		d.browserCtx = nil
		d.browserCancel = nil
	}
	if d.allocCancel != nil {
		d.allocCancel()
		d.allocCancel = nil
	}
	d.logger.Info("Chrome shut down.")
	return nil
}

func (d *ChromeDriver) Navigate(ctx context.Context, url string) error {
	loadCtx := ctx
	cancel := context.CancelFunc(func() {})
	if d.cfg.LoadTimeout > 0 {
		loadCtx, cancel = context.WithTimeout(ctx, d.cfg.LoadTimeout)
	}
	defer cancel()
	return d.runActions(loadCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

func (d *ChromeDriver) Location(ctx context.Context) (string, error) {
	var url string
	err := d.runActions(ctx, chromedp.Location(&url))
	return url, err
}

func (d *ChromeDriver) Title(ctx context.Context) (string, error) {
	var title string
	err := d.runActions(ctx, chromedp.Title(&title))
	return title, err
}

func (d *ChromeDriver) Content(ctx context.Context) (string, error) {
	var html string
	err := d.runActions(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, err
}

// queryOpt picks the chromedp query strategy: CSS by default, full-text
// search for XPath selectors (the export menu item is only reachable that
// way).
func queryOpt(selector string) chromedp.QueryOption {
	if strings.HasPrefix(selector, "/") || strings.HasPrefix(selector, "(") {
		return chromedp.BySearch
	}
	return chromedp.ByQuery
}

func (d *ChromeDriver) Fill(ctx context.Context, selector, value string, timeout time.Duration) error {
	by := queryOpt(selector)
	return d.runElementActions(ctx, timeout,
		chromedp.WaitVisible(selector, by),
		chromedp.ScrollIntoView(selector, by),
		chromedp.Clear(selector, by),
		chromedp.SendKeys(selector, value, by),
	)
}

func (d *ChromeDriver) Click(ctx context.Context, selector string, timeout time.Duration) error {
	by := queryOpt(selector)
	return d.runElementActions(ctx, timeout,
		chromedp.WaitVisible(selector, by),
		chromedp.ScrollIntoView(selector, by),
		chromedp.Click(selector, by),
	)
}

func (d *ChromeDriver) Text(ctx context.Context, selector string, timeout time.Duration) (string, error) {
	var text string
	by := queryOpt(selector)
	err := d.runElementActions(ctx, timeout,
		chromedp.WaitVisible(selector, by),
		chromedp.Text(selector, &text, by),
	)
	return text, err
}

func (d *ChromeDriver) runElementActions(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	opCtx := ctx
	cancel := context.CancelFunc(func() {})
	if timeout > 0 {
		opCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()
	return d.runActions(opCtx, actions...)
}

// runActions executes chromedp actions against the open page, respecting both
// the page lifetime and the caller's context.
func (d *ChromeDriver) runActions(ctx context.Context, actions ...chromedp.Action) error {
	d.mu.Lock()
	pageCtx := d.pageCtx
	d.mu.Unlock()

	if pageCtx == nil || pageCtx.Err() != nil {
		return fmt.Errorf("no page is open")
	}
	runCtx, cancel := CombineContext(pageCtx, ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}
