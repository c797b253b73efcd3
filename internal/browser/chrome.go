package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/arachne/internal/common"
)

const navigationTimeout = 30 * time.Second

// ChromeDriver drives a Chromium-family browser over the DevTools protocol.
// A driver instance is owned by exactly one workflow run.
type ChromeDriver struct {
	browserType string
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	waitTimeout time.Duration
	logger      arbor.ILogger

	// current iframe scope; nil means top document
	frame *cdp.Node

	mu        sync.Mutex
	alertOpen bool
	alertText string
	closed    bool
}

// NewChromeDriver launches a browser instance and verifies it responds
func NewChromeDriver(logger arbor.ILogger, config *common.BrowserConfig, browserType string) (*ChromeDriver, error) {
	allocatorOpts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", config.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", config.NoSandbox),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if config.ExecPath != "" {
		allocatorOpts = append(allocatorOpts, chromedp.ExecPath(config.ExecPath))
	}
	if config.UserAgent != "" {
		allocatorOpts = append(allocatorOpts, chromedp.UserAgent(config.UserAgent))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocatorOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	d := &ChromeDriver{
		browserType: browserType,
		ctx:         browserCtx,
		cancel:      browserCancel,
		allocCancel: allocCancel,
		waitTimeout: time.Duration(config.ImplicitWaitSecs) * time.Second,
		logger:      logger,
	}

	// Dialog events are recorded here and answered by AcceptAlert/DismissAlert
	chromedp.ListenTarget(browserCtx, func(ev interface{}) {
		if e, ok := ev.(*page.EventJavascriptDialogOpening); ok {
			d.mu.Lock()
			d.alertOpen = true
			d.alertText = e.Message
			d.mu.Unlock()
		}
	})

	// Startup test; a missing binary surfaces here rather than mid-run
	testCtx, testCancel := context.WithTimeout(browserCtx, navigationTimeout)
	defer testCancel()
	if err := chromedp.Run(testCtx, chromedp.Navigate("about:blank")); err != nil {
		browserCancel()
		allocCancel()
		return nil, &common.DriverError{Op: "launch " + browserType, Cause: err}
	}

	logger.Debug().Str("browser", browserType).Bool("headless", config.Headless).Msg("Browser launched")
	return d, nil
}

// Type returns the browser identifier this driver was acquired for
func (d *ChromeDriver) Type() string { return d.browserType }

// queryOpts scopes element queries to the current frame
func (d *ChromeDriver) queryOpts() []chromedp.QueryOption {
	opts := []chromedp.QueryOption{chromedp.ByQuery}
	if d.frame != nil {
		opts = append(opts, chromedp.FromNode(d.frame))
	}
	return opts
}

// run executes tasks against the browser with the given timeout; zero means
// no timeout beyond the browser context's own lifetime
func (d *ChromeDriver) run(timeout time.Duration, tasks ...chromedp.Action) error {
	ctx := d.ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return chromedp.Run(ctx, tasks...)
}

// Get navigates to a URL
func (d *ChromeDriver) Get(url string) error {
	if err := d.run(navigationTimeout, chromedp.Navigate(url)); err != nil {
		return &common.DriverError{Op: fmt.Sprintf("navigate to %s", url), Cause: err}
	}
	// Navigation lands back in the top document
	d.frame = nil
	return nil
}

// Click clicks the first element matching the CSS selector, waiting up to the
// implicit wait for it to become visible
func (d *ChromeDriver) Click(selector string) error {
	if err := d.run(d.waitTimeout, chromedp.Click(selector, d.queryOpts()...)); err != nil {
		return &common.DriverError{Op: fmt.Sprintf("click %q", selector), Cause: err}
	}
	return nil
}

// TypeText sends keystrokes to the first element matching the CSS selector
func (d *ChromeDriver) TypeText(selector, text string) error {
	if err := d.run(d.waitTimeout, chromedp.SendKeys(selector, text, d.queryOpts()...)); err != nil {
		return &common.DriverError{Op: fmt.Sprintf("type into %q", selector), Cause: err}
	}
	return nil
}

// IsElementPresent reports whether the selector matches right now, without
// waiting
func (d *ChromeDriver) IsElementPresent(selector string) (bool, error) {
	script := fmt.Sprintf("document.querySelector(%q) !== null", selector)
	var present bool
	if err := d.run(d.waitTimeout, chromedp.Evaluate(script, &present)); err != nil {
		return false, &common.DriverError{Op: fmt.Sprintf("query %q", selector), Cause: err}
	}
	return present, nil
}

// WaitForElement blocks until the selector matches a visible element or the
// timeout elapses
func (d *ChromeDriver) WaitForElement(selector string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = d.waitTimeout
	}
	if err := d.run(timeout, chromedp.WaitVisible(selector, d.queryOpts()...)); err != nil {
		return &common.DriverError{Op: fmt.Sprintf("wait for %q", selector), Cause: err}
	}
	return nil
}

// Screenshot captures the viewport as PNG and writes it to path
func (d *ChromeDriver) Screenshot(path string) error {
	var buf []byte
	capture := chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		buf, err = page.CaptureScreenshot().WithFormat(page.CaptureScreenshotFormatPng).Do(ctx)
		return err
	})
	if err := d.run(navigationTimeout, capture); err != nil {
		return &common.DriverError{Op: "capture screenshot", Cause: err}
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return &common.DriverError{Op: "save screenshot " + path, Cause: err}
		}
	}
	if err := os.WriteFile(path, buf, 0644); err != nil {
		return &common.DriverError{Op: "save screenshot " + path, Cause: err}
	}
	return nil
}

// ExecuteScript evaluates a JavaScript expression and returns its decoded
// result; undefined results decode as nil
func (d *ChromeDriver) ExecuteScript(script string, args ...interface{}) (interface{}, error) {
	if len(args) > 0 {
		encoded := make([]string, 0, len(args))
		for _, arg := range args {
			data, err := json.Marshal(arg)
			if err != nil {
				return nil, &common.DriverError{Op: "encode script arguments", Cause: err}
			}
			encoded = append(encoded, string(data))
		}
		script = fmt.Sprintf("(function() { const args = [%s]; return (%s); })()", strings.Join(encoded, ", "), script)
	}

	var raw json.RawMessage
	if err := d.run(navigationTimeout, chromedp.Evaluate(script, &raw)); err != nil {
		return nil, &common.DriverError{Op: "execute script", Cause: err}
	}
	if len(raw) == 0 {
		return nil, nil
	}

	var result interface{}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, &common.DriverError{Op: "decode script result", Cause: err}
	}
	return result, nil
}

// CurrentURL returns the top document's location
func (d *ChromeDriver) CurrentURL() (string, error) {
	var url string
	if err := d.run(d.waitTimeout, chromedp.Location(&url)); err != nil {
		return "", &common.DriverError{Op: "read current url", Cause: err}
	}
	return url, nil
}

// SwitchToFrame scopes subsequent element queries to the iframe matching the
// CSS selector
func (d *ChromeDriver) SwitchToFrame(ref string) error {
	var nodes []*cdp.Node
	if err := d.run(d.waitTimeout, chromedp.Nodes(ref, &nodes, chromedp.ByQuery)); err != nil {
		return &common.DriverError{Op: fmt.Sprintf("switch to frame %q", ref), Cause: err}
	}
	if len(nodes) == 0 {
		return &common.DriverError{Op: fmt.Sprintf("switch to frame %q", ref), Cause: fmt.Errorf("no matching iframe")}
	}
	d.frame = nodes[0]
	return nil
}

// SwitchToDefaultContent returns element queries to the top document
func (d *ChromeDriver) SwitchToDefaultContent() error {
	d.frame = nil
	return nil
}

// AcceptAlert confirms the open JavaScript dialog
func (d *ChromeDriver) AcceptAlert() error {
	return d.handleAlert(true)
}

// DismissAlert cancels the open JavaScript dialog
func (d *ChromeDriver) DismissAlert() error {
	return d.handleAlert(false)
}

func (d *ChromeDriver) handleAlert(accept bool) error {
	d.mu.Lock()
	open := d.alertOpen
	d.mu.Unlock()
	if !open {
		return &common.DriverError{Op: "handle alert", Cause: fmt.Errorf("no alert present")}
	}

	if err := d.run(d.waitTimeout, page.HandleJavaScriptDialog(accept)); err != nil {
		return &common.DriverError{Op: "handle alert", Cause: err}
	}

	d.mu.Lock()
	d.alertOpen = false
	d.alertText = ""
	d.mu.Unlock()
	return nil
}

// AlertText returns the message of the open JavaScript dialog
func (d *ChromeDriver) AlertText() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.alertOpen {
		return "", &common.DriverError{Op: "read alert text", Cause: fmt.Errorf("no alert present")}
	}
	return d.alertText, nil
}

// Quit shuts the browser down. Quit is idempotent.
func (d *ChromeDriver) Quit() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	d.cancel()
	d.allocCancel()
	d.logger.Debug().Str("browser", d.browserType).Msg("Browser closed")
	return nil
}
