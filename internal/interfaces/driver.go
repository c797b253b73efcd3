package interfaces

import "time"

// BrowserDriver is the abstract browser capability consumed by actions.
// Every method may fail with a common.DriverError. Calls may block; they are
// issued from a single run's executing goroutine only, and a driver instance
// is owned by exactly one run.
type BrowserDriver interface {
	Get(url string) error
	Quit() error
	Click(selector string) error
	TypeText(selector, text string) error
	IsElementPresent(selector string) (bool, error)
	WaitForElement(selector string, timeout time.Duration) error
	Screenshot(path string) error
	ExecuteScript(script string, args ...interface{}) (interface{}, error)
	CurrentURL() (string, error)
	SwitchToFrame(ref string) error
	SwitchToDefaultContent() error
	AcceptAlert() error
	DismissAlert() error
	AlertText() (string, error)

	// Type returns a stable driver identifier, e.g. "chrome"
	Type() string
}

// DriverFactory acquires a fresh BrowserDriver for a run
type DriverFactory interface {
	Acquire(browserType string) (BrowserDriver, error)
	Supported() []string
}
