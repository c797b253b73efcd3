package browser

import (
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/arachne/internal/common"
	"github.com/ternarybob/arachne/internal/interfaces"
)

// Browsers this build can drive. All are Chromium-family; the type selects
// the binary when exec_path is not set explicitly.
var supportedBrowsers = []string{"chrome", "chromium", "edge"}

// Factory creates browser drivers from the shared browser configuration
type Factory struct {
	config *common.BrowserConfig
	logger arbor.ILogger
}

// NewFactory creates a new driver factory
func NewFactory(logger arbor.ILogger, config *common.BrowserConfig) interfaces.DriverFactory {
	return &Factory{config: config, logger: logger}
}

// Acquire launches a fresh browser for a run. An empty browserType falls back
// to the configured default.
func (f *Factory) Acquire(browserType string) (interfaces.BrowserDriver, error) {
	if browserType == "" {
		browserType = f.config.Default
	}
	if !isSupported(browserType) {
		return nil, &common.DriverError{
			Op:    "acquire " + browserType,
			Cause: fmt.Errorf("unsupported browser type (supported: %v)", supportedBrowsers),
		}
	}
	return NewChromeDriver(f.logger, f.config, browserType)
}

// Supported returns the browser types this factory can acquire
func (f *Factory) Supported() []string {
	out := make([]string, len(supportedBrowsers))
	copy(out, supportedBrowsers)
	return out
}

func isSupported(browserType string) bool {
	for _, b := range supportedBrowsers {
		if b == browserType {
			return true
		}
	}
	return false
}
