package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/arachne/internal/common"
)

func TestFactory_Supported(t *testing.T) {
	factory := NewFactory(arbor.NewLogger(), &common.BrowserConfig{Default: "chrome"})

	supported := factory.Supported()
	assert.ElementsMatch(t, []string{"chrome", "chromium", "edge"}, supported)
}

func TestFactory_RejectsUnsupportedType(t *testing.T) {
	factory := NewFactory(arbor.NewLogger(), &common.BrowserConfig{Default: "chrome"})

	_, err := factory.Acquire("netscape")
	require.Error(t, err)

	var derr *common.DriverError
	assert.ErrorAs(t, err, &derr)
}
