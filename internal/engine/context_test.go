package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContext_LookupSearchesInnerToOuter(t *testing.T) {
	c := NewContextWithValues(map[string]interface{}{"site": "outer", "keep": 1})
	c.Push(map[string]interface{}{"site": "inner"})

	v, ok := c.Lookup("site")
	require.True(t, ok)
	assert.Equal(t, "inner", v)

	v, ok = c.Lookup("keep")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = c.Lookup("missing")
	assert.False(t, ok)
}

func TestContext_PopRestoresShadowedValue(t *testing.T) {
	c := NewContextWithValues(map[string]interface{}{"site": "outer"})
	c.Push(map[string]interface{}{"site": "inner"})
	c.Pop()

	v, ok := c.Lookup("site")
	require.True(t, ok)
	assert.Equal(t, "outer", v)
}

func TestContext_RootScopeNeverPopped(t *testing.T) {
	c := NewContextWithValues(map[string]interface{}{"site": "root"})
	c.Pop()
	c.Pop()

	assert.Equal(t, 1, c.Depth())
	v, ok := c.Lookup("site")
	require.True(t, ok)
	assert.Equal(t, "root", v)
}

func TestContext_SetWritesInnermostScope(t *testing.T) {
	c := NewContext()
	c.Push(map[string]interface{}{})
	c.Set("tmp", 42)
	c.Pop()

	_, ok := c.Lookup("tmp")
	assert.False(t, ok)
}

func TestContext_SnapshotFlattens(t *testing.T) {
	c := NewContextWithValues(map[string]interface{}{"a": 1, "b": 2})
	c.Push(map[string]interface{}{"b": 3, "c": 4})

	flat := c.Snapshot()
	assert.Equal(t, map[string]interface{}{"a": 1, "b": 3, "c": 4}, flat)
}

func TestTruthy(t *testing.T) {
	assert.False(t, truthy(nil))
	assert.False(t, truthy(false))
	assert.False(t, truthy(""))
	assert.False(t, truthy(0))
	assert.False(t, truthy(0.0))
	assert.True(t, truthy(true))
	assert.True(t, truthy("x"))
	assert.True(t, truthy(1))
	assert.True(t, truthy([]interface{}{}))
}

func TestStringify(t *testing.T) {
	assert.Equal(t, "", stringify(nil))
	assert.Equal(t, "abc", stringify("abc"))
	assert.Equal(t, "3", stringify(3))
	assert.Equal(t, "true", stringify(true))
}
