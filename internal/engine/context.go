package engine

// Context is the scoped variable map threaded through a single run. It is an
// ordered stack of scopes, outer to inner; inner scopes shadow outer ones.
// A Context is owned by exactly one interpreter invocation; concurrent runs
// use distinct Contexts.
type Context struct {
	scopes []map[string]interface{}
}

// Variable names injected by iteration and catch frames
const (
	VarLoopIndex     = "loop_index"     // 0-based
	VarLoopIteration = "loop_iteration" // 1-based
	VarLoopTotal     = "loop_total"     // set when the total is known
	VarLoopItem      = "loop_item"      // for_each only
	VarTryErrMessage = "try_block_error_message"
	VarTryErrType    = "try_block_error_type"
)

// NewContext creates a context with a single root scope
func NewContext() *Context {
	return &Context{scopes: []map[string]interface{}{{}}}
}

// NewContextWithValues creates a context whose root scope holds the given
// values
func NewContextWithValues(values map[string]interface{}) *Context {
	root := make(map[string]interface{}, len(values))
	for k, v := range values {
		root[k] = v
	}
	return &Context{scopes: []map[string]interface{}{root}}
}

// Push adds an inner scope
func (c *Context) Push(frame map[string]interface{}) {
	if frame == nil {
		frame = map[string]interface{}{}
	}
	c.scopes = append(c.scopes, frame)
}

// Pop removes the innermost scope. The root scope is never popped.
func (c *Context) Pop() {
	if len(c.scopes) > 1 {
		c.scopes = c.scopes[:len(c.scopes)-1]
	}
}

// Lookup searches scopes inner-to-outer
func (c *Context) Lookup(key string) (interface{}, bool) {
	for i := len(c.scopes) - 1; i >= 0; i-- {
		if v, ok := c.scopes[i][key]; ok {
			return v, true
		}
	}
	return nil, false
}

// Set writes to the innermost scope
func (c *Context) Set(key string, value interface{}) {
	c.scopes[len(c.scopes)-1][key] = value
}

// Snapshot returns a flattened view of all scopes, inner values shadowing
// outer ones
func (c *Context) Snapshot() map[string]interface{} {
	flat := make(map[string]interface{})
	for _, scope := range c.scopes {
		for k, v := range scope {
			flat[k] = v
		}
	}
	return flat
}

// Depth returns the number of scopes
func (c *Context) Depth() int {
	return len(c.scopes)
}
