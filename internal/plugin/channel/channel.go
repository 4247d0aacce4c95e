// Package channel implements the bidirectional call/response transport
// between the host and one sandboxed plugin context. All plugin code runs on
// a single goroutine owning the Lua state; the channel marshals concurrent
// host-side calls onto that goroutine and tracks each in-flight call in a
// pending map keyed by an opaque correlation id.
package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	glua "github.com/infogata/socialgata/internal/plugin/lua"
	lua "github.com/yuin/gopher-lua"
)

// DefaultReadyTimeout is how long Open waits for the sandbox runtime shim to
// finish loading before the plugin is declared dead.
const DefaultReadyTimeout = 10 * time.Second

// runtimeShim is evaluated inside the sandbox before any plugin code. Once
// it completes, the context is considered ready.
const runtimeShim = `
__runtime = { version = 1 }
`

// Hook is a host-side post-process transform run on every response of one
// method before it reaches application code.
type Hook func(payload map[string]any)

type pendingCall struct {
	method string
	done   chan invokeResult
}

type invokeResult struct {
	value any
	err   error
}

// Channel is the RPC boundary for one plugin.
type Channel struct {
	pluginID string

	readyTimeout time.Duration
	queueSize    int
	shim         string

	mu      sync.Mutex
	state   *glua.State
	exec    *glua.Executor
	cancel  context.CancelFunc
	ready   bool
	closed  bool
	probes  map[string]bool
	hooks   map[string]Hook
	pending map[string]*pendingCall
}

// Option configures a Channel.
type Option func(*Channel)

// WithReadyTimeout overrides the sandbox ready timeout.
func WithReadyTimeout(d time.Duration) Option {
	return func(c *Channel) { c.readyTimeout = d }
}

// WithShim replaces the runtime shim source. Test hook.
func WithShim(src string) Option {
	return func(c *Channel) { c.shim = src }
}

// WithQueueSize sets the executor queue depth.
func WithQueueSize(n int) Option {
	return func(c *Channel) { c.queueSize = n }
}

// New creates a channel for the given plugin id. The channel is inert until
// Open is called.
func New(pluginID string, opts ...Option) *Channel {
	c := &Channel{
		pluginID:     pluginID,
		readyTimeout: DefaultReadyTimeout,
		shim:         runtimeShim,
		probes:       make(map[string]bool),
		hooks:        make(map[string]Hook),
		pending:      make(map[string]*pendingCall),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PluginID returns the id of the plugin this channel is bound to.
func (c *Channel) PluginID() string { return c.pluginID }

// Open creates the sandboxed context, starts its owner goroutine and waits
// for the runtime shim to load, racing a hard timeout. On timeout the
// context is torn down and a LoadTimeoutError is returned; the channel must
// not be reused.
func (c *Channel) Open(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state != nil {
		c.mu.Unlock()
		return ErrAlreadyOpen
	}

	state := glua.NewState()
	exec := glua.NewExecutor(state, c.queueSize)
	runCtx, cancel := context.WithCancel(context.Background())
	c.state = state
	c.exec = exec
	c.cancel = cancel
	c.mu.Unlock()

	// The owner goroutine holds the state for its whole life and closes it
	// on the way out, so nothing ever touches a closed LState.
	go func() {
		exec.Run(runCtx)
		state.Close()
	}()

	readyCh := make(chan error, 1)
	go func() {
		readyCh <- exec.Execute(ctx, func(L *lua.LState) error {
			return L.DoString(c.shim)
		})
	}()

	timer := time.NewTimer(c.readyTimeout)
	defer timer.Stop()

	select {
	case err := <-readyCh:
		if err != nil {
			c.Close()
			return &ExecutionError{PluginID: c.pluginID, Err: err}
		}
	case <-timer.C:
		c.Close()
		return &LoadTimeoutError{PluginID: c.pluginID, Timeout: c.readyTimeout}
	}

	c.mu.Lock()
	c.ready = true
	c.mu.Unlock()
	return nil
}

// ExecuteCode injects and runs the plugin's script. Must be called after
// Open succeeded. Any method-existence probes cached so far are dropped,
// since the script may define new capabilities.
func (c *Channel) ExecuteCode(ctx context.Context, source string) error {
	exec, err := c.liveExecutor()
	if err != nil {
		return err
	}

	runErr := exec.Execute(ctx, func(L *lua.LState) error {
		return L.DoString(source)
	})

	c.mu.Lock()
	c.probes = make(map[string]bool)
	c.mu.Unlock()

	if runErr != nil {
		return &ExecutionError{PluginID: c.pluginID, Err: runErr}
	}
	return nil
}

// HasDefined reports whether the loaded script defines the named capability
// as a function. Never errors for undefined methods; probe results are
// cached until the next ExecuteCode.
func (c *Channel) HasDefined(ctx context.Context, method string) (bool, error) {
	c.mu.Lock()
	if defined, ok := c.probes[method]; ok {
		c.mu.Unlock()
		return defined, nil
	}
	c.mu.Unlock()

	exec, err := c.liveExecutor()
	if err != nil {
		return false, err
	}

	var defined bool
	if err := exec.Execute(ctx, func(L *lua.LState) error {
		defined = L.GetGlobal(method).Type() == lua.LTFunction
		return nil
	}); err != nil {
		return false, err
	}

	c.mu.Lock()
	c.probes[method] = defined
	c.mu.Unlock()
	return defined, nil
}

// RegisterModule installs a table of host functions inside the sandbox as a
// global module and whitelists it for require(). This is how the host's
// capability API reaches plugin code.
func (c *Channel) RegisterModule(ctx context.Context, name string, funcs map[string]lua.LGFunction) error {
	exec, err := c.liveExecutor()
	if err != nil {
		return err
	}

	c.mu.Lock()
	state := c.state
	c.mu.Unlock()

	return exec.Execute(ctx, func(L *lua.LState) error {
		mod := L.SetFuncs(L.NewTable(), funcs)
		L.SetGlobal(name, mod)
		state.Sandbox().AllowModule(name)
		return nil
	})
}

// Complete registers a post-process hook for one method. The hook runs on
// the decoded response payload before it is returned to the caller.
func (c *Channel) Complete(method string, hook Hook) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks[method] = hook
}

// Invoke calls a capability with the given request and decodes the response
// into out (which may be nil for void methods). Requests and responses cross
// the boundary as JSON-shaped values. Errors raised by the plugin are
// wrapped as RPCError. Multiple Invokes may be in flight concurrently; they
// interleave on the sandbox's owner goroutine.
func (c *Channel) Invoke(ctx context.Context, method string, req, out any) error {
	exec, err := c.liveExecutor()
	if err != nil {
		return err
	}

	shaped, err := toWire(req)
	if err != nil {
		return &RPCError{PluginID: c.pluginID, Method: method, Err: err}
	}

	call := &pendingCall{method: method, done: make(chan invokeResult, 1)}
	id := uuid.NewString()

	c.mu.Lock()
	c.pending[id] = call
	hook := c.hooks[method]
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	go func() {
		var value any
		execErr := exec.Execute(ctx, func(L *lua.LState) error {
			fn := L.GetGlobal(method)
			if fn.Type() != lua.LTFunction {
				return fmt.Errorf("method %q not defined", method)
			}
			bridge := glua.NewBridge(L)
			L.Push(fn)
			L.Push(bridge.ToLua(shaped))
			if err := L.PCall(1, 1, nil); err != nil {
				return err
			}
			ret := L.Get(-1)
			L.Pop(1)
			value = bridge.ToGo(ret)
			return nil
		})
		call.done <- invokeResult{value: value, err: execErr}
	}()

	var res invokeResult
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res = <-call.done:
	}

	if res.err != nil {
		return &RPCError{PluginID: c.pluginID, Method: method, Err: res.err}
	}

	if hook != nil {
		if m, ok := res.value.(map[string]any); ok {
			hook(m)
		}
	}

	if out == nil {
		return nil
	}
	data, err := json.Marshal(res.value)
	if err != nil {
		return &RPCError{PluginID: c.pluginID, Method: method, Err: err}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &RPCError{PluginID: c.pluginID, Method: method, Err: err}
	}
	return nil
}

// Push sends a fire-and-forget notification to the plugin. If the plugin
// does not define the method the push is silently dropped, as is any error
// the handler raises.
func (c *Channel) Push(method string, payload any) {
	exec, err := c.liveExecutor()
	if err != nil {
		return
	}

	shaped, err := toWire(payload)
	if err != nil {
		return
	}

	_ = exec.ExecuteAsync(func(L *lua.LState) error {
		fn := L.GetGlobal(method)
		if fn.Type() != lua.LTFunction {
			return nil
		}
		bridge := glua.NewBridge(L)
		L.Push(fn)
		L.Push(bridge.ToLua(shaped))
		return L.PCall(1, 0, nil)
	})
}

// InFlight returns the number of calls currently awaiting a response.
func (c *Channel) InFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Ready reports whether the sandbox finished loading its runtime shim.
func (c *Channel) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

// Close tears the sandboxed context down. Idempotent. Any running script is
// interrupted; queued calls fail.
func (c *Channel) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.ready = false
	state := c.state
	exec := c.exec
	cancel := c.cancel
	c.mu.Unlock()

	if state != nil {
		state.Interrupt()
	}
	if exec != nil {
		exec.Close()
	}
	if cancel != nil {
		cancel()
	}
}

// liveExecutor returns the executor if the channel is usable.
func (c *Channel) liveExecutor() (*glua.Executor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	if c.exec == nil {
		return nil, ErrNotOpen
	}
	return c.exec, nil
}

// toWire reduces a request value to its JSON shape so only data the wire
// contract allows crosses the boundary.
func toWire(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var shaped any
	if err := json.Unmarshal(data, &shaped); err != nil {
		return nil, err
	}
	return shaped, nil
}
