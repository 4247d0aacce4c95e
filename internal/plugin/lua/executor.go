package lua

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	lua "github.com/yuin/gopher-lua"
)

// Call is one queued operation against the Lua state.
type Call struct {
	Fn     func(L *lua.LState) error
	Result chan error
}

// Executor serializes all operations on a State onto a single owner
// goroutine. gopher-lua states are not goroutine-safe, so every host-side
// caller funnels through here; concurrent RPC invocations interleave on the
// queue rather than racing on the VM.
type Executor struct {
	state *State
	queue chan *Call

	closed    atomic.Bool
	done      chan struct{}
	closeOnce sync.Once
}

// NewExecutor creates an Executor for the given state.
func NewExecutor(state *State, queueSize int) *Executor {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Executor{
		state: state,
		queue: make(chan *Call, queueSize),
		done:  make(chan struct{}),
	}
}

// Run processes queued calls until the context ends or Close is called.
// It owns the Lua state for its lifetime.
func (e *Executor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			e.drain(ctx.Err())
			return
		case <-e.done:
			e.drain(ErrExecutorClosed)
			return
		case call, ok := <-e.queue:
			if !ok {
				return
			}
			err := e.run(call)
			select {
			case call.Result <- err:
			default:
			}
			close(call.Result)
		}
	}
}

func (e *Executor) run(call *Call) (err error) {
	defer func() {
		if r := recover(); r != nil {
			switch v := r.(type) {
			case error:
				err = v
			case string:
				err = errors.New(v)
			default:
				err = errors.New("lua panic")
			}
		}
	}()
	return call.Fn(e.state.L)
}

func (e *Executor) drain(err error) {
	for {
		select {
		case call, ok := <-e.queue:
			if !ok {
				return
			}
			select {
			case call.Result <- err:
			default:
			}
			close(call.Result)
		default:
			return
		}
	}
}

// Execute runs fn on the owner goroutine and waits for it to finish.
func (e *Executor) Execute(ctx context.Context, fn func(L *lua.LState) error) error {
	if e.closed.Load() {
		return ErrExecutorClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	call := &Call{Fn: fn, Result: make(chan error, 1)}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-e.done:
		return ErrExecutorClosed
	case e.queue <- call:
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err, ok := <-call.Result:
		if !ok {
			return ErrExecutorClosed
		}
		return err
	case <-e.done:
		// Run may have drained and exited before the call landed on the
		// queue; without this the caller would wait forever.
		select {
		case err, ok := <-call.Result:
			if !ok {
				return ErrExecutorClosed
			}
			return err
		default:
			return ErrExecutorClosed
		}
	}
}

// ExecuteAsync queues fn without waiting. Used for host→plugin push
// notifications where the caller does not care about the result.
func (e *Executor) ExecuteAsync(fn func(L *lua.LState) error) error {
	if e.closed.Load() {
		return ErrExecutorClosed
	}

	call := &Call{Fn: fn, Result: make(chan error, 1)}

	select {
	case <-e.done:
		return ErrExecutorClosed
	case e.queue <- call:
		go func() {
			// The result never arrives if Run exited before the call
			// landed on the queue.
			select {
			case <-call.Result:
			case <-e.done:
			}
		}()
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops the executor. Queued calls complete with ErrExecutorClosed.
func (e *Executor) Close() {
	e.closeOnce.Do(func() {
		e.closed.Store(true)
		close(e.done)
	})
}

// IsClosed reports whether the executor has been closed.
func (e *Executor) IsClosed() bool {
	return e.closed.Load()
}
