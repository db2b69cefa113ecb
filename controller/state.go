package controller

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/arloliu/go-autd3/logger"
)

// State is the lifecycle state of a controller.
type State uint32

const (
	// Closed: no link bound.
	Closed State = iota
	// Opening: the link is being opened.
	Opening
	// Open: the link is up and devices play a static gain.
	Open
	// Streaming: devices play a point or gain sequence.
	Streaming
	// Closing: queued frames are flushed and the link is released.
	Closing
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Opening:
		return "opening"
	case Open:
		return "open"
	case Streaming:
		return "streaming"
	case Closing:
		return "closing"
	default:
		return "unknown"
	}
}

// IsOpen reports whether frames can be appended in state s.
func (s State) IsOpen() bool { return s == Open || s == Streaming }

// StateChangeHandler is invoked on every state change of a controller.
//
// Note: the handler is invoked synchronously by the goroutine changing the
// state. Take care with long-running implementations.
type StateChangeHandler func(prev, next State)

// stateMgr holds the lifecycle state. Transitions are atomic with respect to
// each other, and waiters are woken on every change.
type stateMgr struct {
	mu       sync.Mutex
	cond     *sync.Cond
	state    atomic.Uint32
	logger   logger.Logger
	handlers []StateChangeHandler
}

func newStateMgr(l logger.Logger) *stateMgr {
	sm := &stateMgr{logger: l}
	sm.cond = sync.NewCond(&sm.mu)
	sm.state.Store(uint32(Closed))

	return sm
}

func (sm *stateMgr) get() State { return State(sm.state.Load()) }

func (sm *stateMgr) addHandler(handlers ...StateChangeHandler) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sm.handlers = append(sm.handlers, handlers...)
}

// transition moves to next if the current state is one of from. Listing next
// in from makes the transition idempotent.
func (sm *stateMgr) transition(next State, from ...State) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	cur := sm.get()
	allowed := false
	for _, s := range from {
		if cur == s {
			allowed = true
			break
		}
	}
	if !allowed {
		return false
	}
	if cur == next {
		return true
	}

	sm.state.Store(uint32(next))
	sm.cond.Broadcast()
	sm.logger.Debug("controller state changed", "prev", cur, "next", next)

	for _, h := range sm.handlers {
		if h != nil {
			h(cur, next)
		}
	}

	return true
}

func (sm *stateMgr) toOpening() bool { return sm.transition(Opening, Closed) }

func (sm *stateMgr) toOpen() bool { return sm.transition(Open, Opening, Open, Streaming) }

func (sm *stateMgr) toStreaming() bool { return sm.transition(Streaming, Open, Streaming) }

// toClosing succeeds only from an open state, so that exactly one caller
// performs the close sequence.
func (sm *stateMgr) toClosing() bool {
	return sm.transition(Closing, Open, Streaming)
}

// toClosed is allowed from any state.
func (sm *stateMgr) toClosed() {
	sm.transition(Closed, Closed, Opening, Open, Streaming, Closing)
}

// waitState blocks until the state is state or ctx is done.
func (sm *stateMgr) waitState(ctx context.Context, state State) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.get() == state {
		return nil
	}

	stop := context.AfterFunc(ctx, func() {
		sm.mu.Lock()
		defer sm.mu.Unlock()
		sm.cond.Broadcast()
	})
	defer stop()

	for sm.get() != state {
		if err := ctx.Err(); err != nil {
			return err
		}
		sm.cond.Wait()
	}

	return nil
}
