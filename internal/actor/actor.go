// Package actor implements the mailbox-based cooperative actor runtime
// shared by the Server Actor, Peer Actor and Listener Actor: a bounded
// worker pool, a 100ms tick, and lifecycle hooks (OnStart/OnStop/Handle/Tick).
package actor

import (
	"runtime"
	"sync"
	"time"
)

// TickInterval is how often an idle actor's Tick hook fires.
const TickInterval = 100 * time.Millisecond

// Actor is the lifecycle contract every actor implements. Msg is
// processed to completion before the next mailbox entry is dequeued.
type Actor[Msg any] interface {
	OnStart()
	OnStop()
	Handle(msg Msg)
	Tick()
}

// Handle is a cloneable reference to a running actor's mailbox. Multiple
// senders may hold a Handle; the actor's own state is never shared.
type Handle[Msg any] struct {
	mailbox chan Msg
	stopC   chan struct{}
}

// Send enqueues a message. Sends after the actor has stopped are dropped,
// matching the runtime's "Stop is terminal" rule.
func (h Handle[Msg]) Send(msg Msg) {
	select {
	case <-h.stopC:
		return
	default:
	}
	select {
	case h.mailbox <- msg:
	case <-h.stopC:
	}
}

// Stop requests termination. It does not block until the actor has
// actually exited; callers that need that should track completion
// themselves (e.g. via a WaitGroup owned by the System).
func (h Handle[Msg]) Stop() {
	select {
	case <-h.stopC:
	default:
		close(h.stopC)
	}
}

// System is the bounded worker pool every actor is drawn from. The pool
// size defaults to GOMAXPROCS; a saturated pool queues new spawns FIFO
// because each actor's run loop occupies one pool slot for its lifetime,
// acquired via a buffered semaphore channel.
type System struct {
	sem chan struct{}
	wg  sync.WaitGroup
}

// NewSystem builds a worker pool. size <= 0 defaults to GOMAXPROCS(0).
func NewSystem(size int) *System {
	if size <= 0 {
		size = runtime.GOMAXPROCS(0)
	}
	return &System{sem: make(chan struct{}, size)}
}

// Spawn starts a new actor with an empty mailbox and returns its handle.
func Spawn[Msg any](sys *System, a Actor[Msg]) Handle[Msg] {
	return SpawnWithInit(sys, a, func(Handle[Msg]) {})
}

// SpawnWithInit starts a new actor, running init with the actor's own
// handle before OnStart — this is how an actor learns to message itself
// (e.g. a Peer Actor queuing its own ProcessRead), solving the
// chicken-and-egg problem of needing a handle before the actor exists.
func SpawnWithInit[Msg any](sys *System, a Actor[Msg], init func(Handle[Msg])) Handle[Msg] {
	h := Handle[Msg]{
		mailbox: make(chan Msg, 256),
		stopC:   make(chan struct{}),
	}
	init(h)
	sys.wg.Add(1)
	sys.sem <- struct{}{}
	go func() {
		defer sys.wg.Done()
		defer func() { <-sys.sem }()
		runLoop(a, h)
	}()
	return h
}

func runLoop[Msg any](a Actor[Msg], h Handle[Msg]) {
	a.OnStart()
	defer a.OnStop()
	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()
	for {
		select {
		case msg := <-h.mailbox:
			a.Handle(msg)
		case <-ticker.C:
			a.Tick()
		case <-h.stopC:
			// Messages enqueued before Stop are still handled, in order.
			for {
				select {
				case msg := <-h.mailbox:
					a.Handle(msg)
				default:
					return
				}
			}
		}
	}
}

// Wait blocks until every actor spawned on this system has returned from
// its run loop.
func (s *System) Wait() { s.wg.Wait() }
