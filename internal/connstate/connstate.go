// Package connstate implements the Disconnected/Connecting/Connected
// state machine shared by the Server Actor and the Peer Actor, including
// the "queue while connecting" discipline: outgoing messages submitted
// while the connection is still being established are queued, not
// dropped, and flushed in order once the transition to Connected occurs.
package connstate

import "time"

type Kind int

const (
	Disconnected Kind = iota
	Connecting
	Connected
)

// ConnectingTimeout is how long a connection may remain in Connecting
// before the owning actor gives up with a Timeout error.
const ConnectingTimeout = 20 * time.Second

// State tracks the current phase plus, for Connecting, when it started.
type State struct {
	Kind  Kind
	Since time.Time
}

// Machine couples a State with the FIFO queue of messages submitted while
// not yet Connected. Msg is the actor's own mailbox message type.
type Machine[Msg any] struct {
	state State
	queue []Msg
}

// New starts Disconnected.
func New[Msg any]() *Machine[Msg] {
	return &Machine[Msg]{state: State{Kind: Disconnected}}
}

func (m *Machine[Msg]) State() State { return m.state }

// BeginConnecting transitions to Connecting and records the start time
// for the 20s timeout check.
func (m *Machine[Msg]) BeginConnecting(now time.Time) {
	m.state = State{Kind: Connecting, Since: now}
}

// TimedOut reports whether a Connecting state has exceeded
// ConnectingTimeout as of now.
func (m *Machine[Msg]) TimedOut(now time.Time) bool {
	return m.state.Kind == Connecting && now.Sub(m.state.Since) > ConnectingTimeout
}

// Enqueue buffers msg for later delivery; only valid while not yet
// Connected (callers exempt certain message kinds from this entirely and
// should not call Enqueue for them).
func (m *Machine[Msg]) Enqueue(msg Msg) {
	m.queue = append(m.queue, msg)
}

// Connect transitions to Connected and returns every queued message in
// enqueue order, clearing the queue.
func (m *Machine[Msg]) Connect() []Msg {
	m.state = State{Kind: Connected}
	q := m.queue
	m.queue = nil
	return q
}

// Disconnect resets to Disconnected. Queued messages are preserved
// (caller policy decides whether a reconnect attempt replays them or
// they're dropped via a fresh Machine).
func (m *Machine[Msg]) Disconnect() {
	m.state = State{Kind: Disconnected}
}

func (m *Machine[Msg]) IsConnected() bool    { return m.state.Kind == Connected }
func (m *Machine[Msg]) IsConnecting() bool   { return m.state.Kind == Connecting }
func (m *Machine[Msg]) IsDisconnected() bool { return m.state.Kind == Disconnected }
