// Package dispatch provides a handler registry and dispatcher generic
// over the operation type a channel's handlers emit, matching the
// "registry parameterized by the operation type" design used by every
// actor in this module.
package dispatch

import "github.com/cenkalti/soulseek/internal/protocol"

// Emitter is what a Handler uses to publish the operations it decodes
// from a frame. Each actor's mailbox channel satisfies this.
type Emitter[Op any] interface {
	Emit(op Op)
}

// EmitterFunc adapts a plain function to the Emitter interface.
type EmitterFunc[Op any] func(op Op)

func (f EmitterFunc[Op]) Emit(op Op) { f(op) }

// Handler decodes one opcode's payload into zero or more operations.
// Handlers are pure with respect to I/O: they read fields off the
// message and emit typed events, never touching a socket.
type Handler[Op any] interface {
	Opcode() uint32
	Handle(msg *protocol.Message, emit Emitter[Op])
}

// HandlerFunc adapts a plain function plus an opcode into a Handler.
type HandlerFunc[Op any] struct {
	Code    uint32
	HandleFn func(msg *protocol.Message, emit Emitter[Op])
}

func (h HandlerFunc[Op]) Opcode() uint32 { return h.Code }
func (h HandlerFunc[Op]) Handle(msg *protocol.Message, emit Emitter[Op]) {
	h.HandleFn(msg, emit)
}

// Registry maps an opcode to its handler, one handler per opcode.
type Registry[Op any] struct {
	handlers map[uint32]Handler[Op]
}

// NewRegistry returns an empty registry.
func NewRegistry[Op any]() *Registry[Op] {
	return &Registry[Op]{handlers: make(map[uint32]Handler[Op])}
}

// Register installs a handler, replacing any previous handler for the
// same opcode (registry uniqueness is the caller's responsibility — in
// practice each actor registers its fixed handler set exactly once).
func (r *Registry[Op]) Register(h Handler[Op]) *Registry[Op] {
	r.handlers[h.Opcode()] = h
	return r
}

// Get looks up the handler for an opcode.
func (r *Registry[Op]) Get(opcode uint32) (Handler[Op], bool) {
	h, ok := r.handlers[opcode]
	return h, ok
}
