package dispatch

import (
	"github.com/cenkalti/soulseek/internal/logger"
	"github.com/cenkalti/soulseek/internal/protocol"
)

// Dispatcher routes a decoded frame to its registered handler. A frame
// with no registered handler is logged and dropped — it never reaches
// into the owning actor's state.
type Dispatcher[Op any] struct {
	registry *Registry[Op]
	emit     Emitter[Op]
	log      logger.Logger
	wide     bool
	channel  protocol.Channel
}

// NewDispatcher builds a dispatcher for one channel. wide selects whether
// opcodes on this channel are read as a u32 (Server/Peer/Distributed) or
// a single byte (PeerInit).
func NewDispatcher[Op any](ch protocol.Channel, registry *Registry[Op], emit Emitter[Op], log logger.Logger) *Dispatcher[Op] {
	return &Dispatcher[Op]{
		registry: registry,
		emit:     emit,
		log:      log,
		wide:     ch != protocol.ChannelPeerInit,
		channel:  ch,
	}
}

// Dispatch decodes the opcode off payload, positions the cursor past the
// header (4 bytes for a u32 opcode, 1 byte for PeerInit), and invokes the
// matching handler.
func (d *Dispatcher[Op]) Dispatch(payload []byte) {
	msg := protocol.NewMessageFromBytes(payload)
	opcode := msg.MessageCode(d.wide)
	h, ok := d.registry.Get(opcode)
	if !ok {
		d.log.Warningf("no handler registered for %s opcode %d", protocol.MessageName(d.channel, opcode), opcode)
		return
	}
	if d.wide {
		msg.SetPointer(4)
	} else {
		msg.SetPointer(1)
	}
	h.Handle(msg, d.emit)
}
