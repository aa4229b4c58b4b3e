package duel

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	ws "github.com/ludmilasilvaoliveiraa-crypto/codequest-duel/pkg/http/ws"
)

// Sink receives outbound events addressed to one participant. The
// connection-backed sink delivers over the socket; bots and tests consume
// the same stream directly, which keeps the state machine's outputs
// inspectable without a live connection.
type Sink interface {
	Deliver(msg ws.Message)
}

// dispatcher is the only writer of session output. Broadcasts hand the same
// snapshot to both seats so neither player observes state the other hasn't.
type dispatcher struct {
	sinks [2]Sink
}

func (d *dispatcher) setSink(seat int, s Sink) {
	d.sinks[seat] = s
}

func (d *dispatcher) broadcast(msg ws.Message) {
	for _, s := range d.sinks {
		if s != nil {
			s.Deliver(msg)
		}
	}
}

func (d *dispatcher) sendTo(seat int, msg ws.Message) {
	if s := d.sinks[seat]; s != nil {
		s.Deliver(msg)
	}
}

// connSink adapts the connection registry to the Sink interface. Delivery to
// a player who is offline is dropped; reconnecting players receive a fresh
// snapshot on attach instead.
type connSink struct {
	registry *ws.Registry
	playerID uuid.UUID
	logger   zerolog.Logger
}

// NewConnSink builds a Sink that writes through the connection registry.
func NewConnSink(registry *ws.Registry, playerID uuid.UUID, logger zerolog.Logger) Sink {
	return connSink{registry: registry, playerID: playerID, logger: logger}
}

func (s connSink) Deliver(msg ws.Message) {
	if err := s.registry.Send(s.playerID, msg); err != nil {
		s.logger.Debug().
			Err(err).
			Str("player_id", s.playerID.String()).
			Str("event", msg.Name).
			Msg("outbound event dropped")
	}
}
