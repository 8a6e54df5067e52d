package datachannel

import (
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// ErrUnknownType is returned by Dispatch for message types with no handler.
var ErrUnknownType = errors.New("unknown message type")

// Handler processes a specific command type.
type Handler func(listenerID, actionID string, payload json.RawMessage) error

// Router dispatches incoming data channel messages to registered handlers.
type Router struct {
	handlers map[string]Handler
	logger   *zap.Logger
}

// NewRouter creates a new message router.
func NewRouter(logger *zap.Logger) *Router {
	return &Router{handlers: make(map[string]Handler), logger: logger}
}

// Register adds a handler for a specific message type.
func (r *Router) Register(msgType string, h Handler) {
	r.handlers[msgType] = h
}

// Dispatch parses a raw data channel message from listenerID and routes it
// to the appropriate handler.
func (r *Router) Dispatch(listenerID string, raw []byte) error {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("unmarshal envelope: %w", err)
	}

	h, ok := r.handlers[env.Type]
	if !ok {
		r.logger.Warn("unknown message type",
			zap.String("listener", listenerID),
			zap.String("type", env.Type),
		)
		return fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}

	return h(listenerID, env.ActionID, env.Payload)
}
