package equipment

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/tankwanghow/pou-con-sub006/internal/infrastructure/mqtt"
)

// Bus is the slice of the MQTT client the gateway needs.
// Satisfied by *mqtt.Client; narrowed so tests can substitute a fake.
type Bus interface {
	// Publish sends a message to a topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// Subscribe registers a handler for a topic pattern.
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// Gateway is the equipment command surface. It talks to the field-bus
// adapter over MQTT: status reads use a request/response pair correlated
// by request id, switch commands are fire-and-forget.
//
// One gateway instance is shared by the alarm engine, the interlock
// engine, and the API. All methods are safe for concurrent use.
type Gateway struct {
	bus    Bus
	topics mqtt.Topics
	qos    byte
	logger Logger

	pendingMu sync.Mutex
	pending   map[string]chan mqtt.ResponseMessage
}

// NewGateway creates a gateway over the given bus.
// Call Start before issuing status requests.
func NewGateway(bus Bus, topics mqtt.Topics, qos byte) *Gateway {
	return &Gateway{
		bus:     bus,
		topics:  topics,
		qos:     qos,
		logger:  noopLogger{},
		pending: make(map[string]chan mqtt.ResponseMessage),
	}
}

// SetLogger sets the logger for the gateway.
func (g *Gateway) SetLogger(logger Logger) {
	g.logger = logger
}

// Start subscribes to the adapter's response topics. The single wildcard
// subscription serves every in-flight request; responses are routed to
// waiters by request id.
func (g *Gateway) Start() error {
	if err := g.bus.Subscribe(g.topics.AllBusResponses(), g.qos, g.handleResponse); err != nil {
		return fmt.Errorf("subscribing to bus responses: %w", err)
	}
	return nil
}

// GetStatus reads the live status of the named equipment from the
// field-bus adapter.
//
// It publishes a read_status request and waits up to timeout for the
// correlated response. A timeout, publish failure, or error reply all
// return ErrUnreachable: callers treat the equipment as unreachable for
// this read and apply their own fail-safe rules.
func (g *Gateway) GetStatus(ctx context.Context, name string, timeout time.Duration) (StatusMap, error) {
	req := mqtt.NewRequestMessage(name, mqtt.ActionReadStatus)

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshalling status request: %w", err)
	}

	// Register the waiter before publishing so a fast response can't
	// arrive ahead of the pending entry.
	ch := make(chan mqtt.ResponseMessage, 1)
	g.pendingMu.Lock()
	g.pending[req.RequestID] = ch
	g.pendingMu.Unlock()

	defer func() {
		g.pendingMu.Lock()
		delete(g.pending, req.RequestID)
		g.pendingMu.Unlock()
	}()

	if err := g.bus.Publish(g.topics.BusRequest(name), payload, g.qos, false); err != nil {
		return nil, fmt.Errorf("%w: publishing status request for %q: %v", ErrUnreachable, name, err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-ch:
		if !resp.Success {
			code, msg := "UNKNOWN", "adapter reported failure"
			if resp.Error != nil {
				code, msg = resp.Error.Code, resp.Error.Message
			}
			g.logger.Debug("status request failed", "equipment", name, "code", code, "error", msg)
			return nil, fmt.Errorf("%w: %s: %s", ErrUnreachable, code, msg)
		}
		return StatusMap(resp.Status), nil
	case <-timer.C:
		g.logger.Debug("status request timed out", "equipment", name, "timeout", timeout)
		return nil, fmt.Errorf("%w: no response from %q within %s", ErrUnreachable, name, timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// TurnOn publishes a turn_on command for the named equipment.
// Source labels the issuing subsystem (e.g. "alarm:rule-id", "api").
// Commands are fire-and-forget: delivery confirmation comes from the
// next status read, not from this call.
func (g *Gateway) TurnOn(ctx context.Context, name, source string) error {
	return g.publishCommand(ctx, name, mqtt.CommandTurnOn, source)
}

// TurnOff publishes a turn_off command for the named equipment.
// Source labels the issuing subsystem (e.g. "interlock:upstream-name").
func (g *Gateway) TurnOff(ctx context.Context, name, source string) error {
	return g.publishCommand(ctx, name, mqtt.CommandTurnOff, source)
}

func (g *Gateway) publishCommand(ctx context.Context, name, command, source string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := mqtt.NewCommandMessage(name, command, source)
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshalling command: %w", err)
	}

	if err := g.bus.Publish(g.topics.BusCommand(name), payload, g.qos, false); err != nil {
		g.logger.Error("command publish failed",
			"equipment", name,
			"command", command,
			"source", source,
			"error", err,
		)
		return fmt.Errorf("%w: %s for %q: %v", ErrCommandFailed, command, name, err)
	}

	g.logger.Debug("command published",
		"equipment", name,
		"command", command,
		"source", source,
		"command_id", msg.ID,
	)
	return nil
}

// handleResponse routes an adapter response to the waiting request.
// Responses with no waiter (late arrivals after a timeout) are logged
// and dropped.
func (g *Gateway) handleResponse(topic string, payload []byte) error {
	var resp mqtt.ResponseMessage
	if err := json.Unmarshal(payload, &resp); err != nil {
		return fmt.Errorf("unmarshalling bus response: %w", err)
	}

	g.pendingMu.Lock()
	ch, ok := g.pending[resp.RequestID]
	if ok {
		delete(g.pending, resp.RequestID)
	}
	g.pendingMu.Unlock()

	if !ok {
		g.logger.Debug("unmatched bus response", "request_id", resp.RequestID, "topic", topic)
		return nil
	}

	// Buffered channel and single delivery per request id: never blocks.
	ch <- resp
	return nil
}

// PendingRequests returns the number of in-flight status requests.
// Exposed for health reporting.
func (g *Gateway) PendingRequests() int {
	g.pendingMu.Lock()
	defer g.pendingMu.Unlock()
	return len(g.pending)
}
