package log

import (
	"time"

	"github.com/ossia-go/paramtree/pkg/wire"
)

// MaxLogPacketDataSize is the maximum raw data included in a packet event.
// Larger packets are truncated.
const MaxLogPacketDataSize = 4096

// Capture stamps events with the identity of one protocol conversation and
// forwards them to a Logger. A Capture with a nil Logger discards
// everything, so callers never check before logging.
type Capture struct {
	Logger       Logger
	Protocol     string
	Device       string
	ConnectionID string
}

// Enabled reports whether events are recorded.
func (c Capture) Enabled() bool {
	return c.Logger != nil
}

// WithConnection returns a copy stamped with another connection id.
func (c Capture) WithConnection(id string) Capture {
	c.ConnectionID = id
	return c
}

func (c Capture) event(dir Direction, layer Layer, cat Category, remote string) Event {
	return Event{
		Timestamp:    time.Now(),
		ConnectionID: c.ConnectionID,
		Direction:    dir,
		Layer:        layer,
		Category:     cat,
		Protocol:     c.Protocol,
		RemoteAddr:   remote,
		Device:       c.Device,
	}
}

// Packet records raw transport bytes. size is the on-the-wire size, which
// may exceed len(data) for framed streams.
func (c Capture) Packet(dir Direction, remote string, data []byte, size int) {
	if c.Logger == nil {
		return
	}
	truncated := false
	if len(data) > MaxLogPacketDataSize {
		data = data[:MaxLogPacketDataSize]
		truncated = true
	}
	e := c.event(dir, LayerTransport, CategoryMessage, remote)
	e.Packet = &PacketEvent{
		Size:      size,
		Data:      append([]byte(nil), data...),
		Truncated: truncated,
	}
	c.Logger.Log(e)
}

// Message records a decoded OSC message.
func (c Capture) Message(dir Direction, remote string, m *wire.Message, size int) {
	if c.Logger == nil || m == nil {
		return
	}
	tags, _ := m.TypeTags()
	e := c.event(dir, LayerWire, CategoryMessage, remote)
	e.Message = &MessageEvent{
		Address:   m.Address,
		TypeTags:  tags,
		Arguments: wire.FormatArguments(m.Arguments),
		Size:      size,
	}
	c.Logger.Log(e)
}

// State records a state transition.
func (c Capture) State(entity StateEntity, remote, oldState, newState, reason string) {
	if c.Logger == nil {
		return
	}
	e := c.event(DirectionIn, LayerProtocol, CategoryState, remote)
	e.StateChange = &StateChangeEvent{
		Entity:   entity,
		OldState: oldState,
		NewState: newState,
		Reason:   reason,
	}
	c.Logger.Log(e)
}

// Error records a failure at layer.
func (c Capture) Error(layer Layer, remote string, err error, context string) {
	if c.Logger == nil || err == nil {
		return
	}
	e := c.event(DirectionIn, layer, CategoryError, remote)
	e.Error = &ErrorEventData{
		Layer:   layer,
		Message: err.Error(),
		Context: context,
	}
	c.Logger.Log(e)
}
