package wsclient

import (
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nugget/hass/internal/shutdown"
	"github.com/nugget/hass/internal/wsid"
	"github.com/nugget/hass/internal/wsmsg"
)

// registration is one subscriber's sink, along with the channel it closes
// to tell the messenger to stop forwarding — Go has no destructors, so
// dropping a receiver has to be this explicit.
type registration struct {
	ch     chan wsmsg.Message
	closed chan struct{}
}

// Commands sent to the messenger over its command channel. Registration
// must always happen before the message that will provoke a reply is
// sent, or the reply can arrive and be dropped before anyone is
// listening for it.
type cmdSend struct{ msg wsmsg.Message }
type cmdRegister struct {
	id  uint64
	reg registration
}
type cmdRegisterUnhandled struct{ ch chan wsmsg.Message }
type cmdUnregisterUnhandled struct{}

// messenger is the sole owner of the socket. Every other goroutine talks
// to it only through cmdCh; this removes any need for a mutex around the
// connection.
type messenger struct {
	conn      *websocket.Conn
	cmdCh     chan any
	inbound   chan wsmsg.Message
	sinks     map[uint64]registration
	unhandled chan wsmsg.Message
	ids       *wsid.Allocator
	sub       *shutdown.Subscriber
	keepalive time.Duration
	logger    *slog.Logger
}

// run is the messenger's event loop: a fair selection among the next
// command, the next inbound frame, the keepalive tick, and the shutdown
// signal. It returns once the connection is gone, in which case every
// sink still registered is dropped so callers observe end-of-stream.
func (m *messenger) run() {
	defer m.sub.Release()
	defer m.conn.Close()
	defer m.dropAll()

	ticker := time.NewTicker(m.keepalive)
	defer ticker.Stop()

	for {
		select {
		case cmd, ok := <-m.cmdCh:
			if !ok {
				return
			}
			if !m.handleCommand(cmd) {
				return
			}

		case msg, ok := <-m.inbound:
			if !ok {
				return
			}
			if !m.dispatch(msg) {
				return
			}

		case <-ticker.C:
			id := m.ids.Next()
			if !m.send(wsmsg.NewPing(id)) {
				return
			}

		case <-m.sub.Done():
			return
		}
	}
}

func (m *messenger) handleCommand(cmd any) bool {
	switch c := cmd.(type) {
	case cmdSend:
		return m.send(c.msg)
	case cmdRegister:
		m.sinks[c.id] = c.reg
		return true
	case cmdRegisterUnhandled:
		m.unhandled = c.ch
		return true
	case cmdUnregisterUnhandled:
		m.unhandled = nil
		return true
	default:
		m.logger.Warn("unknown messenger command", "command", cmd)
		return true
	}
}

func (m *messenger) send(msg wsmsg.Message) bool {
	data, err := wsmsg.Encode(msg)
	if err != nil {
		m.logger.Error("encode outbound message", "err", err, "type", msg.Type)
		return true // malformed caller input, not a transport failure
	}
	if err := m.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		m.logger.Error("write to socket", "err", err)
		return false
	}
	return true
}

// dispatch routes one decoded inbound message to its sink, per the rules
// of §4.D. It returns false only when the shutdown signal preempted a
// blocked send.
func (m *messenger) dispatch(msg wsmsg.Message) bool {
	id, ok := msg.IDValue()
	if !ok {
		return m.forwardUnhandled(msg)
	}

	reg, ok := m.sinks[id]
	if !ok {
		m.logger.Warn("dropping message for unregistered id", "id", id, "type", msg.Type)
		return true
	}

	select {
	case reg.ch <- msg:
		return true
	case <-reg.closed:
		// A merged stream registers one ch under several ids; drop them
		// all so no later dispatch sends on the closed channel.
		for other, r := range m.sinks {
			if r.ch == reg.ch {
				delete(m.sinks, other)
			}
		}
		close(reg.ch)
		return true
	case <-m.sub.Done():
		return false
	}
}

func (m *messenger) forwardUnhandled(msg wsmsg.Message) bool {
	if m.unhandled == nil {
		m.logger.Warn("dropping id-less message with no unhandled sink", "type", msg.Type)
		return true
	}
	select {
	case m.unhandled <- msg:
		return true
	case <-m.sub.Done():
		return false
	}
}

func (m *messenger) dropAll() {
	closedChs := make(map[chan wsmsg.Message]bool)
	for id, reg := range m.sinks {
		if !closedChs[reg.ch] {
			close(reg.ch)
			closedChs[reg.ch] = true
		}
		delete(m.sinks, id)
	}
	if m.unhandled != nil {
		close(m.unhandled)
		m.unhandled = nil
	}
}

// readLoop feeds decoded inbound frames to the messenger's select loop.
// It is the sole sender on inbound and closes it when the socket is
// gone, which is how the messenger learns about a read-side transport
// failure without a second dedicated error channel.
func (m *messenger) readLoop() {
	defer close(m.inbound)

	for {
		typ, data, err := m.conn.ReadMessage()
		if err != nil {
			return
		}
		if typ == websocket.BinaryMessage {
			m.logger.Warn("dropping binary frame")
			continue
		}

		msg, err := wsmsg.Decode(data)
		if err != nil {
			m.logger.Error("decode inbound message", "err", err)
			continue
		}

		select {
		case m.inbound <- msg:
		case <-m.sub.Done():
			return
		}
	}
}
