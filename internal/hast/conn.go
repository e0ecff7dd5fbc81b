package hast

import (
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/nugget/hass/internal/shutdown"
	"github.com/nugget/hass/internal/wsmsg"
)

// conn is one accepted socket's state machine: setup (optional) → greet →
// await_auth → operational → closed. It owns its own websocket.Conn;
// sending to the socket always goes through outbox so that exactly one
// goroutine (writer) ever calls ws.WriteMessage, mirroring the client
// messenger's single-owner discipline.
type conn struct {
	ws     *websocket.Conn
	server *Server
	outbox *unbounded[wsmsg.Message]
	sub    *shutdown.Subscriber
	logger *slog.Logger
	msgWG  sync.WaitGroup
}

func (c *conn) run() {
	defer c.sub.Release()
	defer c.ws.Close()

	go c.writer()

	// readFrame blocks in a plain syscall-level read with no way to
	// observe c.sub directly; closing the socket out from under it is
	// what actually unblocks it when shutdown fires.
	go func() {
		<-c.sub.Done()
		c.ws.Close()
	}()

	cfg := connConfig{
		token:     c.server.cfg.Token,
		haVersion: c.server.cfg.HAVersion,
		yamlDir:   c.server.cfg.YAMLDir,
		scenario:  c.server.cfg.Scenario,
	}

	if cfg.scenario == "" {
		var err error
		cfg, err = c.runSetup(cfg)
		if err != nil {
			c.logger.Warn("setup phase did not complete", "err", err)
			c.outbox.Close()
			return
		}
	}

	c.outbox.Send(wsmsg.NewAuthRequired(cfg.haVersion))

	if !c.runAuth(cfg) {
		c.outbox.Close()
		return
	}

	c.runOperational(cfg)

	// Every handleOperational goroutine has sent everything it's going
	// to before this returns, so closing outbox here can't drop a
	// message that was still in flight.
	c.msgWG.Wait()
	c.outbox.Close()
}

// writer is the sole sender on c.ws; it drains outbox and relays each
// message onto the socket in the order it was enqueued.
func (c *conn) writer() {
	for {
		select {
		case msg, ok := <-c.outbox.Recv():
			if !ok {
				return
			}
			data, err := wsmsg.Encode(msg)
			if err != nil {
				c.logger.Error("encode outbound message", "err", err, "type", msg.Type)
				continue
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Warn("write to socket", "err", err)
				return
			}
		case <-c.sub.Done():
			return
		}
	}
}

// readFrame returns the next text frame's raw bytes, dropping binary
// frames (a protocol violation on receipt, per §6, but one this
// surrogate merely logs rather than treats as fatal). ok is false once
// the socket is gone.
func (c *conn) readFrame() ([]byte, bool) {
	for {
		typ, data, err := c.ws.ReadMessage()
		if err != nil {
			return nil, false
		}
		if typ == websocket.BinaryMessage {
			c.logger.Warn("dropping binary frame")
			continue
		}
		return data, true
	}
}

// runAuth handles await_auth: repeated auth attempts until one matches
// cfg.token, or the socket closes. A wrong token is not terminal — the
// state machine stays in await_auth and lets the client decide whether
// to retry or disconnect.
func (c *conn) runAuth(cfg connConfig) bool {
	for {
		data, ok := c.readFrame()
		if !ok {
			return false
		}

		msg, err := wsmsg.Decode(data)
		if err != nil {
			c.logger.Warn("decode during auth", "err", err)
			continue
		}
		if msg.Type != wsmsg.TypeAuth {
			c.logger.Warn("unexpected message during auth", "type", msg.Type)
			continue
		}

		if msg.AccessToken == cfg.token {
			c.outbox.Send(wsmsg.NewAuthOK(cfg.haVersion))
			return true
		}
		c.outbox.Send(wsmsg.NewAuthInvalid("wrong token"))
	}
}

// runOperational reads until the socket closes, spawning one goroutine
// per inbound message so a long scenario burst never blocks the reader
// from picking up the next request (e.g. an unsubscribe or a ping).
func (c *conn) runOperational(cfg connConfig) {
	for {
		data, ok := c.readFrame()
		if !ok {
			return
		}

		msg, err := wsmsg.Decode(data)
		if err != nil {
			c.logger.Warn("decode during operational", "err", err)
			continue
		}

		c.msgWG.Add(1)
		go c.handleOperational(cfg, msg)
	}
}

func (c *conn) handleOperational(cfg connConfig, msg wsmsg.Message) {
	defer c.msgWG.Done()

	id, _ := msg.IDValue()

	switch msg.Type {
	case wsmsg.TypeSubscribeEvents:
		if !c.outbox.TrySend(wsmsg.NewResultSuccess(id), c.sub.Done()) {
			return
		}
		c.playScenario(cfg, id)

	case wsmsg.TypePing:
		c.outbox.TrySend(wsmsg.NewPong(id), c.sub.Done())

	case wsmsg.TypeUnsubscribeEvents:
		// Playback is an instantaneous burst, not an ongoing stream, so
		// there is nothing left running to cancel by the time a client
		// can ask — acknowledging is enough to let the client's own
		// sink teardown proceed.
		c.outbox.TrySend(wsmsg.NewResultSuccess(id), c.sub.Done())

	default:
		c.outbox.TrySend(wsmsg.NewResultError(id, "000", "unexpected message"), c.sub.Done())
	}
}
