// Package wsclient implements WsApi, the client side of the Home
// Assistant WebSocket protocol: a single connection shared by many
// concurrent callers, with replies correlated by id and a cooperative
// shutdown path shared with everything else built on internal/shutdown.
package wsclient

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nugget/hass/internal/shutdown"
	"github.com/nugget/hass/internal/wsid"
	"github.com/nugget/hass/internal/wsmsg"
)

// DefaultKeepalive is how often the messenger emits an unsolicited ping.
// The tick is fixed; other traffic on the socket does not reset it.
const DefaultKeepalive = 15 * time.Second

// Config names the endpoint to connect to and the credentials to offer.
type Config struct {
	Scheme    string // "ws" or "wss"; defaults to "ws"
	Host      string
	Port      int
	Token     string
	Keepalive time.Duration // defaults to DefaultKeepalive
	Logger    *slog.Logger  // defaults to slog.Default()
}

func (c Config) url() string {
	u := url.URL{
		Scheme: c.Scheme,
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:   "/api/websocket",
	}
	return u.String()
}

// WsApi is the caller-facing handle on a connected, authenticated
// session. It is safe for concurrent use by many goroutines: every
// operation is a message to the messenger over a channel.
type WsApi struct {
	cmdCh     chan any
	ids       *wsid.Allocator
	logger    *slog.Logger
	closeOnce sync.Once
}

// Connect dials host:port, completes the auth handshake, and returns a
// ready WsApi. The returned error is ErrTransport (dial or pre-auth
// socket failure), ErrAuthenticationFailed (token rejected), or
// ErrUnexpectedMessage (a peer that doesn't speak this protocol), or
// ctx's own error if ctx ends before the handshake completes.
func Connect(ctx context.Context, cfg Config, mgr *shutdown.Manager) (*WsApi, error) {
	if cfg.Scheme == "" {
		cfg.Scheme = "ws"
	}
	if cfg.Keepalive == 0 {
		cfg.Keepalive = DefaultKeepalive
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, cfg.url(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrTransport, cfg.url(), err)
	}

	sub := mgr.Subscribe()
	unhandled := make(chan wsmsg.Message, 8)

	m := &messenger{
		conn:      conn,
		cmdCh:     make(chan any, 128),
		inbound:   make(chan wsmsg.Message, 128),
		sinks:     make(map[uint64]registration),
		unhandled: unhandled, // registered before the tasks below are spawned
		ids:       wsid.NewAllocator(),
		sub:       sub,
		keepalive: cfg.Keepalive,
		logger:    logger,
	}

	go m.readLoop()
	go m.run()

	api := &WsApi{cmdCh: m.cmdCh, ids: m.ids, logger: logger}

	if err := api.authenticate(ctx, cfg.Token, unhandled); err != nil {
		api.Close()
		return nil, err
	}

	api.cmdCh <- cmdUnregisterUnhandled{}
	return api, nil
}

func (api *WsApi) authenticate(ctx context.Context, token string, unhandled chan wsmsg.Message) error {
	required, ok, err := recvUnhandled(ctx, unhandled)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: connection closed before auth_required", ErrTransport)
	}
	if required.Type != wsmsg.TypeAuthRequired {
		return fmt.Errorf("%w: expected auth_required, got %s", ErrUnexpectedMessage, required.Type)
	}

	api.cmdCh <- cmdSend{msg: wsmsg.NewAuth(token)}

	reply, ok, err := recvUnhandled(ctx, unhandled)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: connection closed before auth reply", ErrTransport)
	}
	switch reply.Type {
	case wsmsg.TypeAuthOK:
		return nil
	case wsmsg.TypeAuthInvalid:
		return fmt.Errorf("%w: %s", ErrAuthenticationFailed, reply.Message)
	default:
		return fmt.Errorf("%w: expected auth_ok or auth_invalid, got %s", ErrUnexpectedMessage, reply.Type)
	}
}

func recvUnhandled(ctx context.Context, ch chan wsmsg.Message) (wsmsg.Message, bool, error) {
	select {
	case msg, ok := <-ch:
		return msg, ok, nil
	case <-ctx.Done():
		return wsmsg.Message{}, false, ctx.Err()
	}
}

// SubscribeEvent opens a subscription for a single event type (or every
// event, if eventType is empty) and returns its stream.
func (api *WsApi) SubscribeEvent(ctx context.Context, eventType wsmsg.EventType) (*EventStream, error) {
	return api.SubscribeEvents(ctx, []wsmsg.EventType{eventType})
}

// SubscribeEvents opens one subscription per filter, all feeding a single
// merged stream, per the resolved merged-sink design: the first rejected
// filter surfaces its error; subscriptions that already succeeded stay
// active and the caller is responsible for tearing them down via the
// returned stream's Close.
func (api *WsApi) SubscribeEvents(ctx context.Context, eventTypes []wsmsg.EventType) (*EventStream, error) {
	ch := make(chan wsmsg.Message, 128)
	closed := make(chan struct{})

	var ids []uint64
	var pending []wsmsg.Message

	for _, et := range eventTypes {
		id, err := api.subscribeOne(ctx, et, ch, closed, &pending)
		if err != nil {
			// Filters that already succeeded stay registered on ch; hand
			// back the partial stream so the caller can still Close it.
			return newEventStream(ids, ch, closed, pending), err
		}
		ids = append(ids, id)
	}

	return newEventStream(ids, ch, closed, pending), nil
}

// subscribeOne runs the single-filter subscribe protocol of §4.D against
// a sink that may already be shared with earlier, successful filters.
// Because the sink is shared, an already-subscribed filter's events can
// arrive interleaved with the result this call is waiting for; any
// message that isn't this call's own reply is stashed in *pending for the
// stream to replay before it moves on to live traffic.
func (api *WsApi) subscribeOne(ctx context.Context, eventType wsmsg.EventType, ch chan wsmsg.Message, closed chan struct{}, pending *[]wsmsg.Message) (uint64, error) {
	id := api.ids.Next()

	api.cmdCh <- cmdRegister{id: id, reg: registration{ch: ch, closed: closed}}
	api.cmdCh <- cmdSend{msg: wsmsg.NewSubscribeEvents(id, eventType)}

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return 0, fmt.Errorf("%w: connection closed while subscribing", ErrTransport)
			}
			msgID, hasID := msg.IDValue()
			if !hasID || msgID != id {
				*pending = append(*pending, msg)
				continue
			}
			if msg.Type != wsmsg.TypeResult {
				return 0, fmt.Errorf("%w: expected result, got %s", ErrUnexpectedMessage, msg.Type)
			}
			if msg.Success == nil || !*msg.Success {
				return 0, newSubscribeError(msg.Error)
			}
			return id, nil

		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

// Unsubscribe sends unsubscribe_events for subscriptionID and returns the
// result reply. It does not close any EventStream the subscription feeds
// into — the caller does that separately once it's done reading.
func (api *WsApi) Unsubscribe(ctx context.Context, subscriptionID uint64) (wsmsg.Message, error) {
	id := api.ids.Next()
	ch := make(chan wsmsg.Message, 1)
	closed := make(chan struct{})

	api.cmdCh <- cmdRegister{id: id, reg: registration{ch: ch, closed: closed}}
	api.cmdCh <- cmdSend{msg: wsmsg.NewUnsubscribeEvents(id, subscriptionID)}

	defer close(closed)

	select {
	case reply, ok := <-ch:
		if !ok {
			return wsmsg.Message{}, fmt.Errorf("%w: connection closed while unsubscribing", ErrTransport)
		}
		if reply.Type != wsmsg.TypeResult {
			return wsmsg.Message{}, fmt.Errorf("%w: expected result, got %s", ErrUnexpectedMessage, reply.Type)
		}
		return reply, nil
	case <-ctx.Done():
		return wsmsg.Message{}, ctx.Err()
	}
}

// Close drops the handle's reference to the messenger's command channel,
// which is how a caller tears down the connection: closing cmdCh is
// exactly what tells the messenger's select loop to stop and drop every
// sink. Close is safe to call more than once.
func (api *WsApi) Close() {
	api.closeOnce.Do(func() { close(api.cmdCh) })
}
