package wsclient

import (
	"context"
	"sync"

	"github.com/nugget/hass/internal/wsmsg"
)

// EventStream is the caller-held end of one or more subscriptions sharing
// a sink (subscribe_event opens one subscription; subscribe_events opens
// several onto the same stream). Reading it drains buffered events first,
// then the live channel — see the pending-buffer note on subscribeOne.
type EventStream struct {
	ids       []uint64
	ch        chan wsmsg.Message
	closed    chan struct{}
	pending   []wsmsg.Message
	closeOnce sync.Once
}

func newEventStream(ids []uint64, ch chan wsmsg.Message, closed chan struct{}, pending []wsmsg.Message) *EventStream {
	return &EventStream{ids: ids, ch: ch, closed: closed, pending: pending}
}

// IDs returns the subscription ids feeding this stream.
func (s *EventStream) IDs() []uint64 {
	return append([]uint64(nil), s.ids...)
}

// Next blocks for the next message on the stream. ok is false once the
// messenger has dropped the sink — a transport failure, a shutdown, or
// this stream's own Close — and no further events will arrive.
func (s *EventStream) Next(ctx context.Context) (msg wsmsg.Message, ok bool, err error) {
	select {
	case <-s.closed:
		return wsmsg.Message{}, false, nil
	default:
	}

	if len(s.pending) > 0 {
		msg = s.pending[0]
		s.pending = s.pending[1:]
		return msg, true, nil
	}

	select {
	case msg, ok = <-s.ch:
		return msg, ok, nil
	case <-s.closed:
		return wsmsg.Message{}, false, nil
	case <-ctx.Done():
		return wsmsg.Message{}, false, ctx.Err()
	}
}

// Close is the client's unsubscribe gesture for local resource
// reclamation: it tells the messenger to stop forwarding to this sink and
// drop it. It does not send unsubscribe_events on the wire — call WsApi's
// Unsubscribe for that.
func (s *EventStream) Close() {
	s.closeOnce.Do(func() { close(s.closed) })
}
