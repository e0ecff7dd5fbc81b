package wsclient

import (
	"errors"
	"fmt"

	"github.com/nugget/hass/internal/wsmsg"
)

// Sentinel error kinds, checked with errors.Is. They name the failure
// categories of §7, not concrete Go types — callers switch on these, not
// on a taxonomy of structs.
var (
	// ErrTransport is a socket-level failure; terminal for the connection.
	ErrTransport = errors.New("wsclient: transport error")
	// ErrAuthenticationFailed means the peer rejected the access token.
	ErrAuthenticationFailed = errors.New("wsclient: authentication failed")
	// ErrUnexpectedMessage means a message's shape was valid but its
	// arrival violated the protocol state machine.
	ErrUnexpectedMessage = errors.New("wsclient: unexpected message")
	// ErrSubscribeRejected is a protocol error specific to subscribe_events.
	ErrSubscribeRejected = errors.New("wsclient: subscribe rejected")
)

// SubscribeError wraps the error object a subscribe_events request was
// rejected with. errors.Is(err, ErrSubscribeRejected) holds for it.
type SubscribeError struct {
	Code    string
	Message string
}

func (e *SubscribeError) Error() string {
	return fmt.Sprintf("subscribe rejected: %s: %s", e.Code, e.Message)
}

func (e *SubscribeError) Is(target error) bool {
	return target == ErrSubscribeRejected
}

func newSubscribeError(obj *wsmsg.ErrorObject) error {
	if obj == nil {
		return ErrSubscribeRejected
	}
	return &SubscribeError{Code: obj.Code, Message: obj.Message}
}
