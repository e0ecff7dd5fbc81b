// Package wsmsg implements the Home Assistant WebSocket wire message
// grammar: a tagged union of messages, JSON codec, and the pure
// ID-rewriting transformation used when the surrogate server replays a
// recorded scenario under a new subscription id.
package wsmsg

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ID is the wire identifier type: a u64 assigned by the allocator in
// internal/wsid. Messages that don't carry an id leave the field nil.
type ID = uint64

// Type is the discriminator of the tagged union. The wire grammar is a
// closed set; Decode never rejects an unrecognized type value (the
// server's dispatcher is expected to reply with a synthetic error result
// for anything it doesn't handle), but the control API rejects an
// unrecognized type at the specific points in the protocol where only a
// known reply is valid (authenticate, subscribe).
type Type string

const (
	TypeAuthRequired      Type = "auth_required"
	TypeAuth              Type = "auth"
	TypeAuthOK            Type = "auth_ok"
	TypeAuthInvalid       Type = "auth_invalid"
	TypeResult            Type = "result"
	TypeSubscribeEvents   Type = "subscribe_events"
	TypeEvent             Type = "event"
	TypeUnsubscribeEvents Type = "unsubscribe_events"
	TypeFireEvent         Type = "fire_event"
	TypeGetStates         Type = "get_states"
	TypePing              Type = "ping"
	TypePong              Type = "pong"
)

// Known reports whether t is one of the closed variant list in §3.
func (t Type) Known() bool {
	switch t {
	case TypeAuthRequired, TypeAuth, TypeAuthOK, TypeAuthInvalid, TypeResult,
		TypeSubscribeEvents, TypeEvent, TypeUnsubscribeEvents, TypeFireEvent,
		TypeGetStates, TypePing, TypePong:
		return true
	default:
		return false
	}
}

// ErrorObject is the error payload of a failed result.
type ErrorObject struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Context identifies the origin of an event or the cause chain between
// related HA actions.
type Context struct {
	ID       string  `json:"id"`
	ParentID *string `json:"parent_id,omitempty"`
	UserID   *string `json:"user_id,omitempty"`
}

// NewContext stamps a fresh context with a random id, the way a real HA
// core does when it synthesizes one. The surrogate server does not call
// it: scenario documents are replayed with their recorded context as is.
func NewContext() Context {
	return Context{ID: uuid.NewString()}
}

// Event is the payload of an `event` message. It carries either the
// "Event" shape (Data/EventType/TimeFired/Origin) or the "Trigger" shape
// (Variables) — Home Assistant's wire format distinguishes them only by
// which fields are present, not by a nested discriminator.
type Event struct {
	// Event shape.
	Data      json.RawMessage `json:"data,omitempty"`
	EventType EventType       `json:"event_type,omitempty"`
	TimeFired *time.Time      `json:"time_fired,omitempty"`
	Origin    string          `json:"origin,omitempty"`

	// Trigger shape.
	Variables json.RawMessage `json:"variables,omitempty"`

	Context Context `json:"context"`
}

// IsTrigger reports whether e carries the Trigger shape rather than the
// Event shape.
func (e *Event) IsTrigger() bool {
	return e != nil && e.Variables != nil
}

// Message is the flattened wire representation of every variant in the
// tagged union described by §3. Only the fields relevant to Type are
// populated; the rest are left at their zero value and omitted on
// encode. Opaque payloads (Result, EventData, Event.Data, Event.Variables)
// are carried as json.RawMessage so unknown subfields round-trip losslessly.
type Message struct {
	Type Type `json:"type"`

	ID *ID `json:"id,omitempty"`

	// auth_required / auth_ok
	HAVersion string `json:"ha_version,omitempty"`
	// auth
	AccessToken string `json:"access_token,omitempty"`
	// auth_invalid
	Message string `json:"message,omitempty"`

	// result
	Success *bool           `json:"success,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ErrorObject    `json:"error,omitempty"`

	// subscribe_events / fire_event (optional/required filter)
	EventType EventType `json:"event_type,omitempty"`

	// event
	Event *Event `json:"event,omitempty"`

	// unsubscribe_events
	Subscription *ID `json:"subscription,omitempty"`

	// fire_event
	EventData json.RawMessage `json:"event_data,omitempty"`
}

// HasID reports whether the variant named by m.Type carries an id, per
// the "carries id" table in §3.
func (m Message) HasID() bool {
	switch m.Type {
	case TypeAuthRequired, TypeAuth, TypeAuthOK, TypeAuthInvalid:
		return false
	default:
		return true
	}
}

// IDValue returns the message's id and whether it has one. A message
// whose variant carries an id but whose ID field is nil (malformed,
// or not yet assigned) reports ok == false.
func (m Message) IDValue() (ID, bool) {
	if m.ID == nil {
		return 0, false
	}
	return *m.ID, true
}

// SetID returns a copy of m with its id set to newID, for every variant
// that carries one; variants without an id are returned unchanged. This
// is a pure, plain field substitution: the copy shares the same
// underlying backing arrays for every json.RawMessage / pointer field,
// so rewriting an id never clones an opaque payload.
//
// set_id(set_id(m, a), b) == set_id(m, b) for any message carrying an id.
func (m Message) SetID(newID ID) Message {
	if !m.HasID() {
		return m
	}
	m.ID = &newID
	return m
}

// Decode parses a single JSON wire message. It never fails because of an
// unrecognized Type — only malformed JSON is an error, in which case the
// error wraps *json.SyntaxError so the offending byte offset is visible
// when available.
func Decode(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		var se *json.SyntaxError
		if errors.As(err, &se) {
			return Message{}, fmt.Errorf("decode message at byte %d: %w", se.Offset, err)
		}
		return Message{}, fmt.Errorf("decode message: %w", err)
	}
	return m, nil
}

// Encode serializes m to its wire JSON form.
func Encode(m Message) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return data, nil
}

func idPtr(id ID) *ID { return &id }

func boolPtr(b bool) *bool { return &b }

// NewAuthRequired builds an auth_required message.
func NewAuthRequired(haVersion string) Message {
	return Message{Type: TypeAuthRequired, HAVersion: haVersion}
}

// NewAuth builds an auth message.
func NewAuth(accessToken string) Message {
	return Message{Type: TypeAuth, AccessToken: accessToken}
}

// NewAuthOK builds an auth_ok message.
func NewAuthOK(haVersion string) Message {
	return Message{Type: TypeAuthOK, HAVersion: haVersion}
}

// NewAuthInvalid builds an auth_invalid message.
func NewAuthInvalid(message string) Message {
	return Message{Type: TypeAuthInvalid, Message: message}
}

// NewResultSuccess builds a bare success result (no result payload),
// as sent immediately in reply to a subscribe_events request.
func NewResultSuccess(id ID) Message {
	return Message{Type: TypeResult, ID: idPtr(id), Success: boolPtr(true)}
}

// NewResultError builds a failure result carrying an error object.
func NewResultError(id ID, code, message string) Message {
	return Message{
		Type:    TypeResult,
		ID:      idPtr(id),
		Success: boolPtr(false),
		Error:   &ErrorObject{Code: code, Message: message},
	}
}

// NewSubscribeEvents builds a subscribe_events request. An empty
// eventType subscribes to every event.
func NewSubscribeEvents(id ID, eventType EventType) Message {
	return Message{Type: TypeSubscribeEvents, ID: idPtr(id), EventType: eventType}
}

// NewUnsubscribeEvents builds an unsubscribe_events request.
func NewUnsubscribeEvents(id ID, subscription ID) Message {
	return Message{Type: TypeUnsubscribeEvents, ID: idPtr(id), Subscription: idPtr(subscription)}
}

// NewPing builds a ping message.
func NewPing(id ID) Message {
	return Message{Type: TypePing, ID: idPtr(id)}
}

// NewPong builds a pong reply.
func NewPong(id ID) Message {
	return Message{Type: TypePong, ID: idPtr(id)}
}
