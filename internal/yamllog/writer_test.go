package yamllog

import (
	"bytes"
	"encoding/json"
	"io"
	"testing"

	"github.com/nugget/hass/internal/wsmsg"
)

func TestWriterRoundTripsThroughReader(t *testing.T) {
	events := []wsmsg.Message{
		{
			Type: wsmsg.TypeEvent,
			Event: &wsmsg.Event{
				Data:      json.RawMessage(`{"entity_id":"sensor.motion"}`),
				EventType: wsmsg.EventStateChanged,
				Context:   wsmsg.NewContext(),
			},
		},
		{
			Type: wsmsg.TypeEvent,
			Event: &wsmsg.Event{
				Data:      json.RawMessage(`{"entity_id":"binary_sensor.door"}`),
				EventType: wsmsg.EventStateChanged,
				Context:   wsmsg.NewContext(),
			},
		},
	}

	var buf bytes.Buffer
	w := NewWriter(&buf)
	for _, ev := range events {
		if err := w.Write(ev); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	r := NewReader(&buf)
	var got []wsmsg.Message
	for {
		msg, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		got = append(got, msg)
	}

	if len(got) != len(events) {
		t.Fatalf("got %d documents, want %d", len(got), len(events))
	}
	for i, ev := range events {
		if got[i].Event == nil || string(got[i].Event.Data) != string(ev.Event.Data) {
			t.Errorf("document %d: got %#v, want event data %s", i, got[i], ev.Event.Data)
		}
	}
}
