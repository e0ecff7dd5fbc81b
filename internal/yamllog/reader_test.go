package yamllog

import (
	"io"
	"strings"
	"testing"
)

func collectDocs(t *testing.T, input string) []string {
	t.Helper()
	r := NewReader(strings.NewReader(input))
	var docs []string
	for {
		doc, ok := r.nextDocument()
		if !ok {
			break
		}
		docs = append(docs, doc)
	}
	return docs
}

// S6: the splitter tolerates an optional leading separator and blank
// runs between documents.
func TestSplitterScenarioS6(t *testing.T) {
	got := collectDocs(t, "---\nA\n---\n\nB\n\n---\nC")
	want := []string{"A", "B", "C"}
	assertDocs(t, got, want)
}

func TestSplitterLeadingSeparatorOptional(t *testing.T) {
	got := collectDocs(t, "A\n---\nB")
	want := []string{"A", "B"}
	assertDocs(t, got, want)
}

func TestSplitterSingleDocument(t *testing.T) {
	got := collectDocs(t, "A")
	assertDocs(t, got, []string{"A"})
}

func TestSplitterSingleDocumentNewlines(t *testing.T) {
	got := collectDocs(t, "A\n\n\n")
	assertDocs(t, got, []string{"A"})
}

func TestSplitterNoInitialMarker(t *testing.T) {
	got := collectDocs(t, "A\n---\nB\n---\nC")
	assertDocs(t, got, []string{"A", "B", "C"})
}

func TestSplitterMultipleDocuments(t *testing.T) {
	got := collectDocs(t, "---\nA\n---\nB\n---\nC")
	assertDocs(t, got, []string{"A", "B", "C"})
}

func TestSplitterMultipleDocumentsNewlines(t *testing.T) {
	got := collectDocs(t, "---\n\nA\n\n---\n\nB\n\n---\n\nC\n\n")
	assertDocs(t, got, []string{"A", "B", "C"})
}

func TestSplitterEmptyInput(t *testing.T) {
	got := collectDocs(t, "")
	if len(got) != 0 {
		t.Fatalf("got %v, want no documents", got)
	}
}

func assertDocs(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d documents %v, want %d %v", len(got), got, len(want), want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("document %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

// A malformed document surfaces its own error without aborting the
// stream; the next Next() call still reaches the following document.
func TestMalformedDocumentIsolated(t *testing.T) {
	input := "type: auth\naccess_token: letmein\n---\n[unterminated\n---\ntype: ping\nid: 1\n"
	r := NewReader(strings.NewReader(input))

	first, err := r.Next()
	if err != nil {
		t.Fatalf("first document: %v", err)
	}
	if first.Type != "auth" {
		t.Fatalf("got type %q", first.Type)
	}

	if _, err := r.Next(); err == nil {
		t.Fatal("expected an error decoding the malformed second document")
	}

	third, err := r.Next()
	if err != nil {
		t.Fatalf("third document: %v", err)
	}
	if third.Type != "ping" {
		t.Fatalf("got type %q", third.Type)
	}

	if _, err := r.Next(); err != io.EOF {
		t.Fatalf("got %v, want io.EOF", err)
	}
}

func TestNextDecodesEventDocument(t *testing.T) {
	input := "type: event\nid: 1\nevent:\n  event_type: state_changed\n  data:\n    entity_id: sensor.x\n  context:\n    id: ctx-1\n"
	r := NewReader(strings.NewReader(input))

	msg, err := r.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if msg.Type != "event" {
		t.Fatalf("got type %q", msg.Type)
	}
	if msg.Event == nil || msg.Event.EventType != "state_changed" {
		t.Fatalf("got event %#v", msg.Event)
	}

	if _, err := r.Next(); err != io.EOF {
		t.Fatalf("got %v, want io.EOF", err)
	}
}
