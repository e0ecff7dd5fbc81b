// Package yamllog reads a scenario file: a sequence of YAML documents,
// each one a wire message, separated by a line containing only "---".
// The surrogate server bursts these as events during playback; the
// haevlo recording binary writes them.
package yamllog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nugget/hass/internal/wsmsg"
)

const separator = "---"

// Reader splits a byte stream into documents and decodes each one as a
// Message. It is finite and forward-only: once exhausted it stays
// exhausted.
type Reader struct {
	scanner *bufio.Scanner
	done    bool
}

// NewReader wraps r for document-at-a-time reading.
func NewReader(r io.Reader) *Reader {
	return &Reader{scanner: bufio.NewScanner(r)}
}

// Next returns the next document's message. It returns io.EOF once the
// stream is exhausted. A malformed document is reported as its own error
// without affecting later documents — callers that want "skip and
// continue" playback should just log and call Next again.
func (r *Reader) Next() (wsmsg.Message, error) {
	doc, ok := r.nextDocument()
	if !ok {
		return wsmsg.Message{}, io.EOF
	}
	return decodeDocument(doc)
}

// Err reports the underlying scan error, if the stream ended early
// because of one rather than reaching a clean EOF.
func (r *Reader) Err() error {
	return r.scanner.Err()
}

// nextDocument collects the lines of one document, consuming (but not
// including) the boundary "---" that follows it. The first document may
// or may not be preceded by a leading "---"; blank lines around a
// document's content are trimmed from both ends.
func (r *Reader) nextDocument() (string, bool) {
	if r.done {
		return "", false
	}

	var lines []string
	sawContent := false

	flush := func() (string, bool) {
		start := 0
		for start < len(lines) && strings.TrimSpace(lines[start]) == "" {
			start++
		}
		end := len(lines)
		for end > start && strings.TrimSpace(lines[end-1]) == "" {
			end--
		}
		if start >= end {
			return "", false
		}
		return strings.Join(lines[start:end], "\n"), true
	}

	for r.scanner.Scan() {
		line := r.scanner.Text()
		if strings.TrimSpace(line) == separator {
			if sawContent {
				return flush()
			}
			continue // leading separator before any content: skip
		}
		if strings.TrimSpace(line) != "" {
			sawContent = true
		}
		lines = append(lines, line)
	}

	r.done = true
	if !sawContent {
		return "", false
	}
	return flush()
}

// decodeDocument bridges YAML to the JSON-tagged Message struct: decode
// to a generic value, re-marshal to JSON, then decode that through
// wsmsg.Decode. This avoids carrying a parallel set of yaml struct tags
// alongside the json ones on every wsmsg type.
func decodeDocument(doc string) (wsmsg.Message, error) {
	var generic any
	if err := yaml.Unmarshal([]byte(doc), &generic); err != nil {
		return wsmsg.Message{}, fmt.Errorf("parse yaml document: %w", err)
	}

	data, err := json.Marshal(normalizeYAML(generic))
	if err != nil {
		return wsmsg.Message{}, fmt.Errorf("re-encode yaml document as json: %w", err)
	}

	msg, err := wsmsg.Decode(data)
	if err != nil {
		return wsmsg.Message{}, fmt.Errorf("decode document: %w", err)
	}
	return msg, nil
}

// normalizeYAML rewrites the map[string]any / map[any]any shapes
// gopkg.in/yaml.v3 produces into something encoding/json can marshal:
// json.Marshal rejects map[any]any keys outright.
func normalizeYAML(v any) any {
	switch vv := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(vv))
		for k, val := range vv {
			out[k] = normalizeYAML(val)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(vv))
		for k, val := range vv {
			out[fmt.Sprint(k)] = normalizeYAML(val)
		}
		return out
	case []any:
		out := make([]any, len(vv))
		for i, val := range vv {
			out[i] = normalizeYAML(val)
		}
		return out
	default:
		return vv
	}
}
