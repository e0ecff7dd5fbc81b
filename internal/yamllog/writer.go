package yamllog

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/nugget/hass/internal/wsmsg"
)

// Writer appends Messages to an underlying stream as separator-delimited
// YAML documents, the inverse of Reader. Each call to Write emits one
// document, preceded by a separator line on every call but a Writer's
// first, so the output is valid for Reader to consume from the start.
// Nothing follows the last document: a new Writer appending to a file
// that already holds documents joins its first document onto the last.
type Writer struct {
	w     io.Writer
	wrote bool
}

// NewWriter wraps w for document-at-a-time appending.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Write encodes msg as JSON, re-decodes it to a generic value, and
// marshals that as YAML — the mirror of decodeDocument's YAML-to-JSON
// bridge — then appends it as its own document.
func (w *Writer) Write(msg wsmsg.Message) error {
	data, err := wsmsg.Encode(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	doc, err := jsonToYAML(data)
	if err != nil {
		return fmt.Errorf("convert message to yaml: %w", err)
	}

	if w.wrote {
		if _, err := io.WriteString(w.w, separator+"\n"); err != nil {
			return fmt.Errorf("write separator: %w", err)
		}
	}
	w.wrote = true

	if _, err := w.w.Write(doc); err != nil {
		return fmt.Errorf("write document: %w", err)
	}
	return nil
}

func jsonToYAML(data []byte) ([]byte, error) {
	var generic any
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return nil, err
	}
	return yaml.Marshal(generic)
}
