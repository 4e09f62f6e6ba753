package streaming

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Event is one parsed upstream Server-Sent Event.
type Event struct {
	Type string
	Data string
}

// Scanner reads Server-Sent Events from an upstream response body. Events
// are delimited by blank lines; multiple data lines are joined with "\n".
// Comments and unknown fields are ignored.
type Scanner struct {
	reader  *bufio.Reader
	current Event
	err     error
}

// NewScanner creates a Scanner over r.
func NewScanner(r io.Reader) *Scanner {
	return &Scanner{reader: bufio.NewReaderSize(r, 64*1024)}
}

// Next advances to the next event. It returns false at EOF or on error;
// call Err to tell them apart.
func (s *Scanner) Next() bool {
	if s.err != nil {
		return false
	}
	s.current = Event{}

	var (
		data      []string
		eventType string
		hasData   bool
	)
	for {
		line, err := s.reader.ReadString('\n')
		if err != nil && line == "" {
			s.err = err
			if err == io.EOF && hasData {
				s.current = Event{Type: eventType, Data: strings.Join(data, "\n")}
				return true
			}
			return false
		}
		line = strings.TrimRight(line, "\r\n")

		if line == "" {
			if hasData {
				s.current = Event{Type: eventType, Data: strings.Join(data, "\n")}
				return true
			}
			eventType = ""
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, ok := strings.Cut(line, ":")
		if !ok {
			field, value = line, ""
		}
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "data":
			data = append(data, value)
			hasData = true
		case "event":
			eventType = value
		}

		// a final line without trailing newline
		if err == io.EOF {
			s.err = err
			if hasData {
				s.current = Event{Type: eventType, Data: strings.Join(data, "\n")}
				return true
			}
			return false
		}
	}
}

// Event returns the event parsed by the last successful Next.
func (s *Scanner) Event() Event {
	return s.current
}

// Err returns the first non-EOF error.
func (s *Scanner) Err() error {
	if s.err == io.EOF {
		return nil
	}
	return s.err
}

// Frame types sent to the browser.
const (
	FrameStart = "start"
	FrameChunk = "chunk"
	FrameEnd   = "end"
	FrameError = "error"
)

// Frame is one downstream event. Each type serializes to its own shape:
//
//	start: {type, provider, model}
//	chunk: {type, content}
//	end:   {type, content, tokens}
//	error: {type, error}
type Frame struct {
	Type     string
	Provider string
	Model    string
	Content  string
	Tokens   int
	Error    string
}

// MarshalJSON implements json.Marshaler.
func (f Frame) MarshalJSON() ([]byte, error) {
	switch f.Type {
	case FrameStart:
		return json.Marshal(struct {
			Type     string `json:"type"`
			Provider string `json:"provider"`
			Model    string `json:"model"`
		}{f.Type, f.Provider, f.Model})
	case FrameChunk:
		return json.Marshal(struct {
			Type    string `json:"type"`
			Content string `json:"content"`
		}{f.Type, f.Content})
	case FrameEnd:
		return json.Marshal(struct {
			Type    string `json:"type"`
			Content string `json:"content"`
			Tokens  int    `json:"tokens"`
		}{f.Type, f.Content, f.Tokens})
	case FrameError:
		return json.Marshal(struct {
			Type  string `json:"type"`
			Error string `json:"error"`
		}{f.Type, f.Error})
	default:
		return nil, fmt.Errorf("unknown frame type %q", f.Type)
	}
}

// UnmarshalJSON implements json.Unmarshaler.
func (f *Frame) UnmarshalJSON(b []byte) error {
	var raw struct {
		Type     string `json:"type"`
		Provider string `json:"provider"`
		Model    string `json:"model"`
		Content  string `json:"content"`
		Tokens   int    `json:"tokens"`
		Error    string `json:"error"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*f = Frame(raw)
	return nil
}

// FrameWriter writes frames to a client.
type FrameWriter interface {
	WriteFrame(f Frame) error
}

// EventWriter writes frames as "data: <json>\n\n" and flushes after each.
type EventWriter struct {
	w       io.Writer
	flusher http.Flusher
}

// NewEventWriter wraps w. Flushing is skipped when w is not an http.Flusher.
func NewEventWriter(w io.Writer) *EventWriter {
	f, _ := w.(http.Flusher)
	return &EventWriter{w: w, flusher: f}
}

// WriteFrame implements FrameWriter.
func (e *EventWriter) WriteFrame(f Frame) error {
	b, err := json.Marshal(f)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(e.w, "data: %s\n\n", b); err != nil {
		return err
	}
	if e.flusher != nil {
		e.flusher.Flush()
	}
	return nil
}

// SetHeaders prepares h for an event stream.
func SetHeaders(h http.Header) {
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
}
