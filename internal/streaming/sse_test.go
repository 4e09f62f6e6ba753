package streaming

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scanAll(t *testing.T, input string) []Event {
	t.Helper()
	s := NewScanner(strings.NewReader(input))
	var events []Event
	for s.Next() {
		events = append(events, s.Event())
	}
	require.NoError(t, s.Err())
	return events
}

func TestScanner(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  []Event
	}{
		{
			name:  "typed events",
			input: "event: ping\ndata: {}\n\nevent: message_stop\ndata: {\"type\":\"message_stop\"}\n\n",
			want: []Event{
				{Type: "ping", Data: "{}"},
				{Type: "message_stop", Data: `{"type":"message_stop"}`},
			},
		},
		{
			name:  "multi-line data is joined",
			input: "data: first\ndata: second\n\n",
			want:  []Event{{Data: "first\nsecond"}},
		},
		{
			name:  "comments and unknown fields are ignored",
			input: ": keepalive\nid: 7\nretry: 100\ndata: x\n\n",
			want:  []Event{{Data: "x"}},
		},
		{
			name:  "crlf line endings",
			input: "event: a\r\ndata: 1\r\n\r\n",
			want:  []Event{{Type: "a", Data: "1"}},
		},
		{
			name:  "final event without blank line",
			input: "data: tail",
			want:  []Event{{Data: "tail"}},
		},
		{
			name:  "event without data is dropped",
			input: "event: lonely\n\ndata: kept\n\n",
			want:  []Event{{Data: "kept"}},
		},
		{
			name:  "empty input",
			input: "",
			want:  nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, scanAll(t, tt.input))
		})
	}
}

func TestFrame_MarshalShapes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		frame Frame
		want  string
	}{
		{Frame{Type: FrameStart, Provider: "openai", Model: "gpt-4o-mini", Content: "ignored"}, `{"type":"start","provider":"openai","model":"gpt-4o-mini"}`},
		{Frame{Type: FrameChunk, Content: "Hello"}, `{"type":"chunk","content":"Hello"}`},
		{Frame{Type: FrameEnd, Content: "", Tokens: 0}, `{"type":"end","content":"","tokens":0}`},
		{Frame{Type: FrameError, Error: "boom"}, `{"type":"error","error":"boom"}`},
	}
	for _, tt := range tests {
		b, err := json.Marshal(tt.frame)
		require.NoError(t, err)
		assert.JSONEq(t, tt.want, string(b))
	}

	_, err := json.Marshal(Frame{Type: "bogus"})
	require.Error(t, err)
}

func TestEventWriter_WritesDataLinesAndFlushes(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	SetHeaders(rec.Header())
	w := NewEventWriter(rec)

	require.NoError(t, w.WriteFrame(Frame{Type: FrameChunk, Content: "a"}))
	require.NoError(t, w.WriteFrame(Frame{Type: FrameEnd, Content: "a", Tokens: 0}))

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.True(t, rec.Flushed)
	assert.Equal(t,
		"data: {\"type\":\"chunk\",\"content\":\"a\"}\n\n"+
			"data: {\"type\":\"end\",\"content\":\"a\",\"tokens\":0}\n\n",
		rec.Body.String())

	// the client side of the same format round-trips through the scanner
	events := scanAll(t, rec.Body.String())
	require.Len(t, events, 2)
	var f Frame
	require.NoError(t, json.Unmarshal([]byte(events[1].Data), &f))
	assert.Equal(t, Frame{Type: FrameEnd, Content: "a"}, f)
}
