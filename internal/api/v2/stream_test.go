package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/velociti/velociti/internal/streaming"
)

func readFrames(t *testing.T, body string) []streaming.Frame {
	t.Helper()
	var frames []streaming.Frame
	sc := streaming.NewScanner(strings.NewReader(body))
	for sc.Next() {
		var f streaming.Frame
		require.NoError(t, json.Unmarshal([]byte(sc.Event().Data), &f))
		frames = append(frames, f)
	}
	require.NoError(t, sc.Err())
	return frames
}

func TestStreamQuery_SyntheticChunks(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)
	rec := api.do(t, http.MethodPost, "/api/llm/stream", `{"query":"How are competitor fares on LHR-JFK?","provider":"canned"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))

	frames := readFrames(t, rec.Body.String())
	require.GreaterOrEqual(t, len(frames), 3, "start, at least one chunk, end")

	start, end := frames[0], frames[len(frames)-1]
	assert.Equal(t, streaming.FrameStart, start.Type)
	assert.Equal(t, "canned", start.Provider)
	assert.Equal(t, "velociti-canned", start.Model)

	var joined strings.Builder
	for _, f := range frames[1 : len(frames)-1] {
		require.Equal(t, streaming.FrameChunk, f.Type)
		joined.WriteString(f.Content)
	}
	assert.Equal(t, streaming.FrameEnd, end.Type)
	assert.Equal(t, end.Content, joined.String())
	assert.Equal(t, len(end.Content)/4, end.Tokens)
	assert.Contains(t, end.Content, "competitive pricing")
}

func TestStreamQuery_DefaultProvider(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)
	rec := api.do(t, http.MethodPost, "/api/llm/stream", `{"query":"network demand outlook"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	frames := readFrames(t, rec.Body.String())
	require.NotEmpty(t, frames)
	assert.Equal(t, "canned", frames[0].Provider)
}

func TestStreamQuery_UpstreamErrorFrame(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)
	rec := api.do(t, http.MethodPost, "/api/llm/stream", `{"query":"anything","provider":"broken"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	frames := readFrames(t, rec.Body.String())
	require.Len(t, frames, 2)
	assert.Equal(t, streaming.FrameStart, frames[0].Type)
	assert.Equal(t, streaming.FrameError, frames[1].Type)
	assert.Contains(t, frames[1].Error, "upstream unavailable")
}

func TestStreamQuery_RejectedBeforeStreaming(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)
	tests := []struct {
		name string
		body string
	}{
		{"missing query", `{"provider":"canned"}`},
		{"unknown provider", `{"query":"hi","provider":"mystery"}`},
		{"malformed body", `{"query":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := api.do(t, http.MethodPost, "/api/llm/stream", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")
			assert.NotEmpty(t, decodeJSON[ErrorResponse](t, rec).Error)
		})
	}
}

func TestListProviders(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)
	rec := api.do(t, http.MethodGet, "/api/llm/providers", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"providers":["broken","canned"]}`, rec.Body.String())
}
