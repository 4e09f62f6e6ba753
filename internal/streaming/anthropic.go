package streaming

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/velociti/velociti/internal/conf"
	"github.com/velociti/velociti/internal/logger"
)

const (
	anthropicVersion  = "2023-06-01"
	anthropicBaseURL  = "https://api.anthropic.com"
	anthropicMaxToken = 1024
)

// AnthropicProvider talks to the Anthropic Messages API.
type AnthropicProvider struct {
	client  *http.Client
	baseURL string
	apiKey  string
	model   string
	log     logger.Logger
}

// NewAnthropicProvider creates the provider.
func NewAnthropicProvider(s conf.ProviderSettings, client *http.Client, log logger.Logger) *AnthropicProvider {
	base := strings.TrimRight(s.BaseURL, "/")
	if base == "" {
		base = anthropicBaseURL
	}
	return &AnthropicProvider{
		client:  client,
		baseURL: base,
		apiKey:  s.APIKey,
		model:   s.Model,
		log:     log.With(logger.String("provider", "anthropic")),
	}
}

func (p *AnthropicProvider) Name() string         { return "anthropic" }
func (p *AnthropicProvider) DefaultModel() string { return p.model }
func (p *AnthropicProvider) Streaming() bool      { return true }

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
	Stream    bool               `json:"stream,omitempty"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

type anthropicDelta struct {
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
}

func (p *AnthropicProvider) body(req Request, stream bool) anthropicRequest {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = anthropicMaxToken
	}
	return anthropicRequest{
		Model:     modelOr(req.Model, p.model),
		MaxTokens: maxTokens,
		System:    req.System,
		Messages:  []anthropicMessage{{Role: "user", Content: req.Query}},
		Stream:    stream,
	}
}

func (p *AnthropicProvider) header() http.Header {
	h := http.Header{}
	h.Set("x-api-key", p.apiKey)
	h.Set("anthropic-version", anthropicVersion)
	return h
}

// Complete implements Provider.
func (p *AnthropicProvider) Complete(ctx context.Context, req Request) (string, error) {
	resp, err := postJSON(ctx, p.client, p.Name(), p.baseURL+"/v1/messages", p.body(req, false), p.header())
	if err != nil {
		return "", upstreamError(p.Name(), err)
	}
	defer resp.Body.Close()

	var out anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", upstreamError(p.Name(), fmt.Errorf("failed to decode response: %w", err))
	}
	var sb strings.Builder
	for _, block := range out.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String(), nil
}

// Stream implements Streamer. Frames that fail to parse are logged and skipped.
func (p *AnthropicProvider) Stream(ctx context.Context, req Request, onToken TokenFunc) error {
	h := p.header()
	h.Set("Accept", "text/event-stream")
	resp, err := postJSON(ctx, p.client, p.Name(), p.baseURL+"/v1/messages", p.body(req, true), h)
	if err != nil {
		return upstreamError(p.Name(), err)
	}
	defer resp.Body.Close()

	scanner := NewScanner(resp.Body)
	for scanner.Next() {
		ev := scanner.Event()
		switch ev.Type {
		case "content_block_delta":
			var d anthropicDelta
			if err := json.Unmarshal([]byte(ev.Data), &d); err != nil {
				p.log.Warn("skipping malformed stream frame", logger.String("event", ev.Type), logger.Error(err))
				continue
			}
			if d.Delta.Type != "text_delta" || d.Delta.Text == "" {
				continue
			}
			if err := onToken(d.Delta.Text); err != nil {
				return err
			}
		case "message_stop":
			return nil
		case "error":
			var envelope struct {
				Error struct {
					Type    string `json:"type"`
					Message string `json:"message"`
				} `json:"error"`
			}
			msg := ev.Data
			if json.Unmarshal([]byte(ev.Data), &envelope) == nil && envelope.Error.Message != "" {
				msg = envelope.Error.Type + ": " + envelope.Error.Message
			}
			return upstreamError(p.Name(), fmt.Errorf("stream error: %s", msg))
		}
	}
	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return upstreamError(p.Name(), fmt.Errorf("stream read failed: %w", err))
	}
	return nil
}
