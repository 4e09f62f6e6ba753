package streaming

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/velociti/velociti/internal/conf"
)

const geminiBaseURL = "https://generativelanguage.googleapis.com"

// GeminiProvider calls Gemini generateContent. It returns whole answers,
// so the relay synthesizes chunks for it.
type GeminiProvider struct {
	client  *http.Client
	baseURL string
	apiKey  string
	model   string
}

// NewGeminiProvider creates the provider.
func NewGeminiProvider(s conf.ProviderSettings, client *http.Client) *GeminiProvider {
	base := strings.TrimRight(s.BaseURL, "/")
	if base == "" {
		base = geminiBaseURL
	}
	model := s.Model
	if model == "" {
		model = "gemini-1.5-flash"
	}
	return &GeminiProvider{client: client, baseURL: base, apiKey: s.APIKey, model: model}
}

func (p *GeminiProvider) Name() string         { return "gemini" }
func (p *GeminiProvider) DefaultModel() string { return p.model }
func (p *GeminiProvider) Streaming() bool      { return false }

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
	Role  string       `json:"role,omitempty"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature,omitempty"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	Contents          []geminiContent         `json:"contents"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

// Complete implements Provider.
func (p *GeminiProvider) Complete(ctx context.Context, req Request) (string, error) {
	body := geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: req.Query}}}},
	}
	if req.System != "" {
		body.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.System}}}
	}
	if req.MaxTokens > 0 {
		body.GenerationConfig = &geminiGenerationConfig{MaxOutputTokens: req.MaxTokens}
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", p.baseURL, url.PathEscape(modelOr(req.Model, p.model)))
	h := http.Header{}
	h.Set("x-goog-api-key", p.apiKey)
	resp, err := postJSON(ctx, p.client, p.Name(), endpoint, body, h)
	if err != nil {
		return "", upstreamError(p.Name(), err)
	}
	defer resp.Body.Close()

	var out geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", upstreamError(p.Name(), fmt.Errorf("failed to decode response: %w", err))
	}
	if len(out.Candidates) == 0 {
		return "", upstreamError(p.Name(), fmt.Errorf("no candidates returned"))
	}
	var sb strings.Builder
	for _, part := range out.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	return sb.String(), nil
}
