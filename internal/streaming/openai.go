package streaming

import (
	"context"
	"io"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
	"github.com/velociti/velociti/internal/conf"
	"github.com/velociti/velociti/internal/errors"
)

// OpenAIProvider streams chat completions from the OpenAI API.
type OpenAIProvider struct {
	client *openai.Client
	model  string
}

// NewOpenAIProvider creates the provider. A nil httpClient uses the library default.
func NewOpenAIProvider(s conf.ProviderSettings, httpClient *http.Client) *OpenAIProvider {
	cfg := openai.DefaultConfig(s.APIKey)
	if s.BaseURL != "" {
		cfg.BaseURL = s.BaseURL
	}
	if httpClient != nil {
		cfg.HTTPClient = httpClient
	}
	model := s.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIProvider{client: openai.NewClientWithConfig(cfg), model: model}
}

func (p *OpenAIProvider) Name() string         { return "openai" }
func (p *OpenAIProvider) DefaultModel() string { return p.model }
func (p *OpenAIProvider) Streaming() bool      { return true }

func (p *OpenAIProvider) request(req Request) openai.ChatCompletionRequest {
	var messages []openai.ChatCompletionMessage
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Query})
	return openai.ChatCompletionRequest{
		Model:     modelOr(req.Model, p.model),
		Messages:  messages,
		MaxTokens: req.MaxTokens,
	}
}

// Complete implements Provider.
func (p *OpenAIProvider) Complete(ctx context.Context, req Request) (string, error) {
	resp, err := p.client.CreateChatCompletion(ctx, p.request(req))
	if err != nil {
		return "", upstreamError(p.Name(), err)
	}
	if len(resp.Choices) == 0 {
		return "", upstreamError(p.Name(), errors.NewStd("empty completion"))
	}
	return resp.Choices[0].Message.Content, nil
}

// Stream implements Streamer.
func (p *OpenAIProvider) Stream(ctx context.Context, req Request, onToken TokenFunc) error {
	r := p.request(req)
	r.Stream = true
	stream, err := p.client.CreateChatCompletionStream(ctx, r)
	if err != nil {
		return upstreamError(p.Name(), err)
	}
	defer stream.Close()

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return upstreamError(p.Name(), err)
		}
		for _, choice := range resp.Choices {
			if choice.Delta.Content == "" {
				continue
			}
			if err := onToken(choice.Delta.Content); err != nil {
				return err
			}
		}
	}
}
