package streaming

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/velociti/velociti/internal/conf"
	"github.com/velociti/velociti/internal/logger"
)

const bedrockAnthropicVersion = "bedrock-2023-05-31"

type bedrockClient interface {
	InvokeModel(ctx context.Context, in *bedrockruntime.InvokeModelInput, opts ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
	InvokeModelWithResponseStream(ctx context.Context, in *bedrockruntime.InvokeModelWithResponseStreamInput, opts ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelWithResponseStreamOutput, error)
}

// BedrockProvider invokes Anthropic models hosted on AWS Bedrock.
// Credentials come from the AWS default chain.
type BedrockProvider struct {
	client bedrockClient
	model  string
	log    logger.Logger
}

// NewBedrockProvider loads the AWS configuration for the settings' region.
func NewBedrockProvider(ctx context.Context, s conf.BedrockSettings, log logger.Logger) (*BedrockProvider, error) {
	region := s.Region
	if region == "" {
		region = "us-east-1"
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return newBedrockProvider(bedrockruntime.NewFromConfig(cfg), s.Model, log), nil
}

func newBedrockProvider(client bedrockClient, model string, log logger.Logger) *BedrockProvider {
	return &BedrockProvider{
		client: client,
		model:  model,
		log:    log.With(logger.String("provider", "bedrock")),
	}
}

func (p *BedrockProvider) Name() string         { return "bedrock" }
func (p *BedrockProvider) DefaultModel() string { return p.model }
func (p *BedrockProvider) Streaming() bool      { return true }

type bedrockRequest struct {
	AnthropicVersion string             `json:"anthropic_version"`
	MaxTokens        int                `json:"max_tokens"`
	System           string             `json:"system,omitempty"`
	Messages         []anthropicMessage `json:"messages"`
}

func (p *BedrockProvider) body(req Request) ([]byte, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = anthropicMaxToken
	}
	return json.Marshal(bedrockRequest{
		AnthropicVersion: bedrockAnthropicVersion,
		MaxTokens:        maxTokens,
		System:           req.System,
		Messages:         []anthropicMessage{{Role: "user", Content: req.Query}},
	})
}

// Complete implements Provider.
func (p *BedrockProvider) Complete(ctx context.Context, req Request) (string, error) {
	body, err := p.body(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}
	resp, err := p.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(modelOr(req.Model, p.model)),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return "", upstreamError(p.Name(), err)
	}

	var out anthropicResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
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

// Stream implements Streamer.
func (p *BedrockProvider) Stream(ctx context.Context, req Request, onToken TokenFunc) error {
	body, err := p.body(req)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	resp, err := p.client.InvokeModelWithResponseStream(ctx, &bedrockruntime.InvokeModelWithResponseStreamInput{
		ModelId:     aws.String(modelOr(req.Model, p.model)),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return upstreamError(p.Name(), err)
	}
	stream := resp.GetStream()
	defer stream.Close()

	for event := range stream.Events() {
		chunk, ok := event.(*brtypes.ResponseStreamMemberChunk)
		if !ok {
			continue
		}
		text, err := parseBedrockChunk(chunk.Value.Bytes)
		if err != nil {
			p.log.Warn("skipping malformed stream frame", logger.Error(err))
			continue
		}
		if text == "" {
			continue
		}
		if err := onToken(text); err != nil {
			return err
		}
	}
	if err := stream.Err(); err != nil {
		return upstreamError(p.Name(), err)
	}
	return nil
}

// parseBedrockChunk extracts delta text from one streamed Anthropic event.
// Events other than text deltas yield an empty string.
func parseBedrockChunk(b []byte) (string, error) {
	var ev struct {
		Type  string `json:"type"`
		Delta struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"delta"`
	}
	if err := json.Unmarshal(b, &ev); err != nil {
		return "", err
	}
	if ev.Type != "content_block_delta" {
		return "", nil
	}
	return ev.Delta.Text, nil
}
