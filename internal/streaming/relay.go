package streaming

import (
	"context"
	"strings"
	"time"

	"github.com/velociti/velociti/internal/conf"
	"github.com/velociti/velociti/internal/errors"
	"github.com/velociti/velociti/internal/logger"
)

// Session outcomes reported to the observer.
const (
	OutcomeCompleted     = "completed"
	OutcomeUpstreamError = "upstream_error"
	OutcomeClientClosed  = "client_closed"
)

// ErrClientGone is returned when a frame could not be written to the client.
var ErrClientGone = errors.NewStd("client disconnected")

// Observer is told about each finished relay session.
type Observer func(provider, strategy, outcome string, elapsed time.Duration)

// Result summarizes a finished stream.
type Result struct {
	Provider string
	Model    string
	Content  string
	Tokens   int
}

// EstimateTokens approximates a token count as one token per four characters.
func EstimateTokens(s string) int {
	return len(s) / 4
}

// Relay streams provider output to a FrameWriter.
type Relay struct {
	registry  *Registry
	synthetic *SyntheticStrategy
	system    string
	maxTokens int
	observer  Observer
	log       logger.Logger
}

// RelayOption configures a Relay.
type RelayOption func(*Relay)

// WithSynthetic replaces the synthetic chunking strategy.
func WithSynthetic(s *SyntheticStrategy) RelayOption {
	return func(r *Relay) { r.synthetic = s }
}

// WithSystemPrompt sets the instruction sent with every query.
func WithSystemPrompt(prompt string) RelayOption {
	return func(r *Relay) { r.system = prompt }
}

// WithMaxTokens caps provider output.
func WithMaxTokens(n int) RelayOption {
	return func(r *Relay) { r.maxTokens = n }
}

// WithObserver registers a session observer.
func WithObserver(o Observer) RelayOption {
	return func(r *Relay) { r.observer = o }
}

// NewRelay creates a relay over registry.
func NewRelay(registry *Registry, log logger.Logger, opts ...RelayOption) *Relay {
	r := &Relay{
		registry:  registry,
		synthetic: &SyntheticStrategy{MinDelay: 50 * time.Millisecond, MaxDelay: 150 * time.Millisecond},
		log:       log.Module(componentName),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewRelayFromSettings wires the relay options from settings.
func NewRelayFromSettings(registry *Registry, s conf.LLMSettings, log logger.Logger, opts ...RelayOption) *Relay {
	base := []RelayOption{
		WithSynthetic(&SyntheticStrategy{MinDelay: s.Synthetic.MinDelay.Std(), MaxDelay: s.Synthetic.MaxDelay.Std()}),
		WithSystemPrompt(s.SystemPrompt),
		WithMaxTokens(s.MaxTokens),
	}
	return NewRelay(registry, log, append(base, opts...)...)
}

// Resolve looks up a provider before any response bytes are written, so
// an unknown provider can still be answered with a plain error status.
func (r *Relay) Resolve(name string) (Provider, error) {
	return r.registry.Get(name)
}

// Providers lists the configured provider names.
func (r *Relay) Providers() []string {
	return r.registry.Names()
}

// Stream sends start, chunk and end frames for query. An upstream failure
// is reported to the client as an error frame and returned. A write
// failure ends the stream with ErrClientGone. There is no retry.
func (r *Relay) Stream(ctx context.Context, p Provider, query, model string, w FrameWriter) (*Result, error) {
	started := time.Now()
	strategy := SelectStrategy(p, r.synthetic)
	res := &Result{Provider: p.Name(), Model: modelOr(model, p.DefaultModel())}
	log := r.log.With(
		logger.String("provider", res.Provider),
		logger.String("model", res.Model),
		logger.String("strategy", strategy.Name()))

	outcome := OutcomeCompleted
	defer func() {
		if r.observer != nil {
			r.observer(res.Provider, strategy.Name(), outcome, time.Since(started))
		}
	}()

	if err := w.WriteFrame(Frame{Type: FrameStart, Provider: res.Provider, Model: res.Model}); err != nil {
		outcome = OutcomeClientClosed
		return res, ErrClientGone
	}

	var full strings.Builder
	var writeErr error
	emit := func(token string) error {
		if err := w.WriteFrame(Frame{Type: FrameChunk, Content: token}); err != nil {
			writeErr = ErrClientGone
			return writeErr
		}
		full.WriteString(token)
		return nil
	}

	req := Request{Query: query, Model: res.Model, System: r.system, MaxTokens: r.maxTokens}
	err := strategy.Run(ctx, p, req, emit)
	res.Content = full.String()
	res.Tokens = EstimateTokens(res.Content)

	switch {
	case writeErr != nil || (err != nil && ctx.Err() != nil):
		outcome = OutcomeClientClosed
		log.Debug("client went away mid-stream", logger.Int("chars", len(res.Content)))
		return res, ErrClientGone
	case err != nil:
		outcome = OutcomeUpstreamError
		log.Warn("upstream stream failed", logger.Error(err))
		if werr := w.WriteFrame(Frame{Type: FrameError, Error: err.Error()}); werr != nil {
			log.Debug("failed to deliver error frame", logger.Error(werr))
		}
		return res, err
	}

	if err := w.WriteFrame(Frame{Type: FrameEnd, Content: res.Content, Tokens: res.Tokens}); err != nil {
		outcome = OutcomeClientClosed
		return res, ErrClientGone
	}
	log.Info("stream completed",
		logger.Int("tokens", res.Tokens),
		logger.Duration("elapsed", time.Since(started)))
	return res, nil
}
