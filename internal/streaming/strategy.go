package streaming

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"
)

// Strategy turns a provider answer into a sequence of chunks.
type Strategy interface {
	Name() string
	Run(ctx context.Context, p Provider, req Request, emit TokenFunc) error
}

// NativeStrategy passes provider tokens through as they arrive.
type NativeStrategy struct{}

func (NativeStrategy) Name() string { return "native" }

// Run implements Strategy. p must implement Streamer.
func (NativeStrategy) Run(ctx context.Context, p Provider, req Request, emit TokenFunc) error {
	s, ok := p.(Streamer)
	if !ok {
		return fmt.Errorf("provider %s does not stream", p.Name())
	}
	return s.Stream(ctx, req, emit)
}

// SyntheticStrategy waits for the complete answer, splits it into
// sentence-like segments and emits them with a random pause between each.
type SyntheticStrategy struct {
	MinDelay time.Duration
	MaxDelay time.Duration

	// Delay picks the pause after a segment. Nil draws uniformly from [MinDelay, MaxDelay].
	Delay func() time.Duration
	// Sleep blocks for d or until ctx ends. Nil uses a timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

func (*SyntheticStrategy) Name() string { return "synthetic" }

// Run implements Strategy.
func (s *SyntheticStrategy) Run(ctx context.Context, p Provider, req Request, emit TokenFunc) error {
	text, err := p.Complete(ctx, req)
	if err != nil {
		return err
	}
	segments := SplitSegments(text)
	for i, seg := range segments {
		if err := emit(seg); err != nil {
			return err
		}
		if i == len(segments)-1 {
			break
		}
		if err := s.sleep(ctx, s.delay()); err != nil {
			return err
		}
	}
	return nil
}

func (s *SyntheticStrategy) delay() time.Duration {
	if s.Delay != nil {
		return s.Delay()
	}
	span := s.MaxDelay - s.MinDelay
	if span <= 0 {
		return s.MinDelay
	}
	return s.MinDelay + rand.N(span+1)
}

func (s *SyntheticStrategy) sleep(ctx context.Context, d time.Duration) error {
	if s.Sleep != nil {
		return s.Sleep(ctx, d)
	}
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// SplitSegments cuts text after sentence terminators followed by
// whitespace and after newlines. Whitespace stays with the preceding
// segment, so joining the segments reproduces text exactly.
func SplitSegments(text string) []string {
	var segments []string
	start := 0
	n := len(text)
	for i := 0; i < n; i++ {
		c := text[i]
		if c != '.' && c != '!' && c != '?' && c != '\n' {
			continue
		}
		j := i + 1
		if c != '\n' && (j >= n || !isSpace(text[j])) {
			continue
		}
		for j < n && isSpace(text[j]) {
			j++
		}
		segments = append(segments, text[start:j])
		start = j
		i = j - 1
	}
	if start < n {
		segments = append(segments, text[start:])
	}
	return segments
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// SelectStrategy picks native passthrough for streaming providers and
// synthetic chunking otherwise.
func SelectStrategy(p Provider, synthetic *SyntheticStrategy) Strategy {
	if _, ok := p.(Streamer); ok && p.Streaming() {
		return NativeStrategy{}
	}
	return synthetic
}
