package streaming

import (
	"context"
	"fmt"
	"strings"
)

// CannedProvider answers locally without a network call. It keeps the
// dashboard usable in development when no provider credentials exist.
type CannedProvider struct{}

// NewCannedProvider returns the local provider.
func NewCannedProvider() *CannedProvider { return &CannedProvider{} }

func (p *CannedProvider) Name() string         { return "canned" }
func (p *CannedProvider) DefaultModel() string { return "velociti-canned" }
func (p *CannedProvider) Streaming() bool      { return false }

// Complete returns a fixed analyst-style answer that echoes the query.
func (p *CannedProvider) Complete(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	q := strings.TrimSpace(req.Query)
	topic := "the network"
	lower := strings.ToLower(q)
	switch {
	case strings.Contains(lower, "compet") || strings.Contains(lower, "fare") || strings.Contains(lower, "price"):
		topic = "competitive pricing"
	case strings.Contains(lower, "load") || strings.Contains(lower, "performance"):
		topic = "route performance"
	case strings.Contains(lower, "demand") || strings.Contains(lower, "capacity"):
		topic = "network demand"
	}
	return fmt.Sprintf("You asked: %q. "+
		"This is a local answer focused on %s. "+
		"Load factors are tracking close to plan on most monitored routes. "+
		"The largest revenue risk this week comes from fare gaps on competitive routes. "+
		"Open the active alerts for route-level detail and recommended actions.", q, topic), nil
}
