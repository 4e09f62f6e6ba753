// Package alerting implements the alert lifecycle: validation, the status
// transition policy, analyst feedback, the dashboard summary and the event
// bus that fans alert changes out to external sinks.
package alerting

// Event names published on the event bus.
const (
	EventAlertCreated       = "alert.created"
	EventAlertStatusChanged = "alert.status_changed"
	EventAgentStatusChanged = "agent.status_changed"
)

// Route properties available to agent threshold conditions.
const (
	PropertyRoute           = "route"
	PropertyLoadFactor      = "load_factor"
	PropertyYield           = "yield"
	PropertyPriceGapPct     = "price_gap_pct"
	PropertyDemandIndex     = "demand_index"
	PropertyOurPrice        = "our_price"
	PropertyCompetitorPrice = "competitor_price"
)

// Limits on list queries.
const (
	DefaultListLimit = 50
	MaxListLimit     = 200
	// InitialAlertCount is how many alerts a new realtime connection receives.
	InitialAlertCount = 20
	// RecentAlertCount is the number of alerts in the dashboard summary.
	RecentAlertCount = 5
)

const componentName = "alerting"
