package entities

import "time"

// DateLayout is the format of RoutePerformance.Date.
const DateLayout = "2006-01-02"

// RoutePerformance is a daily snapshot of one route's commercial metrics.
// There is at most one row per (route, date).
type RoutePerformance struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	Route           string    `gorm:"size:20;not null;uniqueIndex:idx_route_date,priority:1" json:"route"`
	Date            string    `gorm:"size:10;not null;uniqueIndex:idx_route_date,priority:2;index" json:"date"`
	LoadFactor      float64   `gorm:"not null" json:"load_factor"`
	Yield           float64   `gorm:"not null" json:"yield"`
	CompetitorPrice float64   `json:"competitor_price"`
	OurPrice        float64   `json:"our_price"`
	DemandIndex     float64   `json:"demand_index"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName returns the table name for GORM.
func (RoutePerformance) TableName() string {
	return "route_performance"
}

// PriceGapPct is how far our fare sits above the competitor, in percent.
// Zero when there is no competitor price.
func (r *RoutePerformance) PriceGapPct() float64 {
	if r.CompetitorPrice <= 0 {
		return 0
	}
	return (r.OurPrice - r.CompetitorPrice) / r.CompetitorPrice * 100
}
