package entities

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"
)

// Metadata kinds. The first three match alert categories.
const (
	MetadataCompetitive = CategoryCompetitive
	MetadataPerformance = CategoryPerformance
	MetadataNetwork     = CategoryNetwork
	MetadataOpaque      = "opaque"
)

// CompetitiveMetadata describes a fare gap against a competitor.
type CompetitiveMetadata struct {
	Competitor      string  `json:"competitor"`
	CompetitorPrice float64 `json:"competitor_price"`
	OurPrice        float64 `json:"our_price"`
	PriceGapPct     float64 `json:"price_gap_pct"`
}

// PerformanceMetadata describes a load factor or yield deviation.
type PerformanceMetadata struct {
	LoadFactor         float64 `json:"load_factor"`
	Yield              float64 `json:"yield"`
	BaselineLoadFactor float64 `json:"baseline_load_factor,omitempty"`
}

// NetworkMetadata describes a demand signal spanning one or more routes.
type NetworkMetadata struct {
	Routes      []string `json:"routes"`
	DemandIndex float64  `json:"demand_index"`
}

// Metadata is the typed payload attached to an alert. Exactly one branch is
// set, selected by Kind. Payloads that match no known shape are kept
// verbatim in Opaque.
type Metadata struct {
	Kind        string
	Competitive *CompetitiveMetadata
	Performance *PerformanceMetadata
	Network     *NetworkMetadata
	Opaque      datatypes.JSON
}

// IsZero reports whether no metadata is set.
func (m Metadata) IsZero() bool {
	return m.Kind == ""
}

// NewCompetitiveMetadata wraps a competitive payload.
func NewCompetitiveMetadata(c CompetitiveMetadata) Metadata {
	return Metadata{Kind: MetadataCompetitive, Competitive: &c}
}

// NewPerformanceMetadata wraps a performance payload.
func NewPerformanceMetadata(p PerformanceMetadata) Metadata {
	return Metadata{Kind: MetadataPerformance, Performance: &p}
}

// NewNetworkMetadata wraps a network payload.
func NewNetworkMetadata(n NetworkMetadata) Metadata {
	return Metadata{Kind: MetadataNetwork, Network: &n}
}

// MarshalJSON writes the active branch with a "kind" discriminator.
// Opaque payloads are nested under "data".
func (m Metadata) MarshalJSON() ([]byte, error) {
	switch m.Kind {
	case "":
		return []byte("null"), nil
	case MetadataCompetitive:
		return marshalKind(m.Kind, m.Competitive)
	case MetadataPerformance:
		return marshalKind(m.Kind, m.Performance)
	case MetadataNetwork:
		return marshalKind(m.Kind, m.Network)
	case MetadataOpaque:
		data := json.RawMessage(m.Opaque)
		if len(data) == 0 {
			data = json.RawMessage("null")
		}
		return json.Marshal(struct {
			Kind string          `json:"kind"`
			Data json.RawMessage `json:"data"`
		}{m.Kind, data})
	default:
		return nil, fmt.Errorf("unknown metadata kind %q", m.Kind)
	}
}

func marshalKind(kind string, branch any) ([]byte, error) {
	body, err := json.Marshal(branch)
	if err != nil {
		return nil, err
	}
	if bytes.Equal(body, []byte("null")) || bytes.Equal(body, []byte("{}")) {
		return fmt.Appendf(nil, `{"kind":%q}`, kind), nil
	}
	// splice the discriminator into the branch object
	out := fmt.Appendf(nil, `{"kind":%q,`, kind)
	return append(out, body[1:]...), nil
}

// UnmarshalJSON decodes a tagged payload. An unknown kind, a missing kind or
// a body that does not strictly match its declared kind becomes Opaque.
func (m *Metadata) UnmarshalJSON(b []byte) error {
	*m = Metadata{}
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	if !json.Valid(trimmed) {
		return fmt.Errorf("invalid metadata json")
	}

	var head struct {
		Kind string          `json:"kind"`
		Data json.RawMessage `json:"data"`
	}
	if trimmed[0] != '{' || json.Unmarshal(trimmed, &head) != nil {
		m.setOpaque(trimmed)
		return nil
	}

	switch head.Kind {
	case MetadataCompetitive:
		var c CompetitiveMetadata
		if strictDecode(trimmed, &c) {
			*m = NewCompetitiveMetadata(c)
			return nil
		}
	case MetadataPerformance:
		var p PerformanceMetadata
		if strictDecode(trimmed, &p) {
			*m = NewPerformanceMetadata(p)
			return nil
		}
	case MetadataNetwork:
		var n NetworkMetadata
		if strictDecode(trimmed, &n) {
			*m = NewNetworkMetadata(n)
			return nil
		}
	case MetadataOpaque:
		if len(head.Data) > 0 {
			m.setOpaque(head.Data)
			return nil
		}
	}
	m.setOpaque(trimmed)
	return nil
}

func (m *Metadata) setOpaque(raw []byte) {
	m.Kind = MetadataOpaque
	m.Opaque = datatypes.JSON(bytes.Clone(raw))
}

// strictDecode decodes body into dst rejecting unknown fields other than "kind".
func strictDecode(body []byte, dst any) bool {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return false
	}
	delete(fields, "kind")
	rest, err := json.Marshal(fields)
	if err != nil {
		return false
	}
	dec := json.NewDecoder(bytes.NewReader(rest))
	dec.DisallowUnknownFields()
	return dec.Decode(dst) == nil
}

// Value implements driver.Valuer.
func (m Metadata) Value() (driver.Value, error) {
	if m.IsZero() {
		return nil, nil
	}
	b, err := m.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (m *Metadata) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		*m = Metadata{}
		return nil
	case []byte:
		return m.UnmarshalJSON(v)
	case string:
		return m.UnmarshalJSON([]byte(v))
	default:
		return fmt.Errorf("cannot scan %T into Metadata", value)
	}
}
