package alerting

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/velociti/velociti/internal/datastore/entities"
)

// EvaluateConditions checks if all conditions match against properties.
// Returns true if ALL conditions are satisfied (AND logic).
// Empty conditions list returns true (no conditions = always match).
func EvaluateConditions(conditions []entities.ThresholdCondition, properties map[string]any) bool {
	for i := range conditions {
		if !EvaluateCondition(&conditions[i], properties) {
			return false
		}
	}
	return true
}

// EvaluateCondition checks a single condition. A missing property never matches.
func EvaluateCondition(cond *entities.ThresholdCondition, properties map[string]any) bool {
	propVal, exists := properties[cond.Property]
	if !exists {
		return false
	}

	switch cond.Operator {
	case entities.OperatorIs:
		return strings.EqualFold(fmt.Sprintf("%v", propVal), cond.Value)
	case entities.OperatorIsNot:
		return !strings.EqualFold(fmt.Sprintf("%v", propVal), cond.Value)
	case entities.OperatorGreaterThan, entities.OperatorLessThan,
		entities.OperatorGreaterOrEqual, entities.OperatorLessOrEqual:
		return evaluateNumeric(cond.Operator, propVal, cond.Value)
	default:
		return false
	}
}

// ValidateCondition reports why a condition can never match, or nil.
func ValidateCondition(cond *entities.ThresholdCondition) error {
	if cond.Property == "" {
		return fmt.Errorf("condition property is required")
	}
	switch cond.Operator {
	case entities.OperatorIs, entities.OperatorIsNot:
		return nil
	case entities.OperatorGreaterThan, entities.OperatorLessThan,
		entities.OperatorGreaterOrEqual, entities.OperatorLessOrEqual:
		if _, err := strconv.ParseFloat(cond.Value, 64); err != nil {
			return fmt.Errorf("condition %s %s needs a numeric value, got %q", cond.Property, cond.Operator, cond.Value)
		}
		return nil
	default:
		return fmt.Errorf("unknown operator %q", cond.Operator)
	}
}

func evaluateNumeric(operator string, propVal any, condVal string) bool {
	propFloat, err := toFloat64(propVal)
	if err != nil {
		return false
	}
	condFloat, err := strconv.ParseFloat(condVal, 64)
	if err != nil {
		return false
	}
	return compareFloat(propFloat, operator, condFloat)
}

func compareFloat(value float64, operator string, threshold float64) bool {
	switch operator {
	case entities.OperatorGreaterThan:
		return value > threshold
	case entities.OperatorLessThan:
		return value < threshold
	case entities.OperatorGreaterOrEqual:
		return value >= threshold
	case entities.OperatorLessOrEqual:
		return value <= threshold
	default:
		return false
	}
}

func toFloat64(val any) (float64, error) {
	switch v := val.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case uint:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	case string:
		return strconv.ParseFloat(v, 64)
	default:
		return 0, fmt.Errorf("cannot convert %T to float64", val)
	}
}

// RouteProperties exposes a snapshot as condition properties.
func RouteProperties(r *entities.RoutePerformance) map[string]any {
	return map[string]any{
		PropertyRoute:           r.Route,
		PropertyLoadFactor:      r.LoadFactor,
		PropertyYield:           r.Yield,
		PropertyPriceGapPct:     r.PriceGapPct(),
		PropertyDemandIndex:     r.DemandIndex,
		PropertyOurPrice:        r.OurPrice,
		PropertyCompetitorPrice: r.CompetitorPrice,
	}
}
