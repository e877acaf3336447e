package badges

import (
	"fmt"
	"time"

	"github.com/ecorace/ecorace-backend/internal/catalog"
)

// collectUserMetrics builds the metric map badge criteria are evaluated
// against. All metrics derive from the profile aggregates except
// commutes_today, which counts log entries in the last 24 hours.
func (s *Service) collectUserMetrics(userID string) (map[string]float64, error) {
	profile, err := s.profileStore.Get(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	metrics := map[string]float64{
		"total_points":       float64(profile.TotalPoints),
		"level":              float64(profile.Level),
		"total_distance":     profile.TotalDistance,
		"total_carbon_saved": profile.TotalCarbonSaved,
		"total_commutes":     float64(profile.TotalCommutes),
		"current_streak":     float64(profile.CurrentStreak),
	}

	today, err := s.commuteStore.CountByUserSince(userID, s.now().Add(-24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("failed to count recent commutes: %w", err)
	}
	metrics["commutes_today"] = float64(today)

	return metrics, nil
}

// checkCriteria evaluates a badge criteria rule against the metric map.
// Metrics absent from the map never qualify.
func (s *Service) checkCriteria(criteria *catalog.BadgeCriteria, metrics map[string]float64) (bool, error) {
	actualValue, exists := metrics[criteria.Metric]
	if !exists {
		return false, nil
	}
	return evaluateMetricCriteria(criteria.Operator, criteria.Value, actualValue)
}

// evaluateMetricCriteria compares a metric value against a threshold using
// the given operator.
func evaluateMetricCriteria(operator string, threshold, actualValue float64) (bool, error) {
	switch operator {
	case "<":
		return actualValue < threshold, nil
	case "<=":
		return actualValue <= threshold, nil
	case ">":
		return actualValue > threshold, nil
	case ">=":
		return actualValue >= threshold, nil
	case "==":
		return actualValue == threshold, nil
	default:
		return false, fmt.Errorf("unsupported operator: %s", operator)
	}
}
