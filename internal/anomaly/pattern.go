package anomaly

import (
	"context"
	"fmt"
	"sort"

	"github.com/iho/tripleledger/internal/domain"
)

// Frequency flags contacts transacting far more often than their monthly history.
type Frequency struct {
	Policy Policy
}

func (Frequency) Type() domain.DetectionType { return domain.DetectionPattern }

func (d Frequency) Detect(_ context.Context, s *Snapshot) ([]domain.AnomalyDetection, error) {
	months := make(map[string]struct{})
	history := make(map[string]int)
	for _, t := range s.Historical {
		months[t.TransactionDate.UTC().Format("2006-01")] = struct{}{}
		if c := t.ContactKey(); c != "" {
			history[c]++
		}
	}
	if len(months) == 0 {
		return nil, nil
	}

	current := make(map[string]int)
	for _, t := range s.Posted() {
		if c := t.ContactKey(); c != "" {
			current[c]++
		}
	}

	contacts := make([]string, 0, len(current))
	for c := range current {
		contacts = append(contacts, c)
	}
	sort.Strings(contacts)

	var out []domain.AnomalyDetection
	for _, c := range contacts {
		count := current[c]
		avg := float64(history[c]) / float64(len(months))
		if count < d.Policy.PatternMinCount || float64(count) <= d.Policy.PatternFactor*avg {
			continue
		}
		out = append(out, domain.AnomalyDetection{
			Type:        domain.DetectionPattern,
			Severity:    domain.SeverityInfo,
			Entity:      s.periodRef(),
			Confidence:  0.6,
			Title:       "Unusual transaction frequency for contact",
			Description: fmt.Sprintf("Contact %s has %d transactions this period against a monthly average of %.2f.", c, count, avg),
			Data: domain.JSON{
				"contact_id":        c,
				"period_count":      count,
				"monthly_average":   round4(avg),
				"historical_months": len(months),
			},
			SuggestedActions: []string{"Review recent activity with this contact"},
		})
	}
	return out, nil
}
