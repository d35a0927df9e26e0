package anomaly

import (
	"context"
	"fmt"
	"time"

	"github.com/iho/tripleledger/internal/domain"
)

// Timing flags weekend-dated transactions and transactions recorded late.
type Timing struct {
	Policy Policy
}

func (Timing) Type() domain.DetectionType { return domain.DetectionTiming }

func (d Timing) Detect(_ context.Context, s *Snapshot) ([]domain.AnomalyDetection, error) {
	lateAfter := time.Duration(d.Policy.LateEntryDays) * 24 * time.Hour

	var out []domain.AnomalyDetection
	for _, t := range s.Posted() {
		day := t.TransactionDate.UTC().Weekday()
		if day == time.Saturday || day == time.Sunday {
			out = append(out, domain.AnomalyDetection{
				Type:        domain.DetectionTiming,
				Severity:    domain.SeverityInfo,
				Entity:      domain.Ref(domain.KindTransaction, t.ID),
				Confidence:  0.4,
				Title:       fmt.Sprintf("%s dated on a weekend", t.Number),
				Description: fmt.Sprintf("Transaction date %s is a %s.", t.TransactionDate.Format(time.DateOnly), day),
				Data: domain.JSON{
					"reason":           "weekend",
					"transaction_date": t.TransactionDate.Format(time.DateOnly),
					"weekday":          day.String(),
				},
				SuggestedActions: []string{"Confirm the business reason for weekend activity"},
			})
		}

		lag := t.CreatedAt.Sub(domain.DateOf(t.TransactionDate))
		if lag > lateAfter {
			days := int(lag.Hours() / 24)
			out = append(out, domain.AnomalyDetection{
				Type:        domain.DetectionTiming,
				Severity:    domain.SeverityWarning,
				Entity:      domain.Ref(domain.KindTransaction, t.ID),
				Confidence:  0.7,
				Title:       fmt.Sprintf("%s recorded %d days late", t.Number, days),
				Description: fmt.Sprintf("Recorded %s for a transaction dated %s.", t.CreatedAt.Format(time.DateOnly), t.TransactionDate.Format(time.DateOnly)),
				Data: domain.JSON{
					"reason":           "late_entry",
					"transaction_date": t.TransactionDate.Format(time.DateOnly),
					"created_at":       t.CreatedAt.Format(time.RFC3339),
					"lag_days":         days,
				},
				SuggestedActions: []string{"Check for backdating and confirm the period cut-off"},
			})
		}
	}
	return out, nil
}
