package anomaly

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/iho/tripleledger/internal/domain"
)

// Duplicates flags posted transactions sharing contact, amount and date.
type Duplicates struct{}

func (Duplicates) Type() domain.DetectionType { return domain.DetectionDuplicate }

type duplicateKey struct {
	contact string
	amount  string
	date    string
}

func (Duplicates) Detect(_ context.Context, s *Snapshot) ([]domain.AnomalyDetection, error) {
	groups := make(map[duplicateKey][]*domain.Transaction)
	var order []duplicateKey
	for _, t := range s.Posted() {
		k := duplicateKey{
			contact: t.ContactKey(),
			amount:  t.TotalAmount.StringFixed(domain.MoneyScale),
			date:    domain.DateOf(t.TransactionDate).Format(time.DateOnly),
		}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], t)
	}

	var out []domain.AnomalyDetection
	for _, k := range order {
		members := groups[k]
		if len(members) < 2 {
			continue
		}
		ids := make([]string, len(members))
		numbers := make([]string, len(members))
		for i, t := range members {
			ids[i] = t.ID
			numbers[i] = t.Number
		}
		sort.Strings(ids)
		sort.Strings(numbers)

		out = append(out, domain.AnomalyDetection{
			Type:        domain.DetectionDuplicate,
			Severity:    domain.SeverityWarning,
			Entity:      domain.Ref(domain.KindTransaction, ids[0]),
			Confidence:  0.75,
			Title:       fmt.Sprintf("%d possible duplicate transactions", len(members)),
			Description: fmt.Sprintf("Transactions %v share contact, amount %s and date %s.", numbers, k.amount, k.date),
			Data: domain.JSON{
				"transaction_ids": ids,
				"numbers":         numbers,
				"contact_id":      k.contact,
				"amount":          k.amount,
				"date":            k.date,
				"count":           len(members),
			},
			SuggestedActions: []string{
				"Compare the source documents",
				"Void the duplicate if the payment was recorded twice",
			},
		})
	}
	return out, nil
}
