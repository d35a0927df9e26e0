package anomaly

import (
	"context"
	"fmt"

	"github.com/iho/tripleledger/internal/domain"
)

// Unbalanced flags posted entries whose debits and credits disagree.
type Unbalanced struct{}

func (Unbalanced) Type() domain.DetectionType { return domain.DetectionUnbalanced }

func (Unbalanced) Detect(_ context.Context, s *Snapshot) ([]domain.AnomalyDetection, error) {
	var out []domain.AnomalyDetection
	for _, e := range s.Entries {
		if e.Status != domain.EntryPosted {
			continue
		}
		if e.IsBalanced() && e.LinesBalanced() {
			continue
		}
		debit, credit := domain.SumLines(e.Lines)
		out = append(out, domain.AnomalyDetection{
			Type:        domain.DetectionUnbalanced,
			Severity:    domain.SeverityCritical,
			Entity:      domain.Ref(domain.KindJournalEntry, e.ID),
			Confidence:  1.0,
			Title:       fmt.Sprintf("Unbalanced journal entry %s", e.EntryNumber),
			Description: fmt.Sprintf("Posted entry has debits %s and credits %s.", debit.StringFixed(domain.MoneyScale), credit.StringFixed(domain.MoneyScale)),
			Data: domain.JSON{
				"entry_number":        e.EntryNumber,
				"stored_total_debit":  e.TotalDebit.String(),
				"stored_total_credit": e.TotalCredit.String(),
				"line_total_debit":    debit.String(),
				"line_total_credit":   credit.String(),
				"difference":          debit.Sub(credit).String(),
			},
			SuggestedActions: []string{
				"Investigate how the entry was modified after posting",
				"Verify the audit chain for the entry",
			},
		})
	}
	return out, nil
}
