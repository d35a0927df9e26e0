package anomaly

import (
	"context"
	"fmt"
	"sort"

	"github.com/iho/tripleledger/internal/domain"
)

// CustomRules evaluates company-defined rules against each posted transaction.
type CustomRules struct{}

func (CustomRules) Type() domain.DetectionType { return domain.DetectionCustomRule }

func (CustomRules) Detect(ctx context.Context, s *Snapshot) ([]domain.AnomalyDetection, error) {
	rules := make([]*domain.AnomalyRule, 0, len(s.Rules))
	for _, r := range s.Rules {
		if r.Active && r.Condition != nil {
			rules = append(rules, r)
		}
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].ID < rules[j].ID })

	var out []domain.AnomalyDetection
	for _, r := range rules {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, t := range s.Posted() {
			ok, err := r.Condition.Eval(domain.TransactionFacts(t))
			if err != nil {
				return nil, fmt.Errorf("rule %s: %w", r.Name, err)
			}
			if !ok {
				continue
			}
			out = append(out, domain.AnomalyDetection{
				Type:        domain.DetectionCustomRule,
				Severity:    r.Severity,
				Entity:      domain.Ref(domain.KindTransaction, t.ID),
				Confidence:  r.Confidence,
				Title:       fmt.Sprintf("Rule %q matched %s", r.Name, t.Number),
				Description: r.Description,
				Data: domain.JSON{
					"rule_id":   r.ID,
					"rule_name": r.Name,
				},
				SuggestedActions: []string{"Review the transaction against the rule"},
			})
		}
	}
	return out, nil
}
