package anomaly

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"

	"github.com/iho/tripleledger/internal/domain"
)

var numberSuffix = regexp.MustCompile(`^(.*?)(\d+)$`)

// SequenceGaps flags holes in transaction numbering within the period.
// Numbers are grouped by transaction type and textual prefix.
type SequenceGaps struct{}

func (SequenceGaps) Type() domain.DetectionType { return domain.DetectionMissingEntry }

type sequenceKey struct {
	txType domain.TransactionType
	prefix string
}

type numbered struct {
	n  int64
	tx *domain.Transaction
}

func (SequenceGaps) Detect(_ context.Context, s *Snapshot) ([]domain.AnomalyDetection, error) {
	groups := make(map[sequenceKey][]numbered)
	for _, t := range s.Transactions {
		m := numberSuffix.FindStringSubmatch(t.Number)
		if m == nil {
			continue
		}
		n, err := strconv.ParseInt(m[2], 10, 64)
		if err != nil {
			continue
		}
		k := sequenceKey{txType: t.Type, prefix: m[1]}
		groups[k] = append(groups[k], numbered{n: n, tx: t})
	}

	keys := make([]sequenceKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].txType != keys[j].txType {
			return keys[i].txType < keys[j].txType
		}
		return keys[i].prefix < keys[j].prefix
	})

	var out []domain.AnomalyDetection
	for _, k := range keys {
		nums := groups[k]
		sort.Slice(nums, func(i, j int) bool { return nums[i].n < nums[j].n })

		for i := 1; i < len(nums); i++ {
			prev, next := nums[i-1], nums[i]
			if next.n-prev.n <= 1 {
				continue
			}
			missing := next.n - prev.n - 1
			out = append(out, domain.AnomalyDetection{
				Type:       domain.DetectionMissingEntry,
				Severity:   domain.SeverityInfo,
				Entity:     domain.Ref(domain.KindTransaction, next.tx.ID),
				Confidence: 0.6,
				Title:      fmt.Sprintf("Gap in %s numbering", k.txType),
				Description: fmt.Sprintf("%d number(s) missing between %s and %s.",
					missing, prev.tx.Number, next.tx.Number),
				Data: domain.JSON{
					"transaction_type": string(k.txType),
					"prefix":           k.prefix,
					"after_number":     prev.tx.Number,
					"before_number":    next.tx.Number,
					"missing_from":     prev.n + 1,
					"missing_to":       next.n - 1,
					"missing_count":    missing,
				},
				SuggestedActions: []string{"Locate the missing documents or record why the numbers were skipped"},
			})
		}
	}
	return out, nil
}
