package anomaly

import (
	"context"
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/iho/tripleledger/internal/domain"
)

const maxConfidence = 0.99

// UnusualAmount flags transactions far above the historical mean.
type UnusualAmount struct {
	Policy Policy
}

func (UnusualAmount) Type() domain.DetectionType { return domain.DetectionUnusualAmount }

func (d UnusualAmount) Detect(ctx context.Context, s *Snapshot) ([]domain.AnomalyDetection, error) {
	if len(s.Historical) < d.Policy.MinHistory {
		return nil, nil
	}

	samples := make([]decimal.Decimal, len(s.Historical))
	for i, t := range s.Historical {
		samples[i] = t.TotalAmount
	}
	mean, stddev := meanStdDev(samples)
	if stddev == 0 {
		return nil, nil
	}

	warnZ := d.Policy.WarningZScore
	critZ := warnZ * d.Policy.CriticalFactor

	var out []domain.AnomalyDetection
	for _, t := range s.Posted() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		z := (t.TotalAmount.InexactFloat64() - mean) / stddev
		if z <= warnZ {
			continue
		}

		severity := domain.SeverityWarning
		if z > critZ {
			severity = domain.SeverityCritical
		}
		confidence := math.Min(maxConfidence, 0.5+0.5*(z-warnZ)/warnZ)

		out = append(out, domain.AnomalyDetection{
			Type:        domain.DetectionUnusualAmount,
			Severity:    severity,
			Entity:      domain.Ref(domain.KindTransaction, t.ID),
			Confidence:  confidence,
			Title:       fmt.Sprintf("Unusual amount on %s", t.Number),
			Description: fmt.Sprintf("Amount %s is %.2f standard deviations above the historical mean of %.2f.", t.TotalAmount.StringFixed(2), z, mean),
			Data: domain.JSON{
				"amount":       t.TotalAmount.String(),
				"mean":         round4(mean),
				"stddev":       round4(stddev),
				"z_score":      round4(z),
				"sample_count": len(samples),
			},
			SuggestedActions: []string{
				"Verify the amount against the source document",
				"Confirm approval for the transaction",
			},
		})
	}
	return out, nil
}

// RoundNumbers flags a period where too many amounts are exact multiples of the round unit.
type RoundNumbers struct {
	Policy Policy
}

func (RoundNumbers) Type() domain.DetectionType { return domain.DetectionRoundNumber }

func (d RoundNumbers) Detect(_ context.Context, s *Snapshot) ([]domain.AnomalyDetection, error) {
	posted := s.Posted()
	if len(posted) < d.Policy.RoundMinCount {
		return nil, nil
	}

	unit := decimal.NewFromInt(d.Policy.RoundUnit)
	round := 0
	for _, t := range posted {
		if !t.TotalAmount.IsZero() && t.TotalAmount.Mod(unit).IsZero() {
			round++
		}
	}

	ratio := float64(round) / float64(len(posted))
	if ratio <= d.Policy.RoundRatio {
		return nil, nil
	}

	return []domain.AnomalyDetection{{
		Type:        domain.DetectionRoundNumber,
		Severity:    domain.SeverityInfo,
		Entity:      s.periodRef(),
		Confidence:  0.5,
		Title:       "High share of round-number amounts",
		Description: fmt.Sprintf("%d of %d transactions (%.1f%%) are multiples of %d.", round, len(posted), ratio*100, d.Policy.RoundUnit),
		Data: domain.JSON{
			"round_count": round,
			"total_count": len(posted),
			"ratio":       round4(ratio),
			"unit":        d.Policy.RoundUnit,
		},
		SuggestedActions: []string{"Sample round-number transactions for estimates or fabricated amounts"},
	}}, nil
}

// meanStdDev returns the population mean and standard deviation of samples.
func meanStdDev(samples []decimal.Decimal) (mean, stddev float64) {
	if len(samples) == 0 {
		return 0, 0
	}
	n := decimal.NewFromInt(int64(len(samples)))
	sum := decimal.Zero
	for _, v := range samples {
		sum = sum.Add(v)
	}
	m := sum.DivRound(n, 16)

	sq := decimal.Zero
	for _, v := range samples {
		diff := v.Sub(m)
		sq = sq.Add(diff.Mul(diff))
	}
	variance := sq.DivRound(n, 16)
	return m.InexactFloat64(), math.Sqrt(variance.InexactFloat64())
}

func round4(f float64) float64 {
	return math.Round(f*10000) / 10000
}
