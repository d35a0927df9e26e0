package anomaly

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/iho/tripleledger/internal/domain"
)

// Detector examines a snapshot and returns unsaved findings.
type Detector interface {
	Type() domain.DetectionType
	Detect(ctx context.Context, s *Snapshot) ([]domain.AnomalyDetection, error)
}

// Engine runs a fixed set of detectors over a snapshot.
type Engine struct {
	detectors  []Detector
	concurrent bool
}

// NewEngine returns an engine with the standard detectors configured by policy.
func NewEngine(policy Policy, extra ...Detector) *Engine {
	detectors := []Detector{
		UnusualAmount{Policy: policy},
		Duplicates{},
		SequenceGaps{},
		Timing{Policy: policy},
		Frequency{Policy: policy},
		Unbalanced{},
		RoundNumbers{Policy: policy},
		CustomRules{},
	}
	return &Engine{
		detectors:  append(detectors, extra...),
		concurrent: policy.Concurrent,
	}
}

// NewEngineWith returns an engine running exactly the given detectors.
func NewEngineWith(concurrent bool, detectors ...Detector) *Engine {
	return &Engine{detectors: detectors, concurrent: concurrent}
}

// Detectors returns the detection types in execution order.
func (e *Engine) Detectors() []domain.DetectionType {
	out := make([]domain.DetectionType, len(e.detectors))
	for i, d := range e.detectors {
		out[i] = d.Type()
	}
	return out
}

// Run executes every detector and returns the ranked findings.
// The first detector error cancels the rest and is returned.
func (e *Engine) Run(ctx context.Context, s *Snapshot) ([]domain.AnomalyDetection, error) {
	results := make([][]domain.AnomalyDetection, len(e.detectors))

	if e.concurrent {
		g, gctx := errgroup.WithContext(ctx)
		for i, d := range e.detectors {
			i, d := i, d
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				found, err := d.Detect(gctx, s)
				if err != nil {
					return fmt.Errorf("%s detector: %w", d.Type(), err)
				}
				results[i] = found
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	} else {
		for i, d := range e.detectors {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			found, err := d.Detect(ctx, s)
			if err != nil {
				return nil, fmt.Errorf("%s detector: %w", d.Type(), err)
			}
			results[i] = found
		}
	}

	var all []domain.AnomalyDetection
	for _, r := range results {
		all = append(all, r...)
	}
	Rank(all)
	return all, nil
}

// Rank orders findings by severity then confidence, keeping detector order on ties,
// and numbers them from 1.
func Rank(findings []domain.AnomalyDetection) {
	sort.SliceStable(findings, func(i, j int) bool {
		si, sj := findings[i].Severity.Rank(), findings[j].Severity.Rank()
		if si != sj {
			return si > sj
		}
		return findings[i].Confidence > findings[j].Confidence
	})
	for i := range findings {
		findings[i].Rank = i + 1
	}
}
