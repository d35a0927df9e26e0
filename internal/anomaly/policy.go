// Package anomaly scans a fiscal period snapshot for suspicious ledger activity.
package anomaly

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Policy holds detector thresholds.
type Policy struct {
	// MinHistory is the minimum number of historical samples for amount statistics.
	MinHistory int `yaml:"min_history"`
	// WarningZScore flags amounts above mean + WarningZScore*stddev.
	WarningZScore float64 `yaml:"warning_zscore"`
	// CriticalFactor escalates to critical above mean + WarningZScore*CriticalFactor*stddev.
	CriticalFactor float64 `yaml:"critical_factor"`
	// LateEntryDays flags transactions recorded this many days after their date.
	LateEntryDays int `yaml:"late_entry_days"`
	// PatternFactor flags contacts whose period count exceeds this multiple of their monthly average.
	PatternFactor float64 `yaml:"pattern_factor"`
	// PatternMinCount is the minimum period count for the frequency check.
	PatternMinCount int `yaml:"pattern_min_count"`
	// RoundUnit is the divisor that makes an amount "round".
	RoundUnit int64 `yaml:"round_unit"`
	// RoundRatio is the share of round amounts above which the period is flagged.
	RoundRatio float64 `yaml:"round_ratio"`
	// RoundMinCount is the minimum number of transactions for the round-number check.
	RoundMinCount int `yaml:"round_min_count"`
	// Concurrent runs detectors on separate goroutines.
	Concurrent bool `yaml:"concurrent"`
}

// DefaultPolicy returns the standard thresholds.
func DefaultPolicy() Policy {
	return Policy{
		MinHistory:      10,
		WarningZScore:   3,
		CriticalFactor:  2,
		LateEntryDays:   7,
		PatternFactor:   2,
		PatternMinCount: 10,
		RoundUnit:       1000,
		RoundRatio:      0.15,
		RoundMinCount:   20,
		Concurrent:      true,
	}
}

// Validate rejects thresholds that would make a detector meaningless.
func (p Policy) Validate() error {
	switch {
	case p.MinHistory < 2:
		return fmt.Errorf("anomaly policy: min_history must be at least 2")
	case p.WarningZScore <= 0:
		return fmt.Errorf("anomaly policy: warning_zscore must be positive")
	case p.CriticalFactor < 1:
		return fmt.Errorf("anomaly policy: critical_factor must be at least 1")
	case p.LateEntryDays < 0:
		return fmt.Errorf("anomaly policy: late_entry_days must not be negative")
	case p.PatternFactor <= 0 || p.PatternMinCount < 1:
		return fmt.Errorf("anomaly policy: pattern thresholds must be positive")
	case p.RoundUnit <= 0 || p.RoundRatio <= 0 || p.RoundRatio >= 1 || p.RoundMinCount < 1:
		return fmt.Errorf("anomaly policy: round number thresholds out of range")
	}
	return nil
}

// LoadPolicyFile overlays the YAML file at path onto base.
// Keys missing from the file keep their base values.
func LoadPolicyFile(path string, base Policy) (Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("read anomaly policy: %w", err)
	}
	p := base
	if err := yaml.Unmarshal(data, &p); err != nil {
		return base, fmt.Errorf("parse anomaly policy: %w", err)
	}
	if err := p.Validate(); err != nil {
		return base, err
	}
	return p, nil
}
