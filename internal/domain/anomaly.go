package domain

import (
	"fmt"
	"time"
)

// DetectionType names the detector that produced a finding.
type DetectionType string

const (
	DetectionUnusualAmount DetectionType = "unusual_amount"
	DetectionDuplicate     DetectionType = "duplicate"
	DetectionMissingEntry  DetectionType = "missing_entry"
	DetectionTiming        DetectionType = "timing"
	DetectionPattern       DetectionType = "pattern"
	DetectionUnbalanced    DetectionType = "unbalanced_entry"
	DetectionRoundNumber   DetectionType = "round_number"
	DetectionCustomRule    DetectionType = "custom_rule"
)

// Severity of a finding.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Rank orders severities; higher is more severe.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityWarning:
		return 2
	case SeverityInfo:
		return 1
	}
	return 0
}

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	return s.Rank() > 0
}

// AnomalyStatus is the review state of a finding.
type AnomalyStatus string

const (
	AnomalyOpen      AnomalyStatus = "open"
	AnomalyReviewed  AnomalyStatus = "reviewed"
	AnomalyResolved  AnomalyStatus = "resolved"
	AnomalyDismissed AnomalyStatus = "dismissed"
)

// Unresolved reports whether the finding still needs attention.
func (s AnomalyStatus) Unresolved() bool {
	return s == AnomalyOpen || s == AnomalyReviewed
}

var anomalyTransitions = map[AnomalyStatus][]AnomalyStatus{
	AnomalyOpen:     {AnomalyReviewed, AnomalyResolved, AnomalyDismissed},
	AnomalyReviewed: {AnomalyResolved, AnomalyDismissed},
}

// CanTransition reports whether from -> to is allowed.
func (s AnomalyStatus) CanTransition(to AnomalyStatus) bool {
	for _, allowed := range anomalyTransitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

// AnomalyResolution is one step of a finding's review trail.
type AnomalyResolution struct {
	From    AnomalyStatus `json:"from"`
	Status  AnomalyStatus `json:"status"`
	ActorID string        `json:"actor_id"`
	Note    string        `json:"note,omitempty"`
	At      time.Time     `json:"at"`
}

// AnomalyDetection is a finding produced by a books close run.
type AnomalyDetection struct {
	ID               string
	CompanyID        string
	RunID            string
	FiscalPeriodID   string
	Type             DetectionType
	Severity         Severity
	Status           AnomalyStatus
	Entity           EntityRef
	Confidence       float64
	Title            string
	Description      string
	Data             JSON
	SuggestedActions []string
	Rank             int
	Trail            []AnomalyResolution
	ReviewedBy       *string
	ReviewedAt       *time.Time
	ResolvedBy       *string
	ResolvedAt       *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Apply performs a review transition and records it in the trail.
func (a *AnomalyDetection) Apply(to AnomalyStatus, actorID, note string, at time.Time) error {
	if actorID == "" {
		return ErrActorRequired
	}
	if !a.Status.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", ErrAnomalyTransition, a.Status, to)
	}
	a.Trail = append(a.Trail, AnomalyResolution{From: a.Status, Status: to, ActorID: actorID, Note: note, At: at})
	a.Status = to
	a.UpdatedAt = at
	if to == AnomalyReviewed {
		a.ReviewedBy = &actorID
		a.ReviewedAt = &at
	} else {
		a.ResolvedBy = &actorID
		a.ResolvedAt = &at
	}
	return nil
}
