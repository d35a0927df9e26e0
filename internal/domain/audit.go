package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"
)

// GenesisHash is the previous hash of the first record in a company chain.
var GenesisHash = strings.Repeat("0", 64)

// JSON is a type alias for JSON data
type JSON map[string]any

// AuditEvent names the mutation recorded by an audit log.
type AuditEvent string

const (
	AuditCreated   AuditEvent = "created"
	AuditUpdated   AuditEvent = "updated"
	AuditPosted    AuditEvent = "posted"
	AuditVoided    AuditEvent = "voided"
	AuditReversed  AuditEvent = "reversed"
	AuditDeleted   AuditEvent = "deleted"
	AuditResolved  AuditEvent = "resolved"
	AuditStarted   AuditEvent = "started"
	AuditCompleted AuditEvent = "completed"
	AuditFailed    AuditEvent = "failed"
	AuditClosed    AuditEvent = "closed"
)

// AuditLog is one link of a company's tamper-evident chain.
// Records are never updated or deleted once appended.
type AuditLog struct {
	ID             string
	CompanyID      string
	Sequence       int64
	Auditable      EntityRef
	Event          AuditEvent
	OldValues      JSON
	NewValues      JSON
	ChangedFields  []string
	ActorID        string
	TransactionID  *string
	JournalEntryID *string
	BatchID        string
	PreviousHash   string
	Hash           string
	CreatedAt      time.Time
}

// canonicalAuditLog fixes field order for hashing. Map keys are sorted by encoding/json.
type canonicalAuditLog struct {
	ID             string     `json:"id"`
	CompanyID      string     `json:"company_id"`
	Sequence       int64      `json:"sequence"`
	AuditableKind  EntityKind `json:"auditable_kind"`
	AuditableID    string     `json:"auditable_id"`
	Event          AuditEvent `json:"event"`
	OldValues      JSON       `json:"old_values"`
	NewValues      JSON       `json:"new_values"`
	ChangedFields  []string   `json:"changed_fields"`
	ActorID        string     `json:"actor_id"`
	TransactionID  *string    `json:"transaction_id"`
	JournalEntryID *string    `json:"journal_entry_id"`
	BatchID        string     `json:"batch_id"`
	CreatedAt      string     `json:"created_at"`
	PreviousHash   string     `json:"previous_hash"`
}

// Canonical returns the deterministic serialization hashed into the chain.
// Hash itself is excluded; PreviousHash is included.
func (l *AuditLog) Canonical() ([]byte, error) {
	changed := l.ChangedFields
	if changed == nil {
		changed = []string{}
	}
	return json.Marshal(canonicalAuditLog{
		ID:             l.ID,
		CompanyID:      l.CompanyID,
		Sequence:       l.Sequence,
		AuditableKind:  l.Auditable.Kind,
		AuditableID:    l.Auditable.ID,
		Event:          l.Event,
		OldValues:      l.OldValues,
		NewValues:      l.NewValues,
		ChangedFields:  changed,
		ActorID:        l.ActorID,
		TransactionID:  l.TransactionID,
		JournalEntryID: l.JournalEntryID,
		BatchID:        l.BatchID,
		CreatedAt:      AuditTimestamp(l.CreatedAt).Format(time.RFC3339Nano),
		PreviousHash:   l.PreviousHash,
	})
}

// DigestWith computes the record hash as if previous were its predecessor's hash.
func (l *AuditLog) DigestWith(previous string) (string, error) {
	saved := l.PreviousHash
	l.PreviousHash = previous
	data, err := l.Canonical()
	l.PreviousHash = saved
	if err != nil {
		return "", fmt.Errorf("canonicalize audit log %s: %w", l.ID, err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Seal links the record to previous and stores the resulting hash.
func (l *AuditLog) Seal(previous string) error {
	l.CreatedAt = AuditTimestamp(l.CreatedAt)
	hash, err := l.DigestWith(previous)
	if err != nil {
		return err
	}
	l.PreviousHash = previous
	l.Hash = hash
	return nil
}

// VerifyIntegrity recomputes the digest using the stored previous hash.
func (l *AuditLog) VerifyIntegrity() bool {
	hash, err := l.DigestWith(l.PreviousHash)
	return err == nil && hash == l.Hash
}

// AuditTimestamp normalizes t to the precision the store can round-trip.
func AuditTimestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// ChainHead is the tip of a company chain.
type ChainHead struct {
	CompanyID    string
	LastSequence int64
	LastLogID    string
	LastHash     string
}

// NextPrevious returns the previous hash for the next append.
func (h ChainHead) NextPrevious() string {
	if h.LastSequence == 0 || h.LastHash == "" {
		return GenesisHash
	}
	return h.LastHash
}

// AuditCheckpoint records a verified point in the chain so verification
// can resume from it instead of genesis.
type AuditCheckpoint struct {
	ID             string
	CompanyID      string
	LastLogID      string
	LastSequence   int64
	CheckpointHash string
	LogCount       int64
	CreatedAt      time.Time
}

// ChainBreak describes the first record whose hash does not verify.
type ChainBreak struct {
	Sequence int64  `json:"sequence"`
	LogID    string `json:"log_id"`
	Reason   string `json:"reason"`
}

// VerificationReport is the outcome of walking a range of the chain.
type VerificationReport struct {
	CompanyID       string      `json:"company_id"`
	From            int64       `json:"from"`
	To              int64       `json:"to"`
	StartedFrom     int64       `json:"started_from"`
	RecordsChecked  int         `json:"records_checked"`
	Valid           bool        `json:"valid"`
	FirstBreak      *ChainBreak `json:"first_break,omitempty"`
	BrokenSequences []int64     `json:"broken_sequences,omitempty"`
	VerifiedAt      time.Time   `json:"verified_at"`
}

// MarshalState converts a domain object to JSON for audit logging
func MarshalState(v any) JSON {
	if v == nil {
		return nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return JSON{"error": "failed to marshal state"}
	}

	var result JSON
	if err := json.Unmarshal(data, &result); err != nil {
		return JSON{"error": "failed to unmarshal state"}
	}

	return result
}

// ChangedFields lists the keys whose values differ between old and new, sorted.
func ChangedFields(old, new JSON) []string {
	keys := make(map[string]struct{}, len(old)+len(new))
	for k := range old {
		keys[k] = struct{}{}
	}
	for k := range new {
		keys[k] = struct{}{}
	}

	var changed []string
	for k := range keys {
		ov, oOK := old[k]
		nv, nOK := new[k]
		if oOK != nOK || !reflect.DeepEqual(ov, nv) {
			changed = append(changed, k)
		}
	}
	sort.Strings(changed)
	return changed
}
