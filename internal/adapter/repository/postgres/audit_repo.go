package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/iho/tripleledger/internal/domain"
	"github.com/iho/tripleledger/internal/usecase"
)

const auditColumns = `id, company_id, sequence, auditable_kind, auditable_id, event, old_values, new_values,
	changed_fields, actor_id, transaction_id, journal_entry_id, batch_id, previous_hash, hash, created_at`

// AuditRepository persists the per-company audit chain. audit_logs rejects
// UPDATE and DELETE through a trigger.
type AuditRepository struct {
	db DB
}

// NewAuditRepository creates a new audit repository.
func NewAuditRepository(db DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// LockHead locks the company chain head row, creating it on first use.
func (r *AuditRepository) LockHead(ctx context.Context, tx usecase.Transaction, companyID string) (domain.ChainHead, error) {
	q := querier(r.db, tx)
	if _, err := q.Exec(ctx, `INSERT INTO audit_chain_heads (company_id) VALUES ($1)
		ON CONFLICT (company_id) DO NOTHING`, companyID); err != nil {
		return domain.ChainHead{}, fmt.Errorf("ensure chain head: %w", err)
	}
	return scanHead(q.QueryRow(ctx, `SELECT company_id, last_sequence, last_log_id, last_hash
		FROM audit_chain_heads WHERE company_id = $1 FOR UPDATE`, companyID))
}

// Append inserts the sealed record and moves the head to it.
func (r *AuditRepository) Append(ctx context.Context, tx usecase.Transaction, log *domain.AuditLog) error {
	q := querier(r.db, tx)
	oldValues, err := jsonColumn(log.OldValues)
	if err != nil {
		return err
	}
	newValues, err := jsonColumn(log.NewValues)
	if err != nil {
		return err
	}
	changed := log.ChangedFields
	if changed == nil {
		changed = []string{}
	}

	_, err = q.Exec(ctx, `
		INSERT INTO audit_logs (id, company_id, sequence, auditable_kind, auditable_id, event, old_values,
			new_values, changed_fields, actor_id, transaction_id, journal_entry_id, batch_id, previous_hash,
			hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		log.ID, log.CompanyID, log.Sequence, string(log.Auditable.Kind), log.Auditable.ID, string(log.Event),
		oldValues, newValues, changed, log.ActorID, log.TransactionID, log.JournalEntryID, log.BatchID,
		log.PreviousHash, log.Hash, log.CreatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: audit sequence %d already used", domain.ErrConflict, log.Sequence)
	}
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}

	tag, err := q.Exec(ctx, `
		UPDATE audit_chain_heads SET last_sequence = $2, last_log_id = $3, last_hash = $4
		WHERE company_id = $1 AND last_sequence = $2 - 1`,
		log.CompanyID, log.Sequence, log.ID, log.Hash,
	)
	return rowsAffectedOr(tag, err, fmt.Errorf("%w: chain head moved before sequence %d", domain.ErrConflict, log.Sequence))
}

// Head returns the chain head without locking it.
func (r *AuditRepository) Head(ctx context.Context, companyID string) (domain.ChainHead, error) {
	h, err := scanHead(r.db.QueryRow(ctx, `SELECT company_id, last_sequence, last_log_id, last_hash
		FROM audit_chain_heads WHERE company_id = $1`, companyID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ChainHead{CompanyID: companyID}, nil
	}
	return h, err
}

// GetBySequence returns one record of the chain.
func (r *AuditRepository) GetBySequence(ctx context.Context, companyID string, sequence int64) (*domain.AuditLog, error) {
	log, err := scanAuditLog(r.db.QueryRow(ctx, `SELECT `+auditColumns+` FROM audit_logs
		WHERE company_id = $1 AND sequence = $2`, companyID, sequence))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrAuditLogNotFound
	}
	return log, err
}

// ListRange returns records with from <= sequence <= to.
func (r *AuditRepository) ListRange(ctx context.Context, companyID string, from, to int64) ([]*domain.AuditLog, error) {
	return r.list(ctx, `SELECT `+auditColumns+` FROM audit_logs
		WHERE company_id = $1 AND sequence BETWEEN $2 AND $3 ORDER BY sequence`, companyID, from, to)
}

// ListByEntity returns the history of one entity oldest first.
func (r *AuditRepository) ListByEntity(ctx context.Context, companyID string, ref domain.EntityRef, limit, offset int) ([]*domain.AuditLog, error) {
	return r.list(ctx, `SELECT `+auditColumns+` FROM audit_logs
		WHERE company_id = $1 AND auditable_kind = $2 AND auditable_id = $3
		ORDER BY sequence LIMIT $4 OFFSET $5`,
		companyID, string(ref.Kind), ref.ID, limitOrAll(limit), offset)
}

func (r *AuditRepository) list(ctx context.Context, sql string, args ...any) ([]*domain.AuditLog, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []*domain.AuditLog
	for rows.Next() {
		log, err := scanAuditLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, log)
	}
	return logs, rows.Err()
}

// CreateCheckpoint stores a verified checkpoint.
func (r *AuditRepository) CreateCheckpoint(ctx context.Context, tx usecase.Transaction, cp *domain.AuditCheckpoint) error {
	_, err := querier(r.db, tx).Exec(ctx, `
		INSERT INTO audit_checkpoints (id, company_id, last_log_id, last_sequence, checkpoint_hash, log_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		cp.ID, cp.CompanyID, cp.LastLogID, cp.LastSequence, cp.CheckpointHash, cp.LogCount, cp.CreatedAt,
	)
	return err
}

// ListCheckpoints returns checkpoints at or before sequence, newest first.
func (r *AuditRepository) ListCheckpoints(ctx context.Context, companyID string, atOrBefore int64, limit int) ([]*domain.AuditCheckpoint, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, company_id, last_log_id, last_sequence, checkpoint_hash, log_count, created_at
		FROM audit_checkpoints
		WHERE company_id = $1 AND last_sequence <= $2
		ORDER BY last_sequence DESC, created_at DESC LIMIT $3`, companyID, atOrBefore, limitOrAll(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.AuditCheckpoint
	for rows.Next() {
		var cp domain.AuditCheckpoint
		if err := rows.Scan(&cp.ID, &cp.CompanyID, &cp.LastLogID, &cp.LastSequence,
			&cp.CheckpointHash, &cp.LogCount, &cp.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &cp)
	}
	return out, rows.Err()
}

// jsonColumn keeps nil state as SQL NULL so the stored record hashes the same
// way after a round trip.
func jsonColumn(v domain.JSON) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return marshalJSON(v)
}

func scanHead(row pgx.Row) (domain.ChainHead, error) {
	var h domain.ChainHead
	err := row.Scan(&h.CompanyID, &h.LastSequence, &h.LastLogID, &h.LastHash)
	return h, err
}

func scanAuditLog(row pgx.Row) (*domain.AuditLog, error) {
	var (
		l                    domain.AuditLog
		oldValues, newValues []byte
	)
	err := row.Scan(&l.ID, &l.CompanyID, &l.Sequence, &l.Auditable.Kind, &l.Auditable.ID, &l.Event,
		&oldValues, &newValues, &l.ChangedFields, &l.ActorID, &l.TransactionID, &l.JournalEntryID,
		&l.BatchID, &l.PreviousHash, &l.Hash, &l.CreatedAt)
	if err != nil {
		return nil, err
	}
	if l.OldValues, err = unmarshalJSON[domain.JSON](oldValues); err != nil {
		return nil, fmt.Errorf("decode old values of audit log %s: %w", l.ID, err)
	}
	if l.NewValues, err = unmarshalJSON[domain.JSON](newValues); err != nil {
		return nil, fmt.Errorf("decode new values of audit log %s: %w", l.ID, err)
	}
	if len(l.ChangedFields) == 0 {
		l.ChangedFields = nil
	}
	l.CreatedAt = domain.AuditTimestamp(l.CreatedAt)
	return &l, nil
}
