package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/iho/tripleledger/internal/domain"
	"github.com/iho/tripleledger/internal/usecase"
)

// AuditRepo implements usecase.AuditRepository. Records live in a per-company
// slice indexed by sequence-1.
type AuditRepo struct{ s *Store }

func (r *AuditRepo) LockHead(_ context.Context, tx usecase.Transaction, companyID string) (domain.ChainHead, error) {
	if err := r.s.checkTx(tx); err != nil {
		return domain.ChainHead{}, err
	}
	return r.head(companyID), nil
}

func (r *AuditRepo) head(companyID string) domain.ChainHead {
	var h domain.ChainHead
	r.s.read(func(st *state) {
		h = st.heads[companyID]
	})
	h.CompanyID = companyID
	return h
}

func (r *AuditRepo) Append(_ context.Context, tx usecase.Transaction, log *domain.AuditLog) error {
	return r.s.write(tx, func(st *state) error {
		logs := st.auditLogs[log.CompanyID]
		if want := int64(len(logs)) + 1; log.Sequence != want {
			return fmt.Errorf("%w: audit sequence %d, expected %d", domain.ErrConflict, log.Sequence, want)
		}
		st.auditLogs[log.CompanyID] = append(logs, *log)
		st.heads[log.CompanyID] = domain.ChainHead{
			CompanyID:    log.CompanyID,
			LastSequence: log.Sequence,
			LastLogID:    log.ID,
			LastHash:     log.Hash,
		}
		return nil
	})
}

func (r *AuditRepo) Head(_ context.Context, companyID string) (domain.ChainHead, error) {
	return r.head(companyID), nil
}

func (r *AuditRepo) GetBySequence(_ context.Context, companyID string, sequence int64) (*domain.AuditLog, error) {
	var (
		out *domain.AuditLog
		err error
	)
	r.s.read(func(st *state) {
		logs := st.auditLogs[companyID]
		if sequence < 1 || int(sequence) > len(logs) {
			err = domain.ErrAuditLogNotFound
			return
		}
		l := logs[sequence-1]
		out = &l
	})
	return out, err
}

func (r *AuditRepo) ListRange(_ context.Context, companyID string, from, to int64) ([]*domain.AuditLog, error) {
	var out []*domain.AuditLog
	r.s.read(func(st *state) {
		for _, l := range st.auditLogs[companyID] {
			if l.Sequence >= from && l.Sequence <= to {
				l := l
				out = append(out, &l)
			}
		}
	})
	return out, nil
}

func (r *AuditRepo) ListByEntity(_ context.Context, companyID string, ref domain.EntityRef, limit, offset int) ([]*domain.AuditLog, error) {
	var out []*domain.AuditLog
	r.s.read(func(st *state) {
		for _, l := range st.auditLogs[companyID] {
			if l.Auditable == ref {
				l := l
				out = append(out, &l)
			}
		}
	})
	return page(out, limit, offset), nil
}

func (r *AuditRepo) CreateCheckpoint(_ context.Context, tx usecase.Transaction, cp *domain.AuditCheckpoint) error {
	return r.s.write(tx, func(st *state) error {
		st.checkpoints[cp.CompanyID] = append(st.checkpoints[cp.CompanyID], *cp)
		return nil
	})
}

func (r *AuditRepo) ListCheckpoints(_ context.Context, companyID string, atOrBefore int64, limit int) ([]*domain.AuditCheckpoint, error) {
	var out []*domain.AuditCheckpoint
	r.s.read(func(st *state) {
		for _, cp := range st.checkpoints[companyID] {
			if cp.LastSequence <= atOrBefore {
				cp := cp
				out = append(out, &cp)
			}
		}
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].LastSequence > out[j].LastSequence })
	return page(out, limit, 0), nil
}
