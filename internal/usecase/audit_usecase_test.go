package usecase_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/tripleledger/internal/domain"
	"github.com/iho/tripleledger/internal/usecase"
)

func TestAuditChain_VerifiesIntactChain(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	l.postInvoice(t, "INV-1", date(2024, time.January, 10), "1200")

	head := l.head(t)
	require.Greater(t, head, int64(5))

	report, err := l.audit.VerifyRange(ctx, company, 1, 0)
	require.NoError(t, err)
	assert.True(t, report.Valid)
	assert.Equal(t, int(head), report.RecordsChecked)
	assert.Equal(t, head, report.To)
	assert.Nil(t, report.FirstBreak)

	first, err := l.store.Audit().GetBySequence(ctx, company, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.GenesisHash, first.PreviousHash)
	assert.True(t, l.audit.VerifyIntegrity(first))
}

func TestAuditChain_TamperBreaksEveryLaterRecord(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	l.postInvoice(t, "INV-1", date(2024, time.January, 10), "1200")
	head := l.head(t)

	const tampered = 3
	ok := l.store.TamperAuditLog(company, tampered, func(log *domain.AuditLog) {
		log.NewValues["name"] = "Edited Later"
	})
	require.True(t, ok)

	rec, err := l.store.Audit().GetBySequence(ctx, company, tampered)
	require.NoError(t, err)
	assert.False(t, l.audit.VerifyIntegrity(rec))

	report, err := l.audit.VerifyRange(ctx, company, 1, 0)
	require.NoError(t, err)
	assert.False(t, report.Valid)
	require.NotNil(t, report.FirstBreak)
	assert.Equal(t, int64(tampered), report.FirstBreak.Sequence)
	assert.Equal(t, rec.ID, report.FirstBreak.LogID)

	var want []int64
	for seq := int64(tampered); seq <= head; seq++ {
		want = append(want, seq)
	}
	assert.Equal(t, want, report.BrokenSequences)

	before, err := l.audit.VerifyRange(ctx, company, 1, tampered-1)
	require.NoError(t, err)
	assert.True(t, before.Valid, "records before the tampered one still verify")

	_, err = l.audit.CreateCheckpoint(ctx, company)
	assert.ErrorIs(t, err, domain.ErrChainBroken)
	assert.ErrorIs(t, err, domain.ErrIntegrity)
}

func TestAuditChain_ResumesFromCheckpoint(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t, withCheckpointInterval(5))
	for i := 1; i <= 3; i++ {
		l.postInvoice(t, fmt.Sprintf("INV-%d", i), date(2024, time.January, 10), "10")
	}
	head := l.head(t)
	require.Greater(t, head, int64(12))

	report, err := l.audit.VerifyRange(ctx, company, 11, 0)
	require.NoError(t, err)
	assert.True(t, report.Valid)
	assert.Equal(t, int64(10), report.StartedFrom)
	assert.Equal(t, int(head-10), report.RecordsChecked)

	full, err := l.audit.VerifyRange(ctx, company, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), full.StartedFrom)
}

func TestAuditChain_CorruptCheckpointFallsBack(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t, withCheckpointInterval(5))
	for i := 1; i <= 3; i++ {
		l.postInvoice(t, fmt.Sprintf("INV-%d", i), date(2024, time.January, 10), "10")
	}

	l.store.TamperAuditLog(company, 10, func(log *domain.AuditLog) {
		log.ActorID = "someone-else"
	})

	report, err := l.audit.VerifyRange(ctx, company, 11, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(5), report.StartedFrom, "checkpoint on a modified record is skipped")
	assert.False(t, report.Valid)
}

func TestAuditChain_AppendStandalone(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	head := l.head(t)

	log, err := l.audit.Append(ctx, usecase.AuditRecord{
		CompanyID: company,
		Auditable: domain.Ref(domain.KindCompany, company),
		Event:     domain.AuditUpdated,
		OldValues: domain.JSON{"name": "Acme"},
		NewValues: domain.JSON{"name": "Acme Ltd"},
	})
	require.NoError(t, err)
	assert.Equal(t, head+1, log.Sequence)
	assert.Equal(t, usecase.SystemActor, log.ActorID)
	assert.Equal(t, []string{"name"}, log.ChangedFields)

	_, err = l.audit.Append(ctx, usecase.AuditRecord{CompanyID: company, Event: domain.AuditUpdated})
	assert.ErrorIs(t, err, domain.ErrInvalidEntityRef)
	assert.Equal(t, head+1, l.head(t))
}

func TestAuditChain_EmptyChain(t *testing.T) {
	l := newTestLedger(t)
	report, err := l.audit.VerifyRange(context.Background(), "co-empty", 1, 0)
	require.NoError(t, err)
	assert.True(t, report.Valid)
	assert.Zero(t, report.RecordsChecked)
}
