package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lcsys/governance/internal/domain/record"
)

func appendEntry(t *testing.T, repo *AuditRepository, recordID string, op record.Operation, actor string, at time.Time) *record.AuditEntry {
	t.Helper()
	entry := &record.AuditEntry{
		EntityType: record.EntityTask,
		RecordID:   recordID,
		Version:    1,
		Operation:  op,
		Actor:      actor,
		At:         at,
	}
	require.NoError(t, repo.Append(nil, entry))
	return entry
}

func TestAuditRepository_AppendAssignsID(t *testing.T) {
	db := newTestDB(t)
	repo := NewAuditRepository(db.DB, zap.NewNop())

	e1 := appendEntry(t, repo, "t-1", record.OperationCreate, "sam", testTime())
	e2 := appendEntry(t, repo, "t-1", record.OperationSubmit, "sam", testTime())

	assert.Greater(t, e1.ID, int64(0))
	assert.Greater(t, e2.ID, e1.ID)
}

func TestAuditRepository_ListInAppendOrder(t *testing.T) {
	db := newTestDB(t)
	repo := NewAuditRepository(db.DB, zap.NewNop())

	appendEntry(t, repo, "t-1", record.OperationCreate, "sam", testTime())
	appendEntry(t, repo, "t-1", record.OperationSubmit, "sam", testTime().Add(time.Minute))
	appendEntry(t, repo, "t-1", record.OperationConfirm, "rin", testTime().Add(2*time.Minute))

	entries, err := repo.List(nil, Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, record.OperationCreate, entries[0].Operation)
	assert.Equal(t, record.OperationSubmit, entries[1].Operation)
	assert.Equal(t, record.OperationConfirm, entries[2].Operation)
}

func TestAuditRepository_Filters(t *testing.T) {
	db := newTestDB(t)
	repo := NewAuditRepository(db.DB, zap.NewNop())

	appendEntry(t, repo, "t-1", record.OperationCreate, "sam", testTime())
	appendEntry(t, repo, "t-2", record.OperationCreate, "sam", testTime())
	appendEntry(t, repo, "t-1", record.OperationForceConfirm, "ada", testTime())

	byRecord, err := repo.List(nil, Filter{RecordID: "t-1"})
	require.NoError(t, err)
	assert.Len(t, byRecord, 2)

	byActor, err := repo.List(nil, Filter{Actor: "ada"})
	require.NoError(t, err)
	require.Len(t, byActor, 1)
	assert.Equal(t, record.OperationForceConfirm, byActor[0].Operation)

	byOp, err := repo.List(nil, Filter{RecordID: "t-1", Operation: record.OperationCreate})
	require.NoError(t, err)
	assert.Len(t, byOp, 1)
}

func TestAuditRepository_Pagination(t *testing.T) {
	db := newTestDB(t)
	repo := NewAuditRepository(db.DB, zap.NewNop())

	for i := 0; i < 5; i++ {
		appendEntry(t, repo, "t-1", record.OperationRevise, "sam", testTime())
	}

	page, err := repo.List(nil, Filter{Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, int64(3), page[0].ID)
	assert.Equal(t, int64(4), page[1].ID)
}

func TestAuditRepository_OverrideReasonRoundTrip(t *testing.T) {
	db := newTestDB(t)
	repo := NewAuditRepository(db.DB, zap.NewNop())

	entry := &record.AuditEntry{
		EntityType:     record.EntityWorkflow,
		RecordID:       "w-1",
		Version:        2,
		Operation:      record.OperationForceConfirm,
		Actor:          "ada",
		At:             testTime(),
		BeforeSummary:  `{"status":"submitted"}`,
		AfterSummary:   `{"status":"confirmed"}`,
		OverrideReason: "incident 4821: unblock the release runbook",
	}
	require.NoError(t, repo.Append(nil, entry))

	entries, err := repo.List(nil, Filter{EntityType: record.EntityWorkflow})
	require.NoError(t, err)
	require.Len(t, entries, 1)

	got := entries[0]
	assert.Equal(t, entry.OverrideReason, got.OverrideReason)
	assert.Equal(t, entry.BeforeSummary, got.BeforeSummary)
	assert.Equal(t, entry.AfterSummary, got.AfterSummary)
	assert.Equal(t, testTime(), got.At)
}
