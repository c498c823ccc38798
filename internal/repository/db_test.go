package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lcsys/governance/internal/domain/record"
	"github.com/lcsys/governance/migrations"
	"github.com/lcsys/governance/pkg/database"
)

func newTestDB(t *testing.T) *database.DB {
	t.Helper()

	logger := zap.NewNop()
	db, err := database.NewInMemory(logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.NewMigrator(db, logger).Run(migrations.FS))
	return db
}

func testTime() time.Time {
	return time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
}

func makeTask(recordID string, version int, status record.Status) *record.Task {
	now := testTime()
	return &record.Task{
		Meta: record.Meta{
			RecordID:  recordID,
			Version:   version,
			Status:    status,
			CreatedAt: now,
			UpdatedAt: now,
			CreatedBy: "sam",
			UpdatedBy: "sam",
		},
		Title:         "Restart the ingest service",
		Outcome:       "Ingest service running with a fresh process",
		Domain:        "ops",
		Facts:         []string{"service unit name is ingestd"},
		Concepts:      []string{"systemd unit"},
		ProcedureName: "restart-ingest",
		Steps: []record.Step{
			{Text: "Run `systemctl restart ingestd`", Completion: "`systemctl is-active ingestd` prints active"},
		},
	}
}

func makeWorkflow(recordID string, version int, status record.Status, refs ...record.TaskRef) *record.Workflow {
	now := testTime()
	return &record.Workflow{
		Meta: record.Meta{
			RecordID:  recordID,
			Version:   version,
			Status:    status,
			CreatedAt: now,
			UpdatedAt: now,
			CreatedBy: "sam",
			UpdatedBy: "sam",
		},
		Title:     "Ingest maintenance window",
		Objective: "Ingest pipeline healthy after maintenance",
		TaskRefs:  refs,
	}
}
