// Package governance composes the validator, dependency checker, version
// store, confirmation gate and audit recorder into the public record
// operations. Every operation is all-or-nothing: each runs inside one
// transaction, and any stage failure aborts with no partial writes. Rejected
// force attempts are the one addition on top of that: they still leave an
// audit entry, written outside the rolled-back transaction.
package governance

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lcsys/governance/internal/auth"
	"github.com/lcsys/governance/internal/domain/record"
	"github.com/lcsys/governance/internal/lint"
	"github.com/lcsys/governance/internal/repository"
	"github.com/lcsys/governance/pkg/database"
)

// Actor identifies who is performing an operation and with what role
type Actor struct {
	Name string
	Role auth.Role
}

// Engine is the governance orchestrator
type Engine struct {
	db        *database.DB
	tasks     *repository.TaskRepository
	workflows *repository.WorkflowRepository
	audit     *repository.AuditRepository
	validator *lint.Validator
	logger    *zap.Logger

	now   func() time.Time
	newID func() string
}

// NewEngine creates a governance engine over the given store
func NewEngine(
	db *database.DB,
	tasks *repository.TaskRepository,
	workflows *repository.WorkflowRepository,
	audit *repository.AuditRepository,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		db:        db,
		tasks:     tasks,
		workflows: workflows,
		audit:     audit,
		validator: lint.NewValidator(),
		logger:    logger,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// statusSummary renders the before/after snapshot stored on audit entries
func statusSummary(entity record.EntityType, status record.Status, title string) string {
	b, _ := json.Marshal(map[string]string{
		"entity": string(entity),
		"status": string(status),
		"title":  title,
	})
	return string(b)
}

// recordAudit appends the single audit entry every state-changing operation
// produces. Runs in the mutation's transaction so the entry commits with it.
func (e *Engine) recordAudit(tx *sql.Tx, entry record.AuditEntry) error {
	entry.At = e.now()
	return e.audit.Append(tx, &entry)
}

// recordRejectedOverride ledgers a force attempt whose pipeline failed after
// the reason and authorization checks. The failed mutation's transaction has
// already rolled back, so this entry is appended in its own write; the
// attempt must stay visible in the ledger even though nothing changed.
func (e *Engine) recordRejectedOverride(entity record.EntityType, recordID string, version int, op record.Operation, actor Actor, overrideReason string, cause error) {
	entry := record.AuditEntry{
		EntityType:     entity,
		RecordID:       recordID,
		Version:        version,
		Operation:      op,
		Actor:          actor.Name,
		At:             e.now(),
		OverrideReason: overrideReason,
		Note:           "rejected: " + cause.Error(),
	}
	if err := e.audit.Append(nil, &entry); err != nil {
		e.logger.Error("Failed to ledger rejected override",
			zap.String("record_id", recordID),
			zap.String("operation", string(op)),
			zap.Error(err))
	}
}

// AuditLog exposes the paginated, filterable audit ledger read surface
func (e *Engine) AuditLog(f repository.Filter) ([]*record.AuditEntry, error) {
	return e.audit.List(nil, f)
}
