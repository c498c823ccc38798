package governance

import (
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/lcsys/governance/internal/auth"
	"github.com/lcsys/governance/internal/domain/lifecycle"
	"github.com/lcsys/governance/internal/domain/record"
	"github.com/lcsys/governance/internal/graph"
)

// depCorpus adapts the stored dependency edges to the cycle checker
type depCorpus struct {
	edges map[string][]string
}

func (c depCorpus) TaskDependencies(id string) []string { return c.edges[id] }
func (c depCorpus) TaskExists(id string) bool {
	_, ok := c.edges[id]
	return ok
}

func (e *Engine) loadDepCorpus(tx *sql.Tx) (depCorpus, error) {
	edges, err := e.tasks.DependencyEdges(tx)
	if err != nil {
		return depCorpus{}, err
	}
	return depCorpus{edges: edges}, nil
}

// CreateTask validates and persists a new task record at version 1, draft.
// Lint warnings come back alongside success; they never block.
func (e *Engine) CreateTask(actor Actor, content *record.Task) (*record.Task, []string, error) {
	if err := auth.Require(actor.Name, actor.Role, auth.ActionTaskCreate); err != nil {
		return nil, nil, err
	}

	res := e.validator.ValidateTask(content, record.StatusDraft)
	if !res.Valid() {
		return nil, res.Warnings, &ValidationError{Result: res}
	}

	task := *content
	now := e.now()
	task.RecordID = e.newID()
	task.Version = 1
	task.Status = record.StatusDraft
	task.CreatedAt = now
	task.UpdatedAt = now
	task.CreatedBy = actor.Name
	task.UpdatedBy = actor.Name
	task.ReviewedAt = nil
	task.ReviewedBy = ""
	task.Steps = record.NormalizeSteps(task.Steps)

	err := e.db.WithTransaction(func(tx *sql.Tx) error {
		corpus, err := e.loadDepCorpus(tx)
		if err != nil {
			return err
		}
		if err := graph.CheckTask(task.RecordID, task.Dependencies, corpus); err != nil {
			return err
		}
		if err := e.tasks.Insert(tx, &task); err != nil {
			return err
		}
		return e.recordAudit(tx, record.AuditEntry{
			EntityType:   record.EntityTask,
			RecordID:     task.RecordID,
			Version:      1,
			Operation:    record.OperationCreate,
			Actor:        actor.Name,
			AfterSummary: statusSummary(record.EntityTask, task.Status, task.Title),
		})
	})
	if err != nil {
		return nil, res.Warnings, err
	}

	e.logger.Info("Task created",
		zap.String("record_id", task.RecordID),
		zap.String("actor", actor.Name))
	return &task, res.Warnings, nil
}

// UpdateDraftTask rewrites a draft version's content in place. Versions
// past draft cannot be edited this way: submitted versions must be returned
// for changes first, confirmed and deprecated versions are immutable.
func (e *Engine) UpdateDraftTask(actor Actor, recordID string, version int, content *record.Task) (*record.Task, []string, error) {
	if err := auth.Require(actor.Name, actor.Role, auth.ActionTaskRevise); err != nil {
		return nil, nil, err
	}

	res := e.validator.ValidateTask(content, record.StatusDraft)
	if !res.Valid() {
		return nil, res.Warnings, &ValidationError{Result: res}
	}

	var updated *record.Task
	err := e.db.WithTransaction(func(tx *sql.Tx) error {
		current, err := e.tasks.Get(tx, recordID, version)
		if err != nil {
			return err
		}
		if current.Status == record.StatusSubmitted {
			return fmt.Errorf("task %s@%d is submitted; return it for changes before editing", recordID, version)
		}

		task := *content
		task.RecordID = recordID
		task.Version = version
		task.Steps = record.NormalizeSteps(task.Steps)

		corpus, err := e.loadDepCorpus(tx)
		if err != nil {
			return err
		}
		if err := graph.CheckTask(recordID, task.Dependencies, corpus); err != nil {
			return err
		}
		if err := e.tasks.UpdateContent(tx, &task, actor.Name, e.now()); err != nil {
			return err
		}

		if err := e.recordAudit(tx, record.AuditEntry{
			EntityType:    record.EntityTask,
			RecordID:      recordID,
			Version:       version,
			Operation:     record.OperationRevise,
			Actor:         actor.Name,
			BeforeSummary: statusSummary(record.EntityTask, current.Status, current.Title),
			AfterSummary:  statusSummary(record.EntityTask, current.Status, task.Title),
			Note:          "in-place draft edit",
		}); err != nil {
			return err
		}

		updated, err = e.tasks.Get(tx, recordID, version)
		return err
	})
	if err != nil {
		return nil, res.Warnings, err
	}
	return updated, res.Warnings, nil
}

// ReviseTask mints a new draft version of the record at latest+1 with the
// given content. A change note is mandatory. The source version is never
// touched; confirmed versions stay confirmed until superseded.
func (e *Engine) ReviseTask(actor Actor, recordID string, fromVersion int, content *record.Task, changeNote string) (*record.Task, []string, error) {
	if err := auth.Require(actor.Name, actor.Role, auth.ActionTaskRevise); err != nil {
		return nil, nil, err
	}
	if strings.TrimSpace(changeNote) == "" {
		return nil, nil, ErrChangeNoteRequired
	}

	res := e.validator.ValidateTask(content, record.StatusDraft)
	if !res.Valid() {
		return nil, res.Warnings, &ValidationError{Result: res}
	}

	var task record.Task
	err := e.db.WithTransaction(func(tx *sql.Tx) error {
		src, err := e.tasks.Get(tx, recordID, fromVersion)
		if err != nil {
			return err
		}

		latest, err := e.tasks.LatestVersion(tx, recordID)
		if err != nil {
			return err
		}

		now := e.now()
		task = *content
		task.RecordID = recordID
		task.Version = latest + 1
		task.Status = record.StatusDraft
		task.CreatedAt = now
		task.UpdatedAt = now
		task.CreatedBy = actor.Name
		task.UpdatedBy = actor.Name
		task.ReviewedAt = nil
		task.ReviewedBy = ""
		task.ChangeNote = strings.TrimSpace(changeNote)
		task.NeedsReview = src.NeedsReview
		task.NeedsReviewNote = src.NeedsReviewNote
		task.Steps = record.NormalizeSteps(task.Steps)

		corpus, err := e.loadDepCorpus(tx)
		if err != nil {
			return err
		}
		if err := graph.CheckTask(recordID, task.Dependencies, corpus); err != nil {
			return err
		}

		if err := e.tasks.Insert(tx, &task); err != nil {
			return err
		}
		return e.recordAudit(tx, record.AuditEntry{
			EntityType:    record.EntityTask,
			RecordID:      recordID,
			Version:       task.Version,
			Operation:     record.OperationRevise,
			Actor:         actor.Name,
			BeforeSummary: statusSummary(record.EntityTask, src.Status, src.Title),
			AfterSummary:  statusSummary(record.EntityTask, task.Status, task.Title),
			Note:          fmt.Sprintf("from v%d: %s", fromVersion, task.ChangeNote),
		})
	})
	if err != nil {
		return nil, res.Warnings, err
	}

	e.logger.Info("Task revised",
		zap.String("record_id", recordID),
		zap.Int("new_version", task.Version),
		zap.String("actor", actor.Name))
	return &task, res.Warnings, nil
}

// SubmitTask moves a draft task version to submitted. The stored content is
// re-validated against the submitted requirements (domain becomes
// mandatory) and the dependency graph is checked before the status changes.
func (e *Engine) SubmitTask(actor Actor, recordID string, version int) ([]string, error) {
	return e.submitTask(actor, recordID, version, record.OperationSubmit, "")
}

// ForceSubmitTask bypasses the validator with a mandatory override reason.
// The dependency cycle check is never bypassed: a cyclic corpus is a
// corruption no override may introduce.
func (e *Engine) ForceSubmitTask(actor Actor, recordID string, version int, overrideReason string) error {
	if strings.TrimSpace(overrideReason) == "" {
		return ErrOverrideReasonRequired
	}
	if err := auth.Require(actor.Name, actor.Role, auth.ActionForce); err != nil {
		return err
	}
	reason := strings.TrimSpace(overrideReason)
	if _, err := e.submitTask(actor, recordID, version, record.OperationForceSubmit, reason); err != nil {
		e.recordRejectedOverride(record.EntityTask, recordID, version, record.OperationForceSubmit, actor, reason, err)
		return err
	}
	return nil
}

func (e *Engine) submitTask(actor Actor, recordID string, version int, op record.Operation, overrideReason string) ([]string, error) {
	if op == record.OperationSubmit {
		if err := auth.Require(actor.Name, actor.Role, auth.ActionTaskSubmit); err != nil {
			return nil, err
		}
	}

	var warnings []string
	err := e.db.WithTransaction(func(tx *sql.Tx) error {
		task, err := e.tasks.Get(tx, recordID, version)
		if err != nil {
			return err
		}
		if !lifecycle.CanTransition(task.Status, op) {
			return fmt.Errorf("task %s@%d: %w: %s from %s", recordID, version, lifecycle.ErrInvalidTransition, op, task.Status)
		}

		res := e.validator.ValidateTask(task, record.StatusSubmitted)
		warnings = res.Warnings
		if !res.Valid() && op != record.OperationForceSubmit {
			return &ValidationError{Result: res}
		}

		corpus, err := e.loadDepCorpus(tx)
		if err != nil {
			return err
		}
		if err := graph.CheckTask(recordID, task.Dependencies, corpus); err != nil {
			return err
		}

		if err := e.tasks.UpdateStatus(tx, recordID, version, task.Status, record.StatusSubmitted, actor.Name, e.now()); err != nil {
			return err
		}
		return e.recordAudit(tx, record.AuditEntry{
			EntityType:     record.EntityTask,
			RecordID:       recordID,
			Version:        version,
			Operation:      op,
			Actor:          actor.Name,
			BeforeSummary:  statusSummary(record.EntityTask, task.Status, task.Title),
			AfterSummary:   statusSummary(record.EntityTask, record.StatusSubmitted, task.Title),
			OverrideReason: overrideReason,
		})
	})
	if err != nil {
		return warnings, err
	}

	e.logger.Info("Task submitted",
		zap.String("record_id", recordID),
		zap.Int("version", version),
		zap.String("operation", string(op)),
		zap.String("actor", actor.Name))
	return warnings, nil
}

// ConfirmTask confirms a submitted task version. Any previously confirmed
// version of the record is deprecated in the same transaction, so readers
// never observe two confirmed versions.
func (e *Engine) ConfirmTask(actor Actor, recordID string, version int) error {
	if err := auth.Require(actor.Name, actor.Role, auth.ActionTaskConfirm); err != nil {
		return err
	}
	return e.confirmTask(actor, recordID, version, record.OperationConfirm, "")
}

// ForceConfirmTask is the audited admin override of ConfirmTask
func (e *Engine) ForceConfirmTask(actor Actor, recordID string, version int, overrideReason string) error {
	if strings.TrimSpace(overrideReason) == "" {
		return ErrOverrideReasonRequired
	}
	if err := auth.Require(actor.Name, actor.Role, auth.ActionForce); err != nil {
		return err
	}
	reason := strings.TrimSpace(overrideReason)
	if err := e.confirmTask(actor, recordID, version, record.OperationForceConfirm, reason); err != nil {
		e.recordRejectedOverride(record.EntityTask, recordID, version, record.OperationForceConfirm, actor, reason, err)
		return err
	}
	return nil
}

func (e *Engine) confirmTask(actor Actor, recordID string, version int, op record.Operation, overrideReason string) error {
	err := e.db.WithTransaction(func(tx *sql.Tx) error {
		task, err := e.tasks.Get(tx, recordID, version)
		if err != nil {
			return err
		}
		if !lifecycle.CanTransition(task.Status, op) {
			return fmt.Errorf("task %s@%d: %w: %s from %s", recordID, version, lifecycle.ErrInvalidTransition, op, task.Status)
		}

		if err := e.tasks.Confirm(tx, recordID, version, actor.Name, e.now()); err != nil {
			return err
		}
		return e.recordAudit(tx, record.AuditEntry{
			EntityType:     record.EntityTask,
			RecordID:       recordID,
			Version:        version,
			Operation:      op,
			Actor:          actor.Name,
			BeforeSummary:  statusSummary(record.EntityTask, task.Status, task.Title),
			AfterSummary:   statusSummary(record.EntityTask, record.StatusConfirmed, task.Title),
			OverrideReason: overrideReason,
		})
	})
	if err != nil {
		return err
	}

	e.logger.Info("Task confirmed",
		zap.String("record_id", recordID),
		zap.Int("version", version),
		zap.String("operation", string(op)),
		zap.String("actor", actor.Name))
	return nil
}

// ReturnTaskForChanges reopens a submitted version to draft, same version
// number, with a mandatory free-text reason.
func (e *Engine) ReturnTaskForChanges(actor Actor, recordID string, version int, reason string) error {
	if err := auth.Require(actor.Name, actor.Role, auth.ActionReturn); err != nil {
		return err
	}
	if strings.TrimSpace(reason) == "" {
		return ErrReturnReasonRequired
	}

	return e.db.WithTransaction(func(tx *sql.Tx) error {
		task, err := e.tasks.Get(tx, recordID, version)
		if err != nil {
			return err
		}
		if !lifecycle.CanTransition(task.Status, record.OperationReturn) {
			return fmt.Errorf("task %s@%d: %w: return from %s", recordID, version, lifecycle.ErrInvalidTransition, task.Status)
		}
		if err := e.tasks.UpdateStatus(tx, recordID, version, task.Status, record.StatusDraft, actor.Name, e.now()); err != nil {
			return err
		}
		return e.recordAudit(tx, record.AuditEntry{
			EntityType:    record.EntityTask,
			RecordID:      recordID,
			Version:       version,
			Operation:     record.OperationReturn,
			Actor:         actor.Name,
			BeforeSummary: statusSummary(record.EntityTask, task.Status, task.Title),
			AfterSummary:  statusSummary(record.EntityTask, record.StatusDraft, task.Title),
			Note:          strings.TrimSpace(reason),
		})
	})
}

// DeprecateTask retires a task version. Deprecated is terminal; nothing is
// ever deleted.
func (e *Engine) DeprecateTask(actor Actor, recordID string, version int, note string) error {
	if err := auth.Require(actor.Name, actor.Role, auth.ActionTaskDeprecate); err != nil {
		return err
	}

	return e.db.WithTransaction(func(tx *sql.Tx) error {
		task, err := e.tasks.Get(tx, recordID, version)
		if err != nil {
			return err
		}
		if !lifecycle.CanTransition(task.Status, record.OperationDeprecate) {
			return fmt.Errorf("task %s@%d: %w: deprecate from %s", recordID, version, lifecycle.ErrInvalidTransition, task.Status)
		}
		if err := e.tasks.UpdateStatus(tx, recordID, version, task.Status, record.StatusDeprecated, actor.Name, e.now()); err != nil {
			return err
		}
		return e.recordAudit(tx, record.AuditEntry{
			EntityType:    record.EntityTask,
			RecordID:      recordID,
			Version:       version,
			Operation:     record.OperationDeprecate,
			Actor:         actor.Name,
			BeforeSummary: statusSummary(record.EntityTask, task.Status, task.Title),
			AfterSummary:  statusSummary(record.EntityTask, record.StatusDeprecated, task.Title),
			Note:          strings.TrimSpace(note),
		})
	})
}
