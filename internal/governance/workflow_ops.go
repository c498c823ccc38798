package governance

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/lcsys/governance/internal/auth"
	"github.com/lcsys/governance/internal/domain/lifecycle"
	"github.com/lcsys/governance/internal/domain/record"
	"github.com/lcsys/governance/internal/repository"
)

// resolveRefs checks that every task reference points at an existing
// (task_id, task_version) row, reporting all dangling references at once.
func (e *Engine) resolveRefs(tx *sql.Tx, refs []record.TaskRef) error {
	var missing []record.TaskRef
	for _, ref := range refs {
		_, err := e.tasks.Status(tx, ref.TaskID, ref.TaskVersion)
		if errors.Is(err, repository.ErrNotFound) {
			missing = append(missing, ref)
			continue
		}
		if err != nil {
			return err
		}
	}
	if len(missing) > 0 {
		return &ReferenceError{Missing: missing}
	}
	return nil
}

// gate is the workflow confirmation gate: every referenced task version
// must itself be confirmed. All offending references are reported, not just
// the first, so the caller sees the full remediation list.
func (e *Engine) gate(tx *sql.Tx, refs []record.TaskRef) error {
	var missing []record.TaskRef
	for _, ref := range refs {
		status, err := e.tasks.Status(tx, ref.TaskID, ref.TaskVersion)
		if errors.Is(err, repository.ErrNotFound) {
			missing = append(missing, ref)
			continue
		}
		if err != nil {
			return err
		}
		if status != record.StatusConfirmed {
			missing = append(missing, ref)
		}
	}
	if len(missing) > 0 {
		return &GateError{Missing: missing}
	}
	return nil
}

// CreateWorkflow validates and persists a new workflow record at version 1,
// draft. Task references must resolve; they need not be confirmed until the
// workflow itself confirms.
func (e *Engine) CreateWorkflow(actor Actor, content *record.Workflow) (*record.Workflow, error) {
	if err := auth.Require(actor.Name, actor.Role, auth.ActionWorkflowCreate); err != nil {
		return nil, err
	}

	res := e.validator.ValidateWorkflow(content, record.StatusDraft)
	if !res.Valid() {
		return nil, &ValidationError{Result: res}
	}

	wf := *content
	now := e.now()
	wf.RecordID = e.newID()
	wf.Version = 1
	wf.Status = record.StatusDraft
	wf.CreatedAt = now
	wf.UpdatedAt = now
	wf.CreatedBy = actor.Name
	wf.UpdatedBy = actor.Name
	wf.ReviewedAt = nil
	wf.ReviewedBy = ""

	err := e.db.WithTransaction(func(tx *sql.Tx) error {
		if err := e.resolveRefs(tx, wf.TaskRefs); err != nil {
			return err
		}
		if err := e.workflows.Insert(tx, &wf); err != nil {
			return err
		}
		return e.recordAudit(tx, record.AuditEntry{
			EntityType:   record.EntityWorkflow,
			RecordID:     wf.RecordID,
			Version:      1,
			Operation:    record.OperationCreate,
			Actor:        actor.Name,
			AfterSummary: statusSummary(record.EntityWorkflow, wf.Status, wf.Title),
		})
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("Workflow created",
		zap.String("record_id", wf.RecordID),
		zap.String("actor", actor.Name))
	return &wf, nil
}

// UpdateDraftWorkflow rewrites a draft workflow version in place
func (e *Engine) UpdateDraftWorkflow(actor Actor, recordID string, version int, content *record.Workflow) (*record.Workflow, error) {
	if err := auth.Require(actor.Name, actor.Role, auth.ActionWorkflowRevise); err != nil {
		return nil, err
	}

	res := e.validator.ValidateWorkflow(content, record.StatusDraft)
	if !res.Valid() {
		return nil, &ValidationError{Result: res}
	}

	var updated *record.Workflow
	err := e.db.WithTransaction(func(tx *sql.Tx) error {
		current, err := e.workflows.Get(tx, recordID, version)
		if err != nil {
			return err
		}
		if current.Status == record.StatusSubmitted {
			return fmt.Errorf("workflow %s@%d is submitted; return it for changes before editing", recordID, version)
		}

		if err := e.resolveRefs(tx, content.TaskRefs); err != nil {
			return err
		}

		wf := *content
		wf.RecordID = recordID
		wf.Version = version
		if err := e.workflows.UpdateContent(tx, &wf, actor.Name, e.now()); err != nil {
			return err
		}

		if err := e.recordAudit(tx, record.AuditEntry{
			EntityType:    record.EntityWorkflow,
			RecordID:      recordID,
			Version:       version,
			Operation:     record.OperationRevise,
			Actor:         actor.Name,
			BeforeSummary: statusSummary(record.EntityWorkflow, current.Status, current.Title),
			AfterSummary:  statusSummary(record.EntityWorkflow, current.Status, wf.Title),
			Note:          "in-place draft edit",
		}); err != nil {
			return err
		}

		updated, err = e.workflows.Get(tx, recordID, version)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ReviseWorkflow mints a new draft version at latest+1 with the given
// content. A change note is mandatory.
func (e *Engine) ReviseWorkflow(actor Actor, recordID string, fromVersion int, content *record.Workflow, changeNote string) (*record.Workflow, error) {
	if err := auth.Require(actor.Name, actor.Role, auth.ActionWorkflowRevise); err != nil {
		return nil, err
	}
	if strings.TrimSpace(changeNote) == "" {
		return nil, ErrChangeNoteRequired
	}

	res := e.validator.ValidateWorkflow(content, record.StatusDraft)
	if !res.Valid() {
		return nil, &ValidationError{Result: res}
	}

	var wf record.Workflow
	err := e.db.WithTransaction(func(tx *sql.Tx) error {
		src, err := e.workflows.Get(tx, recordID, fromVersion)
		if err != nil {
			return err
		}
		if err := e.resolveRefs(tx, content.TaskRefs); err != nil {
			return err
		}

		latest, err := e.workflows.LatestVersion(tx, recordID)
		if err != nil {
			return err
		}

		now := e.now()
		wf = *content
		wf.RecordID = recordID
		wf.Version = latest + 1
		wf.Status = record.StatusDraft
		wf.CreatedAt = now
		wf.UpdatedAt = now
		wf.CreatedBy = actor.Name
		wf.UpdatedBy = actor.Name
		wf.ReviewedAt = nil
		wf.ReviewedBy = ""
		wf.ChangeNote = strings.TrimSpace(changeNote)
		wf.NeedsReview = src.NeedsReview
		wf.NeedsReviewNote = src.NeedsReviewNote

		if err := e.workflows.Insert(tx, &wf); err != nil {
			return err
		}
		return e.recordAudit(tx, record.AuditEntry{
			EntityType:    record.EntityWorkflow,
			RecordID:      recordID,
			Version:       wf.Version,
			Operation:     record.OperationRevise,
			Actor:         actor.Name,
			BeforeSummary: statusSummary(record.EntityWorkflow, src.Status, src.Title),
			AfterSummary:  statusSummary(record.EntityWorkflow, wf.Status, wf.Title),
			Note:          fmt.Sprintf("from v%d: %s", fromVersion, wf.ChangeNote),
		})
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("Workflow revised",
		zap.String("record_id", recordID),
		zap.Int("new_version", wf.Version),
		zap.String("actor", actor.Name))
	return &wf, nil
}

// SubmitWorkflow moves a draft workflow version to submitted after
// re-validating the stored content and re-resolving its references.
func (e *Engine) SubmitWorkflow(actor Actor, recordID string, version int) error {
	if err := auth.Require(actor.Name, actor.Role, auth.ActionWorkflowSubmit); err != nil {
		return err
	}
	return e.submitWorkflow(actor, recordID, version, record.OperationSubmit, "")
}

// ForceSubmitWorkflow bypasses the validator with a mandatory override
// reason. Reference resolution is never bypassed.
func (e *Engine) ForceSubmitWorkflow(actor Actor, recordID string, version int, overrideReason string) error {
	if strings.TrimSpace(overrideReason) == "" {
		return ErrOverrideReasonRequired
	}
	if err := auth.Require(actor.Name, actor.Role, auth.ActionForce); err != nil {
		return err
	}
	reason := strings.TrimSpace(overrideReason)
	if err := e.submitWorkflow(actor, recordID, version, record.OperationForceSubmit, reason); err != nil {
		e.recordRejectedOverride(record.EntityWorkflow, recordID, version, record.OperationForceSubmit, actor, reason, err)
		return err
	}
	return nil
}

func (e *Engine) submitWorkflow(actor Actor, recordID string, version int, op record.Operation, overrideReason string) error {
	err := e.db.WithTransaction(func(tx *sql.Tx) error {
		wf, err := e.workflows.Get(tx, recordID, version)
		if err != nil {
			return err
		}
		if !lifecycle.CanTransition(wf.Status, op) {
			return fmt.Errorf("workflow %s@%d: %w: %s from %s", recordID, version, lifecycle.ErrInvalidTransition, op, wf.Status)
		}

		res := e.validator.ValidateWorkflow(wf, record.StatusSubmitted)
		if !res.Valid() && op != record.OperationForceSubmit {
			return &ValidationError{Result: res}
		}
		if err := e.resolveRefs(tx, wf.TaskRefs); err != nil {
			return err
		}

		if err := e.workflows.UpdateStatus(tx, recordID, version, wf.Status, record.StatusSubmitted, actor.Name, e.now()); err != nil {
			return err
		}
		return e.recordAudit(tx, record.AuditEntry{
			EntityType:     record.EntityWorkflow,
			RecordID:       recordID,
			Version:        version,
			Operation:      op,
			Actor:          actor.Name,
			BeforeSummary:  statusSummary(record.EntityWorkflow, wf.Status, wf.Title),
			AfterSummary:   statusSummary(record.EntityWorkflow, record.StatusSubmitted, wf.Title),
			OverrideReason: overrideReason,
		})
	})
	if err != nil {
		return err
	}

	e.logger.Info("Workflow submitted",
		zap.String("record_id", recordID),
		zap.Int("version", version),
		zap.String("operation", string(op)),
		zap.String("actor", actor.Name))
	return nil
}

// ConfirmWorkflow confirms a submitted workflow version, gated on every
// referenced task version being confirmed. A previously confirmed version
// of the workflow is deprecated in the same transaction.
func (e *Engine) ConfirmWorkflow(actor Actor, recordID string, version int) error {
	if err := auth.Require(actor.Name, actor.Role, auth.ActionWorkflowConfirm); err != nil {
		return err
	}
	return e.confirmWorkflow(actor, recordID, version, record.OperationConfirm, "")
}

// ForceConfirmWorkflow bypasses the confirmation gate. It is not silent:
// the override reason is mandatory and the audit entry is tagged as an
// override, never conflated with a normal confirm.
func (e *Engine) ForceConfirmWorkflow(actor Actor, recordID string, version int, overrideReason string) error {
	if strings.TrimSpace(overrideReason) == "" {
		return ErrOverrideReasonRequired
	}
	if err := auth.Require(actor.Name, actor.Role, auth.ActionForce); err != nil {
		return err
	}
	reason := strings.TrimSpace(overrideReason)
	if err := e.confirmWorkflow(actor, recordID, version, record.OperationForceConfirm, reason); err != nil {
		e.recordRejectedOverride(record.EntityWorkflow, recordID, version, record.OperationForceConfirm, actor, reason, err)
		return err
	}
	return nil
}

func (e *Engine) confirmWorkflow(actor Actor, recordID string, version int, op record.Operation, overrideReason string) error {
	err := e.db.WithTransaction(func(tx *sql.Tx) error {
		wf, err := e.workflows.Get(tx, recordID, version)
		if err != nil {
			return err
		}
		if !lifecycle.CanTransition(wf.Status, op) {
			return fmt.Errorf("workflow %s@%d: %w: %s from %s", recordID, version, lifecycle.ErrInvalidTransition, op, wf.Status)
		}

		if op == record.OperationConfirm {
			if err := e.gate(tx, wf.TaskRefs); err != nil {
				return err
			}
		}

		if err := e.workflows.Confirm(tx, recordID, version, actor.Name, e.now()); err != nil {
			return err
		}
		return e.recordAudit(tx, record.AuditEntry{
			EntityType:     record.EntityWorkflow,
			RecordID:       recordID,
			Version:        version,
			Operation:      op,
			Actor:          actor.Name,
			BeforeSummary:  statusSummary(record.EntityWorkflow, wf.Status, wf.Title),
			AfterSummary:   statusSummary(record.EntityWorkflow, record.StatusConfirmed, wf.Title),
			OverrideReason: overrideReason,
		})
	})
	if err != nil {
		return err
	}

	e.logger.Info("Workflow confirmed",
		zap.String("record_id", recordID),
		zap.Int("version", version),
		zap.String("operation", string(op)),
		zap.String("actor", actor.Name))
	return nil
}

// ReturnWorkflowForChanges reopens a submitted version to draft, same
// version number, with a mandatory free-text reason.
func (e *Engine) ReturnWorkflowForChanges(actor Actor, recordID string, version int, reason string) error {
	if err := auth.Require(actor.Name, actor.Role, auth.ActionReturn); err != nil {
		return err
	}
	if strings.TrimSpace(reason) == "" {
		return ErrReturnReasonRequired
	}

	return e.db.WithTransaction(func(tx *sql.Tx) error {
		wf, err := e.workflows.Get(tx, recordID, version)
		if err != nil {
			return err
		}
		if !lifecycle.CanTransition(wf.Status, record.OperationReturn) {
			return fmt.Errorf("workflow %s@%d: %w: return from %s", recordID, version, lifecycle.ErrInvalidTransition, wf.Status)
		}
		if err := e.workflows.UpdateStatus(tx, recordID, version, wf.Status, record.StatusDraft, actor.Name, e.now()); err != nil {
			return err
		}
		return e.recordAudit(tx, record.AuditEntry{
			EntityType:    record.EntityWorkflow,
			RecordID:      recordID,
			Version:       version,
			Operation:     record.OperationReturn,
			Actor:         actor.Name,
			BeforeSummary: statusSummary(record.EntityWorkflow, wf.Status, wf.Title),
			AfterSummary:  statusSummary(record.EntityWorkflow, record.StatusDraft, wf.Title),
			Note:          strings.TrimSpace(reason),
		})
	})
}

// DeprecateWorkflow retires a workflow version
func (e *Engine) DeprecateWorkflow(actor Actor, recordID string, version int, note string) error {
	if err := auth.Require(actor.Name, actor.Role, auth.ActionWorkflowDeprecate); err != nil {
		return err
	}

	return e.db.WithTransaction(func(tx *sql.Tx) error {
		wf, err := e.workflows.Get(tx, recordID, version)
		if err != nil {
			return err
		}
		if !lifecycle.CanTransition(wf.Status, record.OperationDeprecate) {
			return fmt.Errorf("workflow %s@%d: %w: deprecate from %s", recordID, version, lifecycle.ErrInvalidTransition, wf.Status)
		}
		if err := e.workflows.UpdateStatus(tx, recordID, version, wf.Status, record.StatusDeprecated, actor.Name, e.now()); err != nil {
			return err
		}
		return e.recordAudit(tx, record.AuditEntry{
			EntityType:    record.EntityWorkflow,
			RecordID:      recordID,
			Version:       version,
			Operation:     record.OperationDeprecate,
			Actor:         actor.Name,
			BeforeSummary: statusSummary(record.EntityWorkflow, wf.Status, wf.Title),
			AfterSummary:  statusSummary(record.EntityWorkflow, record.StatusDeprecated, wf.Title),
			Note:          strings.TrimSpace(note),
		})
	})
}
