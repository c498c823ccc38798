package governance

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/lcsys/governance/internal/domain/record"
	"github.com/lcsys/governance/internal/repository"
)

// Readiness is the derived confirmation-gate status of a workflow version
type Readiness string

const (
	// ReadinessReady means every referenced task version is confirmed
	ReadinessReady Readiness = "ready"
	// ReadinessAwaiting means at least one reference is draft or submitted
	ReadinessAwaiting Readiness = "awaiting_task_confirmation"
	// ReadinessInvalid means a reference is missing or deprecated
	ReadinessInvalid Readiness = "invalid"
)

// ResolvedWorkflow is a workflow version with its task references expanded
// and its derived properties computed.
type ResolvedWorkflow struct {
	Workflow *record.Workflow `json:"workflow"`
	Tasks    []*record.Task   `json:"tasks"`
	// Domains is the derived union of the referenced tasks' domains
	Domains   []string  `json:"domains"`
	Readiness Readiness `json:"readiness"`
}

// ResolveWorkflow expands a workflow version's references into the exact
// task versions it pins, in order, with derived readiness and domains.
// Deprecated task versions are retained, so historical workflows keep
// resolving to the content they confirmed against.
func (e *Engine) ResolveWorkflow(recordID string, version int) (*ResolvedWorkflow, error) {
	var resolved *ResolvedWorkflow
	err := e.db.WithTransaction(func(tx *sql.Tx) error {
		var err error
		resolved, err = e.resolveWorkflow(tx, recordID, version)
		return err
	})
	if err != nil {
		return nil, err
	}
	return resolved, nil
}

func (e *Engine) resolveWorkflow(tx *sql.Tx, recordID string, version int) (*ResolvedWorkflow, error) {
	wf, err := e.workflows.Get(tx, recordID, version)
	if err != nil {
		return nil, err
	}

	tasks := make([]*record.Task, 0, len(wf.TaskRefs))
	readiness := ReadinessReady
	for _, ref := range wf.TaskRefs {
		task, err := e.tasks.Get(tx, ref.TaskID, ref.TaskVersion)
		if errors.Is(err, repository.ErrNotFound) {
			readiness = ReadinessInvalid
			continue
		}
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)

		switch task.Status {
		case record.StatusDeprecated:
			readiness = ReadinessInvalid
		case record.StatusConfirmed:
			// counts toward ready
		default:
			if readiness != ReadinessInvalid {
				readiness = ReadinessAwaiting
			}
		}
	}

	return &ResolvedWorkflow{
		Workflow:  wf,
		Tasks:     tasks,
		Domains:   record.DerivedDomains(tasks),
		Readiness: readiness,
	}, nil
}

// ResolveWorkflowForExport is the read surface handed to the export
// component. It only returns content that went through confirmation: the
// workflow version must be confirmed, and every referenced task version
// must carry a completed review (still confirmed, or deprecated after
// having been superseded).
func (e *Engine) ResolveWorkflowForExport(recordID string, version int) (*ResolvedWorkflow, error) {
	resolved, err := e.ResolveWorkflow(recordID, version)
	if err != nil {
		return nil, err
	}
	if resolved.Workflow.Status != record.StatusConfirmed {
		return nil, fmt.Errorf("workflow %s@%d is %s; only confirmed workflows are exportable", recordID, version, resolved.Workflow.Status)
	}
	for _, t := range resolved.Tasks {
		if t.ReviewedAt == nil {
			return nil, fmt.Errorf("task %s@%d was never confirmed; refusing to export unreviewed content", t.RecordID, t.Version)
		}
	}
	return resolved, nil
}

// GetTask returns one task version
func (e *Engine) GetTask(recordID string, version int) (*record.Task, error) {
	return e.tasks.Get(nil, recordID, version)
}

// GetWorkflow returns one workflow version with its references
func (e *Engine) GetWorkflow(recordID string, version int) (*record.Workflow, error) {
	return e.workflows.Get(nil, recordID, version)
}

// ListTasks returns the latest version of every task record
func (e *Engine) ListTasks() ([]*record.Task, error) {
	return e.tasks.ListLatest(nil)
}

// ListConfirmedTasks returns all currently confirmed task versions
func (e *Engine) ListConfirmedTasks() ([]*record.Task, error) {
	return e.tasks.ListConfirmed(nil)
}

// ListWorkflows returns the latest version of every workflow record
func (e *Engine) ListWorkflows() ([]*record.Workflow, error) {
	return e.workflows.ListLatest(nil)
}

// LintTask runs the validator over a candidate without persisting anything
func (e *Engine) LintTask(task *record.Task, target record.Status) (bool, []string) {
	res := e.validator.ValidateTask(task, target)
	return res.Valid(), res.Warnings
}
