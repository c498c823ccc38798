package lint

import (
	"strings"

	"github.com/lcsys/governance/internal/domain/record"
)

// Validator runs stateless checks on a single candidate record
type Validator struct{}

// NewValidator creates a Validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateTask checks a candidate task against the requirements of its
// target status. Domain is optional while drafting but required from
// submitted onward. Step text and completion are both required; lint
// heuristics over the steps come back as warnings.
func (v *Validator) ValidateTask(task *record.Task, target record.Status) Result {
	var res Result

	if strings.TrimSpace(task.Title) == "" {
		res.addError("title", "title is required")
	}
	if strings.TrimSpace(task.Outcome) == "" {
		res.addError("outcome", "outcome is required")
	}
	if target != record.StatusDraft && strings.TrimSpace(task.Domain) == "" {
		res.addError("domain", "domain is required for status %s", target)
	}

	steps := record.NormalizeSteps(task.Steps)
	if len(steps) == 0 {
		res.addError("steps", "at least one step is required")
	}
	for i, s := range steps {
		if s.Text == "" {
			res.addError("steps", "step %d: step text is required", i+1)
		}
		if s.Completion == "" {
			res.addError("steps", "step %d: completion text is required", i+1)
		}
	}

	res.Warnings = append(res.Warnings, LintSteps(steps)...)
	return res
}

// ValidateWorkflow checks a candidate workflow. Workflows carry task
// references only, never steps; the reference list must be non-empty and
// well-formed. Reference resolution against the corpus is the dependency
// checker's job, not the validator's.
func (v *Validator) ValidateWorkflow(wf *record.Workflow, target record.Status) Result {
	var res Result

	if strings.TrimSpace(wf.Title) == "" {
		res.addError("title", "title is required")
	}
	if strings.TrimSpace(wf.Objective) == "" {
		res.addError("objective", "objective is required")
	}
	if len(wf.TaskRefs) == 0 {
		res.addError("task_refs", "workflow must include at least one task reference")
	}
	for i, ref := range wf.TaskRefs {
		if strings.TrimSpace(ref.TaskID) == "" {
			res.addError("task_refs", "reference %d: task id is required", i+1)
		}
		if ref.TaskVersion < 1 {
			res.addError("task_refs", "reference %d: task version must be a positive integer", i+1)
		}
	}

	return res
}
