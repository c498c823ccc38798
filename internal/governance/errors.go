package governance

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lcsys/governance/internal/domain/record"
	"github.com/lcsys/governance/internal/lint"
)

var (
	// ErrChangeNoteRequired is returned when a revision is attempted without a change note
	ErrChangeNoteRequired = errors.New("change_note is required when creating a new version")

	// ErrReturnReasonRequired is returned when return-for-changes lacks its free-text reason
	ErrReturnReasonRequired = errors.New("a reason is required to return a record for changes")

	// ErrOverrideReasonRequired is returned when a force operation lacks its override reason
	ErrOverrideReasonRequired = errors.New("an override_reason is required for force operations")
)

// ValidationError carries the field-level hard failures of a rejected
// candidate. Recoverable by the caller editing the record.
type ValidationError struct {
	Result lint.Result
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Result.Errors))
	for _, fe := range e.Result.Errors {
		msgs = append(msgs, fe.Error())
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(msgs, "; "))
}

// ReferenceError reports workflow task references that do not resolve to
// existing (task_id, task_version) pairs in the corpus.
type ReferenceError struct {
	Missing []record.TaskRef
}

func (e *ReferenceError) Error() string {
	return fmt.Sprintf("unresolved task references: %s", joinRefs(e.Missing))
}

// GateError reports why a workflow may not confirm: every referenced task
// version that is not itself confirmed, not just the first.
type GateError struct {
	Missing []record.TaskRef
}

func (e *GateError) Error() string {
	return fmt.Sprintf("workflow confirmation blocked; unconfirmed task references: %s", joinRefs(e.Missing))
}

func joinRefs(refs []record.TaskRef) string {
	parts := make([]string, 0, len(refs))
	for _, r := range refs {
		parts = append(parts, r.String())
	}
	return strings.Join(parts, ", ")
}
