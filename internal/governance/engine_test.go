package governance

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lcsys/governance/internal/auth"
	"github.com/lcsys/governance/internal/domain/lifecycle"
	"github.com/lcsys/governance/internal/domain/record"
	"github.com/lcsys/governance/internal/graph"
	"github.com/lcsys/governance/internal/repository"
	"github.com/lcsys/governance/migrations"
	"github.com/lcsys/governance/pkg/database"
)

var (
	author   = Actor{Name: "sam", Role: auth.RoleAuthor}
	reviewer = Actor{Name: "rin", Role: auth.RoleReviewer}
	admin    = Actor{Name: "ada", Role: auth.RoleAdmin}
	viewer   = Actor{Name: "vic", Role: auth.RoleViewer}
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()

	logger := zap.NewNop()
	db, err := database.NewInMemory(logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.NewMigrator(db, logger).Run(migrations.FS))

	e := NewEngine(
		db,
		repository.NewTaskRepository(db.DB, logger),
		repository.NewWorkflowRepository(db.DB, logger),
		repository.NewAuditRepository(db.DB, logger),
		logger,
	)

	// Deterministic ids and clock for assertions
	seq := 0
	e.newID = func() string {
		seq++
		return fmt.Sprintf("rec-%d", seq)
	}
	clock := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	e.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return e
}

func draftTask() *record.Task {
	return &record.Task{
		Title:   "Rotate the API signing key",
		Outcome: "A fresh signing key is active and the old one revoked",
		Domain:  "security",
		Steps: []record.Step{
			{Text: "Run `keyctl rotate api-signing`", Completion: "`keyctl show api-signing` lists the new key id"},
			{Text: "Revoke the previous key with `keyctl revoke`", Completion: "old key id absent from `keyctl show`"},
		},
	}
}

func draftWorkflow(refs ...record.TaskRef) *record.Workflow {
	return &record.Workflow{
		Title:     "Quarterly credential rotation",
		Objective: "All API credentials rotated for the quarter",
		TaskRefs:  refs,
	}
}

// createConfirmedTask walks a task through create, submit and confirm
func createConfirmedTask(t *testing.T, e *Engine) *record.Task {
	t.Helper()
	task, _, err := e.CreateTask(author, draftTask())
	require.NoError(t, err)
	_, err = e.SubmitTask(author, task.RecordID, 1)
	require.NoError(t, err)
	require.NoError(t, e.ConfirmTask(reviewer, task.RecordID, 1))
	return task
}

func TestCreateTask(t *testing.T) {
	e := newTestEngine(t)

	task, warnings, err := e.CreateTask(author, draftTask())
	require.NoError(t, err)
	assert.Empty(t, warnings)

	assert.Equal(t, 1, task.Version)
	assert.Equal(t, record.StatusDraft, task.Status)
	assert.Equal(t, "sam", task.CreatedBy)

	got, err := e.GetTask(task.RecordID, 1)
	require.NoError(t, err)
	assert.Equal(t, task.Title, got.Title)
}

func TestCreateTask_ValidationFailure(t *testing.T) {
	e := newTestEngine(t)

	_, _, err := e.CreateTask(author, &record.Task{Title: "No outcome or steps"})

	var validationErr *ValidationError
	require.True(t, errors.As(err, &validationErr))
	assert.False(t, validationErr.Result.Valid())

	// Nothing was persisted
	tasks, err := e.ListTasks()
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestCreateTask_AuthzDenied(t *testing.T) {
	e := newTestEngine(t)

	_, _, err := e.CreateTask(viewer, draftTask())

	var forbidden *auth.ForbiddenError
	assert.True(t, errors.As(err, &forbidden))
}

func TestSubmitTask_DomainBecomesMandatory(t *testing.T) {
	e := newTestEngine(t)

	content := draftTask()
	content.Domain = ""
	task, _, err := e.CreateTask(author, content)
	require.NoError(t, err)

	// Draft without a domain is fine; submitting it is not
	_, err = e.SubmitTask(author, task.RecordID, 1)
	var validationErr *ValidationError
	require.True(t, errors.As(err, &validationErr))

	status, err := e.tasks.Status(nil, task.RecordID, 1)
	require.NoError(t, err)
	assert.Equal(t, record.StatusDraft, status)
}

func TestConfirmTask_RequiresSubmitted(t *testing.T) {
	e := newTestEngine(t)

	task, _, err := e.CreateTask(author, draftTask())
	require.NoError(t, err)

	err = e.ConfirmTask(reviewer, task.RecordID, 1)
	assert.True(t, errors.Is(err, lifecycle.ErrInvalidTransition))
}

func TestConfirmTask_ReviewerOnly(t *testing.T) {
	e := newTestEngine(t)

	task, _, err := e.CreateTask(author, draftTask())
	require.NoError(t, err)
	_, err = e.SubmitTask(author, task.RecordID, 1)
	require.NoError(t, err)

	var forbidden *auth.ForbiddenError
	assert.True(t, errors.As(e.ConfirmTask(author, task.RecordID, 1), &forbidden))

	require.NoError(t, e.ConfirmTask(reviewer, task.RecordID, 1))

	got, err := e.GetTask(task.RecordID, 1)
	require.NoError(t, err)
	assert.Equal(t, record.StatusConfirmed, got.Status)
	require.NotNil(t, got.ReviewedAt)
	assert.Equal(t, "rin", got.ReviewedBy)
}

func TestUpdateDraftTask_SubmittedMustBeReturnedFirst(t *testing.T) {
	e := newTestEngine(t)

	task, _, err := e.CreateTask(author, draftTask())
	require.NoError(t, err)
	_, err = e.SubmitTask(author, task.RecordID, 1)
	require.NoError(t, err)

	_, _, err = e.UpdateDraftTask(author, task.RecordID, 1, draftTask())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "return it for changes")

	require.NoError(t, e.ReturnTaskForChanges(reviewer, task.RecordID, 1, "steps 2 lacks a completion command"))

	got, err := e.GetTask(task.RecordID, 1)
	require.NoError(t, err)
	// Same version number, back in draft
	assert.Equal(t, 1, got.Version)
	assert.Equal(t, record.StatusDraft, got.Status)

	edited := draftTask()
	edited.Title = "Rotate the API signing key pair"
	updated, _, err := e.UpdateDraftTask(author, task.RecordID, 1, edited)
	require.NoError(t, err)
	assert.Equal(t, "Rotate the API signing key pair", updated.Title)
}

func TestReturnTaskForChanges_ReasonRequired(t *testing.T) {
	e := newTestEngine(t)

	task, _, err := e.CreateTask(author, draftTask())
	require.NoError(t, err)
	_, err = e.SubmitTask(author, task.RecordID, 1)
	require.NoError(t, err)

	assert.True(t, errors.Is(e.ReturnTaskForChanges(reviewer, task.RecordID, 1, "  "), ErrReturnReasonRequired))
}

func TestEditConfirmedTask_RequiresNewVersion(t *testing.T) {
	e := newTestEngine(t)
	task := createConfirmedTask(t, e)

	// In-place edits of a confirmed version are refused
	_, _, err := e.UpdateDraftTask(author, task.RecordID, 1, draftTask())
	var immutableErr *repository.ImmutableVersionError
	require.True(t, errors.As(err, &immutableErr))

	// Revising mints v2 draft; v1 stays confirmed untouched
	edited := draftTask()
	edited.Outcome = "A fresh signing key is active, verified against the gateway"
	v2, _, err := e.ReviseTask(author, task.RecordID, 1, edited, "clarified the verification target")
	require.NoError(t, err)
	assert.Equal(t, 2, v2.Version)
	assert.Equal(t, record.StatusDraft, v2.Status)
	assert.Equal(t, "clarified the verification target", v2.ChangeNote)

	v1, err := e.GetTask(task.RecordID, 1)
	require.NoError(t, err)
	assert.Equal(t, record.StatusConfirmed, v1.Status)
}

func TestReviseTask_ChangeNoteRequired(t *testing.T) {
	e := newTestEngine(t)
	task := createConfirmedTask(t, e)

	_, _, err := e.ReviseTask(author, task.RecordID, 1, draftTask(), "")
	assert.True(t, errors.Is(err, ErrChangeNoteRequired))
}

func TestConfirmTask_SupersedesPreviousConfirmed(t *testing.T) {
	e := newTestEngine(t)
	task := createConfirmedTask(t, e)

	_, _, err := e.ReviseTask(author, task.RecordID, 1, draftTask(), "routine refresh")
	require.NoError(t, err)
	_, err = e.SubmitTask(author, task.RecordID, 2)
	require.NoError(t, err)
	require.NoError(t, e.ConfirmTask(reviewer, task.RecordID, 2))

	v1, err := e.GetTask(task.RecordID, 1)
	require.NoError(t, err)
	assert.Equal(t, record.StatusDeprecated, v1.Status)

	v2, err := e.GetTask(task.RecordID, 2)
	require.NoError(t, err)
	assert.Equal(t, record.StatusConfirmed, v2.Status)
}

func TestDependencyCycleRejected(t *testing.T) {
	e := newTestEngine(t)

	a, _, err := e.CreateTask(author, draftTask())
	require.NoError(t, err)

	bContent := draftTask()
	bContent.Dependencies = []string{a.RecordID}
	b, _, err := e.CreateTask(author, bContent)
	require.NoError(t, err)

	// Closing the loop a -> b while b -> a exists is rejected
	aEdit := draftTask()
	aEdit.Dependencies = []string{b.RecordID}
	_, _, err = e.UpdateDraftTask(author, a.RecordID, 1, aEdit)

	var cycleErr *graph.CycleError
	require.True(t, errors.As(err, &cycleErr))
	assert.Equal(t, []string{a.RecordID, b.RecordID, a.RecordID}, cycleErr.Path)

	// The rejected edit left the stored content unchanged
	got, err := e.GetTask(a.RecordID, 1)
	require.NoError(t, err)
	assert.Empty(t, got.Dependencies)
}

func TestProseDependenciesDoNotBlock(t *testing.T) {
	e := newTestEngine(t)

	content := draftTask()
	content.Dependencies = []string{"operator holds the security on-call pager"}
	task, _, err := e.CreateTask(author, content)
	require.NoError(t, err)

	_, err = e.SubmitTask(author, task.RecordID, 1)
	assert.NoError(t, err)
}

func TestWorkflowLifecycle_GateBlocksUntilTasksConfirmed(t *testing.T) {
	e := newTestEngine(t)

	task, _, err := e.CreateTask(author, draftTask())
	require.NoError(t, err)
	_, err = e.SubmitTask(author, task.RecordID, 1)
	require.NoError(t, err)

	ref := record.TaskRef{TaskID: task.RecordID, TaskVersion: 1}
	wf, err := e.CreateWorkflow(author, draftWorkflow(ref))
	require.NoError(t, err)
	require.NoError(t, e.SubmitWorkflow(author, wf.RecordID, 1))

	// Referenced task is submitted, not confirmed: the gate holds
	err = e.ConfirmWorkflow(reviewer, wf.RecordID, 1)
	var gateErr *GateError
	require.True(t, errors.As(err, &gateErr))
	assert.Equal(t, []record.TaskRef{ref}, gateErr.Missing)

	require.NoError(t, e.ConfirmTask(reviewer, task.RecordID, 1))
	require.NoError(t, e.ConfirmWorkflow(reviewer, wf.RecordID, 1))

	got, err := e.GetWorkflow(wf.RecordID, 1)
	require.NoError(t, err)
	assert.Equal(t, record.StatusConfirmed, got.Status)
}

func TestCreateWorkflow_UnresolvedRefs(t *testing.T) {
	e := newTestEngine(t)
	task := createConfirmedTask(t, e)

	ghost := record.TaskRef{TaskID: "rec-404", TaskVersion: 1}
	staleVersion := record.TaskRef{TaskID: task.RecordID, TaskVersion: 9}

	_, err := e.CreateWorkflow(author, draftWorkflow(
		record.TaskRef{TaskID: task.RecordID, TaskVersion: 1},
		ghost,
		staleVersion,
	))

	// Every dangling reference is reported, not just the first
	var refErr *ReferenceError
	require.True(t, errors.As(err, &refErr))
	assert.Equal(t, []record.TaskRef{ghost, staleVersion}, refErr.Missing)
}

func TestForceConfirmWorkflow_BypassesGateAudited(t *testing.T) {
	e := newTestEngine(t)

	task, _, err := e.CreateTask(author, draftTask())
	require.NoError(t, err)
	_, err = e.SubmitTask(author, task.RecordID, 1)
	require.NoError(t, err)

	ref := record.TaskRef{TaskID: task.RecordID, TaskVersion: 1}
	wf, err := e.CreateWorkflow(author, draftWorkflow(ref))
	require.NoError(t, err)
	require.NoError(t, e.SubmitWorkflow(author, wf.RecordID, 1))

	// Reviewer cannot force; admin can, but only with a reason
	var forbidden *auth.ForbiddenError
	assert.True(t, errors.As(e.ForceConfirmWorkflow(reviewer, wf.RecordID, 1, "because"), &forbidden))
	assert.True(t, errors.Is(e.ForceConfirmWorkflow(admin, wf.RecordID, 1, ""), ErrOverrideReasonRequired))

	require.NoError(t, e.ForceConfirmWorkflow(admin, wf.RecordID, 1, "incident 4821: runbook needed before task review completes"))

	got, err := e.GetWorkflow(wf.RecordID, 1)
	require.NoError(t, err)
	assert.Equal(t, record.StatusConfirmed, got.Status)

	// The ledger shows the override, distinct from a normal confirm
	entries, err := e.AuditLog(repository.Filter{RecordID: wf.RecordID, Operation: record.OperationForceConfirm})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "ada", entries[0].Actor)
	assert.Contains(t, entries[0].OverrideReason, "incident 4821")
}

func TestForceSubmitTask_SkipsValidatorNotCycleCheck(t *testing.T) {
	e := newTestEngine(t)

	content := draftTask()
	content.Domain = "" // would fail submit validation
	task, _, err := e.CreateTask(author, content)
	require.NoError(t, err)

	require.NoError(t, e.ForceSubmitTask(admin, task.RecordID, 1, "domain taxonomy not yet defined for this team"))

	got, err := e.GetTask(task.RecordID, 1)
	require.NoError(t, err)
	assert.Equal(t, record.StatusSubmitted, got.Status)
}

func TestForceConfirmTask_RejectedAttemptStaysInLedger(t *testing.T) {
	e := newTestEngine(t)

	task, _, err := e.CreateTask(author, draftTask())
	require.NoError(t, err)

	// Draft cannot be confirmed, forced or not; the attempt must still show up
	err = e.ForceConfirmTask(admin, task.RecordID, 1, "deadline, review queue is down")
	require.True(t, errors.Is(err, lifecycle.ErrInvalidTransition))

	got, err := e.GetTask(task.RecordID, 1)
	require.NoError(t, err)
	assert.Equal(t, record.StatusDraft, got.Status)

	entries, err := e.AuditLog(repository.Filter{RecordID: task.RecordID, Operation: record.OperationForceConfirm})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "ada", entries[0].Actor)
	assert.Equal(t, "deadline, review queue is down", entries[0].OverrideReason)
	assert.Contains(t, entries[0].Note, "rejected")
}

func TestForceSubmitWorkflow_RejectedAttemptStaysInLedger(t *testing.T) {
	e := newTestEngine(t)

	task := createConfirmedTask(t, e)
	ref := record.TaskRef{TaskID: task.RecordID, TaskVersion: 1}
	wf, err := e.CreateWorkflow(author, draftWorkflow(ref))
	require.NoError(t, err)
	require.NoError(t, e.SubmitWorkflow(author, wf.RecordID, 1))

	// Already submitted; the forced re-submit fails but is ledgered
	err = e.ForceSubmitWorkflow(admin, wf.RecordID, 1, "retrying a stuck submission")
	require.True(t, errors.Is(err, lifecycle.ErrInvalidTransition))

	entries, err := e.AuditLog(repository.Filter{RecordID: wf.RecordID, Operation: record.OperationForceSubmit})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "ada", entries[0].Actor)
	assert.Equal(t, "retrying a stuck submission", entries[0].OverrideReason)
	assert.Contains(t, entries[0].Note, "rejected")
}

func TestAuditTrail_OneEntryPerOperation(t *testing.T) {
	e := newTestEngine(t)
	task := createConfirmedTask(t, e)

	entries, err := e.AuditLog(repository.Filter{RecordID: task.RecordID})
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, record.OperationCreate, entries[0].Operation)
	assert.Equal(t, record.OperationSubmit, entries[1].Operation)
	assert.Equal(t, record.OperationConfirm, entries[2].Operation)

	assert.Equal(t, "sam", entries[0].Actor)
	assert.Equal(t, "rin", entries[2].Actor)

	// Entries carry before/after status snapshots
	assert.Contains(t, entries[1].BeforeSummary, "draft")
	assert.Contains(t, entries[1].AfterSummary, "submitted")
}

func TestResolveWorkflow_Readiness(t *testing.T) {
	e := newTestEngine(t)

	confirmed := createConfirmedTask(t, e)
	pending, _, err := e.CreateTask(author, draftTask())
	require.NoError(t, err)

	wf, err := e.CreateWorkflow(author, draftWorkflow(
		record.TaskRef{TaskID: confirmed.RecordID, TaskVersion: 1},
		record.TaskRef{TaskID: pending.RecordID, TaskVersion: 1},
	))
	require.NoError(t, err)

	resolved, err := e.ResolveWorkflow(wf.RecordID, 1)
	require.NoError(t, err)
	assert.Equal(t, ReadinessAwaiting, resolved.Readiness)
	assert.Len(t, resolved.Tasks, 2)
	assert.Equal(t, []string{"security"}, resolved.Domains)

	// Confirming the second task makes the workflow ready
	_, err = e.SubmitTask(author, pending.RecordID, 1)
	require.NoError(t, err)
	require.NoError(t, e.ConfirmTask(reviewer, pending.RecordID, 1))

	resolved, err = e.ResolveWorkflow(wf.RecordID, 1)
	require.NoError(t, err)
	assert.Equal(t, ReadinessReady, resolved.Readiness)

	// Deprecating a referenced version invalidates the workflow
	require.NoError(t, e.DeprecateTask(author, pending.RecordID, 1, "superseded by manual rotation"))

	resolved, err = e.ResolveWorkflow(wf.RecordID, 1)
	require.NoError(t, err)
	assert.Equal(t, ReadinessInvalid, resolved.Readiness)
}

func TestResolveWorkflowForExport(t *testing.T) {
	e := newTestEngine(t)

	task := createConfirmedTask(t, e)
	ref := record.TaskRef{TaskID: task.RecordID, TaskVersion: 1}

	wf, err := e.CreateWorkflow(author, draftWorkflow(ref))
	require.NoError(t, err)

	// Draft workflows are never exportable
	_, err = e.ResolveWorkflowForExport(wf.RecordID, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "only confirmed workflows")

	require.NoError(t, e.SubmitWorkflow(author, wf.RecordID, 1))
	require.NoError(t, e.ConfirmWorkflow(reviewer, wf.RecordID, 1))

	resolved, err := e.ResolveWorkflowForExport(wf.RecordID, 1)
	require.NoError(t, err)
	assert.Equal(t, record.StatusConfirmed, resolved.Workflow.Status)
	require.Len(t, resolved.Tasks, 1)
	assert.NotNil(t, resolved.Tasks[0].ReviewedAt)
}

func TestResolveWorkflowForExport_RefusesUnreviewedTasks(t *testing.T) {
	e := newTestEngine(t)

	task, _, err := e.CreateTask(author, draftTask())
	require.NoError(t, err)
	_, err = e.SubmitTask(author, task.RecordID, 1)
	require.NoError(t, err)

	ref := record.TaskRef{TaskID: task.RecordID, TaskVersion: 1}
	wf, err := e.CreateWorkflow(author, draftWorkflow(ref))
	require.NoError(t, err)
	require.NoError(t, e.SubmitWorkflow(author, wf.RecordID, 1))

	// Force-confirmed workflow over a never-reviewed task still refuses export
	require.NoError(t, e.ForceConfirmWorkflow(admin, wf.RecordID, 1, "release pressure"))

	_, err = e.ResolveWorkflowForExport(wf.RecordID, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "never confirmed")
}

func TestDeprecate_IsTerminal(t *testing.T) {
	e := newTestEngine(t)

	task, _, err := e.CreateTask(author, draftTask())
	require.NoError(t, err)
	require.NoError(t, e.DeprecateTask(author, task.RecordID, 1, "drafted against the wrong system"))

	_, err = e.SubmitTask(author, task.RecordID, 1)
	assert.True(t, errors.Is(err, lifecycle.ErrInvalidTransition))

	err = e.DeprecateTask(author, task.RecordID, 1, "again")
	assert.True(t, errors.Is(err, lifecycle.ErrInvalidTransition))
}

func TestReviseWorkflow_PinsNewVersions(t *testing.T) {
	e := newTestEngine(t)

	task := createConfirmedTask(t, e)
	ref1 := record.TaskRef{TaskID: task.RecordID, TaskVersion: 1}

	wf, err := e.CreateWorkflow(author, draftWorkflow(ref1))
	require.NoError(t, err)
	require.NoError(t, e.SubmitWorkflow(author, wf.RecordID, 1))
	require.NoError(t, e.ConfirmWorkflow(reviewer, wf.RecordID, 1))

	// Task gets a v2; the confirmed workflow still pins v1 until revised
	_, _, err = e.ReviseTask(author, task.RecordID, 1, draftTask(), "tighten revocation step")
	require.NoError(t, err)
	_, err = e.SubmitTask(author, task.RecordID, 2)
	require.NoError(t, err)
	require.NoError(t, e.ConfirmTask(reviewer, task.RecordID, 2))

	resolved, err := e.ResolveWorkflow(wf.RecordID, 1)
	require.NoError(t, err)
	require.Len(t, resolved.Tasks, 1)
	assert.Equal(t, 1, resolved.Tasks[0].Version)
	// v1 was deprecated when v2 confirmed, so the pinned workflow is now invalid
	assert.Equal(t, ReadinessInvalid, resolved.Readiness)

	ref2 := record.TaskRef{TaskID: task.RecordID, TaskVersion: 2}
	wf2, err := e.ReviseWorkflow(author, wf.RecordID, 1, draftWorkflow(ref2), "repin to the revised rotation task")
	require.NoError(t, err)
	assert.Equal(t, 2, wf2.Version)

	require.NoError(t, e.SubmitWorkflow(author, wf.RecordID, 2))
	require.NoError(t, e.ConfirmWorkflow(reviewer, wf.RecordID, 2))

	// Confirming wf v2 deprecated wf v1
	v1, err := e.GetWorkflow(wf.RecordID, 1)
	require.NoError(t, err)
	assert.Equal(t, record.StatusDeprecated, v1.Status)
}
