package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lcsys/governance/internal/domain/record"
	"go.uber.org/zap"
)

// WorkflowRepository handles workflow version persistence, including the
// ordered task reference rows that travel with each version.
type WorkflowRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewWorkflowRepository creates a new workflow repository
func NewWorkflowRepository(db *sql.DB, logger *zap.Logger) *WorkflowRepository {
	return &WorkflowRepository{
		db:     db,
		logger: logger,
	}
}

const workflowColumns = `
	record_id, version, status,
	title, objective,
	created_at, updated_at, created_by, updated_by,
	reviewed_at, reviewed_by, change_note,
	needs_review, needs_review_note`

// Insert writes a new workflow version row and its ordered task references
func (r *WorkflowRepository) Insert(tx *sql.Tx, wf *record.Workflow) error {
	q := pick(r.db, tx)

	var reviewedAt interface{}
	if wf.ReviewedAt != nil {
		reviewedAt = timeToDB(*wf.ReviewedAt)
	}

	_, err := q.Exec(`
		INSERT INTO workflows (`+workflowColumns+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		wf.RecordID,
		wf.Version,
		string(wf.Status),
		wf.Title,
		wf.Objective,
		timeToDB(wf.CreatedAt),
		timeToDB(wf.UpdatedAt),
		wf.CreatedBy,
		wf.UpdatedBy,
		reviewedAt,
		nullable(wf.ReviewedBy),
		nullable(wf.ChangeNote),
		boolToInt(wf.NeedsReview),
		nullable(wf.NeedsReviewNote),
	)
	if err != nil {
		r.logger.Error("Failed to insert workflow version",
			zap.String("record_id", wf.RecordID),
			zap.Int("version", wf.Version),
			zap.Error(err))
		return fmt.Errorf("failed to insert workflow version: %w", err)
	}

	for i, ref := range wf.TaskRefs {
		_, err := q.Exec(`
			INSERT INTO workflow_task_refs (workflow_record_id, workflow_version, order_index, task_record_id, task_version)
			VALUES (?,?,?,?,?)`,
			wf.RecordID, wf.Version, i+1, ref.TaskID, ref.TaskVersion,
		)
		if err != nil {
			return fmt.Errorf("failed to insert workflow task ref %d: %w", i+1, err)
		}
	}
	return nil
}

// Get retrieves one workflow version with its ordered task references
func (r *WorkflowRepository) Get(tx *sql.Tx, recordID string, version int) (*record.Workflow, error) {
	q := pick(r.db, tx)

	row := q.QueryRow(`SELECT `+workflowColumns+` FROM workflows WHERE record_id = ? AND version = ?`,
		recordID, version)
	wf, err := scanWorkflow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("workflow %s@%d: %w", recordID, version, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get workflow: %w", err)
	}

	refs, err := r.taskRefs(q, recordID, version)
	if err != nil {
		return nil, err
	}
	wf.TaskRefs = refs
	return wf, nil
}

// GetLatest retrieves the highest version of a workflow record
func (r *WorkflowRepository) GetLatest(tx *sql.Tx, recordID string) (*record.Workflow, error) {
	v, err := r.LatestVersion(tx, recordID)
	if err != nil {
		return nil, err
	}
	if v == 0 {
		return nil, fmt.Errorf("workflow %s: %w", recordID, ErrNotFound)
	}
	return r.Get(tx, recordID, v)
}

// LatestVersion returns the highest version for a record id, 0 if none
func (r *WorkflowRepository) LatestVersion(tx *sql.Tx, recordID string) (int, error) {
	var v sql.NullInt64
	err := pick(r.db, tx).QueryRow(
		"SELECT MAX(version) FROM workflows WHERE record_id = ?", recordID,
	).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("failed to get latest workflow version: %w", err)
	}
	if !v.Valid {
		return 0, nil
	}
	return int(v.Int64), nil
}

// Status returns the stored status of one workflow version
func (r *WorkflowRepository) Status(tx *sql.Tx, recordID string, version int) (record.Status, error) {
	var s string
	err := pick(r.db, tx).QueryRow(
		"SELECT status FROM workflows WHERE record_id = ? AND version = ?", recordID, version,
	).Scan(&s)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("workflow %s@%d: %w", recordID, version, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get workflow status: %w", err)
	}
	return record.Status(s), nil
}

// UpdateStatus moves one workflow version from an expected status to a new
// one, with the expected status acting as the optimistic concurrency check.
func (r *WorkflowRepository) UpdateStatus(tx *sql.Tx, recordID string, version int, from, to record.Status, actor string, now time.Time) error {
	res, err := pick(r.db, tx).Exec(`
		UPDATE workflows SET status = ?, updated_at = ?, updated_by = ?
		WHERE record_id = ? AND version = ? AND status = ?`,
		string(to), timeToDB(now), actor, recordID, version, string(from),
	)
	if err != nil {
		return fmt.Errorf("failed to update workflow status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return &ConcurrentModificationError{RecordID: recordID, Version: version}
	}
	return nil
}

// UpdateContent rewrites the content fields and task references of an
// existing workflow version in place. Fails with ImmutableVersionError when
// the version is confirmed or deprecated.
func (r *WorkflowRepository) UpdateContent(tx *sql.Tx, wf *record.Workflow, actor string, now time.Time) error {
	status, err := r.Status(tx, wf.RecordID, wf.Version)
	if err != nil {
		return err
	}
	if status.IsImmutable() {
		return &ImmutableVersionError{RecordID: wf.RecordID, Version: wf.Version, Status: string(status)}
	}

	q := pick(r.db, tx)
	res, err := q.Exec(`
		UPDATE workflows SET title = ?, objective = ?, change_note = ?, updated_at = ?, updated_by = ?
		WHERE record_id = ? AND version = ? AND status = ?`,
		wf.Title, wf.Objective, nullable(wf.ChangeNote), timeToDB(now), actor,
		wf.RecordID, wf.Version, string(status),
	)
	if err != nil {
		return fmt.Errorf("failed to update workflow content: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return &ConcurrentModificationError{RecordID: wf.RecordID, Version: wf.Version}
	}

	if _, err := q.Exec(
		"DELETE FROM workflow_task_refs WHERE workflow_record_id = ? AND workflow_version = ?",
		wf.RecordID, wf.Version,
	); err != nil {
		return fmt.Errorf("failed to clear workflow task refs: %w", err)
	}
	for i, ref := range wf.TaskRefs {
		if _, err := q.Exec(`
			INSERT INTO workflow_task_refs (workflow_record_id, workflow_version, order_index, task_record_id, task_version)
			VALUES (?,?,?,?,?)`,
			wf.RecordID, wf.Version, i+1, ref.TaskID, ref.TaskVersion,
		); err != nil {
			return fmt.Errorf("failed to insert workflow task ref %d: %w", i+1, err)
		}
	}
	return nil
}

// Confirm moves one submitted workflow version to confirmed and deprecates
// whatever other version currently holds confirmed, in the same transaction.
func (r *WorkflowRepository) Confirm(tx *sql.Tx, recordID string, version int, reviewer string, now time.Time) error {
	q := pick(r.db, tx)

	if _, err := q.Exec(`
		UPDATE workflows SET status = ?, updated_at = ?, updated_by = ?
		WHERE record_id = ? AND status = ? AND version != ?`,
		string(record.StatusDeprecated), timeToDB(now), reviewer,
		recordID, string(record.StatusConfirmed), version,
	); err != nil {
		return fmt.Errorf("failed to deprecate previous confirmed version: %w", err)
	}

	res, err := q.Exec(`
		UPDATE workflows SET status = ?, reviewed_at = ?, reviewed_by = ?, updated_at = ?, updated_by = ?
		WHERE record_id = ? AND version = ? AND status = ?`,
		string(record.StatusConfirmed), timeToDB(now), reviewer, timeToDB(now), reviewer,
		recordID, version, string(record.StatusSubmitted),
	)
	if err != nil {
		return fmt.Errorf("failed to confirm workflow version: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return &ConcurrentModificationError{RecordID: recordID, Version: version}
	}
	return nil
}

// ListLatest returns the latest version of every workflow record
func (r *WorkflowRepository) ListLatest(tx *sql.Tx) ([]*record.Workflow, error) {
	q := pick(r.db, tx)
	rows, err := q.Query(`
		SELECT ` + workflowColumns + ` FROM workflows w
		WHERE version = (SELECT MAX(version) FROM workflows WHERE record_id = w.record_id)
		ORDER BY record_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}
	defer rows.Close()

	var wfs []*record.Workflow
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}
		wfs = append(wfs, wf)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, wf := range wfs {
		refs, err := r.taskRefs(q, wf.RecordID, wf.Version)
		if err != nil {
			return nil, err
		}
		wf.TaskRefs = refs
	}
	return wfs, nil
}

func (r *WorkflowRepository) taskRefs(q querier, recordID string, version int) ([]record.TaskRef, error) {
	rows, err := q.Query(`
		SELECT task_record_id, task_version FROM workflow_task_refs
		WHERE workflow_record_id = ? AND workflow_version = ?
		ORDER BY order_index`,
		recordID, version,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow task refs: %w", err)
	}
	defer rows.Close()

	var refs []record.TaskRef
	for rows.Next() {
		var ref record.TaskRef
		if err := rows.Scan(&ref.TaskID, &ref.TaskVersion); err != nil {
			return nil, fmt.Errorf("failed to scan task ref: %w", err)
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

func scanWorkflow(row rowScanner) (*record.Workflow, error) {
	var (
		wf                          record.Workflow
		status                      string
		createdAt, updatedAt        string
		reviewedAt                  sql.NullString
		reviewedBy, changeNote, nrn sql.NullString
		needsReview                 int
	)

	err := row.Scan(
		&wf.RecordID, &wf.Version, &status,
		&wf.Title, &wf.Objective,
		&createdAt, &updatedAt, &wf.CreatedBy, &wf.UpdatedBy,
		&reviewedAt, &reviewedBy, &changeNote,
		&needsReview, &nrn,
	)
	if err != nil {
		return nil, err
	}

	wf.Status = record.Status(status)
	wf.ReviewedBy = reviewedBy.String
	wf.ChangeNote = changeNote.String
	wf.NeedsReview = needsReview != 0
	wf.NeedsReviewNote = nrn.String

	if wf.CreatedAt, err = timeFromDB(createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if wf.UpdatedAt, err = timeFromDB(updatedAt); err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	if reviewedAt.Valid {
		t, err := timeFromDB(reviewedAt.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse reviewed_at: %w", err)
		}
		wf.ReviewedAt = &t
	}

	return &wf, nil
}
