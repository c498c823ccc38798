package repository

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lcsys/governance/internal/domain/record"
	"go.uber.org/zap"
)

// TaskRepository handles task version persistence
type TaskRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewTaskRepository creates a new task repository
func NewTaskRepository(db *sql.DB, logger *zap.Logger) *TaskRepository {
	return &TaskRepository{
		db:     db,
		logger: logger,
	}
}

const taskColumns = `
	record_id, version, status,
	title, outcome, domain, facts_json, concepts_json, procedure_name,
	steps_json, dependencies_json, irreversible,
	created_at, updated_at, created_by, updated_by,
	reviewed_at, reviewed_by, change_note,
	needs_review, needs_review_note`

// Insert writes a new task version row. The (record_id, version) pair must
// not already exist.
func (r *TaskRepository) Insert(tx *sql.Tx, task *record.Task) error {
	query := `
		INSERT INTO tasks (` + taskColumns + `)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
	`

	var reviewedAt interface{}
	if task.ReviewedAt != nil {
		reviewedAt = timeToDB(*task.ReviewedAt)
	}

	_, err := pick(r.db, tx).Exec(query,
		task.RecordID,
		task.Version,
		string(task.Status),
		task.Title,
		task.Outcome,
		task.Domain,
		jsonDump(task.Facts),
		jsonDump(task.Concepts),
		task.ProcedureName,
		jsonDump(record.NormalizeSteps(task.Steps)),
		jsonDump(task.Dependencies),
		boolToInt(task.Irreversible),
		timeToDB(task.CreatedAt),
		timeToDB(task.UpdatedAt),
		task.CreatedBy,
		task.UpdatedBy,
		reviewedAt,
		nullable(task.ReviewedBy),
		nullable(task.ChangeNote),
		boolToInt(task.NeedsReview),
		nullable(task.NeedsReviewNote),
	)
	if err != nil {
		r.logger.Error("Failed to insert task version",
			zap.String("record_id", task.RecordID),
			zap.Int("version", task.Version),
			zap.Error(err))
		return fmt.Errorf("failed to insert task version: %w", err)
	}
	return nil
}

// Get retrieves one task version
func (r *TaskRepository) Get(tx *sql.Tx, recordID string, version int) (*record.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE record_id = ? AND version = ?`
	row := pick(r.db, tx).QueryRow(query, recordID, version)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %s@%d: %w", recordID, version, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return task, nil
}

// GetLatest retrieves the highest version of a task record
func (r *TaskRepository) GetLatest(tx *sql.Tx, recordID string) (*record.Task, error) {
	v, err := r.LatestVersion(tx, recordID)
	if err != nil {
		return nil, err
	}
	if v == 0 {
		return nil, fmt.Errorf("task %s: %w", recordID, ErrNotFound)
	}
	return r.Get(tx, recordID, v)
}

// LatestVersion returns the highest version for a record id, 0 if none
func (r *TaskRepository) LatestVersion(tx *sql.Tx, recordID string) (int, error) {
	var v sql.NullInt64
	err := pick(r.db, tx).QueryRow(
		"SELECT MAX(version) FROM tasks WHERE record_id = ?", recordID,
	).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("failed to get latest task version: %w", err)
	}
	if !v.Valid {
		return 0, nil
	}
	return int(v.Int64), nil
}

// Status returns the stored status of one task version
func (r *TaskRepository) Status(tx *sql.Tx, recordID string, version int) (record.Status, error) {
	var s string
	err := pick(r.db, tx).QueryRow(
		"SELECT status FROM tasks WHERE record_id = ? AND version = ?", recordID, version,
	).Scan(&s)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("task %s@%d: %w", recordID, version, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get task status: %w", err)
	}
	return record.Status(s), nil
}

// UpdateStatus moves one task version from an expected status to a new one.
// The expected status is the optimistic concurrency check: if another writer
// changed the row first, no row matches and ConcurrentModificationError is
// returned.
func (r *TaskRepository) UpdateStatus(tx *sql.Tx, recordID string, version int, from, to record.Status, actor string, now time.Time) error {
	res, err := pick(r.db, tx).Exec(`
		UPDATE tasks SET status = ?, updated_at = ?, updated_by = ?
		WHERE record_id = ? AND version = ? AND status = ?`,
		string(to), timeToDB(now), actor, recordID, version, string(from),
	)
	if err != nil {
		return fmt.Errorf("failed to update task status: %w", err)
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

// UpdateContent rewrites the content fields of an existing task version in
// place. Fails with ImmutableVersionError when the version is confirmed or
// deprecated; content of those versions can never change.
func (r *TaskRepository) UpdateContent(tx *sql.Tx, task *record.Task, actor string, now time.Time) error {
	status, err := r.Status(tx, task.RecordID, task.Version)
	if err != nil {
		return err
	}
	if status.IsImmutable() {
		return &ImmutableVersionError{RecordID: task.RecordID, Version: task.Version, Status: string(status)}
	}

	res, err := pick(r.db, tx).Exec(`
		UPDATE tasks SET
			title = ?, outcome = ?, domain = ?, facts_json = ?, concepts_json = ?,
			procedure_name = ?, steps_json = ?, dependencies_json = ?, irreversible = ?,
			change_note = ?, updated_at = ?, updated_by = ?
		WHERE record_id = ? AND version = ? AND status = ?`,
		task.Title,
		task.Outcome,
		task.Domain,
		jsonDump(task.Facts),
		jsonDump(task.Concepts),
		task.ProcedureName,
		jsonDump(record.NormalizeSteps(task.Steps)),
		jsonDump(task.Dependencies),
		boolToInt(task.Irreversible),
		nullable(task.ChangeNote),
		timeToDB(now),
		actor,
		task.RecordID, task.Version, string(status),
	)
	if err != nil {
		return fmt.Errorf("failed to update task content: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return &ConcurrentModificationError{RecordID: task.RecordID, Version: task.Version}
	}
	return nil
}

// Confirm moves one submitted task version to confirmed, recording the
// reviewer, and deprecates whatever other version of the record currently
// holds confirmed. Must run inside a transaction so readers never observe
// two confirmed versions.
func (r *TaskRepository) Confirm(tx *sql.Tx, recordID string, version int, reviewer string, now time.Time) error {
	q := pick(r.db, tx)

	if _, err := q.Exec(`
		UPDATE tasks SET status = ?, updated_at = ?, updated_by = ?
		WHERE record_id = ? AND status = ? AND version != ?`,
		string(record.StatusDeprecated), timeToDB(now), reviewer,
		recordID, string(record.StatusConfirmed), version,
	); err != nil {
		return fmt.Errorf("failed to deprecate previous confirmed version: %w", err)
	}

	res, err := q.Exec(`
		UPDATE tasks SET status = ?, reviewed_at = ?, reviewed_by = ?, updated_at = ?, updated_by = ?
		WHERE record_id = ? AND version = ? AND status = ?`,
		string(record.StatusConfirmed), timeToDB(now), reviewer, timeToDB(now), reviewer,
		recordID, version, string(record.StatusSubmitted),
	)
	if err != nil {
		return fmt.Errorf("failed to confirm task version: %w", err)
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

// ListLatest returns the latest version of every task record
func (r *TaskRepository) ListLatest(tx *sql.Tx) ([]*record.Task, error) {
	query := `
		SELECT ` + taskColumns + ` FROM tasks t
		WHERE version = (SELECT MAX(version) FROM tasks WHERE record_id = t.record_id)
		ORDER BY record_id`
	rows, err := pick(r.db, tx).Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*record.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// ListConfirmed returns all currently confirmed task versions
func (r *TaskRepository) ListConfirmed(tx *sql.Tx) ([]*record.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE status = ? ORDER BY title`
	rows, err := pick(r.db, tx).Query(query, string(record.StatusConfirmed))
	if err != nil {
		return nil, fmt.Errorf("failed to list confirmed tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*record.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// ConfirmedVersion returns the version of recordID currently holding
// confirmed, 0 if none.
func (r *TaskRepository) ConfirmedVersion(tx *sql.Tx, recordID string) (int, error) {
	var v sql.NullInt64
	err := pick(r.db, tx).QueryRow(
		"SELECT MAX(version) FROM tasks WHERE record_id = ? AND status = ?",
		recordID, string(record.StatusConfirmed),
	).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("failed to get confirmed task version: %w", err)
	}
	if !v.Valid {
		return 0, nil
	}
	return int(v.Int64), nil
}

// DependencyEdges returns the declared dependencies of the latest version of
// every task record, for the cycle checker. Keys cover every known task id.
func (r *TaskRepository) DependencyEdges(tx *sql.Tx) (map[string][]string, error) {
	query := `
		SELECT record_id, dependencies_json FROM tasks t
		WHERE version = (SELECT MAX(version) FROM tasks WHERE record_id = t.record_id)`
	rows, err := pick(r.db, tx).Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to load dependency edges: %w", err)
	}
	defer rows.Close()

	edges := make(map[string][]string)
	for rows.Next() {
		var id, depsJSON string
		if err := rows.Scan(&id, &depsJSON); err != nil {
			return nil, fmt.Errorf("failed to scan dependency edges: %w", err)
		}
		edges[id] = jsonLoadStrings(depsJSON)
	}
	return edges, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(row rowScanner) (*record.Task, error) {
	var (
		task                        record.Task
		status                      string
		factsJSON, conceptsJSON     string
		stepsJSON, depsJSON         string
		irreversible, needsReview   int
		createdAt, updatedAt        string
		reviewedAt                  sql.NullString
		reviewedBy, changeNote, nrn sql.NullString
	)

	err := row.Scan(
		&task.RecordID, &task.Version, &status,
		&task.Title, &task.Outcome, &task.Domain, &factsJSON, &conceptsJSON, &task.ProcedureName,
		&stepsJSON, &depsJSON, &irreversible,
		&createdAt, &updatedAt, &task.CreatedBy, &task.UpdatedBy,
		&reviewedAt, &reviewedBy, &changeNote,
		&needsReview, &nrn,
	)
	if err != nil {
		return nil, err
	}

	task.Status = record.Status(status)
	task.Facts = jsonLoadStrings(factsJSON)
	task.Concepts = jsonLoadStrings(conceptsJSON)
	task.Dependencies = jsonLoadStrings(depsJSON)
	task.Irreversible = irreversible != 0
	task.NeedsReview = needsReview != 0
	task.ReviewedBy = reviewedBy.String
	task.ChangeNote = changeNote.String
	task.NeedsReviewNote = nrn.String

	if err := json.Unmarshal([]byte(stepsJSON), &task.Steps); err != nil {
		return nil, fmt.Errorf("failed to decode steps: %w", err)
	}
	if task.CreatedAt, err = timeFromDB(createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if task.UpdatedAt, err = timeFromDB(updatedAt); err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	if reviewedAt.Valid {
		t, err := timeFromDB(reviewedAt.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse reviewed_at: %w", err)
		}
		task.ReviewedAt = &t
	}

	return &task, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
