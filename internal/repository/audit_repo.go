package repository

import (
	"database/sql"
	"fmt"

	"github.com/lcsys/governance/internal/domain/record"
	"go.uber.org/zap"
)

// AuditRepository appends to and reads the append-only audit ledger.
// There are no update or delete operations.
type AuditRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *sql.DB, logger *zap.Logger) *AuditRepository {
	return &AuditRepository{
		db:     db,
		logger: logger,
	}
}

// Append writes one audit entry. Pass the business mutation's transaction so
// the entry commits with it.
func (r *AuditRepository) Append(tx *sql.Tx, entry *record.AuditEntry) error {
	res, err := pick(r.db, tx).Exec(`
		INSERT INTO audit_log (entity_type, record_id, version, operation, actor, at, before_summary, after_summary, override_reason, note)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		string(entry.EntityType),
		entry.RecordID,
		entry.Version,
		string(entry.Operation),
		entry.Actor,
		timeToDB(entry.At),
		nullable(entry.BeforeSummary),
		nullable(entry.AfterSummary),
		nullable(entry.OverrideReason),
		nullable(entry.Note),
	)
	if err != nil {
		r.logger.Error("Failed to append audit entry",
			zap.String("record_id", entry.RecordID),
			zap.String("operation", string(entry.Operation)),
			zap.Error(err))
		return fmt.Errorf("failed to append audit entry: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get audit entry id: %w", err)
	}
	entry.ID = id
	return nil
}

// Filter narrows an audit ledger listing. Zero values mean "no filter".
type Filter struct {
	EntityType record.EntityType
	RecordID   string
	Operation  record.Operation
	Actor      string
	Limit      int
	Offset     int
}

// List returns audit entries in append order, filtered and paginated
func (r *AuditRepository) List(tx *sql.Tx, f Filter) ([]*record.AuditEntry, error) {
	query := `
		SELECT id, entity_type, record_id, version, operation, actor, at, before_summary, after_summary, override_reason, note
		FROM audit_log WHERE 1=1`
	var args []interface{}

	if f.EntityType != "" {
		query += " AND entity_type = ?"
		args = append(args, string(f.EntityType))
	}
	if f.RecordID != "" {
		query += " AND record_id = ?"
		args = append(args, f.RecordID)
	}
	if f.Operation != "" {
		query += " AND operation = ?"
		args = append(args, string(f.Operation))
	}
	if f.Actor != "" {
		query += " AND actor = ?"
		args = append(args, f.Actor)
	}

	query += " ORDER BY id ASC"
	if f.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, f.Limit, f.Offset)
	}

	rows, err := pick(r.db, tx).Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*record.AuditEntry
	for rows.Next() {
		var (
			e                     record.AuditEntry
			entityType, operation string
			at                    string
			before, after, reason sql.NullString
			note                  sql.NullString
		)
		err := rows.Scan(&e.ID, &entityType, &e.RecordID, &e.Version, &operation, &e.Actor, &at, &before, &after, &reason, &note)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.EntityType = record.EntityType(entityType)
		e.Operation = record.Operation(operation)
		e.BeforeSummary = before.String
		e.AfterSummary = after.String
		e.OverrideReason = reason.String
		e.Note = note.String
		if e.At, err = timeFromDB(at); err != nil {
			return nil, fmt.Errorf("failed to parse audit timestamp: %w", err)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
