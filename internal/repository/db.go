// Package repository implements the version store: append-only persistence
// of Task and Workflow versions keyed by (record_id, version), plus the
// append-only audit ledger.
package repository

import (
	"database/sql"
	"encoding/json"
	"time"
)

// querier is the subset of sql.DB/sql.Tx the repositories need. Methods
// take an optional *sql.Tx; when nil they run against the plain connection.
type querier interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

func pick(db querier, tx *sql.Tx) querier {
	if tx != nil {
		return tx
	}
	return db
}

// Timestamps are stored as RFC3339 TEXT, truncated to the second
const timeLayout = time.RFC3339

func timeToDB(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(timeLayout)
}

func timeFromDB(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

func jsonDump(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func jsonLoadStrings(s string) []string {
	var out []string
	if s == "" {
		return nil
	}
	_ = json.Unmarshal([]byte(s), &out)
	return out
}
