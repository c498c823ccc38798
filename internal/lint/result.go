// Package lint validates candidate records: hard structural checks that
// block submission, and heuristic step-quality warnings that never do.
package lint

import "fmt"

// FieldError is a hard validation failure tied to a field
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Result carries the outcome of validating one candidate record.
// Warnings are advisory only; a Result with warnings and no errors is valid.
type Result struct {
	Errors   []FieldError `json:"errors"`
	Warnings []string     `json:"warnings"`
}

// Valid returns true when no hard errors were found
func (r Result) Valid() bool {
	return len(r.Errors) == 0
}

func (r *Result) addError(field, format string, args ...interface{}) {
	r.Errors = append(r.Errors, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}
