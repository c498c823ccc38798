package lifecycle

import "github.com/lcsys/governance/internal/domain/record"

// NewGovernanceMachine builds the record governance lifecycle:
//
//	draft -> submitted -> confirmed -> deprecated
//
// with "return for changes" reopening a submitted version to draft.
// confirmed -> submitted is deliberately absent: editing confirmed content
// requires a new version. Force operations follow the same edges as their
// normal counterparts; only their gating and audit treatment differ.
func NewGovernanceMachine(initial record.Status) Machine {
	b := NewBuilder()

	b.Configure(record.StatusDraft).
		Permit(record.OperationSubmit, record.StatusSubmitted).
		Permit(record.OperationForceSubmit, record.StatusSubmitted).
		Permit(record.OperationDeprecate, record.StatusDeprecated)

	b.Configure(record.StatusSubmitted).
		Permit(record.OperationReturn, record.StatusDraft).
		Permit(record.OperationConfirm, record.StatusConfirmed).
		Permit(record.OperationForceConfirm, record.StatusConfirmed).
		Permit(record.OperationDeprecate, record.StatusDeprecated)

	b.Configure(record.StatusConfirmed).
		Permit(record.OperationDeprecate, record.StatusDeprecated)

	return b.Build(initial)
}

// CanTransition reports whether op may fire from the given status
func CanTransition(from record.Status, op record.Operation) bool {
	return NewGovernanceMachine(from).CanFire(op)
}
