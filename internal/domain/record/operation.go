package record

// Operation identifies a state-changing governance operation.
// Operations are the triggers of the lifecycle state machine and the
// vocabulary of the audit ledger.
type Operation string

const (
	OperationCreate       Operation = "create"
	OperationRevise       Operation = "revise"
	OperationSubmit       Operation = "submit"
	OperationReturn       Operation = "return"
	OperationConfirm      Operation = "confirm"
	OperationDeprecate    Operation = "deprecate"
	OperationForceSubmit  Operation = "force_submit"
	OperationForceConfirm Operation = "force_confirm"
)

// IsOverride returns true for admin operations that bypass normal gating.
// Override entries in the audit ledger always carry a reason and are never
// conflated with their normal counterparts.
func (o Operation) IsOverride() bool {
	return o == OperationForceSubmit || o == OperationForceConfirm
}

// String returns the string representation of the operation
func (o Operation) String() string {
	return string(o)
}
