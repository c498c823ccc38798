// Package auth implements the authorization check the orchestrator runs
// before allowing an operation: a small role/capability matrix.
package auth

import "fmt"

// Role is an actor's authorization level
type Role string

const (
	RoleViewer   Role = "viewer"
	RoleAuthor   Role = "author"
	RoleReviewer Role = "reviewer"
	RoleAdmin    Role = "admin"
)

var validRoles = map[Role]bool{
	RoleViewer:   true,
	RoleAuthor:   true,
	RoleReviewer: true,
	RoleAdmin:    true,
}

// IsValid returns true for a known role
func (r Role) IsValid() bool {
	return validRoles[r]
}

// Action names a permission-gated operation, e.g. "task:confirm"
type Action string

const (
	ActionTaskCreate      Action = "task:create"
	ActionTaskRevise      Action = "task:revise"
	ActionTaskSubmit      Action = "task:submit"
	ActionTaskConfirm     Action = "task:confirm"
	ActionTaskDeprecate   Action = "task:deprecate"

	ActionWorkflowCreate    Action = "workflow:create"
	ActionWorkflowRevise    Action = "workflow:revise"
	ActionWorkflowSubmit    Action = "workflow:submit"
	ActionWorkflowConfirm   Action = "workflow:confirm"
	ActionWorkflowDeprecate Action = "workflow:deprecate"

	ActionReturn Action = "record:return"
	ActionForce  Action = "record:force"
)

// ForbiddenError is returned when an actor lacks the required capability
type ForbiddenError struct {
	Actor  string
	Role   Role
	Action Action
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("forbidden: actor %q (role %s) requires permission %s", e.Actor, e.Role, e.Action)
}

// Can evaluates the capability matrix. Admins can do everything, including
// force operations; confirming and returning records requires a reviewer;
// authoring actions require an author.
func Can(role Role, action Action) bool {
	if role == RoleAdmin {
		return true
	}

	switch action {
	case ActionTaskConfirm, ActionWorkflowConfirm, ActionReturn:
		return role == RoleReviewer
	case ActionTaskCreate, ActionTaskRevise, ActionTaskSubmit, ActionTaskDeprecate,
		ActionWorkflowCreate, ActionWorkflowRevise, ActionWorkflowSubmit, ActionWorkflowDeprecate:
		return role == RoleAuthor
	case ActionForce:
		return false
	}
	return false
}

// Require returns a ForbiddenError when the actor's role lacks the capability
func Require(actor string, role Role, action Action) error {
	if !Can(role, action) {
		return &ForbiddenError{Actor: actor, Role: role, Action: action}
	}
	return nil
}
