// Package authz decides what a user may do with a note. It is a pure function
// over plain data: ownership and the collaborator grant (if any) are looked up
// by the caller.
package authz

type Action string

const (
	ActionView    Action = "view"
	ActionEdit    Action = "edit"
	ActionDelete  Action = "delete"
	ActionRestore Action = "restore"
	ActionPurge   Action = "purge"
)

// Grant is the delegated permission a collaborator holds on a note. A nil
// *Grant means the user is not a collaborator.
type Grant struct {
	CanEdit bool
}

// Can reports whether the action is allowed. Owners may do anything.
// Collaborators may always view and may edit when the grant says so; lifecycle
// actions (delete, restore, purge) are never delegated.
func Can(isOwner bool, grant *Grant, action Action) bool {
	if isOwner {
		return true
	}
	if grant == nil {
		return false
	}
	switch action {
	case ActionView:
		return true
	case ActionEdit:
		return grant.CanEdit
	default:
		return false
	}
}
