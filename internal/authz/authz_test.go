package authz

import "testing"

func TestCan(t *testing.T) {
	editGrant := &Grant{CanEdit: true}
	readGrant := &Grant{}

	cases := []struct {
		name    string
		isOwner bool
		grant   *Grant
		action  Action
		allow   bool
	}{
		{name: "owner view", isOwner: true, action: ActionView, allow: true},
		{name: "owner edit", isOwner: true, action: ActionEdit, allow: true},
		{name: "owner delete", isOwner: true, action: ActionDelete, allow: true},
		{name: "owner restore", isOwner: true, action: ActionRestore, allow: true},
		{name: "owner purge", isOwner: true, action: ActionPurge, allow: true},
		{name: "read collaborator view", grant: readGrant, action: ActionView, allow: true},
		{name: "read collaborator edit", grant: readGrant, action: ActionEdit, allow: false},
		{name: "edit collaborator view", grant: editGrant, action: ActionView, allow: true},
		{name: "edit collaborator edit", grant: editGrant, action: ActionEdit, allow: true},
		{name: "edit collaborator delete", grant: editGrant, action: ActionDelete, allow: false},
		{name: "edit collaborator restore", grant: editGrant, action: ActionRestore, allow: false},
		{name: "edit collaborator purge", grant: editGrant, action: ActionPurge, allow: false},
		{name: "stranger view", action: ActionView, allow: false},
		{name: "stranger edit", action: ActionEdit, allow: false},
		{name: "stranger delete", action: ActionDelete, allow: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Can(tc.isOwner, tc.grant, tc.action); got != tc.allow {
				t.Fatalf("Can(owner=%v, grant=%+v, %q) = %v, want %v", tc.isOwner, tc.grant, tc.action, got, tc.allow)
			}
		})
	}
}
