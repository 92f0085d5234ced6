package app

import (
	"context"
	"testing"
)

func TestCreateLabelRejectsDuplicateName(t *testing.T) {
	ms := newMemStore()
	svc := newTestService(ms)
	ctx := context.Background()
	owner := seedUser(t, ms, "owner@example.com")

	if _, err := svc.CreateLabel(ctx, owner.ID, "work"); err != nil {
		t.Fatalf("CreateLabel: %v", err)
	}
	_, err := svc.CreateLabel(ctx, owner.ID, "work")
	if code := domainCode(t, err); code != "INVALID_OPERATION" {
		t.Fatalf("expected INVALID_OPERATION for duplicate label, got %s", code)
	}

	// Same name under another account is fine.
	other := seedUser(t, ms, "other@example.com")
	if _, err := svc.CreateLabel(ctx, other.ID, "work"); err != nil {
		t.Fatalf("label namespaces are per owner: %v", err)
	}
}

func TestAttachDetachLabel(t *testing.T) {
	ms := newMemStore()
	svc := newTestService(ms)
	ctx := context.Background()
	owner := seedUser(t, ms, "owner@example.com")
	note := seedNote(t, svc, owner.ID, "tagged")
	label, err := svc.CreateLabel(ctx, owner.ID, "work")
	if err != nil {
		t.Fatalf("CreateLabel: %v", err)
	}

	if err := svc.AttachLabel(ctx, owner.ID, note.ID, label.ID); err != nil {
		t.Fatalf("AttachLabel: %v", err)
	}
	// Attaching twice is a no-op.
	if err := svc.AttachLabel(ctx, owner.ID, note.ID, label.ID); err != nil {
		t.Fatalf("repeat AttachLabel: %v", err)
	}

	labels, err := svc.NoteLabels(ctx, owner.ID, note.ID)
	if err != nil {
		t.Fatalf("NoteLabels: %v", err)
	}
	if len(labels) != 1 || labels[0].Name != "work" {
		t.Fatalf("expected single work label, got %+v", labels)
	}

	if err := svc.DetachLabel(ctx, owner.ID, note.ID, label.ID); err != nil {
		t.Fatalf("DetachLabel: %v", err)
	}
	labels, _ = svc.NoteLabels(ctx, owner.ID, note.ID)
	if len(labels) != 0 {
		t.Fatalf("expected no labels after detach, got %+v", labels)
	}
}

func TestAttachLabelRequiresOwnLabelAndNote(t *testing.T) {
	ms := newMemStore()
	svc := newTestService(ms)
	ctx := context.Background()
	owner := seedUser(t, ms, "owner@example.com")
	other := seedUser(t, ms, "other@example.com")
	note := seedNote(t, svc, owner.ID, "mine")

	theirLabel, err := svc.CreateLabel(ctx, other.ID, "theirs")
	if err != nil {
		t.Fatalf("CreateLabel: %v", err)
	}

	if err := svc.AttachLabel(ctx, owner.ID, note.ID, theirLabel.ID); domainCode(t, err) != "NOT_FOUND" {
		t.Fatal("attaching someone else's label should be NOT_FOUND")
	}
	if err := svc.AttachLabel(ctx, other.ID, note.ID, theirLabel.ID); domainCode(t, err) != "NOT_FOUND" {
		t.Fatal("tagging someone else's note should be NOT_FOUND")
	}
}

func TestDeleteLabelDetachesEverywhere(t *testing.T) {
	ms := newMemStore()
	svc := newTestService(ms)
	ctx := context.Background()
	owner := seedUser(t, ms, "owner@example.com")
	note := seedNote(t, svc, owner.ID, "tagged")
	label, err := svc.CreateLabel(ctx, owner.ID, "temp")
	if err != nil {
		t.Fatalf("CreateLabel: %v", err)
	}
	if err := svc.AttachLabel(ctx, owner.ID, note.ID, label.ID); err != nil {
		t.Fatalf("AttachLabel: %v", err)
	}

	if err := svc.DeleteLabel(ctx, owner.ID, label.ID); err != nil {
		t.Fatalf("DeleteLabel: %v", err)
	}
	if err := svc.DeleteLabel(ctx, owner.ID, label.ID); domainCode(t, err) != "NOT_FOUND" {
		t.Fatal("second delete should be NOT_FOUND")
	}

	labels, err := svc.NoteLabels(ctx, owner.ID, note.ID)
	if err != nil {
		t.Fatalf("NoteLabels: %v", err)
	}
	if len(labels) != 0 {
		t.Fatalf("expected label removed from note, got %+v", labels)
	}
}

func TestLabelingDeletedNoteIsNotFound(t *testing.T) {
	ms := newMemStore()
	svc := newTestService(ms)
	ctx := context.Background()
	owner := seedUser(t, ms, "owner@example.com")
	note := seedNote(t, svc, owner.ID, "trashed")
	label, err := svc.CreateLabel(ctx, owner.ID, "late")
	if err != nil {
		t.Fatalf("CreateLabel: %v", err)
	}

	if _, err := svc.DeleteNote(ctx, owner.ID, note.ID); err != nil {
		t.Fatalf("DeleteNote: %v", err)
	}
	if err := svc.AttachLabel(ctx, owner.ID, note.ID, label.ID); domainCode(t, err) != "NOT_FOUND" {
		t.Fatal("tagging a deleted note should be NOT_FOUND")
	}
}
