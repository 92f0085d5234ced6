package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"
)

// openTestDB connects to the integration database and applies migrations.
// Skips when running in short mode or when the database is unreachable.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	db, err := Open(ctx, getTestDatabaseURL(t))
	if err != nil {
		t.Skipf("test database unavailable: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := ApplyMigrations(ctx, db); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return db
}

func seedTestUser(t *testing.T, s *PostgresStore, tag string) User {
	t.Helper()
	user, err := s.CreateUser(context.Background(), User{
		Email:        fmt.Sprintf("%s-%d@test.invalid", tag, time.Now().UnixNano()),
		DisplayName:  tag,
		PasswordHash: "x",
	})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

func TestNoteLifecycleAgainstDatabase(t *testing.T) {
	db := openTestDB(t)
	s := NewPostgresStore(db)
	ctx := context.Background()

	owner := seedTestUser(t, s, "owner")
	note, err := s.CreateNote(ctx, Note{
		OwnerID: owner.ID,
		Title:   "integration",
		State:   NoteStateActive,
	})
	if err != nil {
		t.Fatalf("CreateNote: %v", err)
	}

	// Guarded transitions reject a mismatched current state.
	if _, err := s.SetNoteState(ctx, note.ID, NoteStateDeleted, NoteStateActive, HistoryRestored); !errors.Is(err, ErrStateConflict) {
		t.Fatalf("expected ErrStateConflict restoring active note, got %v", err)
	}
	if err := s.PurgeNote(ctx, note.ID); !errors.Is(err, ErrStateConflict) {
		t.Fatalf("expected ErrStateConflict purging active note, got %v", err)
	}

	deleted, err := s.SetNoteState(ctx, note.ID, NoteStateActive, NoteStateDeleted, HistoryDeleted)
	if err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	if deleted.State != NoteStateDeleted {
		t.Fatalf("expected DELETED state, got %s", deleted.State)
	}
	if deleted.Title != note.Title {
		t.Fatalf("delete must preserve content, got %q", deleted.Title)
	}

	if err := s.PurgeNote(ctx, note.ID); err != nil {
		t.Fatalf("purge: %v", err)
	}
	if _, err := s.GetNote(ctx, note.ID); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected no row after purge, got %v", err)
	}

	// History survives the purge, in order.
	entries, err := s.ListNoteHistory(ctx, note.ID)
	if err != nil {
		t.Fatalf("ListNoteHistory: %v", err)
	}
	want := []string{HistoryCreated, HistoryDeleted, HistoryPurged}
	if len(entries) != len(want) {
		t.Fatalf("expected %d entries, got %+v", len(want), entries)
	}
	for i, action := range want {
		if entries[i].Action != action {
			t.Fatalf("entry %d: expected %q, got %q", i, action, entries[i].Action)
		}
	}
}

func TestCollaboratorGrantUniqueness(t *testing.T) {
	db := openTestDB(t)
	s := NewPostgresStore(db)
	ctx := context.Background()

	owner := seedTestUser(t, s, "owner")
	friend := seedTestUser(t, s, "friend")
	note, err := s.CreateNote(ctx, Note{OwnerID: owner.ID, Title: "shared", State: NoteStateActive})
	if err != nil {
		t.Fatalf("CreateNote: %v", err)
	}

	if err := s.InsertCollaborator(ctx, Collaborator{NoteID: note.ID, UserID: friend.ID, CanEdit: false}); err != nil {
		t.Fatalf("first grant: %v", err)
	}
	// A second grant is absorbed; the original row survives untouched.
	if err := s.InsertCollaborator(ctx, Collaborator{NoteID: note.ID, UserID: friend.ID, CanEdit: true}); err != nil {
		t.Fatalf("second grant: %v", err)
	}

	grant, err := s.GetCollaborator(ctx, note.ID, friend.ID)
	if err != nil {
		t.Fatalf("GetCollaborator: %v", err)
	}
	if grant == nil || grant.CanEdit {
		t.Fatalf("expected the original read-only grant, got %+v", grant)
	}

	collabs, err := s.ListCollaborators(ctx, note.ID)
	if err != nil {
		t.Fatalf("ListCollaborators: %v", err)
	}
	if len(collabs) != 1 {
		t.Fatalf("expected one grant, got %d", len(collabs))
	}
}

func TestUpdateNoteFieldsGuardsState(t *testing.T) {
	db := openTestDB(t)
	s := NewPostgresStore(db)
	ctx := context.Background()

	owner := seedTestUser(t, s, "owner")
	note, err := s.CreateNote(ctx, Note{OwnerID: owner.ID, Title: "before", State: NoteStateActive})
	if err != nil {
		t.Fatalf("CreateNote: %v", err)
	}

	note.Title = "after"
	updated, err := s.UpdateNoteFields(ctx, note)
	if err != nil {
		t.Fatalf("UpdateNoteFields: %v", err)
	}
	if updated.Title != "after" || updated.UpdatedAt == nil {
		t.Fatalf("expected updated title and timestamp, got %+v", updated)
	}

	if _, err := s.SetNoteState(ctx, note.ID, NoteStateActive, NoteStateDeleted, HistoryDeleted); err != nil {
		t.Fatalf("soft delete: %v", err)
	}

	note.Title = "too late"
	if _, err := s.UpdateNoteFields(ctx, note); !errors.Is(err, ErrStateConflict) {
		t.Fatalf("expected ErrStateConflict updating deleted note, got %v", err)
	}
}
