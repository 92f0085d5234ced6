package store

import "time"

// NoteState is the persisted lifecycle state of a note. A purged note has no
// row at all, so only the two live states appear here.
type NoteState string

const (
	NoteStateActive  NoteState = "ACTIVE"
	NoteStateDeleted NoteState = "DELETED"
)

// History action labels, recorded verbatim in note_history.
const (
	HistoryCreated  = "Created"
	HistoryUpdated  = "Updated"
	HistoryDeleted  = "Deleted"
	HistoryRestored = "Restored"
	HistoryPurged   = "Permanently Deleted"
)

type User struct {
	ID           int64
	Email        string
	DisplayName  string
	PasswordHash string
	CreatedAt    time.Time
}

type Note struct {
	ID          int64
	OwnerID     int64
	Title       string
	Description string
	Color       string
	IsPinned    bool
	IsArchived  bool
	State       NoteState
	CreatedAt   time.Time
	UpdatedAt   *time.Time
}

// Collaborator is a delegated-access grant on a note. Email and DisplayName
// are joined from users for listing.
type Collaborator struct {
	NoteID      int64
	UserID      int64
	CanEdit     bool
	CreatedAt   time.Time
	Email       string
	DisplayName string
}

type HistoryEntry struct {
	ID         int64
	NoteID     int64
	Action     string
	RecordedAt time.Time
}

type Label struct {
	ID        int64
	OwnerID   int64
	Name      string
	CreatedAt time.Time
}
