package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrStateConflict is returned when a guarded state transition matched no row:
// the note was concurrently mutated, purged, or never in the expected state.
var ErrStateConflict = errors.New("note not in expected state")

// ErrDuplicate is returned when an insert violates a unique constraint.
var ErrDuplicate = errors.New("duplicate record")

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.SQLState() == "23505"
}

// ---- users ----

func (s *PostgresStore) CreateUser(ctx context.Context, user User) (User, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (email, display_name, password_hash)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`, user.Email, user.DisplayName, user.PasswordHash).Scan(&user.ID, &user.CreatedAt)
	if isUniqueViolation(err) {
		return User{}, ErrDuplicate
	}
	if err != nil {
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID int64) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, display_name, password_hash, created_at
		FROM users WHERE id=$1
	`, userID).Scan(&user.ID, &user.Email, &user.DisplayName, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, display_name, password_hash, created_at
		FROM users WHERE email=$1
	`, email).Scan(&user.ID, &user.Email, &user.DisplayName, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

// ---- notes ----

const noteColumns = `id, owner_id, title, description, color, is_pinned, is_archived, state, created_at, updated_at`

func scanNote(row interface{ Scan(...any) error }) (Note, error) {
	var note Note
	err := row.Scan(
		&note.ID,
		&note.OwnerID,
		&note.Title,
		&note.Description,
		&note.Color,
		&note.IsPinned,
		&note.IsArchived,
		&note.State,
		&note.CreatedAt,
		&note.UpdatedAt,
	)
	return note, err
}

// CreateNote inserts the note and its "Created" history entry in one
// transaction.
func (s *PostgresStore) CreateNote(ctx context.Context, note Note) (Note, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Note{}, fmt.Errorf("begin create note: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	created, err := scanNote(tx.QueryRowContext(ctx, `
		INSERT INTO notes (owner_id, title, description, color, is_pinned, is_archived)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+noteColumns+`
	`, note.OwnerID, note.Title, note.Description, note.Color, note.IsPinned, note.IsArchived))
	if err != nil {
		return Note{}, fmt.Errorf("insert note: %w", err)
	}

	if err := appendHistory(ctx, tx, created.ID, HistoryCreated); err != nil {
		return Note{}, err
	}

	if err := tx.Commit(); err != nil {
		return Note{}, fmt.Errorf("commit create note: %w", err)
	}
	return created, nil
}

// GetNote returns the note regardless of lifecycle state. Scope decisions
// belong to the caller, which needs the real state to tell NotFound from
// InvalidState.
func (s *PostgresStore) GetNote(ctx context.Context, noteID int64) (Note, error) {
	return scanNote(s.db.QueryRowContext(ctx, `
		SELECT `+noteColumns+` FROM notes WHERE id=$1
	`, noteID))
}

// ListNotesForUser returns active notes the user owns or collaborates on,
// newest first.
func (s *PostgresStore) ListNotesForUser(ctx context.Context, userID int64) ([]Note, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT n.id, n.owner_id, n.title, n.description, n.color,
			n.is_pinned, n.is_archived, n.state, n.created_at, n.updated_at
		FROM notes n
		LEFT JOIN note_collaborators c ON c.note_id = n.id AND c.user_id = $1
		WHERE n.state = 'ACTIVE' AND (n.owner_id = $1 OR c.user_id IS NOT NULL)
		ORDER BY n.created_at DESC, n.id DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	defer rows.Close()

	return collectNotes(rows)
}

// ListDeletedNotes returns the owner's soft-deleted notes, newest first.
func (s *PostgresStore) ListDeletedNotes(ctx context.Context, ownerID int64) ([]Note, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+noteColumns+`
		FROM notes
		WHERE owner_id = $1 AND state = 'DELETED'
		ORDER BY created_at DESC, id DESC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list deleted notes: %w", err)
	}
	defer rows.Close()

	return collectNotes(rows)
}

func collectNotes(rows *sql.Rows) ([]Note, error) {
	items := make([]Note, 0)
	for rows.Next() {
		note, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		items = append(items, note)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notes: %w", err)
	}
	return items, nil
}

// UpdateNoteFields rewrites the mutable fields of an active note and appends
// the "Updated" history entry, atomically. The state guard in the WHERE clause
// is the race defense against a concurrent delete.
func (s *PostgresStore) UpdateNoteFields(ctx context.Context, note Note) (Note, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Note{}, fmt.Errorf("begin update note: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	updated, err := scanNote(tx.QueryRowContext(ctx, `
		UPDATE notes
		SET title=$2, description=$3, color=$4, is_pinned=$5, is_archived=$6, updated_at=NOW()
		WHERE id=$1 AND state='ACTIVE'
		RETURNING `+noteColumns+`
	`, note.ID, note.Title, note.Description, note.Color, note.IsPinned, note.IsArchived))
	if errors.Is(err, sql.ErrNoRows) {
		return Note{}, ErrStateConflict
	}
	if err != nil {
		return Note{}, fmt.Errorf("update note: %w", err)
	}

	if err := appendHistory(ctx, tx, updated.ID, HistoryUpdated); err != nil {
		return Note{}, err
	}

	if err := tx.Commit(); err != nil {
		return Note{}, fmt.Errorf("commit update note: %w", err)
	}
	return updated, nil
}

// SetNoteState moves a note between lifecycle states and appends the matching
// history entry, atomically. Returns ErrStateConflict when the note is no
// longer in the expected source state.
func (s *PostgresStore) SetNoteState(ctx context.Context, noteID int64, from, to NoteState, action string) (Note, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Note{}, fmt.Errorf("begin state change: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	updated, err := scanNote(tx.QueryRowContext(ctx, `
		UPDATE notes
		SET state=$3, updated_at=NOW()
		WHERE id=$1 AND state=$2
		RETURNING `+noteColumns+`
	`, noteID, from, to))
	if errors.Is(err, sql.ErrNoRows) {
		return Note{}, ErrStateConflict
	}
	if err != nil {
		return Note{}, fmt.Errorf("change note state: %w", err)
	}

	if err := appendHistory(ctx, tx, noteID, action); err != nil {
		return Note{}, err
	}

	if err := tx.Commit(); err != nil {
		return Note{}, fmt.Errorf("commit state change: %w", err)
	}
	return updated, nil
}

// PurgeNote removes a soft-deleted note for good. The history entry is written
// before the row disappears so the audit trail survives the purge; grants and
// label links go with the row via ON DELETE CASCADE.
func (s *PostgresStore) PurgeNote(ctx context.Context, noteID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin purge note: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := appendHistory(ctx, tx, noteID, HistoryPurged); err != nil {
		return err
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM notes WHERE id=$1 AND state='DELETED'`, noteID)
	if err != nil {
		return fmt.Errorf("purge note: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("purge note rows: %w", err)
	}
	if affected == 0 {
		return ErrStateConflict
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit purge note: %w", err)
	}
	return nil
}

// ---- collaborators ----

// GetCollaborator returns nil without error when no grant exists.
func (s *PostgresStore) GetCollaborator(ctx context.Context, noteID, userID int64) (*Collaborator, error) {
	var item Collaborator
	err := s.db.QueryRowContext(ctx, `
		SELECT note_id, user_id, can_edit, created_at
		FROM note_collaborators
		WHERE note_id=$1 AND user_id=$2
	`, noteID, userID).Scan(&item.NoteID, &item.UserID, &item.CanEdit, &item.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get collaborator: %w", err)
	}
	return &item, nil
}

// InsertCollaborator creates the grant unless one already exists; the existing
// grant wins. The primary key is the final defense against concurrent grants.
func (s *PostgresStore) InsertCollaborator(ctx context.Context, grant Collaborator) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO note_collaborators (note_id, user_id, can_edit)
		VALUES ($1, $2, $3)
		ON CONFLICT (note_id, user_id) DO NOTHING
	`, grant.NoteID, grant.UserID, grant.CanEdit)
	if err != nil {
		return fmt.Errorf("insert collaborator: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteCollaborator(ctx context.Context, noteID, userID int64) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM note_collaborators WHERE note_id=$1 AND user_id=$2
	`, noteID, userID)
	if err != nil {
		return fmt.Errorf("delete collaborator: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListCollaborators(ctx context.Context, noteID int64) ([]Collaborator, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.note_id, c.user_id, c.can_edit, c.created_at, u.email, u.display_name
		FROM note_collaborators c
		JOIN users u ON u.id = c.user_id
		WHERE c.note_id=$1
		ORDER BY c.created_at, c.user_id
	`, noteID)
	if err != nil {
		return nil, fmt.Errorf("list collaborators: %w", err)
	}
	defer rows.Close()

	items := make([]Collaborator, 0)
	for rows.Next() {
		var item Collaborator
		if err := rows.Scan(&item.NoteID, &item.UserID, &item.CanEdit, &item.CreatedAt, &item.Email, &item.DisplayName); err != nil {
			return nil, fmt.Errorf("scan collaborator: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate collaborators: %w", err)
	}
	return items, nil
}

// ---- history ----

func appendHistory(ctx context.Context, tx *sql.Tx, noteID int64, action string) error {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO note_history (note_id, action) VALUES ($1, $2)
	`, noteID, action); err != nil {
		return fmt.Errorf("append history %q: %w", action, err)
	}
	return nil
}

func (s *PostgresStore) ListNoteHistory(ctx context.Context, noteID int64) ([]HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, note_id, action, recorded_at
		FROM note_history
		WHERE note_id=$1
		ORDER BY id
	`, noteID)
	if err != nil {
		return nil, fmt.Errorf("list note history: %w", err)
	}
	defer rows.Close()

	items := make([]HistoryEntry, 0)
	for rows.Next() {
		var item HistoryEntry
		if err := rows.Scan(&item.ID, &item.NoteID, &item.Action, &item.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return items, nil
}

// ---- labels ----

func (s *PostgresStore) CreateLabel(ctx context.Context, label Label) (Label, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO labels (owner_id, name)
		VALUES ($1, $2)
		RETURNING id, created_at
	`, label.OwnerID, label.Name).Scan(&label.ID, &label.CreatedAt)
	if isUniqueViolation(err) {
		return Label{}, ErrDuplicate
	}
	if err != nil {
		return Label{}, fmt.Errorf("insert label: %w", err)
	}
	return label, nil
}

func (s *PostgresStore) GetLabel(ctx context.Context, labelID, ownerID int64) (Label, error) {
	var label Label
	err := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, name, created_at
		FROM labels WHERE id=$1 AND owner_id=$2
	`, labelID, ownerID).Scan(&label.ID, &label.OwnerID, &label.Name, &label.CreatedAt)
	if err != nil {
		return Label{}, err
	}
	return label, nil
}

func (s *PostgresStore) ListLabels(ctx context.Context, ownerID int64) ([]Label, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, name, created_at
		FROM labels WHERE owner_id=$1
		ORDER BY name
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list labels: %w", err)
	}
	defer rows.Close()

	items := make([]Label, 0)
	for rows.Next() {
		var label Label
		if err := rows.Scan(&label.ID, &label.OwnerID, &label.Name, &label.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan label: %w", err)
		}
		items = append(items, label)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate labels: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) DeleteLabel(ctx context.Context, labelID, ownerID int64) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM labels WHERE id=$1 AND owner_id=$2
	`, labelID, ownerID)
	if err != nil {
		return false, fmt.Errorf("delete label: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete label rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) AttachLabel(ctx context.Context, noteID, labelID int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO note_labels (note_id, label_id)
		VALUES ($1, $2)
		ON CONFLICT (note_id, label_id) DO NOTHING
	`, noteID, labelID)
	if err != nil {
		return fmt.Errorf("attach label: %w", err)
	}
	return nil
}

func (s *PostgresStore) DetachLabel(ctx context.Context, noteID, labelID int64) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM note_labels WHERE note_id=$1 AND label_id=$2
	`, noteID, labelID)
	if err != nil {
		return fmt.Errorf("detach label: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListNoteLabels(ctx context.Context, noteID int64) ([]Label, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT l.id, l.owner_id, l.name, l.created_at
		FROM note_labels nl
		JOIN labels l ON l.id = nl.label_id
		WHERE nl.note_id=$1
		ORDER BY l.name
	`, noteID)
	if err != nil {
		return nil, fmt.Errorf("list note labels: %w", err)
	}
	defer rows.Close()

	items := make([]Label, 0)
	for rows.Next() {
		var label Label
		if err := rows.Scan(&label.ID, &label.OwnerID, &label.Name, &label.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan note label: %w", err)
		}
		items = append(items, label)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate note labels: %w", err)
	}
	return items, nil
}
