package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"notekeep/internal/authz"
	"notekeep/internal/store"
)

type CollaboratorView struct {
	UserID      int64     `json:"userId"`
	Email       string    `json:"email"`
	DisplayName string    `json:"displayName"`
	CanEdit     bool      `json:"canEdit"`
	AddedAt     time.Time `json:"addedAt"`
}

func collaboratorView(c store.Collaborator) CollaboratorView {
	return CollaboratorView{
		UserID:      c.UserID,
		Email:       c.Email,
		DisplayName: c.DisplayName,
		CanEdit:     c.CanEdit,
		AddedAt:     c.CreatedAt,
	}
}

// ownedNote fetches a note and verifies the actor owns it. Non-owners get
// NOT_FOUND rather than FORBIDDEN so the note's existence is not leaked.
func (s *Service) ownedNote(ctx context.Context, actorID, noteID int64) (store.Note, error) {
	note, err := s.store.GetNote(ctx, noteID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Note{}, errNotFound("note not found")
	}
	if err != nil {
		return store.Note{}, fmt.Errorf("load note: %w", err)
	}
	if note.OwnerID != actorID {
		return store.Note{}, errNotFound("note not found")
	}
	return note, nil
}

// AddCollaborator grants another account access to one of the actor's notes.
// Granting to an existing collaborator is a no-op; the original grant wins.
func (s *Service) AddCollaborator(ctx context.Context, actorID, noteID int64, email string, canEdit bool) (CollaboratorView, error) {
	if _, err := s.ownedNote(ctx, actorID, noteID); err != nil {
		return CollaboratorView{}, err
	}

	target, err := s.store.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, sql.ErrNoRows) {
		return CollaboratorView{}, errNotFound("no account with that email")
	}
	if err != nil {
		return CollaboratorView{}, fmt.Errorf("look up collaborator: %w", err)
	}
	if target.ID == actorID {
		return CollaboratorView{}, errInvalidOperation("cannot add yourself as a collaborator")
	}

	existing, err := s.store.GetCollaborator(ctx, noteID, target.ID)
	if err != nil {
		return CollaboratorView{}, fmt.Errorf("check existing grant: %w", err)
	}
	if existing != nil {
		existing.Email = target.Email
		existing.DisplayName = target.DisplayName
		return collaboratorView(*existing), nil
	}

	grant := store.Collaborator{NoteID: noteID, UserID: target.ID, CanEdit: canEdit}
	if err := s.store.InsertCollaborator(ctx, grant); err != nil {
		return CollaboratorView{}, fmt.Errorf("add collaborator: %w", err)
	}
	grant.Email = target.Email
	grant.DisplayName = target.DisplayName
	grant.CreatedAt = time.Now()
	return collaboratorView(grant), nil
}

// RemoveCollaborator revokes a grant. Removing a user who holds no grant is
// not an error.
func (s *Service) RemoveCollaborator(ctx context.Context, actorID, noteID, userID int64) error {
	if _, err := s.ownedNote(ctx, actorID, noteID); err != nil {
		return err
	}
	if err := s.store.DeleteCollaborator(ctx, noteID, userID); err != nil {
		return fmt.Errorf("remove collaborator: %w", err)
	}
	return nil
}

// ListCollaborators lists a note's grants. Anyone who can view the note can
// see who else it is shared with.
func (s *Service) ListCollaborators(ctx context.Context, actorID, noteID int64) ([]CollaboratorView, error) {
	if _, err := s.loadNoteFor(ctx, actorID, noteID, authz.ActionView); err != nil {
		return nil, err
	}

	collabs, err := s.store.ListCollaborators(ctx, noteID)
	if err != nil {
		return nil, fmt.Errorf("list collaborators: %w", err)
	}
	views := make([]CollaboratorView, 0, len(collabs))
	for _, c := range collabs {
		views = append(views, collaboratorView(c))
	}
	return views, nil
}
