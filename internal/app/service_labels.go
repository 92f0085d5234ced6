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

type LabelView struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

func labelView(l store.Label) LabelView {
	return LabelView{ID: l.ID, Name: l.Name, CreatedAt: l.CreatedAt}
}

func labelViews(labels []store.Label) []LabelView {
	views := make([]LabelView, 0, len(labels))
	for _, l := range labels {
		views = append(views, labelView(l))
	}
	return views
}

// CreateLabel makes a new label in the actor's namespace. Names are unique
// per owner.
func (s *Service) CreateLabel(ctx context.Context, actorID int64, name string) (LabelView, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return LabelView{}, errValidation("label name is required")
	}

	label, err := s.store.CreateLabel(ctx, store.Label{OwnerID: actorID, Name: name})
	if errors.Is(err, store.ErrDuplicate) {
		return LabelView{}, errInvalidOperation("a label with that name already exists")
	}
	if err != nil {
		return LabelView{}, fmt.Errorf("create label: %w", err)
	}
	return labelView(label), nil
}

func (s *Service) ListLabels(ctx context.Context, actorID int64) ([]LabelView, error) {
	labels, err := s.store.ListLabels(ctx, actorID)
	if err != nil {
		return nil, fmt.Errorf("list labels: %w", err)
	}
	return labelViews(labels), nil
}

// DeleteLabel removes a label and, via cascade, all of its note attachments.
func (s *Service) DeleteLabel(ctx context.Context, actorID, labelID int64) error {
	deleted, err := s.store.DeleteLabel(ctx, labelID, actorID)
	if err != nil {
		return fmt.Errorf("delete label: %w", err)
	}
	if !deleted {
		return errNotFound("label not found")
	}
	return nil
}

// AttachLabel tags one of the actor's active notes with one of the actor's
// labels. Attaching twice is a no-op.
func (s *Service) AttachLabel(ctx context.Context, actorID, noteID, labelID int64) error {
	note, err := s.ownedNote(ctx, actorID, noteID)
	if err != nil {
		return err
	}
	if note.State != store.NoteStateActive {
		return errNotFound("note not found")
	}
	if _, err := s.store.GetLabel(ctx, labelID, actorID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errNotFound("label not found")
		}
		return fmt.Errorf("load label: %w", err)
	}

	if err := s.store.AttachLabel(ctx, noteID, labelID); err != nil {
		return fmt.Errorf("attach label: %w", err)
	}
	return nil
}

// DetachLabel removes a tag from a note. Detaching an absent tag is silent.
func (s *Service) DetachLabel(ctx context.Context, actorID, noteID, labelID int64) error {
	note, err := s.ownedNote(ctx, actorID, noteID)
	if err != nil {
		return err
	}
	if note.State != store.NoteStateActive {
		return errNotFound("note not found")
	}
	if err := s.store.DetachLabel(ctx, noteID, labelID); err != nil {
		return fmt.Errorf("detach label: %w", err)
	}
	return nil
}

// NoteLabels lists the labels on a note the actor can view.
func (s *Service) NoteLabels(ctx context.Context, actorID, noteID int64) ([]LabelView, error) {
	if _, err := s.loadNoteFor(ctx, actorID, noteID, authz.ActionView); err != nil {
		return nil, err
	}
	labels, err := s.store.ListNoteLabels(ctx, noteID)
	if err != nil {
		return nil, fmt.Errorf("list note labels: %w", err)
	}
	return labelViews(labels), nil
}
