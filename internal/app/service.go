// Package app wires the note engine together: account sessions, the note
// lifecycle, collaborator grants, labels and history, all behind a single
// Service consumed by the HTTP layer.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"notekeep/internal/auth"
	"notekeep/internal/authpw"
	"notekeep/internal/authz"
	"notekeep/internal/config"
	"notekeep/internal/metrics"
	"notekeep/internal/session"
	"notekeep/internal/store"
	"notekeep/internal/util"
)

// dataStore is the slice of persistence the service needs. *store.PostgresStore
// satisfies it; tests substitute a fake.
type dataStore interface {
	CreateUser(ctx context.Context, user store.User) (store.User, error)
	GetUserByID(ctx context.Context, userID int64) (store.User, error)
	GetUserByEmail(ctx context.Context, email string) (store.User, error)

	CreateNote(ctx context.Context, note store.Note) (store.Note, error)
	GetNote(ctx context.Context, noteID int64) (store.Note, error)
	ListNotesForUser(ctx context.Context, userID int64) ([]store.Note, error)
	ListDeletedNotes(ctx context.Context, ownerID int64) ([]store.Note, error)
	UpdateNoteFields(ctx context.Context, note store.Note) (store.Note, error)
	SetNoteState(ctx context.Context, noteID int64, from, to store.NoteState, action string) (store.Note, error)
	PurgeNote(ctx context.Context, noteID int64) error

	GetCollaborator(ctx context.Context, noteID, userID int64) (*store.Collaborator, error)
	InsertCollaborator(ctx context.Context, grant store.Collaborator) error
	DeleteCollaborator(ctx context.Context, noteID, userID int64) error
	ListCollaborators(ctx context.Context, noteID int64) ([]store.Collaborator, error)

	ListNoteHistory(ctx context.Context, noteID int64) ([]store.HistoryEntry, error)

	CreateLabel(ctx context.Context, label store.Label) (store.Label, error)
	GetLabel(ctx context.Context, labelID, ownerID int64) (store.Label, error)
	ListLabels(ctx context.Context, ownerID int64) ([]store.Label, error)
	DeleteLabel(ctx context.Context, labelID, ownerID int64) (bool, error)
	AttachLabel(ctx context.Context, noteID, labelID int64) error
	DetachLabel(ctx context.Context, noteID, labelID int64) error
	ListNoteLabels(ctx context.Context, noteID int64) ([]store.Label, error)

	Ping(ctx context.Context) error
}

type sessionStore interface {
	Save(ctx context.Context, tokenHash string, data session.TokenData, expiresAt time.Time) error
	Lookup(ctx context.Context, tokenHash string) (session.TokenData, error)
	Revoke(ctx context.Context, tokenHash string) error
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions sessionStore
	accounts *authpw.Service
}

func New(cfg config.Config, dataStore dataStore, sessions sessionStore) *Service {
	return &Service{
		cfg:      cfg,
		store:    dataStore,
		sessions: sessions,
		accounts: authpw.NewService(dataStore),
	}
}

// Session is an authenticated caller, parsed from a bearer token.
type Session struct {
	UserID    int64
	UserName  string
	JTI       string
	ExpiresAt time.Time
}

type SessionTokens struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
	User         UserView  `json:"user"`
}

type UserView struct {
	ID          int64  `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
}

func userView(u store.User) UserView {
	return UserView{ID: u.ID, Email: u.Email, DisplayName: u.DisplayName}
}

// SignUp registers a new account. The caller still has to sign in.
func (s *Service) SignUp(ctx context.Context, email, password, displayName string) (UserView, error) {
	user, err := s.accounts.SignUp(ctx, authpw.SignUpRequest{
		Email:       email,
		Password:    password,
		DisplayName: displayName,
	})
	if errors.Is(err, authpw.ErrEmailTaken) {
		metrics.TrackAuthAttempt("failure", "signup")
		return UserView{}, errInvalidOperation("email is already registered")
	}
	if errors.Is(err, authpw.ErrInvalidInput) {
		metrics.TrackAuthAttempt("failure", "signup")
		return UserView{}, errValidation(err.Error())
	}
	if err != nil {
		return UserView{}, fmt.Errorf("sign up: %w", err)
	}
	metrics.TrackAuthAttempt("success", "signup")
	return userView(user), nil
}

func (s *Service) SignIn(ctx context.Context, email, password string) (SessionTokens, error) {
	user, err := s.accounts.SignIn(ctx, email, password)
	if errors.Is(err, authpw.ErrInvalidCredentials) {
		metrics.TrackAuthAttempt("failure", "password")
		return SessionTokens{}, &DomainError{Status: 401, Code: "UNAUTHENTICATED", Message: "invalid email or password"}
	}
	if err != nil {
		return SessionTokens{}, fmt.Errorf("sign in: %w", err)
	}
	metrics.TrackAuthAttempt("success", "password")
	return s.issueSession(ctx, user.ID, user.DisplayName, userView(user))
}

// Refresh rotates a refresh token: the presented token is revoked and a fresh
// pair is issued, so each refresh token is single-use.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (SessionTokens, error) {
	hash := auth.HashToken(refreshToken)
	data, err := s.sessions.Lookup(ctx, hash)
	if errors.Is(err, session.ErrNotFound) {
		metrics.TrackAuthAttempt("failure", "refresh")
		return SessionTokens{}, &DomainError{Status: 401, Code: "UNAUTHENTICATED", Message: "refresh token is invalid or expired"}
	}
	if err != nil {
		return SessionTokens{}, fmt.Errorf("lookup refresh token: %w", err)
	}
	if err := s.sessions.Revoke(ctx, hash); err != nil {
		return SessionTokens{}, fmt.Errorf("rotate refresh token: %w", err)
	}

	user, err := s.store.GetUserByID(ctx, data.UserID)
	if errors.Is(err, sql.ErrNoRows) {
		metrics.TrackAuthAttempt("failure", "refresh")
		return SessionTokens{}, &DomainError{Status: 401, Code: "UNAUTHENTICATED", Message: "account no longer exists"}
	}
	if err != nil {
		return SessionTokens{}, fmt.Errorf("load account: %w", err)
	}
	metrics.TrackAuthAttempt("success", "refresh")
	return s.issueSession(ctx, user.ID, user.DisplayName, userView(user))
}

func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	return s.sessions.Revoke(ctx, auth.HashToken(refreshToken))
}

// CurrentUser returns the account behind an authenticated session.
func (s *Service) CurrentUser(ctx context.Context, sess Session) (UserView, error) {
	user, err := s.store.GetUserByID(ctx, sess.UserID)
	if errors.Is(err, sql.ErrNoRows) {
		return UserView{}, errNotFound("account not found")
	}
	if err != nil {
		return UserView{}, fmt.Errorf("load account: %w", err)
	}
	return userView(user), nil
}

// SessionFromToken verifies an access token and returns the session it
// represents. Access tokens are stateless; only refresh tokens hit Redis.
func (s *Service) SessionFromToken(token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.TokenSecret), token)
	if err != nil {
		return Session{}, err
	}
	return Session{
		UserID:    claims.Sub,
		UserName:  claims.Name,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) issueSession(ctx context.Context, userID int64, displayName string, user UserView) (SessionTokens, error) {
	expiresAt := time.Now().Add(s.cfg.AccessTTL)
	access, err := auth.IssueToken([]byte(s.cfg.TokenSecret), auth.Claims{
		Sub:  userID,
		Name: displayName,
		JTI:  util.NewID("jti"),
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return SessionTokens{}, fmt.Errorf("issue access token: %w", err)
	}

	refresh := util.NewID("rt")
	refreshExpiry := time.Now().Add(s.cfg.RefreshTTL)
	err = s.sessions.Save(ctx, auth.HashToken(refresh), session.TokenData{
		UserID:      userID,
		DisplayName: displayName,
	}, refreshExpiry)
	if err != nil {
		return SessionTokens{}, fmt.Errorf("save refresh token: %w", err)
	}

	return SessionTokens{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    expiresAt,
		User:         user,
	}, nil
}

type NoteView struct {
	ID          int64      `json:"id"`
	OwnerID     int64      `json:"ownerId"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Color       string     `json:"color"`
	IsPinned    bool       `json:"isPinned"`
	IsArchived  bool       `json:"isArchived"`
	IsDeleted   bool       `json:"isDeleted"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   *time.Time `json:"updatedAt,omitempty"`
}

func noteView(n store.Note) NoteView {
	return NoteView{
		ID:          n.ID,
		OwnerID:     n.OwnerID,
		Title:       n.Title,
		Description: n.Description,
		Color:       n.Color,
		IsPinned:    n.IsPinned,
		IsArchived:  n.IsArchived,
		IsDeleted:   n.State == store.NoteStateDeleted,
		CreatedAt:   n.CreatedAt,
		UpdatedAt:   n.UpdatedAt,
	}
}

func noteViews(notes []store.Note) []NoteView {
	views := make([]NoteView, 0, len(notes))
	for _, n := range notes {
		views = append(views, noteView(n))
	}
	return views
}

type CreateNoteInput struct {
	Title       string
	Description string
	Color       string
	IsPinned    bool
	IsArchived  bool
}

// UpdateNoteInput carries a partial update; nil fields are left untouched.
type UpdateNoteInput struct {
	Title       *string
	Description *string
	Color       *string
	IsPinned    *bool
	IsArchived  *bool
}

// loadNoteFor fetches a note and checks the actor may perform action on it.
// The collaborator grant is only consulted for view/edit; lifecycle actions
// are owner-only and short-circuit inside authz.Can.
func (s *Service) loadNoteFor(ctx context.Context, actorID, noteID int64, action authz.Action) (store.Note, error) {
	note, err := s.store.GetNote(ctx, noteID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Note{}, errNotFound("note not found")
	}
	if err != nil {
		return store.Note{}, fmt.Errorf("load note: %w", err)
	}

	isOwner := note.OwnerID == actorID
	var grant *authz.Grant
	if !isOwner && (action == authz.ActionView || action == authz.ActionEdit) {
		collab, err := s.store.GetCollaborator(ctx, noteID, actorID)
		if err != nil {
			return store.Note{}, fmt.Errorf("load grant: %w", err)
		}
		if collab != nil {
			grant = &authz.Grant{CanEdit: collab.CanEdit}
		}
	}

	if !authz.Can(isOwner, grant, action) {
		return store.Note{}, errForbidden("you do not have permission to " + string(action) + " this note")
	}
	return note, nil
}

func (s *Service) CreateNote(ctx context.Context, actorID int64, in CreateNoteInput) (NoteView, error) {
	if strings.TrimSpace(in.Title) == "" {
		return NoteView{}, errValidation("title is required")
	}

	note, err := s.store.CreateNote(ctx, store.Note{
		OwnerID:     actorID,
		Title:       in.Title,
		Description: in.Description,
		Color:       in.Color,
		IsPinned:    in.IsPinned,
		IsArchived:  in.IsArchived,
		State:       store.NoteStateActive,
	})
	if err != nil {
		return NoteView{}, fmt.Errorf("create note: %w", err)
	}
	metrics.TrackNoteOperation("created")
	return noteView(note), nil
}

// GetNote returns a single active note the actor may view. Soft-deleted notes
// are invisible here; they only appear in ListDeletedNotes for their owner.
func (s *Service) GetNote(ctx context.Context, actorID, noteID int64) (NoteView, error) {
	note, err := s.loadNoteFor(ctx, actorID, noteID, authz.ActionView)
	if err != nil {
		return NoteView{}, err
	}
	if note.State != store.NoteStateActive {
		return NoteView{}, errNotFound("note not found")
	}
	return noteView(note), nil
}

// ListNotes returns the actor's active notes, owned and shared alike.
func (s *Service) ListNotes(ctx context.Context, actorID int64) ([]NoteView, error) {
	notes, err := s.store.ListNotesForUser(ctx, actorID)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	return noteViews(notes), nil
}

// ListDeletedNotes returns the actor's own soft-deleted notes. Shared notes
// never show up in someone else's trash.
func (s *Service) ListDeletedNotes(ctx context.Context, actorID int64) ([]NoteView, error) {
	notes, err := s.store.ListDeletedNotes(ctx, actorID)
	if err != nil {
		return nil, fmt.Errorf("list deleted notes: %w", err)
	}
	return noteViews(notes), nil
}

func (s *Service) UpdateNote(ctx context.Context, actorID, noteID int64, in UpdateNoteInput) (NoteView, error) {
	note, err := s.loadNoteFor(ctx, actorID, noteID, authz.ActionEdit)
	if err != nil {
		return NoteView{}, err
	}
	if note.State != store.NoteStateActive {
		// A soft-deleted note is not editable and not visible as such.
		return NoteView{}, errNotFound("note not found")
	}

	changed := false
	if in.Title != nil && *in.Title != note.Title {
		if strings.TrimSpace(*in.Title) == "" {
			return NoteView{}, errValidation("title cannot be blank")
		}
		note.Title = *in.Title
		changed = true
	}
	if in.Description != nil && *in.Description != note.Description {
		note.Description = *in.Description
		changed = true
	}
	if in.Color != nil && *in.Color != note.Color {
		note.Color = *in.Color
		changed = true
	}
	if in.IsPinned != nil && *in.IsPinned != note.IsPinned {
		note.IsPinned = *in.IsPinned
		changed = true
	}
	if in.IsArchived != nil && *in.IsArchived != note.IsArchived {
		note.IsArchived = *in.IsArchived
		changed = true
	}
	if !changed {
		return noteView(note), nil
	}

	updated, err := s.store.UpdateNoteFields(ctx, note)
	if errors.Is(err, store.ErrStateConflict) {
		// Deleted out from under us between the read and the write.
		return NoteView{}, errNotFound("note not found")
	}
	if err != nil {
		return NoteView{}, fmt.Errorf("update note: %w", err)
	}
	metrics.TrackNoteOperation("updated")
	return noteView(updated), nil
}

// DeleteNote moves an active note to the trash. Owner only.
func (s *Service) DeleteNote(ctx context.Context, actorID, noteID int64) (NoteView, error) {
	note, err := s.loadNoteFor(ctx, actorID, noteID, authz.ActionDelete)
	if err != nil {
		return NoteView{}, err
	}
	if note.State != store.NoteStateActive {
		return NoteView{}, errInvalidState("note is already deleted")
	}

	deleted, err := s.store.SetNoteState(ctx, noteID, store.NoteStateActive, store.NoteStateDeleted, store.HistoryDeleted)
	if errors.Is(err, store.ErrStateConflict) {
		return NoteView{}, errInvalidState("note is already deleted")
	}
	if err != nil {
		return NoteView{}, fmt.Errorf("delete note: %w", err)
	}
	metrics.TrackNoteOperation("deleted")
	return noteView(deleted), nil
}

// RestoreNote brings a soft-deleted note back, contents exactly as they were.
func (s *Service) RestoreNote(ctx context.Context, actorID, noteID int64) (NoteView, error) {
	note, err := s.loadNoteFor(ctx, actorID, noteID, authz.ActionRestore)
	if err != nil {
		return NoteView{}, err
	}
	if note.State != store.NoteStateDeleted {
		return NoteView{}, errInvalidState("note is not deleted")
	}

	restored, err := s.store.SetNoteState(ctx, noteID, store.NoteStateDeleted, store.NoteStateActive, store.HistoryRestored)
	if errors.Is(err, store.ErrStateConflict) {
		return NoteView{}, errInvalidState("note is not deleted")
	}
	if err != nil {
		return NoteView{}, fmt.Errorf("restore note: %w", err)
	}
	metrics.TrackNoteOperation("restored")
	return noteView(restored), nil
}

// PurgeNote permanently removes a soft-deleted note. The note's history rows
// stay behind; only the note itself is gone.
func (s *Service) PurgeNote(ctx context.Context, actorID, noteID int64) error {
	note, err := s.loadNoteFor(ctx, actorID, noteID, authz.ActionPurge)
	if err != nil {
		return err
	}
	if note.State != store.NoteStateDeleted {
		return errInvalidState("only deleted notes can be purged")
	}

	err = s.store.PurgeNote(ctx, noteID)
	if errors.Is(err, store.ErrStateConflict) {
		return errInvalidState("only deleted notes can be purged")
	}
	if err != nil {
		return fmt.Errorf("purge note: %w", err)
	}
	metrics.TrackNoteOperation("purged")
	return nil
}

type HistoryView struct {
	ID         int64     `json:"id"`
	Action     string    `json:"action"`
	RecordedAt time.Time `json:"recordedAt"`
}

// NoteHistory lists a note's audit trail, oldest first. Owner only;
// collaborators see the note, not its past.
func (s *Service) NoteHistory(ctx context.Context, actorID, noteID int64) ([]HistoryView, error) {
	note, err := s.store.GetNote(ctx, noteID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errNotFound("note not found")
	}
	if err != nil {
		return nil, fmt.Errorf("load note: %w", err)
	}
	if note.OwnerID != actorID {
		return nil, errForbidden("only the owner may view note history")
	}

	entries, err := s.store.ListNoteHistory(ctx, noteID)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	views := make([]HistoryView, 0, len(entries))
	for _, e := range entries {
		views = append(views, HistoryView{ID: e.ID, Action: e.Action, RecordedAt: e.RecordedAt})
	}
	return views, nil
}

// Health reports persistence reachability for the readiness probe.
func (s *Service) Health(ctx context.Context) error {
	return s.store.Ping(ctx)
}
