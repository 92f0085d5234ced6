package app

import (
	"context"
	"testing"
)

func signUpAndIn(t *testing.T, svc *Service, email, password string) SessionTokens {
	t.Helper()
	ctx := context.Background()
	if _, err := svc.SignUp(ctx, email, password, "Tester"); err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	tokens, err := svc.SignIn(ctx, email, password)
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	return tokens
}

func TestSignInIssuesUsableAccessToken(t *testing.T) {
	svc := newTestService(newMemStore())
	tokens := signUpAndIn(t, svc, "avery@example.com", "hunter2hunter2")

	if tokens.AccessToken == "" || tokens.RefreshToken == "" {
		t.Fatal("expected both tokens")
	}

	session, err := svc.SessionFromToken(tokens.AccessToken)
	if err != nil {
		t.Fatalf("SessionFromToken: %v", err)
	}
	if session.UserID != tokens.User.ID {
		t.Fatalf("expected session for user %d, got %d", tokens.User.ID, session.UserID)
	}
}

func TestSignInWrongPassword(t *testing.T) {
	svc := newTestService(newMemStore())
	ctx := context.Background()
	if _, err := svc.SignUp(ctx, "avery@example.com", "hunter2hunter2", "Avery"); err != nil {
		t.Fatalf("SignUp: %v", err)
	}

	_, err := svc.SignIn(ctx, "avery@example.com", "wrong-password")
	if code := domainCode(t, err); code != "UNAUTHENTICATED" {
		t.Fatalf("expected UNAUTHENTICATED, got %s", code)
	}
}

func TestSignUpDuplicateEmail(t *testing.T) {
	svc := newTestService(newMemStore())
	ctx := context.Background()
	if _, err := svc.SignUp(ctx, "avery@example.com", "hunter2hunter2", "Avery"); err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	_, err := svc.SignUp(ctx, "avery@example.com", "hunter2hunter2", "Imposter")
	if code := domainCode(t, err); code != "INVALID_OPERATION" {
		t.Fatalf("expected INVALID_OPERATION, got %s", code)
	}
}

func TestRefreshRotatesToken(t *testing.T) {
	svc := newTestService(newMemStore())
	ctx := context.Background()
	tokens := signUpAndIn(t, svc, "avery@example.com", "hunter2hunter2")

	rotated, err := svc.Refresh(ctx, tokens.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if rotated.RefreshToken == tokens.RefreshToken {
		t.Fatal("expected a fresh refresh token")
	}

	// The presented token is single-use.
	if _, err := svc.Refresh(ctx, tokens.RefreshToken); domainCode(t, err) != "UNAUTHENTICATED" {
		t.Fatal("reusing a rotated refresh token should fail")
	}
	if _, err := svc.Refresh(ctx, rotated.RefreshToken); err != nil {
		t.Fatalf("rotated token should work once: %v", err)
	}
}

func TestLogoutRevokesRefreshToken(t *testing.T) {
	svc := newTestService(newMemStore())
	ctx := context.Background()
	tokens := signUpAndIn(t, svc, "avery@example.com", "hunter2hunter2")

	if err := svc.Logout(ctx, tokens.RefreshToken); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := svc.Refresh(ctx, tokens.RefreshToken); domainCode(t, err) != "UNAUTHENTICATED" {
		t.Fatal("refresh after logout should fail")
	}
}

func TestSessionFromGarbageToken(t *testing.T) {
	svc := newTestService(newMemStore())
	if _, err := svc.SessionFromToken("not-a-token"); err == nil {
		t.Fatal("expected error for garbage token")
	}
}
