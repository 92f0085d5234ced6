package store

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

// These tests exercise the note_history trigger against a real database. They
// are skipped in short mode and when no test database is reachable.

func TestNoteHistoryBlocksUpdate(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	_, err := db.ExecContext(ctx, `
		INSERT INTO note_history (note_id, action) VALUES (987654, 'Created')
	`)
	if err != nil {
		t.Fatalf("insert history row: %v", err)
	}

	_, err = db.ExecContext(ctx, `
		UPDATE note_history SET action = 'Tampered' WHERE note_id = 987654
	`)
	if err == nil {
		t.Fatal("expected UPDATE to be blocked, but it succeeded")
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		t.Fatalf("expected PostgreSQL error, got: %v", err)
	}
	if pgErr.SQLState() != "55000" {
		t.Fatalf("expected SQLSTATE 55000, got: %s", pgErr.SQLState())
	}
	if pgErr.Message != "note_history is immutable; UPDATE is not allowed" {
		t.Fatalf("unexpected error message: %s", pgErr.Message)
	}
}

func TestNoteHistoryBlocksDelete(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	_, err := db.ExecContext(ctx, `
		INSERT INTO note_history (note_id, action) VALUES (987655, 'Created')
	`)
	if err != nil {
		t.Fatalf("insert history row: %v", err)
	}

	_, err = db.ExecContext(ctx, `
		DELETE FROM note_history WHERE note_id = 987655
	`)
	if err == nil {
		t.Fatal("expected DELETE to be blocked, but it succeeded")
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		t.Fatalf("expected PostgreSQL error, got: %v", err)
	}
	if pgErr.SQLState() != "55000" {
		t.Fatalf("expected SQLSTATE 55000, got: %s", pgErr.SQLState())
	}
	if pgErr.Message != "note_history is immutable; DELETE is not allowed" {
		t.Fatalf("unexpected error message: %s", pgErr.Message)
	}
}

func TestNoteHistoryInsertStillWorks(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	_, err := db.ExecContext(ctx, `
		INSERT INTO note_history (note_id, action) VALUES (987656, 'Restored')
	`)
	if err != nil {
		t.Fatalf("insert history row should succeed: %v", err)
	}

	var count int
	err = db.QueryRowContext(ctx, `SELECT COUNT(*) FROM note_history WHERE note_id = 987656`).Scan(&count)
	if err != nil {
		t.Fatalf("query history: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 history row, got %d", count)
	}
}

// getTestDatabaseURL returns the database URL for integration tests. It
// checks TEST_DATABASE_URL first, then the standard Postgres variables.
func getTestDatabaseURL(t *testing.T) string {
	t.Helper()

	if url := getenv("TEST_DATABASE_URL", ""); url != "" {
		return url
	}

	host := getenv("POSTGRES_HOST", "localhost")
	port := getenv("POSTGRES_PORT", "5432")
	user := getenv("POSTGRES_USER", "notekeep")
	pass := getenv("POSTGRES_PASSWORD", "notekeep")
	dbname := getenv("POSTGRES_DB", "notekeep_test")

	return "postgres://" + user + ":" + pass + "@" + host + ":" + port + "/" + dbname + "?sslmode=disable"
}

func getenv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
