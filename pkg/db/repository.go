package db

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/colorlens/colorlens/pkg/errors"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Repository provides database operations for the attempt ledger
type Repository struct {
	db *sql.DB
}

// NewRepository opens the ledger at dbPath and creates the schema
func NewRepository(dbPath string) (*Repository, error) {
	slog.Info("database_init", "db_path", dbPath)

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		slog.Error("database_open_failed", "db_path", dbPath, "error", err)
		return nil, errors.Wrap(err, "failed to open database")
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		slog.Error("database_schema_failed", "db_path", dbPath, "error", err)
		return nil, errors.Wrap(err, "failed to create schema")
	}

	slog.Info("database_ready", "db_path", dbPath)
	return &Repository{db: db}, nil
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.db.Close()
}

// Create inserts a new attempt record, assigning an ID if it has none
func (r *Repository) Create(a *Attempt) error {
	if a.Status != StatusSucceeded && a.Status != StatusFailed {
		return fmt.Errorf("invalid attempt status: %q", a.Status)
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}

	slog.Info("database_create_attempt", "attempt_id", a.ID, "file_id", a.FileID, "status", a.Status)

	query := `
		INSERT INTO attempts (id, file_id, filename, media_type, size, status, result_url, error_kind, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.Exec(query,
		a.ID, a.FileID, a.Filename, a.MediaType, a.Size, a.Status,
		a.ResultURL, a.ErrorKind, a.ErrorMessage)
	if err != nil {
		slog.Error("database_insert_failed", "attempt_id", a.ID, "error", err)
		return errors.Wrap(err, "failed to insert attempt")
	}

	if err := r.db.QueryRow(`SELECT created_at FROM attempts WHERE id = ?`, a.ID).Scan(&a.CreatedAt); err != nil {
		return errors.Wrap(err, "failed to read created_at")
	}
	return nil
}

const attemptColumns = `id, file_id, filename, media_type, size, status, result_url, error_kind, error_message, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttempt(row rowScanner) (*Attempt, error) {
	var a Attempt
	var resultURL, errorKind, errorMessage sql.NullString
	err := row.Scan(&a.ID, &a.FileID, &a.Filename, &a.MediaType, &a.Size, &a.Status,
		&resultURL, &errorKind, &errorMessage, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	a.ResultURL = resultURL.String
	a.ErrorKind = errorKind.String
	a.ErrorMessage = errorMessage.String
	return &a, nil
}

// Get retrieves an attempt by ID. A missing record returns nil, nil.
func (r *Repository) Get(id string) (*Attempt, error) {
	a, err := scanAttempt(r.db.QueryRow(`SELECT `+attemptColumns+` FROM attempts WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		slog.Info("database_attempt_not_found", "attempt_id", id)
		return nil, nil
	}
	if err != nil {
		slog.Error("database_query_failed", "attempt_id", id, "error", err)
		return nil, errors.Wrap(err, "failed to query attempt")
	}
	return a, nil
}

// ListByFile retrieves the attempts made for one selection, oldest first
func (r *Repository) ListByFile(fileID string) ([]*Attempt, error) {
	return r.list(`SELECT `+attemptColumns+` FROM attempts WHERE file_id = ? ORDER BY created_at ASC, rowid ASC`, fileID)
}

// List retrieves all attempts, newest first
func (r *Repository) List() ([]*Attempt, error) {
	return r.list(`SELECT ` + attemptColumns + ` FROM attempts ORDER BY created_at DESC, rowid DESC`)
}

func (r *Repository) list(query string, args ...any) ([]*Attempt, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		slog.Error("database_list_query_failed", "error", err)
		return nil, errors.Wrap(err, "failed to list attempts")
	}
	defer rows.Close()

	var attempts []*Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			slog.Error("database_scan_row_failed", "error", err)
			return nil, errors.Wrap(err, "failed to scan row")
		}
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "rows error")
	}

	slog.Info("database_list_complete", "attempt_count", len(attempts))
	return attempts, nil
}

// Delete deletes an attempt by ID
func (r *Repository) Delete(id string) error {
	slog.Info("database_delete_attempt", "attempt_id", id)

	if _, err := r.db.Exec(`DELETE FROM attempts WHERE id = ?`, id); err != nil {
		slog.Error("database_delete_failed", "attempt_id", id, "error", err)
		return errors.Wrap(err, "failed to delete attempt")
	}
	return nil
}

// DeleteAll removes every attempt and returns how many were removed
func (r *Repository) DeleteAll() (int64, error) {
	result, err := r.db.Exec(`DELETE FROM attempts`)
	if err != nil {
		slog.Error("database_purge_failed", "error", err)
		return 0, errors.Wrap(err, "failed to delete attempts")
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to get rows affected")
	}
	slog.Info("database_purged", "attempt_count", n)
	return n, nil
}
