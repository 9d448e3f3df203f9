// Package repository implements domain repository interfaces using SQLite.
package repository

import (
	"database/sql"
	"errors"
	"regexp"
	"strings"
	"time"

	"datacat/internal/domain"
)

// identifierRe allows alphanumeric + underscores, starting with a letter or underscore.
var identifierRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func validateIdentifier(name string) error {
	if name == "" {
		return domain.ErrValidation("name is required")
	}
	if len(name) > 128 {
		return domain.ErrValidation("name must be at most 128 characters")
	}
	if !identifierRe.MatchString(name) {
		return domain.ErrValidation("name must match [a-zA-Z_][a-zA-Z0-9_]*")
	}
	return nil
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

// parseTimestamp reads the SQLite datetime('now') format.
func parseTimestamp(s string) time.Time {
	t, _ := time.Parse("2006-01-02 15:04:05", s)
	return t
}

func mapDBError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return &domain.NotFoundError{Message: "resource not found"}
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "write-once"):
		return &domain.InvariantError{Message: "asset version numbers are write-once"}
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return &domain.ConflictError{Message: "resource already exists"}
	case strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return &domain.ValidationError{Message: "referenced resource does not exist"}
	case strings.Contains(msg, "CHECK constraint failed"):
		return &domain.ValidationError{Message: "value violates a schema constraint"}
	}
	return err
}
