package repository

import (
	"context"
	"database/sql"
	"errors"

	"datacat/internal/domain"
)

// Compile-time check.
var _ domain.DomainRepository = (*DomainRepo)(nil)

// DomainRepo implements domain.DomainRepository using SQLite.
type DomainRepo struct {
	db *sql.DB
}

// NewDomainRepo creates a new DomainRepo.
func NewDomainRepo(db *sql.DB) *DomainRepo {
	return &DomainRepo{db: db}
}

// Ensure returns the domain with the given name and URI, creating it on
// first use. The partial unique indexes on domains make the insert race
// safe across processes: a loser of the race re-reads the winner's row.
func (r *DomainRepo) Ensure(ctx context.Context, name string, uri *string) (*domain.Domain, error) {
	if err := validateIdentifier(name); err != nil {
		return nil, err
	}

	existing, err := r.GetByName(ctx, name, uri)
	if err == nil {
		return existing, nil
	}
	var notFound *domain.NotFoundError
	if !errors.As(err, &notFound) {
		return nil, err
	}

	d := &domain.Domain{ID: domain.NewID(), Name: name, URI: uri}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO domains (id, name, uri) VALUES (?, ?, ?)`,
		d.ID, d.Name, nullString(d.URI))
	if err != nil {
		if _, ok := mapDBError(err).(*domain.ConflictError); ok {
			return r.GetByName(ctx, name, uri)
		}
		return nil, mapDBError(err)
	}
	return r.GetByName(ctx, name, uri)
}

// GetByID returns a domain by its ID.
func (r *DomainRepo) GetByID(ctx context.Context, id string) (*domain.Domain, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, name, uri, created_at FROM domains WHERE id = ?`, id)
	return scanDomain(row)
}

// GetByName returns a domain by name and URI. A nil URI selects the single
// NULL-URI row for that name.
func (r *DomainRepo) GetByName(ctx context.Context, name string, uri *string) (*domain.Domain, error) {
	var row *sql.Row
	if uri == nil {
		row = r.db.QueryRowContext(ctx,
			`SELECT id, name, uri, created_at FROM domains WHERE name = ? AND uri IS NULL`, name)
	} else {
		row = r.db.QueryRowContext(ctx,
			`SELECT id, name, uri, created_at FROM domains WHERE name = ? AND uri = ?`, name, *uri)
	}
	d, err := scanDomain(row)
	if err != nil {
		if _, ok := err.(*domain.NotFoundError); ok {
			return nil, domain.ErrNotFound("domain %q not found", name)
		}
		return nil, err
	}
	return d, nil
}

func scanDomain(row *sql.Row) (*domain.Domain, error) {
	var d domain.Domain
	var uri sql.NullString
	var createdAt string
	if err := row.Scan(&d.ID, &d.Name, &uri, &createdAt); err != nil {
		return nil, mapDBError(err)
	}
	d.URI = stringPtr(uri)
	d.CreatedAt = parseTimestamp(createdAt)
	return &d, nil
}
