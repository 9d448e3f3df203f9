package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"datacat/internal/domain"
)

// Compile-time check.
var _ domain.VocabularyRepository = (*VocabularyRepo)(nil)

// VocabularyRepo implements domain.VocabularyRepository using SQLite.
type VocabularyRepo struct {
	db *sql.DB
}

// NewVocabularyRepo creates a new VocabularyRepo.
func NewVocabularyRepo(db *sql.DB) *VocabularyRepo {
	return &VocabularyRepo{db: db}
}

// Ensure is an idempotent upsert keyed on (domainID, name). An existing
// vocabulary keeps its ID; its description is replaced and its item set
// fully rewritten. Items are deduplicated on (value, code) before insert.
func (r *VocabularyRepo) Ensure(ctx context.Context, domainID, name, description string, items []domain.VocabularyItem) (string, error) {
	if err := validateIdentifier(name); err != nil {
		return "", err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin ensure vocabulary: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var id string
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM vocabularies WHERE domain_id = ? AND name = ?`, domainID, name).Scan(&id)
	switch {
	case err == sql.ErrNoRows:
		id = domain.NewID()
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO vocabularies (id, domain_id, name, description) VALUES (?, ?, ?, ?)`,
			id, domainID, name, description); err != nil {
			return "", mapDBError(err)
		}
	case err != nil:
		return "", mapDBError(err)
	default:
		if _, err := tx.ExecContext(ctx,
			`UPDATE vocabularies SET description = ? WHERE id = ?`, description, id); err != nil {
			return "", mapDBError(err)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM vocabulary_items WHERE vocabulary_id = ?`, id); err != nil {
			return "", mapDBError(err)
		}
	}

	for _, item := range dedupeItems(items) {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO vocabulary_items (vocabulary_id, value, code, description) VALUES (?, ?, ?, ?)`,
			id, item.Value, item.Code, item.Description); err != nil {
			return "", mapDBError(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit ensure vocabulary: %w", err)
	}
	return id, nil
}

// GetByID returns a vocabulary with its items.
func (r *VocabularyRepo) GetByID(ctx context.Context, id string) (*domain.Vocabulary, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, domain_id, name, description, created_at FROM vocabularies WHERE id = ?`, id)
	v, err := scanVocabulary(row.Scan)
	if err != nil {
		if _, ok := err.(*domain.NotFoundError); ok {
			return nil, domain.ErrNotFound("vocabulary %q not found", id)
		}
		return nil, err
	}
	return r.withItems(ctx, v)
}

// GetByDomainAndName returns a vocabulary by its (domain, name) key.
func (r *VocabularyRepo) GetByDomainAndName(ctx context.Context, domainID, name string) (*domain.Vocabulary, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, domain_id, name, description, created_at FROM vocabularies WHERE domain_id = ? AND name = ?`,
		domainID, name)
	v, err := scanVocabulary(row.Scan)
	if err != nil {
		if _, ok := err.(*domain.NotFoundError); ok {
			return nil, domain.ErrNotFound("vocabulary %q not found in domain", name)
		}
		return nil, err
	}
	return r.withItems(ctx, v)
}

// GetByName resolves a vocabulary by bare name across domains. It fails
// with an AmbiguityError when more than one domain defines the name.
func (r *VocabularyRepo) GetByName(ctx context.Context, name string) (*domain.Vocabulary, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, domain_id, name, description, created_at FROM vocabularies WHERE name = ?`, name)
	if err != nil {
		return nil, mapDBError(err)
	}
	defer rows.Close() //nolint:errcheck

	var matches []*domain.Vocabulary
	for rows.Next() {
		v, err := scanVocabulary(rows.Scan)
		if err != nil {
			return nil, err
		}
		matches = append(matches, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	switch len(matches) {
	case 0:
		return nil, domain.ErrNotFound("vocabulary %q not found", name)
	case 1:
		return r.withItems(ctx, matches[0])
	default:
		return nil, domain.ErrAmbiguous("vocabulary %q exists in %d domains, qualify with a domain", name, len(matches))
	}
}

func (r *VocabularyRepo) withItems(ctx context.Context, v *domain.Vocabulary) (*domain.Vocabulary, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT value, code, description FROM vocabulary_items WHERE vocabulary_id = ? ORDER BY value, code`, v.ID)
	if err != nil {
		return nil, mapDBError(err)
	}
	defer rows.Close() //nolint:errcheck

	for rows.Next() {
		var item domain.VocabularyItem
		if err := rows.Scan(&item.Value, &item.Code, &item.Description); err != nil {
			return nil, err
		}
		v.Items = append(v.Items, item)
	}
	return v, rows.Err()
}

func scanVocabulary(scan func(dest ...any) error) (*domain.Vocabulary, error) {
	var v domain.Vocabulary
	var createdAt string
	if err := scan(&v.ID, &v.DomainID, &v.Name, &v.Description, &createdAt); err != nil {
		return nil, mapDBError(err)
	}
	v.CreatedAt = parseTimestamp(createdAt)
	return &v, nil
}

// dedupeItems drops duplicate (value, code) pairs, keeping the first
// occurrence, and returns items in (value, code) order.
func dedupeItems(items []domain.VocabularyItem) []domain.VocabularyItem {
	seen := make(map[[2]string]bool, len(items))
	out := make([]domain.VocabularyItem, 0, len(items))
	for _, item := range items {
		key := [2]string{fmt.Sprintf("%d", item.Value), item.Code}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Value != out[j].Value {
			return out[i].Value < out[j].Value
		}
		return out[i].Code < out[j].Code
	})
	return out
}
