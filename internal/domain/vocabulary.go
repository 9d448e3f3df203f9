package domain

import "time"

// Vocabulary is a domain-scoped controlled value set backing category
// variables. Names are unique per domain; the same name may exist in
// several domains independently.
type Vocabulary struct {
	ID          string
	DomainID    string
	Name        string
	Description string
	CreatedAt   time.Time
	Items       []VocabularyItem
}

// VocabularyItem is one (value, code, description) entry of a vocabulary.
// Items are deduplicated on (value, code) within their vocabulary.
type VocabularyItem struct {
	Value       int64
	Code        string
	Description string
}
