package domain

import "time"

// ValueType is the canonical value type every native source type maps into.
type ValueType string

// Canonical value types.
const (
	TypeInteger       ValueType = "integer"
	TypeFloat         ValueType = "float"
	TypeString        ValueType = "string"
	TypeDate          ValueType = "date"
	TypeDateTime      ValueType = "datetime"
	TypeTime          ValueType = "time"
	TypeCategory      ValueType = "category"
	TypeMultiResponse ValueType = "multiresponse"
)

// Valid reports whether t is one of the canonical value types.
func (t ValueType) Valid() bool {
	switch t {
	case TypeInteger, TypeFloat, TypeString, TypeDate, TypeDateTime,
		TypeTime, TypeCategory, TypeMultiResponse:
		return true
	}
	return false
}

// Domain is a namespace for variable, vocabulary, and entity names.
// At most one domain per name may carry a NULL URI; names with a URI
// are unique per (name, uri) pair.
type Domain struct {
	ID        string
	Name      string
	URI       *string
	CreatedAt time.Time
}

// Variable is a typed, domain-scoped column definition.
type Variable struct {
	ID           string
	DomainID     string
	Name         string
	ValueType    ValueType
	Format       *string // parse layout for date/time/datetime values
	VocabularyID *string // set when ValueType is category or multiresponse
	KeyRole      KeyRole
	Description  string
	CreatedAt    time.Time
}

// KeyRole marks a variable's role in a dataset's record identity.
type KeyRole string

// Key roles.
const (
	KeyRoleNone    KeyRole = "none"
	KeyRolePrimary KeyRole = "primary"
	KeyRoleForeign KeyRole = "foreign"
)

// VariableDescriptor is the result of schema inference against a source
// query: enough to persist a Variable and to derive a lake column.
type VariableDescriptor struct {
	Name         string
	ValueType    ValueType
	NativeType   string  // source engine's type name, informational
	Description  string  // column comment when the source exposes one
	Format       *string // date/time parse layout when declared
	VocabularyID *string // populated by category detection
}
