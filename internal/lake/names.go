package lake

import (
	"strings"

	"datacat/internal/domain"
)

// SchemaName derives the lake schema for a study. Study identifiers are
// free-form; everything outside [a-z0-9_] is folded to underscores and
// a leading digit gets a prefix so the result is a bare identifier.
func SchemaName(studyID string) string {
	return sanitize(studyID)
}

// TableName derives the lake table for one version of an asset, e.g.
// "deaths_v1_0_2". Every version gets its own table; tables are never
// rewritten in place.
func TableName(assetName string, v domain.Version) string {
	return sanitize(assetName) + "_v" + strings.ReplaceAll(v.String(), ".", "_")
}

func sanitize(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := b.String()
	if out == "" {
		return "unnamed"
	}
	if out[0] >= '0' && out[0] <= '9' {
		out = "s_" + out
	}
	return out
}
