package relationship

import (
	"strings"

	"github.com/datalift/bulkvault/internal/types"
)

// DefaultPredicateIDLimit bounds how many parent identifiers one membership
// predicate may carry before truncation.
const DefaultPredicateIDLimit = 200

// Predicate is a synthesized membership filter for a child export. Truncated
// marks that the parent set exceeded the identifier limit and the expansion
// is incomplete.
type Predicate struct {
	Clause    string
	IDCount   int
	Truncated bool
}

// BuildWhereClause synthesizes `field IN ('id', ...)` over the parent
// identifier set. Sets larger than limit are truncated to the first limit
// identifiers in insertion order and flagged. An empty set yields an empty
// clause.
func BuildWhereClause(field string, ids *types.IdentifierSet, limit int) Predicate {
	if ids == nil || ids.Len() == 0 {
		return Predicate{}
	}
	if limit <= 0 {
		limit = DefaultPredicateIDLimit
	}

	selected := ids.Values()
	truncated := false
	if len(selected) > limit {
		selected = selected[:limit]
		truncated = true
	}

	return Predicate{
		Clause:    field + " IN (" + quoteList(selected) + ")",
		IDCount:   len(selected),
		Truncated: truncated,
	}
}

// BuildWhereClauseMultiField synthesizes an OR of membership predicates over
// several foreign-key fields, all sharing one identifier list. The limit
// applies to the identifier list, not per field.
func BuildWhereClauseMultiField(fields []string, ids *types.IdentifierSet, limit int) Predicate {
	if len(fields) == 0 || ids == nil || ids.Len() == 0 {
		return Predicate{}
	}
	if len(fields) == 1 {
		return BuildWhereClause(fields[0], ids, limit)
	}
	if limit <= 0 {
		limit = DefaultPredicateIDLimit
	}

	selected := ids.Values()
	truncated := false
	if len(selected) > limit {
		selected = selected[:limit]
		truncated = true
	}

	list := quoteList(selected)
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = f + " IN (" + list + ")"
	}

	return Predicate{
		Clause:    "(" + strings.Join(parts, " OR ") + ")",
		IDCount:   len(selected),
		Truncated: truncated,
	}
}

func quoteList(ids []string) string {
	var b strings.Builder
	for i, id := range ids {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('\'')
		b.WriteString(strings.ReplaceAll(id, "'", "\\'"))
		b.WriteByte('\'')
	}
	return b.String()
}
