// Package sqlutil provides SQL identifier and placeholder helpers shared by
// the database sink across driver dialects.
package sqlutil

import (
	"fmt"
	"regexp"
	"strings"
)

// Dialect selects the quoting and placeholder style of a target database.
type Dialect string

const (
	DialectMySQL    Dialect = "mysql"
	DialectPostgres Dialect = "postgres"
)

// QuoteIdentifier quotes a table or column name for the dialect, doubling
// any embedded quote character.
func QuoteIdentifier(d Dialect, name string) string {
	if d == DialectPostgres {
		return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
	}
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// validIdentifierRegex restricts identifiers to alphanumeric and underscore.
// Remote entity and field names follow this shape already; anything else is
// rejected rather than escaped.
var validIdentifierRegex = regexp.MustCompile("^[a-zA-Z0-9_]+$")

// IsValidIdentifier checks whether a name is usable as a table or column
// identifier without escaping concerns.
func IsValidIdentifier(name string) bool {
	return validIdentifierRegex.MatchString(name)
}

// QuoteIdentifierSafe quotes an identifier after validating it. Use this for
// names that originate from remote schema metadata.
func QuoteIdentifierSafe(d Dialect, name string) (string, error) {
	if !IsValidIdentifier(name) {
		return "", &InvalidIdentifierError{Name: name}
	}
	return QuoteIdentifier(d, name), nil
}

// Placeholders returns the parameter list for n values in the dialect's
// style: "?, ?, ?" for MySQL, "$1, $2, $3" for Postgres.
func Placeholders(d Dialect, n int) string {
	if n <= 0 {
		return ""
	}
	parts := make([]string, n)
	for i := range parts {
		if d == DialectPostgres {
			parts[i] = fmt.Sprintf("$%d", i+1)
		} else {
			parts[i] = "?"
		}
	}
	return strings.Join(parts, ", ")
}

// InvalidIdentifierError is returned when an identifier contains invalid characters.
type InvalidIdentifierError struct {
	Name string
}

func (e *InvalidIdentifierError) Error() string {
	return "invalid identifier: " + e.Name + " (must contain only alphanumeric characters and underscores)"
}
