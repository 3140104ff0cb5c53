package policy

import "regexp"

var sqlIdentifierRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// IsValidSQLIdentifier reports whether name is safe to interpolate directly
// into a SQL statement as a table or column name: it must start with a
// letter and contain only letters, digits, and underscores. Every table and
// column identifier derived from caller input is checked against this
// before it is ever concatenated into a query.
func IsValidSQLIdentifier(name string) bool {
	return sqlIdentifierRe.MatchString(name)
}
