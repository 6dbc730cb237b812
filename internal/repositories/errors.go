package repositories

import "strings"

// isUniqueViolation does a driver-agnostic check for a unique-constraint
// error, since postgres (pq/pgx) and sqlite phrase it differently and the
// test suite runs against sqlite while production runs against postgres.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "unique_violation") ||
		strings.Contains(msg, "are not unique")
}
