package queue

import (
	"strconv"
	"strings"
)

// dialect captures the few places where SQLite and PostgreSQL disagree.
type dialect struct {
	name string
	// numbered placeholders ($1, $2, ...) instead of ?
	numbered bool
	// claim subqueries lock their row and skip rows other workers hold
	skipLocked bool
}

var (
	sqliteDialect   = dialect{name: "sqlite"}
	postgresDialect = dialect{name: "postgres", numbered: true, skipLocked: true}
)

// rebind rewrites ? placeholders for dialects that number them.
func (d dialect) rebind(query string) string {
	if !d.numbered || !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] != '?' {
			b.WriteByte(query[i])
			continue
		}
		n++
		b.WriteByte('$')
		b.WriteString(strconv.Itoa(n))
	}
	return b.String()
}

func (d dialect) tableExistsQuery() string {
	if d.name == postgresDialect.name {
		return "SELECT COUNT(1) FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = $1"
	}
	return "SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name = ?"
}

// lockClause is appended to the row-selecting subquery of a claim.
func (d dialect) lockClause() string {
	if d.skipLocked {
		return " FOR UPDATE SKIP LOCKED"
	}
	return ""
}
