package dbutil

import (
	"regexp"
	"strings"
	"sync/atomic"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

var (
	limitRegex = regexp.MustCompile(`(?i)LIMIT\s+\?\s*,\s*\?`)
	bindType   atomic.Int32
)

func init() {
	bindType.Store(int32(sqlx.QUESTION))
}

// UseDriver selects the placeholder style emitted by Finalize.
func UseDriver(driver string) {
	if driver == "postgres" {
		bindType.Store(int32(sqlx.DOLLAR))
		return
	}
	bindType.Store(int32(sqlx.QUESTION))
}

func Finalize(query string, args []interface{}) (string, []interface{}) {
	loc := limitRegex.FindStringIndex(query)
	if loc != nil {
		prefix := query[:loc[0]]
		qCount := strings.Count(prefix, "?")
		if qCount+1 < len(args) {
			args[qCount], args[qCount+1] = args[qCount+1], args[qCount]
			query = limitRegex.ReplaceAllString(query, "LIMIT ? OFFSET ?")
		}
	}
	return sqlx.Rebind(int(bindType.Load()), query), args
}

func IsConflict(err error) bool {
	if pgErr, ok := err.(*pq.Error); ok {
		return pgErr.Code == "23505"
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// EscapeLike escapes LIKE wildcards, to be used with ESCAPE '\'.
func EscapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
