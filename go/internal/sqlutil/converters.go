package sqlutil

import (
	"database/sql"
	"time"
)

// NullString maps "" to NULL.
func NullString(val string) sql.NullString {
	if val == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: val, Valid: true}
}

// FromNullString converts sql.NullString to a Go string, "" when NULL
func FromNullString(val sql.NullString) string {
	if !val.Valid {
		return ""
	}
	return val.String
}

// ToSqlTime converts a Go time pointer to sql.NullTime
func ToSqlTime(val *time.Time) sql.NullTime {
	if val == nil {
		return sql.NullTime{Valid: false}
	}
	return sql.NullTime{Time: *val, Valid: true}
}

// Int32 narrows counters and indexes for INTEGER columns.
func Int32(val int) int32 {
	return int32(val)
}
