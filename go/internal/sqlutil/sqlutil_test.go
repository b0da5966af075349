package sqlutil

import (
	"testing"
	"time"
)

func TestNullString(t *testing.T) {
	if v := NullString(""); v.Valid {
		t.Fatalf("empty string should be NULL")
	}
	v := NullString("u1")
	if !v.Valid || FromNullString(v) != "u1" {
		t.Fatalf("round trip = %+v", v)
	}
	if FromNullString(NullString("")) != "" {
		t.Fatalf("NULL should read back as empty")
	}
}

func TestSqlTime(t *testing.T) {
	if ToSqlTime(nil).Valid {
		t.Fatalf("nil time should be NULL")
	}
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	got := ToSqlTime(&now)
	if !got.Valid || !got.Time.Equal(now) {
		t.Fatalf("converted = %+v", got)
	}
}
