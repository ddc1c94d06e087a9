package store

import "time"

const isoLayout = "2006-01-02T15:04:05.999999"

// NowISO returns the current UTC time in the timezone-less ISO form the
// JSON documents use for created_at / updated_at fields.
func NowISO() string {
	return time.Now().UTC().Format(isoLayout)
}

// ParseISO parses a NowISO timestamp. RFC3339 values are accepted too so
// documents written by other tooling still sort.
func ParseISO(s string) (time.Time, error) {
	if t, err := time.Parse(isoLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}
