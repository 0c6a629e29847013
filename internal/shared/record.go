package shared

import "time"

// RecordHeader carries the persistence identity and bookkeeping timestamps
// shared by all stored entities. Embedded by value, not inherited.
type RecordHeader struct {
	ID        int64
	CreatedAt time.Time
	UpdatedAt time.Time
}
