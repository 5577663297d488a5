package monitor

import "time"

// Sample is a single reading with the time it was acquired.
type Sample[T any] struct {
	Value     T
	Timestamp time.Time
}

// ChangeRecord describes a published transition. Old is nil for the first
// publish after Start.
type ChangeRecord[T any] struct {
	Old *Sample[T]
	New Sample[T]
}

// Initial reports whether the record carries the first value after Start.
func (r ChangeRecord[T]) Initial() bool {
	return r.Old == nil
}
