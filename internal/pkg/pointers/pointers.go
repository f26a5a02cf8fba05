package pointers

import "time"

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T { return &v }

// Shorthands for the optional columns the domain rows carry.
func Int(v int) *int              { return Ptr(v) }
func Time(v time.Time) *time.Time { return Ptr(v) }
