// Package store provides the remote table-service client the calendar
// controller writes through: a Postgres implementation for deployments and
// an in-memory one for tests and local development. Both satisfy
// calendar.Store.
package store

import "errors"

var (
	// ErrNotFound is returned when a patch or delete targets a missing row.
	ErrNotFound = errors.New("record not found")
)

// Whitelisted patchable columns. Partial updates only ever touch these;
// anything else is a programming error surfaced before SQL is built.
var (
	postColumns = map[string]bool{
		"status":   true,
		"comments": true,
	}
	accountColumns = map[string]bool{
		"name":   true,
		"handle": true,
		"color":  true,
	}
)
