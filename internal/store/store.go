package store

import "context"

// Table is a persisted account-key → value mapping shared by all execution
// units. Implementations must serialize writes so that a full-table rewrite
// from one goroutine cannot corrupt a rewrite from another.
type Table interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}
