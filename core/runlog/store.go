// Package runlog persists exported allocation records and answers queries
// over past runs.
package runlog

import (
	"context"
	"time"

	"github.com/kilianp07/taskalloc/pkg/export"
)

// Query defines filters for retrieving records. Zero values match all.
type Query struct {
	Start   time.Time
	End     time.Time
	AgentID string
	RunID   string
	// Limit keeps only the most recent records when positive.
	Limit int
}

// Store persists records and supports querying.
type Store interface {
	Append(ctx context.Context, rec export.Record) error
	Query(ctx context.Context, q Query) ([]export.Record, error)
	Close() error
}

// Matches reports whether rec satisfies q.
func (q Query) Matches(rec export.Record) bool {
	if !q.Start.IsZero() && rec.CreatedAt.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && rec.CreatedAt.After(q.End) {
		return false
	}
	if q.RunID != "" && rec.RunID != q.RunID {
		return false
	}
	if q.AgentID != "" {
		if _, ok := rec.Membership()[q.AgentID]; !ok {
			return false
		}
	}
	return true
}

func (q Query) limit(recs []export.Record) []export.Record {
	if q.Limit > 0 && len(recs) > q.Limit {
		return recs[len(recs)-q.Limit:]
	}
	return recs
}
