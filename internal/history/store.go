// Package history persists per-user question history: how often each user
// asked each exact question, and the user's latest feedback rating for it.
//
// Ordering of TopQueries is count descending, then most recently asked first,
// then query text ascending. All backends implement the same order.
package history

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUnavailable is returned by every operation of a store whose setup failed.
	ErrUnavailable = errors.New("history store unavailable")

	// ErrInvalidArgument is returned for an empty user id or query text.
	ErrInvalidArgument = errors.New("invalid argument")
)

// Store is the history store contract. Implementations must be safe for
// concurrent use and must never lose a RecordAsk increment.
type Store interface {
	// RecordAsk upserts the user, the query and the ASKED relationship,
	// starting the count at 1 and incrementing it on every repeat.
	RecordAsk(ctx context.Context, userID, queryText string) error

	// TopQueries returns up to limit query texts for the user ordered by ask
	// count. It returns an empty slice when the user has no history.
	TopQueries(ctx context.Context, userID string, limit int) ([]string, error)

	// RecordFeedback sets the user's rating for the query, replacing any
	// earlier rating.
	RecordFeedback(ctx context.Context, userID, queryText, rating string) error

	// History lists every asked query for the user with its count and rating,
	// in TopQueries order.
	History(ctx context.Context, userID string) ([]Entry, error)

	Close(ctx context.Context) error
}

// Entry is one asked query in a user's history.
type Entry struct {
	Query     string    `json:"query"`
	Count     int64     `json:"count"`
	Rating    string    `json:"rating,omitempty"`
	LastAsked time.Time `json:"last_asked"`
}

func checkArgs(userID, queryText string) error {
	if userID == "" {
		return fmt.Errorf("%w: empty user id", ErrInvalidArgument)
	}
	if queryText == "" {
		return fmt.Errorf("%w: empty query text", ErrInvalidArgument)
	}
	return nil
}
