package history

import (
	"context"
	"fmt"
)

// Unavailable is the store installed when backend setup failed. Every
// operation fails with ErrUnavailable wrapping the setup error, so callers
// keep running and each store call fails on its own.
type Unavailable struct {
	cause error
}

// NewUnavailable returns a degraded store remembering why setup failed.
func NewUnavailable(cause error) *Unavailable {
	return &Unavailable{cause: cause}
}

func (u *Unavailable) err() error {
	if u.cause == nil {
		return ErrUnavailable
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, u.cause)
}

func (u *Unavailable) RecordAsk(ctx context.Context, userID, queryText string) error {
	return u.err()
}

func (u *Unavailable) TopQueries(ctx context.Context, userID string, limit int) ([]string, error) {
	return nil, u.err()
}

func (u *Unavailable) RecordFeedback(ctx context.Context, userID, queryText, rating string) error {
	return u.err()
}

func (u *Unavailable) History(ctx context.Context, userID string) ([]Entry, error) {
	return nil, u.err()
}

func (u *Unavailable) Close(ctx context.Context) error {
	return nil
}
