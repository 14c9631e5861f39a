package history

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/systemshift/graphchat/internal/metrics"
)

// Instrumented decorates a Store with Prometheus metrics and debug logging.
type Instrumented struct {
	next    Store
	metrics *metrics.Collector
	logger  *zap.Logger
}

// NewInstrumented wraps next. A nil logger disables logging.
func NewInstrumented(next Store, m *metrics.Collector, logger *zap.Logger) *Instrumented {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Instrumented{next: next, metrics: m, logger: logger.Named("history")}
}

func (s *Instrumented) observe(op string, start time.Time, err error, fields ...zap.Field) {
	s.metrics.HistoryOps.WithLabelValues(op, metrics.Status(err)).Inc()
	s.metrics.HistoryDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		s.logger.Debug(op+" failed", append(fields, zap.Error(err))...)
		return
	}
	s.logger.Debug(op, append(fields, zap.Duration("took", time.Since(start)))...)
}

func (s *Instrumented) RecordAsk(ctx context.Context, userID, queryText string) error {
	start := time.Now()
	err := s.next.RecordAsk(ctx, userID, queryText)
	s.observe("record_ask", start, err, zap.String("user", userID))
	return err
}

func (s *Instrumented) TopQueries(ctx context.Context, userID string, limit int) ([]string, error) {
	start := time.Now()
	top, err := s.next.TopQueries(ctx, userID, limit)
	s.observe("top_queries", start, err, zap.String("user", userID), zap.Int("returned", len(top)))
	return top, err
}

func (s *Instrumented) RecordFeedback(ctx context.Context, userID, queryText, rating string) error {
	start := time.Now()
	err := s.next.RecordFeedback(ctx, userID, queryText, rating)
	s.observe("record_feedback", start, err, zap.String("user", userID), zap.String("rating", rating))
	return err
}

func (s *Instrumented) History(ctx context.Context, userID string) ([]Entry, error) {
	start := time.Now()
	entries, err := s.next.History(ctx, userID)
	s.observe("history", start, err, zap.String("user", userID))
	return entries, err
}

func (s *Instrumented) Close(ctx context.Context) error {
	return s.next.Close(ctx)
}
