// Package chat drives a graph QA conversation: it records what a user asks,
// answers through the QA chain and keeps offering the user's most frequent
// questions as one-click choices.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/systemshift/graphchat/internal/history"
	"github.com/systemshift/graphchat/internal/metrics"
	"github.com/systemshift/graphchat/internal/qa"
)

// User-facing texts.
const (
	WelcomeText        = "Welcome back! You're in Graph QA Mode! Select one of your frequent queries to ask, or choose 'Continue to chat' to proceed!\n\n"
	NoPreviousQueries  = "No previous queries found. Please ask your question below."
	NoFrequentQueries  = "No frequent queries found. Please ask your question!"
	PleaseAsk          = "Please ask your question"
	NotInitializedText = "Graph QA is not initialized. Please restart the chat."
	ContinueLabel      = "Continue to chat"
	FeedbackThanks     = "Thanks for your feedback!"
)

// ErrNotInitialized is returned by HandleMessage before Start bound a chain.
var ErrNotInitialized = errors.New("graph QA is not initialized")

// Turn sources for metrics and logs.
const (
	sourceTyped     = "typed"
	sourceSelection = "selection"
)

// Session is the per-connection conversation state. A session is driven by
// one goroutine at a time.
type Session struct {
	id     string
	userID string

	conn    Conn
	store   history.Store
	opts    Options
	metrics *metrics.Collector
	logger  *zap.Logger

	memory *memory

	mu    sync.Mutex
	chain qa.Answerer
}

// NewSession builds a session for userID on conn. m may be nil.
func NewSession(id, userID string, conn Conn, store history.Store, opts Options, m *metrics.Collector, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts = opts.withDefaults()
	return &Session{
		id:      id,
		userID:  userID,
		conn:    conn,
		store:   store,
		opts:    opts,
		metrics: m,
		logger:  logger.With(zap.String("session", id), zap.String("user", userID)),
		memory:  newMemory(opts.MemoryLimit),
	}
}

func (s *Session) ID() string     { return s.id }
func (s *Session) UserID() string { return s.userID }

// Memory returns a copy of the answered exchanges, oldest first.
func (s *Session) Memory() []Exchange {
	return s.memory.snapshot()
}

func (s *Session) currentChain() qa.Answerer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chain
}

// Start resets memory, binds chain, greets the user and offers their
// frequent questions.
func (s *Session) Start(ctx context.Context, chain qa.Answerer) error {
	s.mu.Lock()
	s.chain = chain
	s.mu.Unlock()
	s.memory.reset()

	welcome := WelcomeText
	if len(s.topQueries(ctx)) == 0 {
		welcome += NoPreviousQueries
	}
	if err := s.conn.Send(ctx, welcome); err != nil {
		return err
	}
	return s.Recommend(ctx)
}

// HandleMessage answers a typed question and then offers frequent questions.
func (s *Session) HandleMessage(ctx context.Context, text string) error {
	chain := s.currentChain()
	if chain == nil {
		if err := s.conn.SendError(ctx, NotInitializedText); err != nil {
			return err
		}
		return ErrNotInitialized
	}

	if err := s.store.RecordAsk(ctx, s.userID, text); err != nil {
		s.logger.Warn("recording ask", zap.Error(err))
	}

	if err := s.answer(ctx, chain, text, sourceTyped); err != nil {
		return err
	}
	return s.Recommend(ctx)
}

// HandleFeedback stores the user's rating for a question.
func (s *Session) HandleFeedback(ctx context.Context, query, rating string) error {
	if strings.TrimSpace(rating) == "" {
		return s.conn.SendError(ctx, "Error: rating must not be empty")
	}
	if err := s.store.RecordFeedback(ctx, s.userID, query, rating); err != nil {
		s.logger.Warn("recording feedback", zap.String("query", query), zap.Error(err))
		return s.conn.SendError(ctx, fmt.Sprintf("Error: could not save feedback: %v", err))
	}
	return s.conn.Send(ctx, FeedbackThanks)
}

// Recommend runs the offer loop: show the frequent questions, answer the
// chosen one and offer again, until the user continues to chat, no history
// exists, the wait times out or MaxRounds is reached. Only connection errors
// are returned.
func (s *Session) Recommend(ctx context.Context) error {
	chain := s.currentChain()

	for round := 0; s.opts.MaxRounds == 0 || round < s.opts.MaxRounds; round++ {
		top := s.topQueries(ctx)
		if len(top) == 0 {
			return s.conn.Send(ctx, NoFrequentQueries)
		}

		choice, err := s.offer(ctx, top)
		if err != nil {
			return err
		}
		if choice == nil {
			return nil
		}
		if choice.Name == ActionContinue {
			return s.conn.Send(ctx, PleaseAsk)
		}
		if chain == nil {
			if err := s.conn.SendError(ctx, NotInitializedText); err != nil {
				return err
			}
			return ErrNotInitialized
		}

		if s.opts.RecordSelections {
			if err := s.store.RecordAsk(ctx, s.userID, choice.Value); err != nil {
				s.logger.Warn("recording selected ask", zap.Error(err))
			}
		}
		if err := s.answer(ctx, chain, choice.Value, sourceSelection); err != nil {
			return err
		}
	}

	s.logger.Debug("recommendation rounds exhausted", zap.Int("max_rounds", s.opts.MaxRounds))
	return nil
}

// offer presents the questions and waits for one choice. A nil action means
// the user made no selection in time or moved on.
func (s *Session) offer(ctx context.Context, top []string) (*Action, error) {
	actions := make([]Action, 0, len(top)+1)
	for _, q := range top {
		actions = append(actions, Action{Name: ActionQuery, Label: q, Value: q})
	}
	actions = append(actions, Action{Name: ActionContinue, Label: ContinueLabel, Value: "continue"})

	waitCtx, cancel := context.WithTimeout(ctx, s.opts.ActionTimeout)
	defer cancel()

	choice, err := s.conn.AskAction(waitCtx, Prompt{ID: uuid.NewString(), Actions: actions})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			s.logger.Debug("action prompt timed out", zap.Duration("timeout", s.opts.ActionTimeout))
			return nil, nil
		}
		return nil, err
	}
	return choice, nil
}

func (s *Session) topQueries(ctx context.Context) []string {
	top, err := s.store.TopQueries(ctx, s.userID, s.opts.TopLimit)
	if err != nil {
		s.logger.Warn("loading top queries", zap.Error(err))
		return nil
	}
	return top
}

// answer runs the chain and sends the rendered result. Chain failures are
// reported to the user; only connection errors are returned.
func (s *Session) answer(ctx context.Context, chain qa.Answerer, question, source string) error {
	res, err := chain.Answer(ctx, question)
	s.countTurn(source, err)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Warn("answering question", zap.String("source", source), zap.Error(err))
		return s.conn.SendError(ctx, fmt.Sprintf("Error: %v", err))
	}

	s.memory.add(Exchange{
		Prompt:         question,
		Response:       res.Answer,
		GeneratedQuery: res.GeneratedQuery,
		At:             time.Now(),
	})
	return s.conn.Send(ctx, Render(res))
}

func (s *Session) countTurn(source string, err error) {
	if s.metrics != nil {
		s.metrics.Turns.WithLabelValues(source, metrics.Status(err)).Inc()
	}
}

// Render formats a chain result as markdown.
func Render(res *qa.Result) string {
	if !res.HasQuery() {
		return "**Answer:**\n" + res.Answer
	}
	return "**Generated Cypher Query:**\n```\n" + res.GeneratedQuery + "\n```\n\n**Answer:**\n" + res.Answer
}
