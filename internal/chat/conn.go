package chat

import (
	"context"
	"time"
)

// Action names carried on offered choices.
const (
	ActionQuery    = "recommend"
	ActionContinue = "continue_chat"
)

// Action is one selectable choice offered to the user.
type Action struct {
	Name  string `json:"name"`
	Label string `json:"label"`
	Value string `json:"value"`
}

// Prompt is a set of actions waiting for exactly one selection.
type Prompt struct {
	ID      string   `json:"id"`
	Content string   `json:"content"`
	Actions []Action `json:"actions"`
}

// Conn is the chat surface a session talks to.
//
// AskAction blocks until the user picks one of the prompt's actions, the
// context is done (it then returns ctx.Err()), or the prompt is abandoned
// (for instance the user typed instead), in which case it returns nil, nil.
type Conn interface {
	Send(ctx context.Context, content string) error
	SendError(ctx context.Context, content string) error
	AskAction(ctx context.Context, p Prompt) (*Action, error)
}

// Options tunes session behaviour.
type Options struct {
	// TopLimit is how many frequent questions are offered.
	TopLimit int
	// ActionTimeout bounds each wait for a selection.
	ActionTimeout time.Duration
	// MaxRounds caps offer rounds per loop entry; 0 means unlimited.
	MaxRounds int
	// MemoryLimit caps stored exchanges; oldest are dropped first.
	MemoryLimit int
	// RecordSelections counts a chosen recommendation as a new ask.
	RecordSelections bool
}

// DefaultOptions returns the stock session options.
func DefaultOptions() Options {
	return Options{
		TopLimit:      3,
		ActionTimeout: 5 * time.Minute,
		MemoryLimit:   50,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.TopLimit <= 0 {
		o.TopLimit = d.TopLimit
	}
	if o.ActionTimeout <= 0 {
		o.ActionTimeout = d.ActionTimeout
	}
	if o.MemoryLimit <= 0 {
		o.MemoryLimit = d.MemoryLimit
	}
	if o.MaxRounds < 0 {
		o.MaxRounds = 0
	}
	return o
}
