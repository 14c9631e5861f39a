// Package terminal runs a chat session in an interactive terminal.
package terminal

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/systemshift/graphchat/internal/chat"
	"github.com/systemshift/graphchat/internal/qa"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	choiceStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("75"))
)

// ErrInputClosed is returned when the input stream ends.
var ErrInputClosed = errors.New("input closed")

// Options configures a Terminal.
type Options struct {
	// Plain disables markdown rendering and styling.
	Plain bool
	// WordWrap is the markdown wrap width; 0 selects 100.
	WordWrap int
}

// Terminal is a chat.Conn over a line-oriented reader and a writer.
type Terminal struct {
	out      io.Writer
	lines    chan string
	renderer *glamour.TermRenderer
	plain    bool

	// pending is a question typed at an action prompt.
	pending *string
}

// New starts reading lines from in. The reader goroutine exits when in
// reaches EOF.
func New(in io.Reader, out io.Writer, opts Options) (*Terminal, error) {
	t := &Terminal{
		out:   out,
		lines: make(chan string),
		plain: opts.Plain,
	}
	if !opts.Plain {
		wrap := opts.WordWrap
		if wrap <= 0 {
			wrap = 100
		}
		r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(wrap),
		)
		if err != nil {
			return nil, fmt.Errorf("creating markdown renderer: %w", err)
		}
		t.renderer = r
	}

	go func() {
		defer close(t.lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			t.lines <- scanner.Text()
		}
	}()
	return t, nil
}

func (t *Terminal) style(s lipgloss.Style, text string) string {
	if t.plain {
		return text
	}
	return s.Render(text)
}

func (t *Terminal) Send(ctx context.Context, content string) error {
	if t.renderer != nil {
		if out, err := t.renderer.Render(content); err == nil {
			_, err = fmt.Fprint(t.out, out)
			return err
		}
	}
	_, err := fmt.Fprintln(t.out, content)
	return err
}

func (t *Terminal) SendError(ctx context.Context, content string) error {
	_, err := fmt.Fprintln(t.out, t.style(errorStyle, content))
	return err
}

// AskAction lists the actions by number. Entering a number picks it, an empty
// line continues to chat and any other text is taken as a new question.
func (t *Terminal) AskAction(ctx context.Context, p chat.Prompt) (*chat.Action, error) {
	if p.Content != "" {
		fmt.Fprintln(t.out, p.Content)
	}
	fmt.Fprintln(t.out, t.style(dimStyle, "Your frequent questions:"))
	for i, a := range p.Actions {
		fmt.Fprintf(t.out, "  %s %s\n", t.style(choiceStyle, strconv.Itoa(i+1)+"."), a.Label)
	}
	fmt.Fprint(t.out, t.style(promptStyle, "Pick a number, or type a question: "))

	for {
		line, err := t.readLine(ctx)
		if err != nil {
			return nil, err
		}
		line = strings.TrimSpace(line)

		if line == "" {
			for i := range p.Actions {
				if p.Actions[i].Name == chat.ActionContinue {
					return &p.Actions[i], nil
				}
			}
			return nil, nil
		}
		if n, err := strconv.Atoi(line); err == nil {
			if n >= 1 && n <= len(p.Actions) {
				return &p.Actions[n-1], nil
			}
			fmt.Fprint(t.out, t.style(errorStyle, fmt.Sprintf("Pick 1-%d: ", len(p.Actions))))
			continue
		}
		t.pending = &line
		return nil, nil
	}
}

func (t *Terminal) readLine(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-t.lines:
		if !ok {
			return "", ErrInputClosed
		}
		return line, nil
	}
}

// next returns the next typed line, starting with one left by AskAction.
func (t *Terminal) next(ctx context.Context) (string, error) {
	if t.pending != nil {
		line := *t.pending
		t.pending = nil
		return line, nil
	}
	fmt.Fprint(t.out, t.style(promptStyle, "> "))
	return t.readLine(ctx)
}

// Run drives sess until the user quits or input ends.
func (t *Terminal) Run(ctx context.Context, sess *chat.Session, chain qa.Answerer) error {
	fmt.Fprintln(t.out)
	fmt.Fprintln(t.out, t.style(titleStyle, "GRAPH QA"))
	fmt.Fprintln(t.out, t.style(dimStyle, "Ask anything about your knowledge graph"))
	fmt.Fprintln(t.out, t.style(dimStyle, "Type 'help' for commands, 'exit' or Ctrl+C to quit"))
	fmt.Fprintln(t.out)

	if err := sess.Start(ctx, chain); err != nil && !errors.Is(err, chat.ErrNotInitialized) {
		return ignoreClosed(err)
	}

	for {
		line, err := t.next(ctx)
		if err != nil {
			return ignoreClosed(err)
		}
		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		switch fields := strings.Fields(input); strings.ToLower(fields[0]) {
		case "exit", "quit", "q":
			fmt.Fprintln(t.out, t.style(dimStyle, "Goodbye!"))
			return nil
		case "help":
			t.printHelp()
			continue
		case "/history":
			t.printMemory(sess)
			continue
		case "/rate":
			err = t.rate(ctx, sess, fields[1:])
		default:
			err = sess.HandleMessage(ctx, input)
		}

		if err != nil && !errors.Is(err, chat.ErrNotInitialized) {
			return ignoreClosed(err)
		}
	}
}

// rate records feedback for the most recent answered question.
func (t *Terminal) rate(ctx context.Context, sess *chat.Session, args []string) error {
	mem := sess.Memory()
	if len(mem) == 0 {
		return t.SendError(ctx, "Nothing to rate yet. Ask a question first.")
	}
	if len(args) == 0 {
		return t.SendError(ctx, "Usage: /rate <rating>")
	}
	return sess.HandleFeedback(ctx, mem[len(mem)-1].Prompt, strings.Join(args, " "))
}

func (t *Terminal) printMemory(sess *chat.Session) {
	mem := sess.Memory()
	if len(mem) == 0 {
		fmt.Fprintln(t.out, t.style(dimStyle, "No questions answered in this session."))
		return
	}
	for i, e := range mem {
		fmt.Fprintf(t.out, "%s %s\n", t.style(choiceStyle, strconv.Itoa(i+1)+"."), e.Prompt)
	}
}

func (t *Terminal) printHelp() {
	fmt.Fprintln(t.out)
	fmt.Fprintln(t.out, t.style(titleStyle, "Commands"))
	fmt.Fprintln(t.out, "  help            Show this help")
	fmt.Fprintln(t.out, "  /history        List questions answered in this session")
	fmt.Fprintln(t.out, "  /rate <rating>  Rate the last answer")
	fmt.Fprintln(t.out, "  exit            Quit")
	fmt.Fprintln(t.out)
}

func ignoreClosed(err error) error {
	if errors.Is(err, ErrInputClosed) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
