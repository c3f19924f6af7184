package chat

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"golang.org/x/term"

	"github.com/haasonsaas/parley/internal/conversation"
	"github.com/haasonsaas/parley/pkg/models"
)

// LineRenderer styles one completed output line for the terminal. Markup
// rendering lives outside this package; the user only consumes it.
type LineRenderer func(line string) string

// Transcriber converts captured speech into input text. Capture and the
// model behind it live outside this package.
type Transcriber interface {
	Transcribe(ctx context.Context) (string, error)
}

// User is the terminal side of the conversation: it reads typed input,
// translates slash commands into engine events, and renders the
// assistant's replies as they stream.
type User struct {
	out    io.Writer
	logger *slog.Logger

	lines       chan string
	interrupt   chan os.Signal
	interactive bool

	// replayPending makes the next history recovery render, used after a
	// load replaced the conversation.
	replayPending bool
	helpText      func() string

	render LineRenderer
	plain  bool
	stt    Transcriber
}

// NewUser starts reading stdin in the background and begins watching for
// interrupts.
func NewUser(in io.Reader, out io.Writer, logger *slog.Logger) *User {
	if logger == nil {
		logger = slog.Default()
	}
	u := &User{
		out:         out,
		logger:      logger.With("component", "user"),
		lines:       make(chan string),
		interrupt:   make(chan os.Signal, 1),
		interactive: term.IsTerminal(int(os.Stdin.Fd())),
	}
	signal.Notify(u.interrupt, os.Interrupt)

	go func() {
		defer close(u.lines)
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 64*1024), 1<<20)
		for scanner.Scan() {
			u.lines <- scanner.Text()
		}
	}()
	return u
}

// SetHelpText installs the renderer for the /help command.
func (u *User) SetHelpText(fn func() string) { u.helpText = fn }

// SetLineRenderer installs an output styler, typically a markdown
// highlighter.
func (u *User) SetLineRenderer(r LineRenderer) { u.render = r }

// SetPlainOutput bypasses any installed line renderer.
func (u *User) SetPlainOutput(plain bool) { u.plain = plain }

// SetTranscriber enables the /speak command with a speech-to-text engine.
func (u *User) SetTranscriber(t Transcriber) { u.stt = t }

// Notify prints a transient status line.
func (u *User) Notify(text string) { u.println("• " + text) }

// Confirm asks a yes/no question on the terminal, consuming one input line.
// Interrupts and EOF answer no.
func (u *User) Confirm(prompt string) bool {
	fmt.Fprint(u.out, prompt)
	select {
	case line, ok := <-u.lines:
		if !ok {
			return false
		}
		answer := strings.ToLower(strings.TrimSpace(line))
		return answer == "y" || answer == "yes"
	case <-u.interrupt:
		fmt.Fprintln(u.out)
		return false
	}
}

func (u *User) Prepare(context.Context) error { return nil }

func (u *User) Clear() {}

func (u *User) InitializeFromHistory([]models.Message) {
	u.replayPending = true
}

// GetInputAndRunCommands reads lines until one produces events: either a
// typed message or a slash command.
func (u *User) GetInputAndRunCommands(ctx context.Context) (<-chan conversation.Event, error) {
	for {
		u.prompt()
		select {
		case line, ok := <-u.lines:
			if !ok {
				return nil, conversation.ErrEndOfInput
			}
			events, err := u.parseLine(ctx, line)
			if err != nil {
				return nil, err
			}
			if len(events) == 0 {
				continue
			}
			ch := make(chan conversation.Event, len(events))
			for _, ev := range events {
				ch <- ev
			}
			close(ch)
			return ch, nil
		case <-u.interrupt:
			return nil, conversation.ErrInterrupted
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// parseLine turns one input line into events. Slash commands map to engine
// events; anything else is a typed message. Nil with no error means "read
// another line".
func (u *User) parseLine(ctx context.Context, line string) ([]conversation.Event, error) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return nil, nil
	}
	if !strings.HasPrefix(trimmed, "/") {
		return []conversation.Event{conversation.MessageEvent{
			Message: models.NewTypedText(models.AuthorUser, line),
		}}, nil
	}

	name, arg, _ := strings.Cut(trimmed[1:], " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "exit", "quit":
		return []conversation.Event{conversation.Exit{}}, nil
	case "clear":
		return []conversation.Event{conversation.ClearHistory{}}, nil
	case "save":
		return []conversation.Event{conversation.SaveHistory{Path: arg}}, nil
	case "load":
		if arg == "" {
			u.println("Usage: /load <path>")
			return nil, nil
		}
		return []conversation.Event{conversation.LoadHistory{Path: arg}}, nil
	case "agent":
		return []conversation.Event{conversation.AgentMode{Enabled: arg != "off"}}, nil
	case "once":
		return []conversation.Event{conversation.Once{Enabled: arg != "off"}}, nil
	case "commands":
		return []conversation.Event{conversation.LLMCommandsExecution{Enabled: arg != "off"}}, nil
	case "thinking":
		if arg == "" {
			u.println("Usage: /thinking off|low|medium|high")
			return nil, nil
		}
		return []conversation.Event{conversation.ThinkingLevel{Level: arg}}, nil
	case "budget":
		n, err := strconv.Atoi(arg)
		if err != nil || n < 0 {
			u.println("Usage: /budget <iterations>")
			return nil, nil
		}
		return []conversation.Event{conversation.DeepResearchBudget{N: n}}, nil
	case "speak":
		if u.stt == nil {
			u.println("No speech-to-text engine is configured.")
			return nil, nil
		}
		text, err := u.stt.Transcribe(ctx)
		if err != nil {
			u.println("Transcription failed: " + err.Error())
			return nil, nil
		}
		if strings.TrimSpace(text) == "" {
			return nil, nil
		}
		u.println("you (spoken)> " + text)
		return []conversation.Event{conversation.MessageEvent{
			Message: models.NewTypedText(models.AuthorUser, text),
		}}, nil
	case "help":
		u.printHelp()
		return nil, nil
	default:
		u.println("Unknown command /" + name + ". Try /help.")
		return nil, nil
	}
}

// ConsumeEventsAndRender prints what the assistant produced. Streamed
// messages are rendered chunk by chunk; an interrupt mid-stream aborts the
// cycle while a background drain lets the producer finish.
func (u *User) ConsumeEventsAndRender(ctx context.Context, events []conversation.Event) error {
	for _, ev := range events {
		switch e := ev.(type) {
		case conversation.HistoryRecoveryEvent:
			if u.replayPending {
				u.replayPending = false
				u.renderHistory(e.Messages)
			}
		case conversation.NotificationEvent:
			u.println("• " + e.Text)
		case conversation.MessageEvent:
			if err := u.renderMessage(ctx, e.Message); err != nil {
				return err
			}
		}
	}
	return nil
}

func (u *User) renderMessage(ctx context.Context, msg models.Message) error {
	if msg.Author() == models.AuthorUser && msg.DirectlyEntered() {
		return nil // already on screen, the user typed it
	}

	switch m := msg.(type) {
	case *models.StreamedText:
		return u.renderStream(ctx, m, "assistant> ")
	case *models.ThinkingText:
		if err := u.renderStream(ctx, m.Thinking, "thinking… "); err != nil {
			return err
		}
		return u.renderStream(ctx, m.Response, "assistant> ")
	case *models.CommandOutput:
		u.println(fmt.Sprintf("[%s]\n%s", m.Command, m.Output))
		return nil
	default:
		if text := msg.ContentForUser(); text != "" {
			u.println(text)
		}
		return nil
	}
}

// renderStream prints chunks as they arrive, watching for interrupts.
func (u *User) renderStream(ctx context.Context, stream *models.StreamedText, prefix string) error {
	chunks := stream.Chunks()
	first := true
	for {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				if !first {
					fmt.Fprintln(u.out)
				}
				return nil
			}
			if first {
				fmt.Fprint(u.out, prefix)
				first = false
			}
			fmt.Fprint(u.out, chunk)
		case <-u.interrupt:
			go func() {
				for range chunks {
				}
			}()
			fmt.Fprintln(u.out)
			return conversation.ErrInterrupted
		case <-ctx.Done():
			go func() {
				for range chunks {
				}
			}()
			return ctx.Err()
		}
	}
}

func (u *User) renderHistory(messages []models.Message) {
	u.println("--- conversation restored ---")
	for _, msg := range messages {
		text := msg.ContentForUser()
		if text == "" {
			continue
		}
		prefix := msg.Author() + "> "
		u.println(string(prefix) + text)
	}
	u.println("--- end of restored conversation ---")
}

func (u *User) printHelp() {
	u.println(`Session commands:
  /exit, /quit        end the session
  /clear              forget the conversation
  /save [path]        write the conversation to disk
  /load <path>        replace the conversation from a file
  /agent [off]        toggle autonomous agent mode
  /once [off]         exit after the next completed cycle
  /commands [off]     toggle embedded command execution
  /thinking <level>   off, low, medium or high
  /budget <n>         cap agent iterations, 0 means unlimited
  /speak              dictate the next message, if speech input is set up`)
	if u.helpText != nil {
		u.println("")
		u.println(u.helpText())
	}
}

func (u *User) prompt() {
	if u.interactive {
		fmt.Fprint(u.out, "you> ")
	}
}

func (u *User) println(text string) {
	if u.render != nil && !u.plain {
		lines := strings.Split(text, "\n")
		for i, line := range lines {
			lines[i] = u.render(line)
		}
		text = strings.Join(lines, "\n")
	}
	fmt.Fprintln(u.out, text)
}
