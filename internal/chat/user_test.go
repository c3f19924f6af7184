package chat

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/haasonsaas/parley/internal/conversation"
	"github.com/haasonsaas/parley/pkg/models"
)

func newTestUser(input string) (*User, *bytes.Buffer) {
	var out bytes.Buffer
	u := NewUser(strings.NewReader(input), &out, quietLogger())
	return u, &out
}

func readEvents(t *testing.T, u *User) []conversation.Event {
	t.Helper()
	stream, err := u.GetInputAndRunCommands(context.Background())
	if err != nil {
		t.Fatalf("input: %v", err)
	}
	var events []conversation.Event
	for ev := range stream {
		events = append(events, ev)
	}
	return events
}

func TestUser_TypedLineBecomesMessage(t *testing.T) {
	u, _ := newTestUser("hello there\n")

	events := readEvents(t, u)
	if len(events) != 1 {
		t.Fatalf("events = %d", len(events))
	}
	me := events[0].(conversation.MessageEvent)
	if me.Message.ContentForAssistant() != "hello there" {
		t.Errorf("content = %q", me.Message.ContentForAssistant())
	}
	if !me.Message.DirectlyEntered() {
		t.Error("typed input must be flagged as directly entered")
	}
}

func TestUser_SlashCommands(t *testing.T) {
	tests := []struct {
		line string
		want conversation.Event
	}{
		{"/exit", conversation.Exit{}},
		{"/quit", conversation.Exit{}},
		{"/clear", conversation.ClearHistory{}},
		{"/save", conversation.SaveHistory{}},
		{"/save out.json", conversation.SaveHistory{Path: "out.json"}},
		{"/load in.json", conversation.LoadHistory{Path: "in.json"}},
		{"/agent", conversation.AgentMode{Enabled: true}},
		{"/agent off", conversation.AgentMode{Enabled: false}},
		{"/once", conversation.Once{Enabled: true}},
		{"/commands off", conversation.LLMCommandsExecution{Enabled: false}},
		{"/thinking high", conversation.ThinkingLevel{Level: "high"}},
		{"/budget 5", conversation.DeepResearchBudget{N: 5}},
	}
	for _, tt := range tests {
		u, _ := newTestUser(tt.line + "\n")
		events := readEvents(t, u)
		if len(events) != 1 {
			t.Errorf("%s: events = %d", tt.line, len(events))
			continue
		}
		if events[0] != tt.want {
			t.Errorf("%s: event = %#v, want %#v", tt.line, events[0], tt.want)
		}
	}
}

func TestUser_UnknownSlashCommandReprompts(t *testing.T) {
	u, out := newTestUser("/frobnicate\nactual input\n")

	events := readEvents(t, u)
	if len(events) != 1 {
		t.Fatalf("events = %d", len(events))
	}
	if !strings.Contains(out.String(), "/frobnicate") {
		t.Error("unknown command should be reported")
	}
	me := events[0].(conversation.MessageEvent)
	if me.Message.ContentForAssistant() != "actual input" {
		t.Errorf("content = %q", me.Message.ContentForAssistant())
	}
}

func TestUser_SpeakWithoutTranscriber(t *testing.T) {
	u, out := newTestUser("/speak\ntyped instead\n")

	events := readEvents(t, u)
	if !strings.Contains(out.String(), "No speech-to-text engine") {
		t.Errorf("output = %q", out.String())
	}
	if len(events) != 1 {
		t.Fatalf("events = %d", len(events))
	}
}

type scriptedTranscriber struct{ text string }

func (s scriptedTranscriber) Transcribe(context.Context) (string, error) {
	return s.text, nil
}

func TestUser_SpeakProducesTypedMessage(t *testing.T) {
	u, _ := newTestUser("/speak\n")
	u.SetTranscriber(scriptedTranscriber{text: "dictated words"})

	events := readEvents(t, u)
	if len(events) != 1 {
		t.Fatalf("events = %d", len(events))
	}
	me := events[0].(conversation.MessageEvent)
	if me.Message.ContentForAssistant() != "dictated words" {
		t.Errorf("content = %q", me.Message.ContentForAssistant())
	}
	if !me.Message.DirectlyEntered() {
		t.Error("spoken input counts as directly entered")
	}
}

func TestUser_LineRendererCanBeBypassed(t *testing.T) {
	u, out := newTestUser("")
	u.SetLineRenderer(func(line string) string { return ">> " + line })

	u.println("styled")
	if !strings.Contains(out.String(), ">> styled") {
		t.Errorf("output = %q", out.String())
	}

	out.Reset()
	u.SetPlainOutput(true)
	u.println("plain")
	if strings.Contains(out.String(), ">>") {
		t.Errorf("plain output must skip the renderer: %q", out.String())
	}
}

func TestUser_EOFEndsInput(t *testing.T) {
	u, _ := newTestUser("")

	_, err := u.GetInputAndRunCommands(context.Background())
	if !errors.Is(err, conversation.ErrEndOfInput) {
		t.Errorf("err = %v, want ErrEndOfInput", err)
	}
}

func TestUser_RendersAssistantMessage(t *testing.T) {
	u, out := newTestUser("")

	err := u.ConsumeEventsAndRender(context.Background(), []conversation.Event{
		conversation.MessageEvent{Message: models.NewFinishedStream(models.AuthorAssistant, "streamed reply")},
		conversation.NotificationEvent{Text: "saved"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "streamed reply") {
		t.Errorf("output = %q", out.String())
	}
	if !strings.Contains(out.String(), "• saved") {
		t.Errorf("output = %q", out.String())
	}
}

func TestUser_SkipsOwnTypedMessages(t *testing.T) {
	u, out := newTestUser("")

	err := u.ConsumeEventsAndRender(context.Background(), []conversation.Event{
		conversation.MessageEvent{Message: models.NewTypedText(models.AuthorUser, "already on screen")},
	})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(out.String(), "already on screen") {
		t.Error("typed input must not be re-rendered")
	}
}

func TestUser_InterruptMidStream(t *testing.T) {
	u, _ := newTestUser("")

	source := make(chan string, 4)
	source <- "partial "
	msg := models.NewStreamedText(models.AuthorAssistant, source)

	done := make(chan error, 1)
	go func() {
		done <- u.ConsumeEventsAndRender(context.Background(), []conversation.Event{
			conversation.MessageEvent{Message: msg},
		})
	}()

	u.interrupt <- os.Interrupt
	err := <-done
	if !errors.Is(err, conversation.ErrInterrupted) {
		t.Fatalf("err = %v, want ErrInterrupted", err)
	}

	// The producer must not be blocked after the interrupt.
	source <- "late chunk"
	close(source)
}

func TestUser_ReplayAfterLoad(t *testing.T) {
	u, out := newTestUser("")
	u.InitializeFromHistory(nil)

	err := u.ConsumeEventsAndRender(context.Background(), []conversation.Event{
		conversation.HistoryRecoveryEvent{Messages: []models.Message{
			models.NewTypedText(models.AuthorUser, "old question"),
			models.NewText(models.AuthorAssistant, "old answer"),
		}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "old question") || !strings.Contains(out.String(), "old answer") {
		t.Errorf("replay output = %q", out.String())
	}

	// Recovery events outside a replay are not re-rendered.
	out.Reset()
	err = u.ConsumeEventsAndRender(context.Background(), []conversation.Event{
		conversation.HistoryRecoveryEvent{Messages: []models.Message{
			models.NewText(models.AuthorAssistant, "old answer"),
		}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if out.Len() != 0 {
		t.Errorf("unexpected replay: %q", out.String())
	}
}
