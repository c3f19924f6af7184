// Package models defines the message variants exchanged between the user,
// the assistant, and the conversation engine.
package models

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Author identifies who produced a message.
type Author string

const (
	AuthorUser      Author = "user"
	AuthorAssistant Author = "assistant"
	AuthorSystem    Author = "system"
)

// Message is the unified contract every variant answers. ContentForUser is
// what a renderer shows; ContentForAssistant is what gets fed to the model.
type Message interface {
	ID() string
	Author() Author
	CreatedAt() time.Time
	ContentForUser() string
	ContentForAssistant() string

	// DirectlyEntered reports whether the author typed this text themselves.
	// Such messages are excluded from the author's own history view.
	DirectlyEntered() bool
}

// meta carries the fields every variant shares.
type meta struct {
	id      string
	author  Author
	created time.Time
}

func newMeta(author Author) meta {
	return meta{id: uuid.NewString(), author: author, created: time.Now()}
}

func (m meta) ID() string            { return m.id }
func (m meta) Author() Author        { return m.author }
func (m meta) CreatedAt() time.Time  { return m.created }
func (m meta) DirectlyEntered() bool { return false }

// Text is a plain text message.
type Text struct {
	meta
	Body  string
	Typed bool
}

// NewText creates a plain text message.
func NewText(author Author, body string) *Text {
	return &Text{meta: newMeta(author), Body: body}
}

// NewTypedText creates a text message flagged as directly entered by its author.
func NewTypedText(author Author, body string) *Text {
	return &Text{meta: newMeta(author), Body: body, Typed: true}
}

func (m *Text) ContentForUser() string      { return m.Body }
func (m *Text) ContentForAssistant() string { return m.Body }
func (m *Text) DirectlyEntered() bool       { return m.Typed }

// InvisibleText is hidden from the user but fed to the assistant. The engine
// uses it for continuation reminders in agent mode.
type InvisibleText struct {
	meta
	Body string
}

func NewInvisibleText(author Author, body string) *InvisibleText {
	return &InvisibleText{meta: newMeta(author), Body: body}
}

func (m *InvisibleText) ContentForUser() string      { return "" }
func (m *InvisibleText) ContentForAssistant() string { return m.Body }

// AssistantNotification is visible only to the assistant, typically carrying
// command parse diagnostics back into the next turn.
type AssistantNotification struct {
	meta
	Body string
}

func NewAssistantNotification(body string) *AssistantNotification {
	return &AssistantNotification{meta: newMeta(AuthorSystem), Body: body}
}

func (m *AssistantNotification) ContentForUser() string      { return "" }
func (m *AssistantNotification) ContentForAssistant() string { return m.Body }

// StreamedText is a lazy text message backed by a live chunk stream. The
// stream may be traversed once live; afterwards only the accumulated text
// remains, which is also what gets serialised.
type StreamedText struct {
	meta

	mu       sync.Mutex
	source   <-chan string
	buf      strings.Builder
	consumed bool
	finished bool
}

// NewStreamedText wraps a live chunk channel. The channel must be closed by
// the producer when the stream ends.
func NewStreamedText(author Author, source <-chan string) *StreamedText {
	return &StreamedText{meta: newMeta(author), source: source}
}

// NewFinishedStream builds an already-consumed stream holding text. Used when
// deserialising saved history.
func NewFinishedStream(author Author, text string) *StreamedText {
	m := &StreamedText{meta: newMeta(author), consumed: true, finished: true}
	m.buf.WriteString(text)
	return m
}

// Chunks returns the live chunk sequence on first call, accumulating text as
// it is traversed. Later calls replay the accumulated text as a single chunk.
func (m *StreamedText) Chunks() <-chan string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(chan string, 1)
	if m.consumed || m.source == nil {
		if m.buf.Len() > 0 {
			out <- m.buf.String()
		}
		close(out)
		return out
	}

	m.consumed = true
	src := m.source
	go func() {
		defer close(out)
		for chunk := range src {
			m.mu.Lock()
			m.buf.WriteString(chunk)
			m.mu.Unlock()
			out <- chunk
		}
		m.mu.Lock()
		m.finished = true
		m.mu.Unlock()
	}()
	return out
}

// drain consumes any remaining live chunks so the accumulated text is complete.
func (m *StreamedText) drain() {
	m.mu.Lock()
	if m.consumed || m.source == nil {
		m.mu.Unlock()
		return
	}
	m.consumed = true
	src := m.source
	m.mu.Unlock()

	for chunk := range src {
		m.mu.Lock()
		m.buf.WriteString(chunk)
		m.mu.Unlock()
	}
	m.mu.Lock()
	m.finished = true
	m.mu.Unlock()
}

// Finished reports whether the underlying stream has been fully traversed.
func (m *StreamedText) Finished() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.finished
}

func (m *StreamedText) ContentForUser() string {
	m.drain()
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.buf.String()
}

func (m *StreamedText) ContentForAssistant() string { return m.ContentForUser() }

// ThinkingText pairs a thinking stream with a response stream. Only the
// response is fed back to the model; the user sees both.
type ThinkingText struct {
	meta
	Thinking *StreamedText
	Response *StreamedText
}

func NewThinkingText(author Author, thinking, response <-chan string) *ThinkingText {
	return &ThinkingText{
		meta:     newMeta(author),
		Thinking: NewStreamedText(author, thinking),
		Response: NewStreamedText(author, response),
	}
}

func (m *ThinkingText) ContentForUser() string {
	thinking := m.Thinking.ContentForUser()
	response := m.Response.ContentForUser()
	if thinking == "" {
		return response
	}
	return "[thinking]\n" + thinking + "\n[/thinking]\n" + response
}

func (m *ThinkingText) ContentForAssistant() string { return m.Response.ContentForAssistant() }

// Image references an image by local path or URL.
type Image struct {
	meta
	Path string
	URL  string
}

func NewImage(author Author, path, url string) *Image {
	return &Image{meta: newMeta(author), Path: path, URL: url}
}

func (m *Image) location() string {
	if m.Path != "" {
		return m.Path
	}
	return m.URL
}

func (m *Image) ContentForUser() string      { return fmt.Sprintf("[image: %s]", m.location()) }
func (m *Image) ContentForAssistant() string { return m.ContentForUser() }

// Audio references an audio file by path.
type Audio struct {
	meta
	Path string
}

func NewAudio(author Author, path string) *Audio {
	return &Audio{meta: newMeta(author), Path: path}
}

func (m *Audio) ContentForUser() string      { return fmt.Sprintf("[audio: %s]", m.Path) }
func (m *Audio) ContentForAssistant() string { return m.ContentForUser() }

// Video references a video file by path.
type Video struct {
	meta
	Path string
}

func NewVideo(author Author, path string) *Video {
	return &Video{meta: newMeta(author), Path: path}
}

func (m *Video) ContentForUser() string      { return fmt.Sprintf("[video: %s]", m.Path) }
func (m *Video) ContentForAssistant() string { return m.ContentForUser() }

// PDF embeds a PDF document with an optional page selection.
type PDF struct {
	meta
	Path  string
	Pages []int
}

func NewPDF(author Author, path string, pages []int) *PDF {
	return &PDF{meta: newMeta(author), Path: path, Pages: pages}
}

func (m *PDF) ContentForUser() string {
	if len(m.Pages) > 0 {
		return fmt.Sprintf("[pdf: %s pages %v]", m.Path, m.Pages)
	}
	return fmt.Sprintf("[pdf: %s]", m.Path)
}

func (m *PDF) ContentForAssistant() string { return m.ContentForUser() }

// File is a textual file, either referenced by path or carried inline.
type File struct {
	meta
	Path    string
	Content string
}

func NewFile(author Author, path, content string) *File {
	return &File{meta: newMeta(author), Path: path, Content: content}
}

func (m *File) ContentForUser() string {
	if m.Content == "" {
		return fmt.Sprintf("[file: %s]", m.Path)
	}
	return fmt.Sprintf("[file: %s]\n%s", m.Path, m.Content)
}

func (m *File) ContentForAssistant() string { return m.ContentForUser() }

// URL references a web resource.
type URL struct {
	meta
	Target string
}

func NewURL(author Author, target string) *URL {
	return &URL{meta: newMeta(author), Target: target}
}

func (m *URL) ContentForUser() string      { return m.Target }
func (m *URL) ContentForAssistant() string { return m.Target }

// CommandOutput carries the output of a command the assistant ran.
type CommandOutput struct {
	meta
	Command string
	Output  string
}

func NewCommandOutput(command, output string) *CommandOutput {
	return &CommandOutput{meta: newMeta(AuthorSystem), Command: command, Output: output}
}

func (m *CommandOutput) ContentForUser() string {
	return fmt.Sprintf("[%s]\n%s", m.Command, m.Output)
}

func (m *CommandOutput) ContentForAssistant() string { return m.ContentForUser() }
