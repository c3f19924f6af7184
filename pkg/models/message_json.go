package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// envelope is the on-disk message shape. The type tag selects the variant;
// unknown tags fail fast on load.
type envelope struct {
	Type            string    `json:"type"`
	ID              string    `json:"id,omitempty"`
	Author          Author    `json:"author"`
	CreatedAt       time.Time `json:"created_at"`
	Text            string    `json:"text,omitempty"`
	DirectlyEntered bool      `json:"directly_entered,omitempty"`
	Thinking        string    `json:"thinking,omitempty"`
	HasFinished     *bool     `json:"has_finished,omitempty"`
	Path            string    `json:"path,omitempty"`
	URL             string    `json:"url,omitempty"`
	Pages           []int     `json:"pages,omitempty"`
	Content         string    `json:"content,omitempty"`
	Command         string    `json:"command,omitempty"`
	Output          string    `json:"output,omitempty"`
}

const (
	typeText                  = "text"
	typeInvisibleText         = "invisible_text"
	typeAssistantNotification = "assistant_notification"
	typeStreamedText          = "streamed_text"
	typeThinkingText          = "thinking_text"
	typeImage                 = "image"
	typeAudio                 = "audio"
	typeVideo                 = "video"
	typePDF                   = "pdf"
	typeFile                  = "file"
	typeURL                   = "url"
	typeCommandOutput         = "command_output"
)

// MarshalMessage serialises a message into its tagged JSON envelope. Streamed
// variants are written as their accumulated text plus a has_finished flag.
func MarshalMessage(m Message) ([]byte, error) {
	env := envelope{ID: m.ID(), Author: m.Author(), CreatedAt: m.CreatedAt()}

	switch v := m.(type) {
	case *Text:
		env.Type = typeText
		env.Text = v.Body
		env.DirectlyEntered = v.Typed
	case *InvisibleText:
		env.Type = typeInvisibleText
		env.Text = v.Body
	case *AssistantNotification:
		env.Type = typeAssistantNotification
		env.Text = v.Body
	case *StreamedText:
		env.Type = typeStreamedText
		env.Text = v.ContentForUser()
		finished := v.Finished()
		env.HasFinished = &finished
	case *ThinkingText:
		env.Type = typeThinkingText
		env.Thinking = v.Thinking.ContentForUser()
		env.Text = v.Response.ContentForUser()
		finished := v.Response.Finished()
		env.HasFinished = &finished
	case *Image:
		env.Type = typeImage
		env.Path = v.Path
		env.URL = v.URL
	case *Audio:
		env.Type = typeAudio
		env.Path = v.Path
	case *Video:
		env.Type = typeVideo
		env.Path = v.Path
	case *PDF:
		env.Type = typePDF
		env.Path = v.Path
		env.Pages = v.Pages
	case *File:
		env.Type = typeFile
		env.Path = v.Path
		env.Content = v.Content
	case *URL:
		env.Type = typeURL
		env.URL = v.Target
	case *CommandOutput:
		env.Type = typeCommandOutput
		env.Command = v.Command
		env.Output = v.Output
	default:
		return nil, fmt.Errorf("cannot serialise message type %T", m)
	}

	return json.Marshal(env)
}

// UnmarshalMessage decodes a tagged JSON envelope back into a message.
// Unknown type tags are an error so corrupted snapshots fail loudly.
func UnmarshalMessage(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}

	// Snapshots from older builds may lack IDs; give those messages fresh ones.
	id := env.ID
	if id == "" {
		id = uuid.NewString()
	}
	m := meta{id: id, author: env.Author, created: env.CreatedAt}

	switch env.Type {
	case typeText:
		return &Text{meta: m, Body: env.Text, Typed: env.DirectlyEntered}, nil
	case typeInvisibleText:
		return &InvisibleText{meta: m, Body: env.Text}, nil
	case typeAssistantNotification:
		return &AssistantNotification{meta: m, Body: env.Text}, nil
	case typeStreamedText:
		msg := NewFinishedStream(env.Author, env.Text)
		msg.meta = m
		if env.HasFinished != nil {
			msg.finished = *env.HasFinished
		}
		return msg, nil
	case typeThinkingText:
		thinking := NewFinishedStream(env.Author, env.Thinking)
		response := NewFinishedStream(env.Author, env.Text)
		return &ThinkingText{meta: m, Thinking: thinking, Response: response}, nil
	case typeImage:
		return &Image{meta: m, Path: env.Path, URL: env.URL}, nil
	case typeAudio:
		return &Audio{meta: m, Path: env.Path}, nil
	case typeVideo:
		return &Video{meta: m, Path: env.Path}, nil
	case typePDF:
		return &PDF{meta: m, Path: env.Path, Pages: env.Pages}, nil
	case typeFile:
		return &File{meta: m, Path: env.Path, Content: env.Content}, nil
	case typeURL:
		return &URL{meta: m, Target: env.URL}, nil
	case typeCommandOutput:
		return &CommandOutput{meta: m, Command: env.Command, Output: env.Output}, nil
	case "":
		return nil, fmt.Errorf("message has no type tag")
	default:
		return nil, fmt.Errorf("unknown message type %q", env.Type)
	}
}
