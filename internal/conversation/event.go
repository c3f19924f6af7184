// Package conversation implements the cycle scheduler: it alternates user
// and assistant turns, intercepts engine commands, drives agent-mode
// continuation, and keeps history transactional across interruptions.
package conversation

import (
	"errors"

	"github.com/haasonsaas/parley/pkg/models"
)

// ErrInterrupted is returned by participants when the user interrupts the
// current turn. The orchestrator discards the uncommitted draft and starts
// a fresh cycle.
var ErrInterrupted = errors.New("interrupted")

// ErrEndOfInput terminates the conversation loop. Raised by the Exit
// command and by participants on EOF.
var ErrEndOfInput = errors.New("end of input")

// Event is anything flowing between participants and the orchestrator.
// Only MessageEvent contributes to history; engine commands are executed by
// the orchestrator and never forwarded.
type Event interface {
	isEvent()
}

// MessageEvent carries a new message intended for the other side and for
// history.
type MessageEvent struct {
	Message models.Message
}

// HistoryRecoveryEvent replays a history snapshot ahead of live events when
// a participant is rendered for a fresh turn.
type HistoryRecoveryEvent struct {
	Messages []models.Message
}

// NotificationEvent is a transient message: rendered, never stored.
type NotificationEvent struct {
	Text string
}

// ErrorEvent is how a participant surfaces a failure mid-stream. The
// orchestrator aborts the cycle with the carried error; ErrInterrupted and
// ErrEndOfInput get their usual loop treatment.
type ErrorEvent struct {
	Err error
}

func (MessageEvent) isEvent()         {}
func (HistoryRecoveryEvent) isEvent() {}
func (NotificationEvent) isEvent()    {}
func (ErrorEvent) isEvent()           {}
