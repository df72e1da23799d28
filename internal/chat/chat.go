// Package chat defines the narrow contract between the file-manager
// core and the chat transport. The core consumes Updates and replies
// through Transport; it never assumes which chat network sits behind
// either, and never assumes delivery order across different chats.
package chat

import (
	"context"
	"io"
)

// MaxTokenLength is the ceiling the transport imposes on control
// tokens. Relative ids, not absolute paths, are embedded in tokens for
// exactly this reason.
const MaxTokenLength = 64

// Button is one inline control: a label the user sees and the token the
// transport hands back on activation.
type Button struct {
	Label string
	Token string
}

// Keyboard is rows of buttons attached to a message.
type Keyboard [][]Button

// UpdateKind classifies an inbound interaction.
type UpdateKind int

const (
	// KindCommand is a slash command with arguments.
	KindCommand UpdateKind = iota
	// KindText is a free-text message.
	KindText
	// KindFile is an incoming file attachment.
	KindFile
	// KindControl is an inline-button activation.
	KindControl
)

func (k UpdateKind) String() string {
	switch k {
	case KindCommand:
		return "command"
	case KindText:
		return "text"
	case KindFile:
		return "file"
	case KindControl:
		return "control"
	default:
		return "unknown"
	}
}

// FileMeta describes an attachment by reference; bytes are fetched
// lazily through Transport.FetchFile when the upload commits.
type FileMeta struct {
	Ref       string
	Name      string
	SizeBytes int64
}

// Update is one inbound interaction, already classified.
type Update struct {
	Kind     UpdateKind
	UserID   int64
	Username string

	// MessageID is the message carrying the activated control, so the
	// reply can edit it in place. Zero for non-control updates.
	MessageID int

	// ControlID identifies the activation for acknowledgement.
	ControlID string

	Command string   // KindCommand
	Args    []string // KindCommand
	Text    string   // KindText
	File    *FileMeta
	Token   string // KindControl
}

// Transport is the outbound side of the chat network.
type Transport interface {
	// SendMessage delivers text with an optional keyboard and returns
	// the new message's id.
	SendMessage(ctx context.Context, userID int64, text string, kb Keyboard) (int, error)

	// EditMessage replaces an earlier message's text and keyboard.
	EditMessage(ctx context.Context, userID int64, messageID int, text string, kb Keyboard) error

	// SendFile streams a document to the user.
	SendFile(ctx context.Context, userID int64, name string, body io.Reader) error

	// FetchFile opens the bytes behind an attachment reference.
	FetchFile(ctx context.Context, ref string) (io.ReadCloser, error)

	// AnswerControl acknowledges a control activation, optionally with
	// a popup notice.
	AnswerControl(ctx context.Context, controlID, text string, alert bool) error
}

// Handler consumes classified updates. The transport drives it.
type Handler interface {
	HandleUpdate(ctx context.Context, u Update)
}
