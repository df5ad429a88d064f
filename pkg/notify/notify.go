// Package notify writes user-facing status messages with a consistent symbol
// and color per message type.
package notify

import (
	"fmt"
	"io"
	"os"

	fcolor "github.com/fatih/color"
)

// MessageType classifies a message for symbol and color selection.
type MessageType int

const (
	// InfoType is a neutral informational message.
	InfoType MessageType = iota
	// TitleType is a section title.
	TitleType
	// ActivityType is an in-progress activity line.
	ActivityType
	// SuccessType marks a completed operation.
	SuccessType
	// WarningType marks a non-fatal problem.
	WarningType
	// ErrorType marks a fatal problem.
	ErrorType
)

// Message is a single user-facing message. Content is a printf format string
// applied to Args. Writer defaults to os.Stdout when nil.
type Message struct {
	Type    MessageType
	Content string
	Args    []any
	Writer  io.Writer
}

//nolint:gochecknoglobals // Color printers are immutable after construction.
var (
	successColor = fcolor.New(fcolor.FgGreen)
	warningColor = fcolor.New(fcolor.FgYellow)
	errorColor   = fcolor.New(fcolor.FgRed)
	titleColor   = fcolor.New(fcolor.Bold)
)

// WriteMessage formats and writes the message with its type symbol.
func WriteMessage(msg Message) {
	writer := msg.Writer
	if writer == nil {
		writer = os.Stdout
	}

	content := fmt.Sprintf(msg.Content, msg.Args...)

	switch msg.Type {
	case TitleType:
		_, _ = titleColor.Fprintf(writer, "%s\n", content)
	case ActivityType:
		_, _ = fmt.Fprintf(writer, "► %s\n", content)
	case SuccessType:
		_, _ = successColor.Fprintf(writer, "✔ %s\n", content)
	case WarningType:
		_, _ = warningColor.Fprintf(writer, "⚠ %s\n", content)
	case ErrorType:
		_, _ = errorColor.Fprintf(writer, "✗ %s\n", content)
	case InfoType:
		_, _ = fmt.Fprintf(writer, "%s\n", content)
	}
}

// Errorf writes an error-typed message to the given writer.
func Errorf(writer io.Writer, format string, args ...any) {
	WriteMessage(Message{
		Type:    ErrorType,
		Content: format,
		Args:    args,
		Writer:  writer,
	})
}
