package errors

import (
	stderrors "errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/vango-dev/pulse/pkg/protocol"
)

var (
	red  = color.New(color.FgRed, color.Bold).SprintFunc()
	bold = color.New(color.Bold).SprintFunc()
	cyan = color.New(color.FgCyan).SprintFunc()
	gray = color.New(color.FgHiBlack).SprintFunc()
	blue = color.New(color.FgBlue).SprintFunc()
)

// DisableColors disables ANSI color output.
func DisableColors() {
	color.NoColor = true
}

// EnableColors enables ANSI color output.
func EnableColors() {
	color.NoColor = false
}

// Format renders err for terminal display. ErrorInfo values get their
// code, registered detail and help link.
func Format(err error) string {
	var b strings.Builder
	b.WriteString("\n")

	var ei *protocol.ErrorInfo
	if !stderrors.As(err, &ei) {
		b.WriteString(red("ERROR: "))
		b.WriteString(err.Error())
		b.WriteString("\n\n")
		return b.String()
	}

	b.WriteString(red("ERROR "))
	b.WriteString(bold(strconv.Itoa(ei.Code) + ": "))
	b.WriteString(ei.Message)
	b.WriteString("\n\n")

	if ei.Cause != nil {
		b.WriteString("  ")
		b.WriteString(cyan("Cause: "))
		b.WriteString(ei.Cause.Error())
		b.WriteString("\n\n")
	}

	if detail := Detail(ei.Code); detail != "" {
		for _, line := range wrapText(detail, 70) {
			b.WriteString("  ")
			b.WriteString(line)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if ei.HRef != "" {
		b.WriteString("  ")
		b.WriteString(gray("Learn more: "))
		b.WriteString(blue(ei.HRef))
		b.WriteString("\n")
	}

	return b.String()
}

// FormatCompact returns a single-line rendering.
func FormatCompact(err error) string {
	var ei *protocol.ErrorInfo
	if !stderrors.As(err, &ei) {
		return err.Error()
	}
	s := fmt.Sprintf("%d: %s", ei.Code, ei.Message)
	if ei.Cause != nil {
		s += ": " + ei.Cause.Error()
	}
	return s
}

// wrapText wraps text to the specified width.
func wrapText(text string, width int) []string {
	if text == "" {
		return nil
	}
	if len(text) <= width {
		return []string{text}
	}

	var lines []string
	words := strings.Fields(text)
	var current strings.Builder

	for _, word := range words {
		if current.Len()+len(word)+1 > width {
			if current.Len() > 0 {
				lines = append(lines, current.String())
				current.Reset()
			}
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(word)
	}

	if current.Len() > 0 {
		lines = append(lines, current.String())
	}

	return lines
}

// PrintError prints a formatted error to w.
func PrintError(w io.Writer, err error) {
	fmt.Fprint(w, Format(err))
}
