// Package output renders command results for the terminal: status markers,
// tables, prompts and a progress spinner.
package output

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

// Status markers printed in front of per-deployment results.
const (
	MarkSuccess = "✅"
	MarkFailure = "❌"
	MarkWarning = "⚠️"
	MarkSkipped = "⏭️"
)

var (
	successColor = color.New(color.FgGreen)
	failureColor = color.New(color.FgRed, color.Bold)
	warningColor = color.New(color.FgYellow)
	skippedColor = color.New(color.FgCyan)
)

// Success prints a success line.
func Success(w io.Writer, format string, args ...any) {
	mark(w, successColor, MarkSuccess, format, args...)
}

// Failure prints a failure line.
func Failure(w io.Writer, format string, args ...any) {
	mark(w, failureColor, MarkFailure, format, args...)
}

// Warning prints a warning line.
func Warning(w io.Writer, format string, args ...any) {
	mark(w, warningColor, MarkWarning, format, args...)
}

// Skipped prints a skipped line.
func Skipped(w io.Writer, format string, args ...any) {
	mark(w, skippedColor, MarkSkipped, format, args...)
}

// Detail prints an indented continuation line under a marker.
func Detail(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "   "+format+"\n", args...)
}

func mark(w io.Writer, c *color.Color, marker, format string, args ...any) {
	fmt.Fprintf(w, "%s %s\n", marker, c.Sprintf(format, args...))
}
