package output

import (
	"fmt"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"golang.org/x/term"
)

// Spinner shows progress around a blocking step. It stays silent when the
// writer is not a terminal.
type Spinner struct {
	spin *spinner.Spinner
}

// StartSpinner starts a spinner on f with a message.
func StartSpinner(f *os.File, message string) *Spinner {
	if !IsTerminal(f) {
		return &Spinner{}
	}
	spin := spinner.New(spinner.CharSets[11], 100*time.Millisecond, spinner.WithWriter(f))
	spin.Suffix = fmt.Sprintf(" %s...", message)
	spin.Start()
	return &Spinner{spin: spin}
}

// Update changes the message.
func (s *Spinner) Update(message string) {
	if s.spin != nil {
		s.spin.Lock()
		s.spin.Suffix = fmt.Sprintf(" %s...", message)
		s.spin.Unlock()
	}
}

// Stop stops the spinner and clears its line.
func (s *Spinner) Stop() {
	if s.spin != nil {
		s.spin.Stop()
	}
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
