// Package progress reports what a report run is doing.
package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// Event types.
const (
	EventInfo  = "info"
	EventFile  = "file"
	EventDone  = "done"
	EventError = "error"
)

// Event is a single progress update.
type Event struct {
	Type    string `json:"type"`              // "info", "file", "done", "error"
	Index   int    `json:"index,omitempty"`   // 1-based position among fetched files
	Total   int    `json:"total,omitempty"`   // number of files being fetched
	File    string `json:"file,omitempty"`    // file identifier
	Kind    string `json:"kind,omitempty"`    // resolution strategy
	Message string `json:"message,omitempty"` // human-readable message or source error
	Failed  bool   `json:"failed,omitempty"`  // source could not be resolved
}

// Emitter receives progress events. Implementations must be safe for
// concurrent use.
type Emitter interface {
	Emit(event Event)
}

// Emit sends ev to e if e is non-nil.
func Emit(e Emitter, ev Event) {
	if e != nil {
		e.Emit(ev)
	}
}

// TextEmitter formats events as human-readable lines.
type TextEmitter struct {
	W       io.Writer
	Verbose bool

	mu sync.Mutex
}

// NewTextEmitter creates a TextEmitter writing to w.
func NewTextEmitter(w io.Writer, verbose bool) *TextEmitter {
	return &TextEmitter{W: w, Verbose: verbose}
}

// Emit writes a formatted progress line. File events are only written in
// verbose mode unless they failed.
func (e *TextEmitter) Emit(ev Event) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch ev.Type {
	case EventInfo:
		fmt.Fprintln(e.W, ev.Message)
	case EventFile:
		if ev.Failed {
			yellow := color.New(color.FgYellow)
			_, _ = yellow.Fprintf(e.W, "[%d/%d] %s: %s\n", ev.Index, ev.Total, ev.File, ev.Message)
		} else if e.Verbose {
			fmt.Fprintf(e.W, "[%d/%d] %s (%s)\n", ev.Index, ev.Total, ev.File, ev.Kind)
		}
	case EventDone:
		green := color.New(color.FgGreen)
		_, _ = green.Fprintln(e.W, ev.Message)
	case EventError:
		red := color.New(color.FgRed)
		_, _ = red.Fprintf(e.W, "Error: %s\n", ev.Message)
	}
}

// Close is a no-op so TextEmitter can be used where a spinner may be.
func (e *TextEmitter) Close() {}

// SpinnerEmitter shows a spinner while sources are resolved and forwards
// everything else to a TextEmitter.
type SpinnerEmitter struct {
	s    *spinner.Spinner
	text *TextEmitter

	mu sync.Mutex
}

// NewSpinnerEmitter creates a SpinnerEmitter writing to w.
func NewSpinnerEmitter(w io.Writer) *SpinnerEmitter {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(w))
	return &SpinnerEmitter{s: s, text: NewTextEmitter(w, false)}
}

// Emit updates the spinner for file events and prints the rest.
func (e *SpinnerEmitter) Emit(ev Event) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if ev.Type == EventFile && !ev.Failed {
		e.s.Lock()
		e.s.Suffix = fmt.Sprintf(" Resolving sources %d/%d", ev.Index, ev.Total)
		e.s.Unlock()
		if !e.s.Active() {
			e.s.Start()
		}
		return
	}

	active := e.s.Active()
	if active {
		e.s.Stop()
	}
	e.text.Emit(ev)
	if active && ev.Type == EventFile {
		e.s.Start()
	}
}

// Close stops the spinner.
func (e *SpinnerEmitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.s.Active() {
		e.s.Stop()
	}
}

// CloseEmitter is an Emitter that must be closed when the run ends.
type CloseEmitter interface {
	Emitter
	Close()
}

// NewTerminalEmitter returns a spinner on interactive terminals and plain
// text otherwise or when verbose output is requested.
func NewTerminalEmitter(f *os.File, verbose bool) CloseEmitter {
	if !verbose && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
		return NewSpinnerEmitter(f)
	}
	return NewTextEmitter(f, verbose)
}
