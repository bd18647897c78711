// Package output implements the Output Aggregator (spec.md §4.9,
// component C9): rendering deterministic, non-interleaved status lines
// and captured stdio for every invocation as a run progresses.
//
// Buffering-then-flush-atomically is grounded on the teacher's
// bufferedOutput (pk/output.go): each invocation gets its own buffer;
// Emit copies it to the shared writer under a single mutex so no two
// invocations' bodies interleave, matching spec.md §4.9's atomicity
// guarantee. Color rendering uses fatih/color gated by
// mattn/go-isatty, writing through mattn/go-colorable so ANSI codes
// still render correctly when stdout is wrapped (e.g. piped through a
// Windows console) — the real Go pre-commit reimplementation in the
// retrieval corpus (blairham-go-pre-commit) carries the same trio for
// the same reason.
package output

import (
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"

	"github.com/hookwave/hookwave/internal/scheduler"
)

// Status is the terminal verdict rendered on a status line.
type Status int

const (
	StatusPassed Status = iota
	StatusFailed
	StatusSkipped
	StatusCancelled
)

func (s Status) label() string {
	switch s {
	case StatusPassed:
		return "Passed"
	case StatusFailed:
		return "Failed"
	case StatusSkipped:
		return "Skipped"
	case StatusCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// FromSchedulerState maps a scheduler.State to the Status the aggregator
// renders for it.
func FromSchedulerState(s scheduler.State) Status {
	switch s {
	case scheduler.Success:
		return StatusPassed
	case scheduler.Failure:
		return StatusFailed
	case scheduler.Cancelled:
		return StatusCancelled
	default:
		return StatusSkipped
	}
}

// Invocation is the rendering input for one completed HookInvocation.
type Invocation struct {
	ProjectPath string // "" for the workspace root project
	DisplayName string
	Status      Status
	Stdout      string
	Stderr      string
	LogFile     string
	DiffMutated bool
	Verbose     bool
}

// Aggregator renders invocation results to its stdout/stderr writers,
// with a project header once per project and no interleaving between
// invocations (spec.md §4.9). Invocations are rendered in the order Emit
// is called; the Aggregator does not reorder them, so rendering by start
// order in verbose mode is not provided.
type Aggregator struct {
	mu            sync.Mutex
	stdout        io.Writer
	stderr        io.Writer
	color         bool
	projectsShown map[string]bool
	lineWidth     int
}

// New returns an Aggregator writing to stdout/stderr, auto-detecting
// color support via isatty unless forceColor/forceNoColor override it.
func New(stdout, stderr io.Writer, forceColor, forceNoColor bool) *Aggregator {
	useColor := false
	if f, ok := stdout.(interface{ Fd() uintptr }); ok {
		useColor = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	if forceColor {
		useColor = true
	}
	if forceNoColor {
		useColor = false
	}

	return &Aggregator{
		stdout:        stdout,
		stderr:        stderr,
		color:         useColor,
		projectsShown: make(map[string]bool),
		lineWidth:     60,
	}
}

// NewForTerminal is a convenience constructor for real process stdio: it
// writes through mattn/go-colorable so ANSI sequences from fatih/color
// still render when stdout has been wrapped (notably on older Windows
// consoles lacking native ANSI support), and auto-detects color support
// via mattn/go-isatty on the underlying file descriptors.
func NewForTerminal(forceColor, forceNoColor bool) *Aggregator {
	agg := New(colorable.NewColorableStdout(), colorable.NewColorableStderr(), forceColor, forceNoColor)
	return agg
}

// Emit renders one invocation's result: the project header (once per
// project), the status line, and — on failure or when verbose — the
// captured stdio. The whole call is serialized under one mutex so
// spec.md §4.9's "no two invocations' bodies interleave" holds even
// under concurrent Emit calls from different scheduler goroutines.
func (a *Aggregator) Emit(inv Invocation) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.projectsShown[inv.ProjectPath] {
		a.projectsShown[inv.ProjectPath] = true
		label := inv.ProjectPath
		if label == "" {
			label = "."
		}
		fmt.Fprintf(a.stdout, "Running hooks for '%s':\n", label)
	}

	fmt.Fprint(a.stdout, a.statusLine(inv))

	if inv.Status == StatusFailed || inv.Verbose {
		if inv.Stdout != "" {
			fmt.Fprint(a.stdout, inv.Stdout)
		}
		if inv.Stderr != "" {
			fmt.Fprint(a.stderr, inv.Stderr)
		}
		if inv.LogFile != "" {
			fmt.Fprintf(a.stdout, "log file: %s\n", inv.LogFile)
		}
	}
	if inv.DiffMutated {
		fmt.Fprintln(a.stdout, "files were modified by this hook")
	}
}

// statusLine renders "<display-name><dots>Passed|Failed|..." per
// spec.md §4.9, padding with dots to lineWidth the way pre-commit-style
// tools align their status column.
func (a *Aggregator) statusLine(inv Invocation) string {
	label := inv.Status.label()
	dots := a.lineWidth - len(inv.DisplayName) - len(label)
	if dots < 1 {
		dots = 1
	}
	line := inv.DisplayName + repeat('.', dots) + label + "\n"
	if !a.color {
		return line
	}
	return a.colorize(inv.Status, inv.DisplayName, dots, label)
}

func (a *Aggregator) colorize(status Status, name string, dots int, label string) string {
	var c *color.Color
	switch status {
	case StatusPassed:
		c = color.New(color.FgGreen)
	case StatusFailed:
		c = color.New(color.FgRed, color.Bold)
	case StatusSkipped:
		c = color.New(color.FgYellow)
	case StatusCancelled:
		c = color.New(color.FgMagenta)
	default:
		c = color.New(color.Reset)
	}
	return name + repeat('.', dots) + c.Sprint(label) + "\n"
}

func repeat(b byte, n int) string {
	out := make([]byte, n)
	for i := range out {
		out[i] = b
	}
	return string(out)
}
