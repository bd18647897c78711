// Package hooklog provides hookwave's internal diagnostic logger, kept
// deliberately separate from internal/output's user-facing status lines.
// It is modeled on githubnext-gh-aw's pkg/workflow/logging.Logger: a
// category-tagged slog.Logger whose categories can be selectively enabled
// via an environment variable, so a single verbose run can be filtered down
// to e.g. just scheduler trace without discovery noise.
package hooklog

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// EnvFilter is the environment variable that enables specific log
// categories. "all" enables every category; a comma-separated list enables
// only those named. Unset or empty disables all categories; the
// uncategorized logger from New is not affected by the filter.
const EnvFilter = "HOOKWAVE_LOG_FILTER"

// Logger wraps slog.Logger with a category used for filtering.
type Logger struct {
	*slog.Logger
	verbose  bool
	category string
}

// New creates a logger writing to os.Stderr. If verbose is true the level
// is Debug, otherwise Info.
func New(verbose bool) *Logger {
	return NewWithCategory(verbose, "")
}

// NewWithCategory creates a category-tagged logger. When category is
// non-empty, it is only emitted if EnvFilter enables it (or is "all");
// otherwise its level is raised above any real log level so nothing is
// written, mirroring githubnext-gh-aw's NewLoggerWithCategory.
func NewWithCategory(verbose bool, category string) *Logger {
	return NewWithWriterAndCategory(verbose, os.Stderr, category)
}

// NewWithWriterAndCategory is NewWithCategory with an explicit writer,
// primarily for tests that want to capture output.
func NewWithWriterAndCategory(verbose bool, w io.Writer, category string) *Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	if category != "" && !categoryEnabled(category) {
		level = slog.Level(1000) // effectively disables Debug/Info/Warn/Error for this category
	}

	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	logger := slog.New(handler)
	if category != "" {
		logger = logger.With("category", category)
	}
	return &Logger{Logger: logger, verbose: verbose, category: category}
}

// Verbose reports whether this logger was created with verbose=true.
func (l *Logger) Verbose() bool { return l.verbose }

// With returns a derived logger for a named category, typically one call
// per component (discover, selector, scheduler, runner).
func (l *Logger) With(category string) *Logger {
	return NewWithCategory(l.verbose, category)
}

func categoryEnabled(category string) bool {
	filter := os.Getenv(EnvFilter)
	if filter == "" {
		return false
	}
	if filter == "all" {
		return true
	}
	for _, c := range strings.Split(filter, ",") {
		if strings.TrimSpace(c) == category {
			return true
		}
	}
	return false
}
