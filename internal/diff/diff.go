// Package diff renders line diffs between the manifest on disk and a fresh
// render.
package diff

import (
	"fmt"
	"io"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// Result holds a unified diff and its line counts.
type Result struct {
	Unified  string
	Added    int
	Removed  int
	OldLabel string
	NewLabel string
}

// HasDifferences reports whether the documents differ.
func (r *Result) HasDifferences() bool {
	return r.Unified != ""
}

// Summary returns a short "+N -M" description.
func (r *Result) Summary() string {
	return fmt.Sprintf("+%d -%d", r.Added, r.Removed)
}

// Options configures Compute.
type Options struct {
	OldLabel string
	NewLabel string
	Context  int
}

// DefaultOptions returns the labels and context used by the check command.
func DefaultOptions() Options {
	return Options{
		OldLabel: "current",
		NewLabel: "generated",
		Context:  3,
	}
}

// Compute produces a unified diff from oldDoc to newDoc.
func Compute(oldDoc, newDoc string, opts Options) (*Result, error) {
	unified, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        splitLines(oldDoc),
		B:        splitLines(newDoc),
		FromFile: opts.OldLabel,
		ToFile:   opts.NewLabel,
		Context:  opts.Context,
	})
	if err != nil {
		return nil, fmt.Errorf("computing diff: %w", err)
	}

	res := &Result{
		Unified:  unified,
		OldLabel: opts.OldLabel,
		NewLabel: opts.NewLabel,
	}

	for _, line := range strings.Split(unified, "\n") {
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
		case strings.HasPrefix(line, "+"):
			res.Added++
		case strings.HasPrefix(line, "-"):
			res.Removed++
		}
	}

	return res, nil
}

// Write prints the diff to w, with ANSI colors when color is true.
func Write(w io.Writer, res *Result, color bool) {
	if !res.HasDifferences() {
		_, _ = fmt.Fprintln(w, "No differences found.")
		return
	}

	for _, line := range strings.Split(strings.TrimSuffix(res.Unified, "\n"), "\n") {
		if !color {
			_, _ = fmt.Fprintln(w, line)
			continue
		}

		_, _ = fmt.Fprintln(w, colorize(line))
	}
}

func colorize(line string) string {
	const (
		red   = "\033[31m"
		green = "\033[32m"
		cyan  = "\033[36m"
		bold  = "\033[1m"
		reset = "\033[0m"
	)

	switch {
	case strings.HasPrefix(line, "---"), strings.HasPrefix(line, "+++"):
		return bold + line + reset
	case strings.HasPrefix(line, "@@"):
		return cyan + line + reset
	case strings.HasPrefix(line, "-"):
		return red + line + reset
	case strings.HasPrefix(line, "+"):
		return green + line + reset
	default:
		return line
	}
}

// splitLines keeps trailing newlines, as difflib expects.
func splitLines(s string) []string {
	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	return lines
}
