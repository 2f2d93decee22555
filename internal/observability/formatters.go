// Package observability provides formatted output utilities for verbose CLI mode.
package observability

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jonathan/bill-agent/internal/mahadiscom"
	"github.com/jonathan/bill-agent/internal/runner"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer handles formatted output for verbose mode
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	lines := strings.Split(content, "\n")
	for _, line := range lines {
		line = truncate(line, boxWidth-4)
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, line)
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// truncate shortens s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

// PrintSummary outputs the per-site totals and the files produced by a run.
func (p *Printer) PrintSummary(s *runner.Summary) {
	if s == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Run:       %s\n", s.RunID))
	sb.WriteString(fmt.Sprintf("Duration:  %s\n", s.Duration().Round(time.Second)))
	sb.WriteString(fmt.Sprintf("Restarts:  %d\n", s.Restarts))
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("Success:          %d\n", s.Count(runner.Success)))
	sb.WriteString(fmt.Sprintf("Skipped:          %d\n", s.Count(runner.Skipped)))
	sb.WriteString(fmt.Sprintf("Failed (next):    %d\n", s.Count(runner.FailedRecovered)))
	sb.WriteString(fmt.Sprintf("Failed (restart): %d\n", s.Count(runner.FailedRestarted)))

	artifacts := s.Artifacts()
	if len(artifacts) > 0 {
		sb.WriteString("\nBills:\n")
		count := min(len(artifacts), maxItemsToShow)
		for i := 0; i < count; i++ {
			sb.WriteString(fmt.Sprintf("  • %s\n", artifacts[i]))
		}
		if len(artifacts) > maxItemsToShow {
			sb.WriteString(fmt.Sprintf("  ... and %d more\n", len(artifacts)-maxItemsToShow))
		}
	}

	var failed []runner.Result
	for _, r := range s.Results {
		if r.Err != nil {
			failed = append(failed, r)
		}
	}
	if len(failed) > 0 {
		sb.WriteString("\nFailures:\n")
		count := min(len(failed), maxItemsToShow)
		for i := 0; i < count; i++ {
			sb.WriteString(fmt.Sprintf("  • %s: %v\n", failed[i].Key, failed[i].Err))
		}
		if len(failed) > maxItemsToShow {
			sb.WriteString(fmt.Sprintf("  ... and %d more\n", len(failed)-maxItemsToShow))
		}
	}

	p.printBox(fmt.Sprintf("BILL RUN SUMMARY (%s)", strings.ToUpper(s.Site)), strings.TrimSuffix(sb.String(), "\n"))
}

// PrintAttempt outputs one CAPTCHA login attempt as a single line.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintAttempt(a mahadiscom.Attempt) {
	line := fmt.Sprintf("attempt %2d  %-24s", a.Index, a.Result())
	if a.Text != "" {
		line += fmt.Sprintf(" read=%q", a.Text)
	}
	if a.Alert != "" {
		line += fmt.Sprintf(" alert=%q", a.Alert)
	}
	fmt.Fprintln(p.out, strings.TrimRight(line, " "))
}
