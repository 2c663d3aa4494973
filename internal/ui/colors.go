package ui

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/eliteGoblin/focusd/lockin/internal/domain"
)

// Color functions for styled output
var (
	Green  = color.New(color.FgGreen).SprintFunc()
	Yellow = color.New(color.FgYellow).SprintFunc()
	Red    = color.New(color.FgRed).SprintFunc()
	Cyan   = color.New(color.FgCyan).SprintFunc()
	Bold   = color.New(color.Bold).SprintFunc()
	Dim    = color.New(color.Faint).SprintFunc()
)

// Success prints a message with a green checkmark.
func Success(out io.Writer, format string, args ...interface{}) {
	fmt.Fprintf(out, "%s %s\n", Green("✓"), fmt.Sprintf(format, args...))
}

// Warning prints a message with a yellow warning sign.
func Warning(out io.Writer, format string, args ...interface{}) {
	fmt.Fprintf(out, "%s %s\n", Yellow("⚠"), fmt.Sprintf(format, args...))
}

// Classification colors a process category.
func Classification(c domain.Classification) string {
	switch c {
	case domain.ClassWork:
		return Green(string(c))
	case domain.ClassEntertainment:
		return Red(string(c))
	case domain.ClassMixed:
		return Yellow(string(c))
	default:
		return Dim(string(c))
	}
}

// Verdict renders an analysis verdict.
func Verdict(result *domain.AnalysisResult, threshold int) string {
	switch {
	case result.Cancelled:
		return Dim("CANCELLED")
	case !result.HasVerdict():
		return Yellow("NO VERDICT")
	case result.IsDistracted(threshold):
		return Red("DISTRACTED")
	case *result.Stage2.Distracted:
		return Yellow("DISTRACTED (below threshold)")
	default:
		return Green("WORKING")
	}
}
