package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

// ErrorLevel represents the severity of an error message
type ErrorLevel int

const (
	ErrorLevelError ErrorLevel = iota
	ErrorLevelWarning
	ErrorLevelInfo
)

// ErrorOptions configures the error message formatting
type ErrorOptions struct {
	Level        ErrorLevel
	Context      string
	Problem      string
	Consequence  string
	Suggestions  []string
	HelpCommands []string
	NoColor      bool
}

// FormatError creates a standardized error message with suggestions and help commands
//
// Example output:
//
//	❌ MISSING COLUMNS: build/inst_info.txt
//	   Missing columns: prism_replicat.
//
//	   Did you mean: prism_replicate?
//
//	   → Get help: assaykit deal --help
func FormatError(opts ErrorOptions) string {
	var b strings.Builder

	var headerColor, bodyColor *color.Color
	var symbol string

	switch opts.Level {
	case ErrorLevelWarning:
		headerColor = color.New(color.FgYellow, color.Bold)
		bodyColor = color.New(color.FgYellow)
		symbol = "⚠️"
	case ErrorLevelInfo:
		headerColor = color.New(color.FgCyan, color.Bold)
		bodyColor = color.New(color.FgCyan)
		symbol = "ℹ️"
	default:
		headerColor = color.New(color.FgRed, color.Bold)
		bodyColor = color.New(color.FgRed)
		symbol = "❌"
	}

	if opts.NoColor {
		headerColor.DisableColor()
		bodyColor.DisableColor()
	}

	// Header line with context
	if opts.Context != "" {
		headerColor.Fprintf(&b, "%s %s\n", symbol, strings.ToUpper(opts.Context))
		bodyColor.Fprintf(&b, "   %s\n", opts.Problem)
	} else {
		headerColor.Fprintf(&b, "%s %s\n", symbol, opts.Problem)
	}

	if opts.Consequence != "" {
		b.WriteString("\n")
		bodyColor.Fprintf(&b, "   %s\n", opts.Consequence)
	}

	if len(opts.Suggestions) > 0 {
		b.WriteString("\n")
		yellow := color.New(color.FgYellow)
		if opts.NoColor {
			yellow.DisableColor()
		}
		yellow.Fprintf(&b, "   Did you mean: %s?\n", strings.Join(opts.Suggestions, ", "))
	}

	if len(opts.HelpCommands) > 0 {
		b.WriteString("\n")
		cyan := color.New(color.FgCyan)
		if opts.NoColor {
			cyan.DisableColor()
		}
		for _, cmd := range opts.HelpCommands {
			cyan.Fprintf(&b, "   → %s\n", cmd)
		}
	}

	return b.String()
}

// WriteError writes a formatted error message to the writer
func WriteError(w io.Writer, opts ErrorOptions) {
	fmt.Fprint(w, FormatError(opts))
}

// FormatSuccess creates a success message
func FormatSuccess(message string, noColor bool) string {
	green := color.New(color.FgGreen, color.Bold)
	if noColor {
		green.DisableColor()
	}
	return green.Sprintf("✓ %s", message)
}

// WriteSuccess writes a success message to the writer
func WriteSuccess(w io.Writer, message string, noColor bool) {
	fmt.Fprintln(w, FormatSuccess(message, noColor))
}

// MissingColumns describes a table that lacks required columns. Available
// column names close to a missing one are offered as suggestions.
func MissingColumns(source string, missing, available []string, command string) ErrorOptions {
	return ErrorOptions{
		Level:        ErrorLevelError,
		Context:      "missing columns",
		Problem:      fmt.Sprintf("%s lacks %s.", source, strings.Join(missing, ", ")),
		Suggestions:  SuggestColumns(missing, available),
		HelpCommands: helpFor(command),
	}
}

// NoMatch describes a glob that matched the wrong number of files.
func NoMatch(dir, pattern string, matches int, command string) ErrorOptions {
	problem := fmt.Sprintf("No file matches %q under %s.", pattern, dir)
	if matches > 1 {
		problem = fmt.Sprintf("%d files match %q under %s; expected one.", matches, pattern, dir)
	}
	return ErrorOptions{
		Level:        ErrorLevelError,
		Context:      "file lookup failed",
		Problem:      problem,
		HelpCommands: append([]string{"List candidates: ls " + dir}, helpFor(command)...),
	}
}

// ConfigProblem describes an unusable configuration.
func ConfigProblem(message string) ErrorOptions {
	return ErrorOptions{
		Level:   ErrorLevelError,
		Context: "configuration error",
		Problem: message,
		HelpCommands: []string{
			"View config: cat assaykit.yaml",
			"Get help: assaykit --help",
		},
	}
}

// APIProblem describes a failed metadata API call.
func APIProblem(message string, command string) ErrorOptions {
	return ErrorOptions{
		Level:       ErrorLevelError,
		Context:     "metadata API",
		Problem:     message,
		Consequence: "Nothing was written.",
		HelpCommands: append([]string{
			"Check API_KEY and API_URL in the environment",
		}, helpFor(command)...),
	}
}

// Warning creates a standardized warning message
func Warning(message string, noColor bool) string {
	return FormatError(ErrorOptions{Level: ErrorLevelWarning, Problem: message, NoColor: noColor})
}

func helpFor(command string) []string {
	if command == "" {
		return []string{"Get help: assaykit --help"}
	}
	return []string{fmt.Sprintf("Get help: %s --help", command)}
}
