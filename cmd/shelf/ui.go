package main

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

var (
	labelStyle  = lipgloss.NewStyle().Faint(true)
	valueStyle  = lipgloss.NewStyle().Bold(true)
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#22c55e")).Bold(true)
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#f59e0b")).Bold(true)
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#ef4444")).Bold(true)
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#7aa2f7"))
	headerStyle = lipgloss.NewStyle().Bold(true).Underline(true)
)

func renderOK(s string) string     { return okStyle.Render("✓ " + s) }
func renderWarn(s string) string   { return warnStyle.Render("⚠ " + s) }
func renderError(s string) string  { return errStyle.Render("✗ " + s) }
func renderAccent(s string) string { return accentStyle.Render(s) }

// field renders one "label: value" line with the label padded to width.
func field(label, value string, width int) string {
	return labelStyle.Width(width).Render(label+":") + " " + valueStyle.Render(value)
}

func stdinIsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}
