package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"pycicd/internal/tactile"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	skipStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	failStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	labelStyle  = lipgloss.NewStyle().Width(8).Foreground(lipgloss.Color("8"))
)

// printProgress prints the header shown before each pipeline step.
func printProgress(w io.Writer, step string, index, total int) {
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("[%d/%d] %s", index, total, step)))
}

func statusText(status string) string {
	switch status {
	case "ok":
		return okStyle.Render(status)
	case "failed":
		return failStyle.Render(status)
	default:
		return skipStyle.Render(status)
	}
}

// printError prints the failing stage header on its own line, then the detail.
func printError(w io.Writer, err error) {
	header := "Error."
	var cmdErr *tactile.CommandError
	var cfgErr *tactile.ConfigError
	var envErr *tactile.EnvironmentMissingError
	switch {
	case errors.As(err, &cmdErr):
		header = cmdErr.Header
	case errors.As(err, &cfgErr) && cfgErr.Header != "":
		header = cfgErr.Header
	case errors.As(err, &envErr):
		header = "Environment missing."
	case errors.Is(err, tactile.ErrBranchNotAllowed):
		header = "Branch not allowed."
	}
	fmt.Fprintln(w, failStyle.Render(header))
	fmt.Fprintln(w, err.Error())
}
