package main

import "github.com/charmbracelet/lipgloss"

var (
	title   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7d56f4"))
	info    = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("#888888"))
	success = lipgloss.NewStyle().Foreground(lipgloss.Color("#28a745"))
	warn    = lipgloss.NewStyle().Foreground(lipgloss.Color("#ee9b00"))
	fail    = lipgloss.NewStyle().Foreground(lipgloss.Color("#ee4b2b"))
)
