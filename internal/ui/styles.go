package ui

import "github.com/charmbracelet/lipgloss"

var (
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	itemStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("15"))
	emptyStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	goodStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	badStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	busyStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Italic(true)
	matchStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Underline(true)
	promptStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("15")).Bold(true)
)
