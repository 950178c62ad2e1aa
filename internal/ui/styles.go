// Package ui provides consistent styling and terminal prompts for the lightgreet CLI
package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Color palette - consistent across the application
var (
	ColorPrimary   = lipgloss.Color("39")  // Bright blue
	ColorSecondary = lipgloss.Color("205") // Pink/magenta
	ColorSuccess   = lipgloss.Color("82")  // Green
	ColorError     = lipgloss.Color("196") // Red
	ColorInfo      = lipgloss.Color("86")  // Cyan

	ColorText   = lipgloss.Color("252") // Light gray
	ColorSubtle = lipgloss.Color("241") // Medium gray

	ColorConnected    = ColorSuccess
	ColorDisconnected = ColorError
)

// Base styles
var (
	TextStyle = lipgloss.NewStyle().
			Foreground(ColorText)

	SubtleStyle = lipgloss.NewStyle().
			Foreground(ColorSubtle)

	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(ColorSuccess)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ColorError)

	InfoStyle = lipgloss.NewStyle().
			Foreground(ColorInfo)

	SpinnerStyle = lipgloss.NewStyle().
			Foreground(ColorSecondary)

	KeyStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary)
)

var (
	ConnectedIndicator = lipgloss.NewStyle().
				Foreground(ColorConnected).
				Render("●")

	DisconnectedIndicator = lipgloss.NewStyle().
				Foreground(ColorDisconnected).
				Render("○")
)

// Spinner frames
var SpinnerDot = []string{"⣾", "⣽", "⣻", "⢿", "⡿", "⣟", "⣯", "⣷"}

// Icons
var (
	IconSuccess = "✓"
	IconError   = "✗"
	IconInfo    = "i"
	IconSteps   = "→"
)

func FormatStatus(connected bool, status string) string {
	indicator := DisconnectedIndicator
	if connected {
		indicator = ConnectedIndicator
	}
	return indicator + " " + status
}

// FormatKeyValue renders one "key: value" line of a listing
func FormatKeyValue(key, value string) string {
	return KeyStyle.Render(key+":") + " " + TextStyle.Render(value)
}

// FormatMessage renders a daemon message; isError selects error styling
func FormatMessage(text string, isError bool) string {
	if isError {
		return ErrorStyle.Render(IconError + " " + text)
	}
	return InfoStyle.Render(IconInfo + " " + text)
}

// FormatResult renders the outcome of one step
func FormatResult(success bool, step, message string) string {
	icon := SuccessStyle.Render(IconSuccess)
	style := SuccessStyle
	if !success {
		icon = ErrorStyle.Render(IconError)
		style = ErrorStyle
	}

	result := icon + " " + step
	if message != "" {
		result += " - " + style.Render(message)
	}
	return result
}

// FormatHeader renders a title with a separator underneath
func FormatHeader(title string) string {
	return HeaderStyle.Render(IconSteps+" "+title) + "\n" + CreateSeparator(50, "─")
}

// CreateSeparator creates a horizontal line separator
func CreateSeparator(width int, char string) string {
	if width <= 0 {
		width = 50
	}
	if char == "" {
		char = "─"
	}

	return lipgloss.NewStyle().
		Foreground(ColorSubtle).
		Render(strings.Repeat(char, width))
}
