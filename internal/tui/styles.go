package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	StyleHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary).
			MarginBottom(1)

	StyleLabel = lipgloss.NewStyle().
			Foreground(ColorText).
			Bold(true)

	StyleSuccess = lipgloss.NewStyle().
			Foreground(ColorSuccess)

	StyleError = lipgloss.NewStyle().
			Foreground(ColorError).
			Bold(true)

	StyleWarning = lipgloss.NewStyle().
			Foreground(ColorWarning)

	StyleMuted = lipgloss.NewStyle().
			Foreground(ColorMuted)
)

const logoASCII = `
            _            __ _               
__   _____ (_) ___ ___ / _| | _____      __
\ \ / / _ \| |/ __/ _ \ |_| |/ _ \ \ /\ / /
 \ V / (_) | | (_|  __/  _| | (_) \ V  V / 
  \_/ \___/|_|\___\___|_| |_|\___/ \_/\_/  `

// Logo returns the voiceflow ASCII art
func Logo() string {
	return StyleHeader.Render(strings.Trim(logoASCII, "\n"))
}
