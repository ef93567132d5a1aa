package tui

import "github.com/charmbracelet/lipgloss"

// Catppuccin Mocha.
var (
	colorGreen  = lipgloss.Color("#a6e3a1")
	colorBlue   = lipgloss.Color("#89b4fa")
	colorYellow = lipgloss.Color("#f9e2af")
	colorRed    = lipgloss.Color("#f38ba8")
	colorTeal   = lipgloss.Color("#94e2d5")
	colorMauve  = lipgloss.Color("#cba6f7")
	colorMuted  = lipgloss.Color("#5a6278")
	colorDim    = lipgloss.Color("#3a4055")
	colorBright = lipgloss.Color("#cdd6f4")
)

var (
	styleHeader         = lipgloss.NewStyle().Bold(true).Foreground(colorBright)
	styleHeaderLabel    = lipgloss.NewStyle().Bold(true).Foreground(colorMauve)
	styleDivider        = lipgloss.NewStyle().Foreground(colorDim)
	styleIconDone       = lipgloss.NewStyle().Foreground(colorGreen)
	styleIconFailed     = lipgloss.NewStyle().Foreground(colorRed)
	styleIconSkipped    = lipgloss.NewStyle().Foreground(colorMuted)
	styleFilePath       = lipgloss.NewStyle().Foreground(colorBright)
	styleFileDir        = lipgloss.NewStyle().Foreground(colorMuted)
	styleFileSize       = lipgloss.NewStyle().Foreground(colorMuted)
	styleMethod         = lipgloss.NewStyle().Foreground(colorTeal)
	styleInFlight       = lipgloss.NewStyle().Foreground(colorBlue)
	styleError          = lipgloss.NewStyle().Foreground(colorRed)
	styleErrorPath      = lipgloss.NewStyle().Foreground(colorRed).Bold(true)
	styleKeybindKey     = lipgloss.NewStyle().Foreground(colorMauve).Bold(true)
	styleKeybindLabel   = lipgloss.NewStyle().Foreground(colorMuted)
	styleBigNumber      = lipgloss.NewStyle().Bold(true).Foreground(colorGreen)
	styleSparkline      = lipgloss.NewStyle().Foreground(colorBlue)
	styleWorkerBusy     = lipgloss.NewStyle().Foreground(colorBlue)
	styleWorkerIdle     = lipgloss.NewStyle().Foreground(colorDim)
	styleProgressFilled = lipgloss.NewStyle().Foreground(colorGreen)
	styleStatus         = lipgloss.NewStyle().Foreground(colorYellow).Italic(true)
)
