package ui

import (
	"github.com/charmbracelet/lipgloss"
)

var styles = NewPalette("#7D56F4", "#04B575", "#E03E52", "#FFA500", "#626262")

// Palette is a simple stylesheet built with named [lipgloss.Style] fields.
// The alert color marks unread items and the badge.
type Palette struct {
	title  lipgloss.Style
	ok     lipgloss.Style
	warn   lipgloss.Style
	muted  lipgloss.Style
	unread lipgloss.Style
	badge  lipgloss.Style
}

func NewPalette(title, ok, alert, warn, muted string) *Palette {
	return &Palette{
		title:  NewBold(title).MarginBottom(1),
		ok:     NewBold(ok),
		warn:   NewStyle(warn),
		muted:  NewEm(muted),
		unread: NewBold(alert),
		badge:  NewBold("#FFFFFF").Background(lipgloss.Color(alert)).Padding(0, 1),
	}
}

func NewStyle(fg string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(fg))
}

func NewBold(fg string) lipgloss.Style {
	return NewStyle(fg).Bold(true)
}

func NewEm(fg string) lipgloss.Style {
	return NewStyle(fg).Italic(true)
}
